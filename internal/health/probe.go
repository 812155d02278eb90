// Package health implements the periodic TCP reachability probe (C2) that
// drives NodeRegistry health transitions.
package health

import (
	"errors"
	"log"
	"net"
	"time"

	"github.com/soft40051/storagelb/internal/observability"
	"github.com/soft40051/storagelb/internal/registry"
)

var ErrIntervalTooShort = errors.New("health: probe interval must be >= probe timeout")

// Dialer abstracts the TCP connect step so tests can substitute a fake.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Prober runs the periodic health check loop against every node in a
// Registry. Only state transitions are logged (RECOVERED / FAILED); the
// probe is fail-open, so a panic inside one tick is recovered and the loop
// continues on the next tick.
type Prober struct {
	registry *registry.Registry
	dialer   Dialer
	interval time.Duration
	timeout  time.Duration
}

func New(reg *registry.Registry, interval, timeout time.Duration) (*Prober, error) {
	if interval < timeout {
		return nil, ErrIntervalTooShort
	}
	return &Prober{
		registry: reg,
		dialer:   netDialer{},
		interval: interval,
		timeout:  timeout,
	}, nil
}

// SetDialer overrides the dialer, for tests.
func (p *Prober) SetDialer(d Dialer) {
	p.dialer = d
}

// Run blocks, probing every node on each tick until stop is closed.
func (p *Prober) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *Prober) tick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("health: probe tick panicked, will retry next interval: %v", r)
		}
	}()

	for _, node := range p.registry.Snapshot() {
		p.probeOne(node.ID, node.Addr())
	}
}

func (p *Prober) probeOne(id, addr string) {
	conn, err := p.dialer.DialTimeout("tcp", addr, p.timeout)
	reachable := err == nil
	if conn != nil {
		conn.Close()
	}

	prior, regErr := p.registry.SetHealth(id, reachable)
	if regErr != nil {
		// Node was unregistered mid-probe; drop the result.
		return
	}

	if prior == reachable {
		return // no transition, no log
	}

	if reachable {
		log.Printf("health: node %s RECOVERED", id)
		observability.NodeHealthTransitions.WithLabelValues(id, "recovered").Inc()
	} else {
		log.Printf("health: node %s FAILED", id)
		observability.NodeHealthTransitions.WithLabelValues(id, "failed").Inc()
	}
}
