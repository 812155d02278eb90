// Package scheduler implements the node-selection policy (C4): FCFS, SJN,
// and RoundRobin. Each variant selects one healthy node per dequeued
// request and never panics on empty input.
package scheduler

import (
	"errors"
	"sync/atomic"

	"github.com/soft40051/storagelb/internal/model"
)

var ErrUnknownPolicy = errors.New("scheduler: unknown policy")

// PolicyName identifies a scheduler variant by its SCHEDULER_TYPE config
// value.
type PolicyName string

const (
	FCFS       PolicyName = "FCFS"
	SJN        PolicyName = "SJN"
	RoundRobin PolicyName = "ROUNDROBIN"
)

// Policy selects one node from a healthy snapshot for a given request.
// Implementations must return (model.Node{}, false) on empty input rather
// than panicking.
type Policy interface {
	SelectNode(healthy []model.Node, req model.Request) (model.Node, bool)
}

// New constructs the configured policy. Unknown names fail construction
// rather than silently falling back to a default.
func New(name PolicyName) (Policy, error) {
	switch name {
	case FCFS:
		return &fcfsPolicy{}, nil
	case SJN:
		return &roundRobinPolicy{}, nil // SJN spreads already size-sorted work evenly
	case RoundRobin:
		return &roundRobinPolicy{}, nil
	default:
		return nil, ErrUnknownPolicy
	}
}

// fcfsPolicy returns the least-loaded node, tie-broken by registry
// (snapshot) order. The queue already provides ordering; FCFS spreads to
// the freest backend.
type fcfsPolicy struct{}

func (p *fcfsPolicy) SelectNode(healthy []model.Node, _ model.Request) (model.Node, bool) {
	if len(healthy) == 0 {
		return model.Node{}, false
	}
	best := healthy[0]
	for _, n := range healthy[1:] {
		if n.Load < best.Load {
			best = n
		}
	}
	return best, true
}

// roundRobinPolicy is a stateful monotonic counter modulo len(healthy). It
// backs both the ROUNDROBIN policy and SJN, which spreads the queue's
// already size-ordered requests evenly across healthy nodes.
type roundRobinPolicy struct {
	counter atomic.Uint64
}

func (p *roundRobinPolicy) SelectNode(healthy []model.Node, _ model.Request) (model.Node, bool) {
	if len(healthy) == 0 {
		return model.Node{}, false
	}
	idx := p.counter.Add(1) - 1
	return healthy[idx%uint64(len(healthy))], true
}
