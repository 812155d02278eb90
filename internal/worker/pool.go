// Package worker implements the worker pool (C5): dequeues requests,
// injects admission-control latency, selects a node, forwards over HTTP,
// and tracks per-node in-flight load.
package worker

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/soft40051/storagelb/internal/accesslog"
	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/observability"
	"github.com/soft40051/storagelb/internal/queue"
	"github.com/soft40051/storagelb/internal/registry"
	"github.com/soft40051/storagelb/internal/scheduler"
	"github.com/soft40051/storagelb/internal/timeline"
)

// NoHealthyNodePolicy controls what a worker does when there is no node to
// dispatch to.
type NoHealthyNodePolicy string

const (
	// Drop logs and discards the request. This is the default.
	Drop NoHealthyNodePolicy = "drop"
	// Requeue re-offers the request with a small priority penalty so it
	// does not immediately win the next scan again.
	Requeue NoHealthyNodePolicy = "requeue"
)

// Forwarder performs the single HTTP call conveying a request to a chosen
// backend node. Implemented by *HTTPForwarder in production and faked in
// tests.
type Forwarder interface {
	Forward(ctx context.Context, node model.Node, req model.Request) error
}

// Config controls pool behavior; see DefaultConfig for defaults.
type Config struct {
	PoolSize        int
	DelayMin        time.Duration
	DelayMax        time.Duration
	NoHealthyPolicy NoHealthyNodePolicy
	RequeuePenalty  int
	// PolicyName is recorded on every access-log row; it is not consulted
	// for dispatch (that's scheduler.Policy's job).
	PolicyName string
}

func DefaultConfig() Config {
	return Config{
		PoolSize:        10,
		DelayMin:        1 * time.Second,
		DelayMax:        5 * time.Second,
		NoHealthyPolicy: Drop,
		RequeuePenalty:  -1,
	}
}

// Pool runs Config.PoolSize concurrent workers against a shared queue.
type Pool struct {
	cfg         Config
	q           *queue.Queue
	reg         *registry.Registry
	policy      scheduler.Policy
	forwarder   Forwarder
	failures    *scheduler.FailureLimiter
	timeline    *timeline.Store
	accessStore *accesslog.Store

	wg sync.WaitGroup
}

func New(cfg Config, q *queue.Queue, reg *registry.Registry, policy scheduler.Policy, fwd Forwarder, failures *scheduler.FailureLimiter, tl *timeline.Store, accessStore *accesslog.Store) *Pool {
	return &Pool{cfg: cfg, q: q, reg: reg, policy: policy, forwarder: fwd, failures: failures, timeline: tl, accessStore: accessStore}
}

// Start launches Config.PoolSize worker goroutines. They exit once stop is
// closed; Wait blocks until they have all returned.
func (p *Pool) Start(stop <-chan struct{}) {
	for i := 0; i < p.cfg.PoolSize; i++ {
		p.wg.Add(1)
		go p.run(i, stop)
	}
}

// Wait blocks until every worker goroutine has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(workerID int, stop <-chan struct{}) {
	defer p.wg.Done()
	for {
		req, ok := p.q.Take(stop)
		if !ok {
			return
		}
		p.handle(stop, req)
	}
}

func (p *Pool) handle(stop <-chan struct{}, req model.Request) {
	healthy := p.reg.SnapshotHealthy()
	if len(healthy) == 0 {
		p.handleNoNode(req, "no_healthy_nodes")
		return
	}

	node, ok := p.policy.SelectNode(healthy, req)
	if !ok {
		p.handleNoNode(req, "policy_selected_none")
		return
	}

	delay := p.admissionDelay()
	if !sleepCancellable(delay, stop) {
		return // shutdown fired during the admission delay
	}
	observability.AdmissionDelaySeconds.Observe(delay.Seconds())

	waitTime := time.Since(req.ArrivalTime)

	p.reg.IncLoad(node.ID)
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	err := p.forwarder.Forward(ctx, node, req)
	cancel()
	p.reg.DecLoad(node.ID)
	duration := time.Since(start)

	outcome := "success"
	if err != nil {
		outcome = "error"
		if p.failures != nil && p.failures.RecordFailure(node.ID) {
			log.Printf("worker: node %s has failed repeatedly, forwarding-failure budget exceeded", node.ID)
		}
	}

	observability.ForwardDuration.WithLabelValues(node.ID, outcome).Observe(duration.Seconds())
	observability.SchedulerDecisions.WithLabelValues("dispatch").Inc()

	if p.timeline != nil {
		p.timeline.Record(timeline.Event{
			ReqID:    req.ID,
			NodeID:   node.ID,
			Stage:    "FORWARDED",
			Metadata: map[string]string{"outcome": outcome, "wait_ms": fmt.Sprintf("%d", waitTime.Milliseconds())},
		})
	}

	p.accessStore.Insert(context.Background(), accesslog.Record{
		RequestID: req.ID,
		NodeID:    node.ID,
		Policy:    p.cfg.PolicyName,
		WaitMS:    waitTime.Milliseconds(),
		Outcome:   outcome,
	})

	log.Printf("worker: req=%s node=%s wait_ms=%d outcome=%s", req.ID, node.ID, waitTime.Milliseconds(), outcome)
}

func (p *Pool) handleNoNode(req model.Request, reason string) {
	observability.SchedulerDecisions.WithLabelValues(reason).Inc()

	switch p.cfg.NoHealthyPolicy {
	case Requeue:
		req.BasePriority += p.cfg.RequeuePenalty
		if err := p.q.Offer(req); err != nil {
			log.Printf("worker: req=%s dropped on requeue (%v)", req.ID, err)
		} else {
			log.Printf("worker: req=%s requeued after %s", req.ID, reason)
		}
	default:
		log.Printf("worker: req=%s dropped (%s)", req.ID, reason)
	}

	if p.timeline != nil {
		p.timeline.Record(timeline.Event{ReqID: req.ID, Stage: "NO_HEALTHY_NODE", Metadata: map[string]string{"reason": reason}})
	}
}

func (p *Pool) admissionDelay() time.Duration {
	span := p.cfg.DelayMax - p.cfg.DelayMin
	if span <= 0 {
		return p.cfg.DelayMin
	}
	return p.cfg.DelayMin + time.Duration(rand.Int63n(int64(span)))
}

// sleepCancellable sleeps for d, returning false early if stop fires.
func sleepCancellable(d time.Duration, stop <-chan struct{}) bool {
	if stop == nil {
		time.Sleep(d)
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// HTTPForwarder is the production Forwarder: a single HTTP call to the
// node's backend endpoint.
type HTTPForwarder struct {
	Client *http.Client
}

func NewHTTPForwarder() *HTTPForwarder {
	return &HTTPForwarder{Client: &http.Client{Timeout: 60 * time.Second}}
}

func (f *HTTPForwarder) Forward(ctx context.Context, node model.Node, req model.Request) error {
	method, path := requestRoute(req)
	url := fmt.Sprintf("http://%s%s", node.Addr(), path)

	var body io.Reader
	if r, ok := req.Payload.(io.Reader); ok {
		body = r
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}

	httpReq.Header.Set("X-File-Name", req.FileName)
	httpReq.Header.Set("X-File-ID", req.ID)
	httpReq.Header.Set("X-File-Size", fmt.Sprintf("%d", req.SizeBytes))
	httpReq.Header.Set("X-LB-Request-Id", req.ID)

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("worker: backend %s returned %d", node.ID, resp.StatusCode)
	}
	return nil
}

func requestRoute(req model.Request) (method, path string) {
	switch req.Type {
	case model.Upload:
		return http.MethodPost, "/api/files/upload"
	case model.Download:
		return http.MethodGet, "/api/files/" + req.ID + "/download"
	case model.Delete:
		return http.MethodDelete, "/api/files/" + req.ID
	default:
		return http.MethodGet, "/api/files/" + req.ID
	}
}
