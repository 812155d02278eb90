// Package registry implements the node registry (C1): the set of backend
// aggregator nodes, their health flags, and their in-flight load counters.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/soft40051/storagelb/internal/model"
)

var (
	ErrAlreadyExists = errors.New("registry: node already exists")
	ErrNotFound      = errors.New("registry: node not found")
)

type entry struct {
	node    model.Node
	healthy atomic.Bool
	load    atomic.Int64
}

// Registry is the thread-safe node set. Readers (SnapshotHealthy) never
// block each other; writers serialize among themselves through mu. Each
// snapshot is an immutable copy, so a scheduler's decision is never
// invalidated by a concurrent health transition.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	order   []string // insertion order, for stable snapshot iteration
}

func New() *Registry {
	return &Registry{
		byID: make(map[string]*entry),
	}
}

// Register adds a node with initial health Healthy.
func (r *Registry) Register(id, host string, port int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return ErrAlreadyExists
	}

	e := &entry{node: model.Node{ID: id, Host: host, Port: port}}
	e.healthy.Store(true)
	r.byID[id] = e
	r.order = append(r.order, id)
	return nil
}

// Unregister removes a node. In-flight requests already holding a borrowed
// Node value continue to completion; only future dispatches are affected.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; !exists {
		return ErrNotFound
	}
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// SetHealth is idempotent and returns the prior health state.
func (r *Registry) SetHealth(id string, healthy bool) (prior bool, err error) {
	r.mu.RLock()
	e, exists := r.byID[id]
	r.mu.RUnlock()
	if !exists {
		return false, ErrNotFound
	}
	prior = e.healthy.Swap(healthy)
	return prior, nil
}

// SnapshotHealthy returns a point-in-time copy of all healthy nodes, in
// stable (registration) order. Safe to call concurrently with any mutation.
func (r *Registry) SnapshotHealthy() []model.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Node, 0, len(r.order))
	for _, id := range r.order {
		e := r.byID[id]
		if !e.healthy.Load() {
			continue
		}
		n := e.node
		n.Healthy = true
		n.Load = int(e.load.Load())
		out = append(out, n)
	}
	return out
}

// Snapshot returns every node (healthy or not), for status/debug surfaces.
func (r *Registry) Snapshot() []model.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Node, 0, len(r.order))
	for _, id := range r.order {
		e := r.byID[id]
		n := e.node
		n.Healthy = e.healthy.Load()
		n.Load = int(e.load.Load())
		out = append(out, n)
	}
	return out
}

// IncLoad atomically increments the in-flight counter for id.
func (r *Registry) IncLoad(id string) error {
	r.mu.RLock()
	e, exists := r.byID[id]
	r.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}
	e.load.Add(1)
	return nil
}

// DecLoad atomically decrements the in-flight counter for id, clamped at
// zero.
func (r *Registry) DecLoad(id string) error {
	r.mu.RLock()
	e, exists := r.byID[id]
	r.mu.RUnlock()
	if !exists {
		return ErrNotFound
	}
	for {
		cur := e.load.Load()
		if cur <= 0 {
			return nil
		}
		if e.load.CompareAndSwap(cur, cur-1) {
			return nil
		}
	}
}

// Count returns the total number of registered nodes (healthy or not).
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CountHealthy returns the number of currently healthy nodes.
func (r *Registry) CountHealthy() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, id := range r.order {
		if r.byID[id].healthy.Load() {
			n++
		}
	}
	return n
}
