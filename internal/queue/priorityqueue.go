// Package queue implements the priority request queue (C3): dynamic
// priority on scan, with an aging term that bounds starvation.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/soft40051/storagelb/internal/model"
	"github.com/soft40051/storagelb/internal/observability"
)

var ErrFull = errors.New("queue: at capacity")

const (
	DefaultAgeFactor  = 0.1
	DefaultSizeFactor = 1.0
)

// Clock abstracts time.Now for deterministic aging tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type item struct {
	req   model.Request
	order int64 // monotonic insertion sequence, tiebreaker beneath arrival time
}

// Queue is a bounded (optionally unbounded), in-memory priority queue. A
// single mutex guards both the backing slice and the condition variable
// that wakes blocked Take callers. A linear scan, not a heap, finds the max
// on every Take, because each entry's score must be recomputed at scan time
// for the max-score invariant to hold as wall-clock time advances between
// pops.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []item
	capacity int // 0 = unbounded
	seq      int64
	clock    Clock
	ageFactor  float64
	sizeFactor float64
	closed   bool
}

// Option configures a Queue at construction.
type Option func(*Queue)

func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

func WithClock(c Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func WithFactors(ageFactor, sizeFactor float64) Option {
	return func(q *Queue) {
		q.ageFactor = ageFactor
		q.sizeFactor = sizeFactor
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		clock:      realClock{},
		ageFactor:  DefaultAgeFactor,
		sizeFactor: DefaultSizeFactor,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// score computes the dynamic priority: base priority plus an aging bonus,
// minus a size penalty.
func (q *Queue) score(req model.Request, now time.Time) float64 {
	ageSeconds := now.Sub(req.ArrivalTime).Seconds()
	sizeMB := float64(req.SizeBytes) / (1024 * 1024)
	return float64(req.BasePriority) + q.ageFactor*ageSeconds - q.sizeFactor*sizeMB
}

// Offer enqueues a request. Non-blocking; fails with ErrFull only if a
// capacity bound is configured and reached.
func (q *Queue) Offer(req model.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return ErrFull
	}

	q.seq++
	q.items = append(q.items, item{req: req, order: q.seq})
	observability.QueueDepth.Set(float64(len(q.items)))
	q.cond.Signal()
	return nil
}

// Take blocks until an entry is available or stop is closed, returning the
// highest-scoring entry (ties broken by earlier arrival). Returns
// (Request{}, false) if stop fires before an entry arrives.
func (q *Queue) Take(stop <-chan struct{}) (model.Request, bool) {
	// A watcher goroutine turns the channel-based stop signal into a
	// Broadcast so the blocked sync.Cond.Wait can observe it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-stop:
			q.mu.Lock()
			q.closed = true
			q.mu.Unlock()
			q.cond.Broadcast()
		case <-done:
		}
	}()

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return model.Request{}, false
		}
		q.cond.Wait()
	}

	now := q.clock.Now()
	bestIdx := 0
	bestScore := q.score(q.items[0].req, now)
	for i := 1; i < len(q.items); i++ {
		s := q.score(q.items[i].req, now)
		cur, best := q.items[i], q.items[bestIdx]
		earlier := cur.req.ArrivalTime.Before(best.req.ArrivalTime) ||
			(cur.req.ArrivalTime.Equal(best.req.ArrivalTime) && cur.order < best.order)
		if s > bestScore || (s == bestScore && earlier) {
			bestScore = s
			bestIdx = i
		}
	}

	best := q.items[bestIdx]
	q.items = append(q.items[:bestIdx], q.items[bestIdx+1:]...)
	observability.QueueDepth.Set(float64(len(q.items)))
	return best.req, true
}

// Size returns the current queue depth.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// PeekAll returns a snapshot of every queued request, for observability and
// the scaling sensor. Order is not meaningful.
func (q *Queue) PeekAll() []model.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Request, len(q.items))
	for i, it := range q.items {
		out[i] = it.req
	}
	return out
}

// OldestAge returns the age of the oldest queued request, or 0 if empty.
func (q *Queue) OldestAge() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0
	}
	oldest := q.items[0].req.ArrivalTime
	for _, it := range q.items[1:] {
		if it.req.ArrivalTime.Before(oldest) {
			oldest = it.req.ArrivalTime
		}
	}
	return q.clock.Now().Sub(oldest)
}

// Shutdown wakes every blocked Take with a false result; subsequent Take
// calls also return false immediately.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
