package scheduler

import (
	"sync"

	"golang.org/x/time/rate"
)

// FailureLimiter tracks per-node forwarding failures with a token bucket:
// each failure consumes a token, and a node that burns through its burst
// within the refill window is considered to be failing repeatedly. The
// worker pool calls RecordFailure per forwarding error and gets back
// whether the node has exceeded its failure budget and should be probed
// out of its normal interval.
type FailureLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewFailureLimiter allows r failures per second, in bursts of b, before a
// node is flagged for an early probe.
func NewFailureLimiter(r float64, b int) *FailureLimiter {
	return &FailureLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Limit(r),
		b:        b,
	}
}

// RecordFailure reports a forwarding failure for nodeID and returns true if
// the node has exceeded its failure budget and should be probed early.
func (f *FailureLimiter) RecordFailure(nodeID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	l, ok := f.limiters[nodeID]
	if !ok {
		l = rate.NewLimiter(f.r, f.b)
		f.limiters[nodeID] = l
	}
	return !l.Allow()
}
