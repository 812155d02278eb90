package queue

import (
	"testing"
	"time"

	"github.com/soft40051/storagelb/internal/model"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }

func mb(n float64) int64 { return int64(n * 1024 * 1024) }

func TestPriorityBeatsFIFO(t *testing.T) {
	base := time.Unix(0, 0)
	clk := &fakeClock{now: base}
	q := New(WithClock(clk))

	q.Offer(model.Request{ID: "r1", SizeBytes: mb(100), ArrivalTime: base})
	clk.now = base.Add(1 * time.Millisecond)
	q.Offer(model.Request{ID: "r2", SizeBytes: mb(1), ArrivalTime: base.Add(1 * time.Millisecond)})

	clk.now = base.Add(2 * time.Millisecond)
	got, ok := q.Take(nil)
	if !ok || got.ID != "r2" {
		t.Fatalf("expected r2 (smaller size wins), got %+v ok=%v", got, ok)
	}
}

func TestAgingFlipsPriority(t *testing.T) {
	base := time.Unix(0, 0)
	clk := &fakeClock{now: base}
	q := New(WithClock(clk), WithFactors(0.1, 1.0))

	// R1: 5MB at t=0. R3 arrives later at t=60s with 1MB, base priority -1.
	q.Offer(model.Request{ID: "r1", SizeBytes: mb(5), BasePriority: 0, ArrivalTime: base})

	clk.now = base.Add(60 * time.Second)
	q.Offer(model.Request{ID: "r3", SizeBytes: mb(1), BasePriority: -1, ArrivalTime: clk.now})

	got, ok := q.Take(nil)
	if !ok || got.ID != "r1" {
		t.Fatalf("expected r1 to win on aging (score 1 vs -2), got %+v", got)
	}
}

func TestTiesBreakByEarlierArrival(t *testing.T) {
	base := time.Unix(0, 0)
	clk := &fakeClock{now: base}
	q := New(WithClock(clk))

	q.Offer(model.Request{ID: "first", SizeBytes: mb(1), ArrivalTime: base})
	q.Offer(model.Request{ID: "second", SizeBytes: mb(1), ArrivalTime: base})

	got, ok := q.Take(nil)
	if !ok || got.ID != "first" {
		t.Fatalf("expected earlier arrival to win a tie, got %+v", got)
	}
}

func TestTakeBlocksUntilOffer(t *testing.T) {
	q := New()
	done := make(chan model.Request, 1)
	go func() {
		req, ok := q.Take(nil)
		if ok {
			done <- req
		}
	}()

	select {
	case <-done:
		t.Fatal("Take returned before any Offer")
	case <-time.After(50 * time.Millisecond):
	}

	q.Offer(model.Request{ID: "r1", ArrivalTime: time.Now()})

	select {
	case req := <-done:
		if req.ID != "r1" {
			t.Errorf("expected r1, got %s", req.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Take never returned after Offer")
	}
}

func TestOfferFailsWhenFull(t *testing.T) {
	q := New(WithCapacity(1))
	if err := q.Offer(model.Request{ID: "r1", ArrivalTime: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := q.Offer(model.Request{ID: "r2", ArrivalTime: time.Now()}); err != ErrFull {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestShutdownUnblocksTake(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Take(nil)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected Take to return false after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Take never unblocked after Shutdown")
	}
}

func TestAntiStarvation(t *testing.T) {
	base := time.Unix(0, 0)
	clk := &fakeClock{now: base}
	q := New(WithClock(clk))

	// A large, old request ages at AGE_FACTOR per second while its size
	// penalty stays fixed. Any freshly-arriving small request always starts
	// at age 0, so there is a bounded time after which the old request's
	// score exceeds every such newcomer's score.
	q.Offer(model.Request{ID: "big-old", SizeBytes: mb(500), ArrivalTime: base})

	for _, elapsed := range []time.Duration{1 * time.Second, 100 * time.Second, 5000 * time.Second} {
		clk.now = base.Add(elapsed)
		q.Offer(model.Request{ID: "fresh", SizeBytes: mb(1), ArrivalTime: clk.now})

		got, ok := q.Take(nil)
		if !ok {
			t.Fatalf("Take returned no entry at elapsed=%v", elapsed)
		}
		if elapsed < 5000*time.Second {
			// Too early: size penalty still dominates the aging bonus.
			if got.ID != "fresh" {
				t.Fatalf("expected fresh to still win at elapsed=%v, got %s", elapsed, got.ID)
			}
			continue
		}
		if got.ID != "big-old" {
			t.Fatalf("expected big-old to win after sufficient aging, got %s", got.ID)
		}
	}
}
