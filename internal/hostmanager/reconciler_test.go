package hostmanager

import (
	"context"
	"sync"
	"testing"

	"github.com/soft40051/storagelb/internal/containerrt"
	"github.com/soft40051/storagelb/internal/model"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []model.ScaleEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload.(model.ScaleEvent))
	return nil
}
func (p *capturingPublisher) Close() error { return nil }

func newTestReconciler(cfg Config) (*Reconciler, *containerrt.FakeRuntime, *capturingPublisher) {
	rt := containerrt.NewFakeRuntime()
	pub := &capturingPublisher{}
	return New(cfg, rt, pub), rt, pub
}

func TestScaleUpGapFillsLowestFreeIndex(t *testing.T) {
	r, _, _ := newTestReconciler(DefaultConfig())

	// seed Desired = {c1, c3} directly
	r.desired[1] = &containerEntry{index: 1, name: r.name(1), state: Running}
	r.desired[3] = &containerEntry{index: 3, name: r.name(3), state: Running}

	r.applyIntent(model.ScaleIntent{Direction: model.ScaleUp, Count: 1, Seq: 42})

	if _, ok := r.desired[2]; !ok {
		t.Fatalf("expected index 2 (gap) to be filled, desired=%v", keysOf(r.desired))
	}
	if _, ok := r.desired[4]; ok {
		t.Fatal("expected index 4 not to be used while a gap at 2 exists")
	}
}

func TestScaleDownRemovesHighestIndicesFirstAndRespectsFloor(t *testing.T) {
	r, _, _ := newTestReconciler(DefaultConfig())
	r.cfg.Min = 1
	for i := 1; i <= 4; i++ {
		r.desired[i] = &containerEntry{index: i, name: r.name(i), state: Running}
	}

	r.applyIntent(model.ScaleIntent{Direction: model.ScaleDown, Count: 2, Seq: 1})

	if r.desired[4].state != Stopping || r.desired[3].state != Stopping {
		t.Fatalf("expected indices 4 and 3 to be marked Stopping")
	}
	if r.desired[1].state == Stopping || r.desired[2].state == Stopping {
		t.Fatal("expected indices 1 and 2 to remain untouched")
	}

	r.applyIntent(model.ScaleIntent{Direction: model.ScaleDown, Count: 5, Seq: 2})
	remaining := 0
	for _, e := range r.desired {
		if e.state != Stopping {
			remaining++
		}
	}
	if remaining != 1 {
		t.Fatalf("expected floor of 1 non-stopping container, got %d", remaining)
	}
}

func TestDuplicateSeqIsIgnored(t *testing.T) {
	r, _, _ := newTestReconciler(DefaultConfig())

	r.applyIntent(model.ScaleIntent{Direction: model.ScaleUp, Count: 1, Seq: 7})
	firstCount := len(r.desired)

	r.applyIntent(model.ScaleIntent{Direction: model.ScaleUp, Count: 1, Seq: 7})
	if len(r.desired) != firstCount {
		t.Fatalf("expected replayed seq to be a no-op, had %d now have %d", firstCount, len(r.desired))
	}
}

func TestReconcileTickStartsRequestedContainerAndPublishesEvent(t *testing.T) {
	r, _, pub := newTestReconciler(DefaultConfig())
	r.applyIntent(model.ScaleIntent{Direction: model.ScaleUp, Count: 1, Seq: 1})

	r.reconcileTick(context.Background())

	entry := r.desired[1]
	if entry.state != Running {
		t.Fatalf("expected container to reach Running after a successful start+inspect, got %s", entry.state)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0].Action != "up" {
		t.Fatalf("expected one 'up' event, got %v", pub.events)
	}
}

func TestReconcileTickRetriesThenGivesUpAfterMaxAttempts(t *testing.T) {
	r, rt, _ := newTestReconciler(DefaultConfig())
	r.applyIntent(model.ScaleIntent{Direction: model.ScaleUp, Count: 1, Seq: 1})

	name := r.name(1)
	for i := 0; i < maxStartAttempts; i++ {
		rt.FailNext[name] = true
		r.tryStart(context.Background(), 1, r.desired[1], r.desired[1].nextTry)
	}

	if _, stillDesired := r.desired[1]; stillDesired {
		t.Fatal("expected container to be dropped from Desired after exhausting retries")
	}
}

func keysOf(m map[int]*containerEntry) []int {
	var out []int
	for k := range m {
		out = append(out, k)
	}
	return out
}
