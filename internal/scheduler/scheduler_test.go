package scheduler

import (
	"testing"

	"github.com/soft40051/storagelb/internal/model"
)

func nodes(ids ...string) []model.Node {
	out := make([]model.Node, len(ids))
	for i, id := range ids {
		out[i] = model.Node{ID: id, Healthy: true}
	}
	return out
}

func TestUnknownPolicyFailsConstruction(t *testing.T) {
	if _, err := New("BOGUS"); err != ErrUnknownPolicy {
		t.Errorf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestRoundRobinDistribution(t *testing.T) {
	p, err := New(RoundRobin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	healthy := nodes("n1", "n2", "n3")

	var got []string
	for i := 0; i < 6; i++ {
		n, ok := p.SelectNode(healthy, model.Request{})
		if !ok {
			t.Fatalf("expected a node, got none at iteration %d", i)
		}
		got = append(got, n.ID)
	}

	want := []string{"n1", "n2", "n3", "n1", "n2", "n3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestFCFSPicksLeastLoaded(t *testing.T) {
	p, _ := New(FCFS)
	healthy := []model.Node{
		{ID: "n1", Healthy: true, Load: 5},
		{ID: "n2", Healthy: true, Load: 1},
		{ID: "n3", Healthy: true, Load: 3},
	}
	n, ok := p.SelectNode(healthy, model.Request{})
	if !ok || n.ID != "n2" {
		t.Errorf("expected n2 (least loaded), got %+v", n)
	}
}

func TestEmptyHealthySetReturnsNoneForEveryPolicy(t *testing.T) {
	for _, name := range []PolicyName{FCFS, SJN, RoundRobin} {
		p, err := New(name)
		if err != nil {
			t.Fatalf("unexpected error constructing %s: %v", name, err)
		}
		if _, ok := p.SelectNode(nil, model.Request{}); ok {
			t.Errorf("%s: expected no selection on empty input", name)
		}
	}
}
