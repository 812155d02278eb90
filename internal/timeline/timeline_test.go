package timeline

import "testing"

func TestSnapshotOrderBeforeWrap(t *testing.T) {
	s := NewStore(3)
	s.Record(Event{Stage: "a"})
	s.Record(Event{Stage: "b"})

	got := s.Snapshot()
	if len(got) != 2 || got[0].Stage != "a" || got[1].Stage != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}

func TestSnapshotWrapsAndDropsOldest(t *testing.T) {
	s := NewStore(2)
	s.Record(Event{Stage: "a"})
	s.Record(Event{Stage: "b"})
	s.Record(Event{Stage: "c"})

	got := s.Snapshot()
	if len(got) != 2 || got[0].Stage != "b" || got[1].Stage != "c" {
		t.Fatalf("expected [b c] after wrap, got %v", got)
	}
}
