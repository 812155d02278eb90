package bus

import (
	"context"
	"testing"
	"time"
)

func TestLogBusDeliversToSubscriber(t *testing.T) {
	b := NewLogBus()
	got := make(chan Event, 1)
	if err := b.Subscribe("topic-a", func(ev Event) { got <- ev }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := b.Publish(context.Background(), "topic-a", map[string]int{"count": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Topic != "topic-a" {
			t.Errorf("expected topic-a, got %s", ev.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestLogBusIgnoresUnrelatedTopics(t *testing.T) {
	b := NewLogBus()
	called := false
	b.Subscribe("other-topic", func(ev Event) { called = true })

	b.Publish(context.Background(), "topic-a", 1)
	time.Sleep(10 * time.Millisecond)

	if called {
		t.Error("handler for unrelated topic should not be invoked")
	}
}
