package bus

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// LogBus is a drop-in log-only fallback for standalone or dev runs where no
// broker is configured. It also supports in-process Subscribe, so a single
// binary can be exercised end to end without an external broker.
type LogBus struct {
	mu       sync.RWMutex
	handlers map[string][]func(Event)
}

func NewLogBus() *LogBus {
	return &LogBus{handlers: make(map[string][]func(Event))}
}

func (b *LogBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	log.Printf("bus: PUBLISH %s: %s", topic, string(data))

	ev := Event{Topic: topic, Payload: data, Timestamp: time.Now()}
	b.mu.RLock()
	handlers := append([]func(Event){}, b.handlers[topic]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *LogBus) Subscribe(topic string, handler func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *LogBus) Close() error {
	return nil
}
