// Package bus is the publish/subscribe seam between the load balancer and
// the host manager: an MQTT transport for production, and a log-only
// fallback for standalone or dev runs with no broker configured.
package bus

import (
	"context"
	"time"
)

// Event is the envelope delivered to a Subscriber callback.
type Event struct {
	Topic     string    `json:"topic"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(topic string, handler func(Event)) error
}

// PubSub is the combined capability both processes need: loadbalancer
// publishes intents and subscribes to events, hostmanager subscribes to
// intents and publishes events.
type PubSub interface {
	Publisher
	Subscriber
}
