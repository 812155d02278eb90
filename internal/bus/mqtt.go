package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTBus transports scale intents and scale events over a configured
// broker. The paho client dispatches message callbacks on its own
// goroutines, so every callback is funneled through a single mailbox
// goroutine here, giving a subscriber serialized delivery even under
// concurrent publish traffic.
type MQTTBus struct {
	client   mqtt.Client
	mailbox  chan func()
	done     chan struct{}
}

func NewMQTTBus(host string, port int, clientID string) (*MQTTBus, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", host, port))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("bus: mqtt connect to %s:%d timed out", host, port)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("bus: mqtt connect to %s:%d failed: %w", host, port, err)
	}

	b := &MQTTBus{
		client:  client,
		mailbox: make(chan func(), 256),
		done:    make(chan struct{}),
	}
	go b.drain()
	return b, nil
}

func (b *MQTTBus) drain() {
	for {
		select {
		case fn := <-b.mailbox:
			fn()
		case <-b.done:
			return
		}
	}
}

func (b *MQTTBus) Publish(ctx context.Context, topic string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := b.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("bus: publish to %s timed out", topic)
	}
	return token.Error()
}

func (b *MQTTBus) Subscribe(topic string, handler func(Event)) error {
	token := b.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		ev := Event{Topic: msg.Topic(), Payload: msg.Payload(), Timestamp: time.Now()}
		select {
		case b.mailbox <- func() { handler(ev) }:
		case <-b.done:
		}
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("bus: subscribe to %s timed out", topic)
	}
	return token.Error()
}

func (b *MQTTBus) Close() error {
	close(b.done)
	b.client.Disconnect(250)
	log.Println("bus: mqtt client disconnected")
	return nil
}
