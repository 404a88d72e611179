package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Fanout carries an event to every process that may hold sessions on its channel.
type Fanout interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalFanout delivers straight to this process's sessions.
type LocalFanout struct{ m *Manager }

func NewLocalFanout(m *Manager) *LocalFanout { return &LocalFanout{m: m} }

func (f *LocalFanout) Publish(_ context.Context, ev Event) error {
	f.m.Deliver(ev)
	return nil
}

// Publisher is the broker client surface the AMQP fan-out needs.
type Publisher interface {
	Publish(ctx context.Context, exchange, key string, body []byte, headers amqp.Table, contentType string, persistent bool) error
}

// AMQPFanout publishes events to a topic exchange, routing key = channel name.
// Messages are transient: delivery is at-most-once.
type AMQPFanout struct {
	pub      Publisher
	exchange string
}

func NewAMQPFanout(pub Publisher, exchange string) *AMQPFanout {
	return &AMQPFanout{pub: pub, exchange: exchange}
}

func (f *AMQPFanout) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode realtime event: %w", err)
	}
	headers := amqp.Table{"x-source": "tracking-service", "x-event": ev.Name}
	return f.pub.Publish(ctx, f.exchange, ev.Channel, body, headers, "application/json", false)
}

// DecodeEvent parses a relayed AMQP body back into an Event.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode realtime event: %w", err)
	}
	if ev.Channel == "" || ev.Name == "" {
		return Event{}, fmt.Errorf("decode realtime event: channel and event name are required")
	}
	return ev, nil
}
