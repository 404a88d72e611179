package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment-tracker/internal/config"
)

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel // confirm mode
}

func (c *Client) Close() {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func Dial(cfg config.RabbitMQConfig) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Ping() error {
	if c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// DeclareRealtime declares the topic exchange realtime events are routed through.
// The exchange is not durable: realtime events are never persisted.
func (c *Client) DeclareRealtime(exchange string) error {
	if err := c.ch.ExchangeDeclare(exchange, "topic", false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// Subscribe binds a server-named, exclusive, auto-deleted queue to exchange and
// consumes it with auto-ack on a dedicated channel. The channel closes with ctx.
func (c *Client) Subscribe(ctx context.Context, exchange, bindingKey, consumer string) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s to %s: %w", q.Name, exchange, err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, consumer, true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}
	go func() {
		<-ctx.Done()
		_ = ch.Close()
	}()
	return msgs, nil
}

// Publish sends one message and waits for the broker's ack or nack of that message.
// A confirm that arrives after ctx ended is discarded with its deferred confirmation.
func (c *Client) Publish(ctx context.Context, exchange, key string,
	body []byte, headers amqp.Table, contentType string, persistent bool) error {

	mode := amqp.Transient
	if persistent {
		mode = amqp.Persistent
	}

	dc, err := c.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: mode,
			ContentType:  contentType,
			Timestamp:    time.Now(),
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return err
	}
	if dc == nil {
		return errors.New("publish: channel is not in confirm mode")
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("publish NACK from broker")
	}
	return nil
}
