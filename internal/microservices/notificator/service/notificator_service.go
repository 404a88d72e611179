package service

import (
	"context"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/microservices/notificator/gateway"
)

// Subscriber is the broker surface the realtime consumers need.
type Subscriber interface {
	Subscribe(ctx context.Context, exchange, bindingKey, consumer string) (<-chan amqp.Delivery, error)
}

// NotificatorService is the ops tap: it logs every realtime event crossing the exchange.
type NotificatorService struct {
	sub      Subscriber
	exchange string
	lg       *logger.Logger
}

func NewNotificatorService(sub Subscriber, exchange string, lg *logger.Logger) *NotificatorService {
	return &NotificatorService{sub: sub, exchange: exchange, lg: lg}
}

func (ns *NotificatorService) Notify(ctx context.Context) error {
	msgs, err := ns.sub.Subscribe(ctx, ns.exchange, "#", "notification-subscriber")
	if err != nil {
		return err
	}
	ns.lg.Info("subscriber_started", map[string]any{"exchange": ns.exchange})
	return consume(ctx, msgs, func(ev gateway.Event) {
		ns.lg.Info("notification_received", map[string]any{
			"event_id": ev.ID, "event": ev.Name, "channel": ev.Channel, "occurred_at": ev.OccurredAt,
		})
	}, ns.lg)
}

// consume decodes deliveries until ctx ends or the broker closes the channel.
func consume(ctx context.Context, msgs <-chan amqp.Delivery, handle func(gateway.Event), lg *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("realtime delivery channel closed")
			}
			ev, err := gateway.DecodeEvent(msg.Body)
			if err != nil {
				lg.Warn("realtime_decode_failed", err, map[string]any{"routing_key": msg.RoutingKey})
				continue
			}
			handle(ev)
		}
	}
}
