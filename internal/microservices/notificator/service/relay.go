package service

import (
	"context"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/microservices/notificator/gateway"
)

// Relay hands every event published on the exchange to this process's sessions.
// Each instance owns its own queue, so all instances see all events.
type Relay struct {
	sub      Subscriber
	exchange string
	mgr      *gateway.Manager
	lg       *logger.Logger
}

func NewRelay(sub Subscriber, exchange string, mgr *gateway.Manager, lg *logger.Logger) *Relay {
	return &Relay{sub: sub, exchange: exchange, mgr: mgr, lg: lg}
}

func (r *Relay) Run(ctx context.Context) error {
	msgs, err := r.sub.Subscribe(ctx, r.exchange, "#", "realtime-relay")
	if err != nil {
		return err
	}
	r.lg.Info("relay_started", map[string]any{"exchange": r.exchange})
	return consume(ctx, msgs, func(ev gateway.Event) {
		n := r.mgr.Deliver(ev)
		r.lg.Debug("relay_delivered", map[string]any{"event_id": ev.ID, "channel": ev.Channel, "sessions": n})
	}, r.lg)
}
