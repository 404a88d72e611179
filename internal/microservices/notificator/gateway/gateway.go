// Package gateway pushes order and stage events to connected sessions.
//
// Delivery is at-most-once and best-effort: events are not persisted, a channel
// without sessions drops them, and failures are logged but never retried. Clients
// that were offline reconcile by querying their team's orders.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
)

type Gateway struct {
	fan     Fanout
	lg      *logger.Logger
	timeout time.Duration
}

func New(fan Fanout, lg *logger.Logger) *Gateway {
	return &Gateway{fan: fan, lg: lg, timeout: 5 * time.Second}
}

func (g *Gateway) emit(ctx context.Context, channel, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		g.lg.Error("realtime_encode_failed", err, map[string]any{"channel": channel, "event": event})
		return
	}
	ev := Event{
		ID:         uuid.NewString(),
		Name:       event,
		Channel:    channel,
		Payload:    body,
		OccurredAt: time.Now().UTC(),
	}
	// Detached from the request: a cancelled client must not cancel the broadcast.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()
	if err := g.fan.Publish(pctx, ev); err != nil {
		g.lg.Warn("realtime_publish_failed", err, map[string]any{"channel": channel, "event": event})
		return
	}
	g.lg.Debug("realtime_published", map[string]any{"channel": channel, "event": event, "event_id": ev.ID})
}

func (g *Gateway) NotifyTeam(ctx context.Context, craft domain.Craft, event string, payload any) {
	g.emit(ctx, TeamChannel(craft), event, payload)
}

func (g *Gateway) NotifyDispatchers(ctx context.Context, event string, payload any) {
	g.emit(ctx, ChannelDispatchers, event, payload)
}

// PublishOrder sends each craft its team-filtered view and dispatchers the full view.
func (g *Gateway) PublishOrder(ctx context.Context, event string, v domain.OrderView) {
	for _, c := range v.CraftsWithWork() {
		if tv, ok := v.ForCraft(c); ok {
			g.NotifyTeam(ctx, c, event, tv)
		}
	}
	g.NotifyDispatchers(ctx, event, v)
}

// PublishActivations tells each newly unblocked team about its stage.
func (g *Gateway) PublishActivations(ctx context.Context, acts []domain.Activation, v domain.OrderView) {
	for _, a := range acts {
		p := domain.StageReadyPayload{
			OrderNumber:  a.Key.OrderNumber,
			ItemID:       a.Key.ItemID,
			AssignmentID: a.AssignmentID,
			Stage:        a.Stage,
			After:        a.After,
			Glass:        glassOf(v, a.Key.GlassAssignmentID),
			ActivatedAt:  a.ActivatedAt,
		}
		g.NotifyTeam(ctx, a.Stage, domain.EventStageReady, p)
		g.NotifyDispatchers(ctx, domain.EventStageReady, p)
	}
}

// PublishDeleted announces a deleted order to the crafts that had work on it.
func (g *Gateway) PublishDeleted(ctx context.Context, number string, crafts []domain.Craft) {
	p := domain.OrderDeletedPayload{OrderNumber: number, DeletedAt: time.Now().UTC()}
	for _, c := range crafts {
		g.NotifyTeam(ctx, c, domain.EventOrderDeleted, p)
	}
	g.NotifyDispatchers(ctx, domain.EventOrderDeleted, p)
}

func glassOf(v domain.OrderView, glassID string) *domain.GlassSummary {
	for _, it := range v.Items {
		for _, a := range it.Assignments[domain.CraftGlass] {
			if a.ID == glassID {
				return domain.SummarizeGlass(a.Assignment)
			}
		}
	}
	return nil
}
