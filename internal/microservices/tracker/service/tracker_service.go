package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/aggregator"
	"fulfillment-tracker/internal/microservices/tracker/dispatcher"
	"fulfillment-tracker/internal/microservices/tracker/repository"
)

type TrackerServiceInterface interface {
	PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.OrderView, error)
	EditOrder(ctx context.Context, number string, req domain.EditOrderRequest) (domain.OrderView, error)
	DeleteOrder(ctx context.Context, number string) error
	GetOrder(ctx context.Context, number string) (domain.OrderView, error)
	QueryOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, error)
	QueryTeamOrders(ctx context.Context, craft domain.Craft, filter domain.OrderFilter) ([]domain.OrderView, error)
	SubmitCompletion(ctx context.Context, orderNumber, itemID, assignmentID string, req domain.CompletionRequest) (domain.CompletionResult, error)
	Reconcile(ctx context.Context, orderNumber string) ([]domain.Activation, error)
	PurgeLedger(ctx context.Context, ttl time.Duration) (int64, error)
}

// Notifier is the realtime side the tracker pushes committed changes to.
type Notifier interface {
	PublishOrder(ctx context.Context, event string, v domain.OrderView)
	PublishActivations(ctx context.Context, acts []domain.Activation, v domain.OrderView)
	PublishDeleted(ctx context.Context, number string, crafts []domain.Craft)
}

// GlassCatalog resolves catalog codes on glass lines into descriptive attributes.
type GlassCatalog interface {
	GlassSpec(ctx context.Context, code string) (domain.GlassDetails, error)
}

type TrackerService struct {
	store    repository.Store
	dispatch *dispatcher.Dispatcher
	notify   Notifier
	catalog  GlassCatalog
	lg       *logger.Logger
	now      func() time.Time
	newID    func() string
}

func NewTrackerService(store repository.Store, notify Notifier, catalog GlassCatalog, lg *logger.Logger) *TrackerService {
	return &TrackerService{
		store:    store,
		dispatch: dispatcher.New(lg),
		notify:   notify,
		catalog:  catalog,
		lg:       lg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newID,
	}
}

func (s *TrackerService) GetOrder(ctx context.Context, number string) (domain.OrderView, error) {
	return repository.LoadOrderView(ctx, s.store, number)
}

func (s *TrackerService) QueryOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderView, error) {
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderView, 0, len(orders))
	for _, o := range orders {
		v, err := repository.LoadOrderView(ctx, s.store, o.Number)
		if errors.Is(err, domain.ErrNotFound) {
			continue // deleted between list and load
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// QueryTeamOrders returns team-filtered views of the orders that carry work for craft.
func (s *TrackerService) QueryTeamOrders(ctx context.Context, craft domain.Craft, filter domain.OrderFilter) ([]domain.OrderView, error) {
	all, err := s.QueryOrders(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]domain.OrderView, 0, len(all))
	for _, v := range all {
		if tv, ok := v.ForCraft(craft); ok {
			out = append(out, tv)
		}
	}
	return out, nil
}

// SubmitCompletion records one completion entry and, in the same transaction, rolls
// completion up to the order and dispatches the next decoration stage. Notifications
// go out only after commit.
func (s *TrackerService) SubmitCompletion(ctx context.Context, orderNumber, itemID, assignmentID string, req domain.CompletionRequest) (domain.CompletionResult, error) {
	if err := req.Validate(); err != nil {
		return domain.CompletionResult{}, err
	}
	entry := domain.Entry{
		Qty:         req.Qty,
		SubmittedBy: strings.TrimSpace(req.SubmittedBy),
		SubmittedAt: s.now(),
		Remarks:     req.Remarks,
	}

	var res domain.CompletionResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		res = domain.CompletionResult{}
		o, err := tx.LockOrder(ctx, orderNumber)
		if err != nil {
			return err
		}
		it, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if it.OrderNumber != orderNumber {
			return domain.NotFound("item", itemID)
		}
		a, err := tx.GetAssignment(ctx, assignmentID)
		if err != nil {
			return err
		}
		if a.OrderNumber != orderNumber || a.ItemID != itemID {
			return domain.NotFound("assignment", assignmentID)
		}

		updated, err := tx.RecordCompletion(ctx, assignmentID, req.Track, entry)
		if err != nil {
			return err
		}
		res.Assignment = updated
		res.OrderStatus, res.RollupFailed = s.rollup(ctx, tx, o)

		res.Activations, err = s.dispatch.AfterCompletion(ctx, tx, updated)
		return err
	})
	if err != nil {
		s.lg.Debug("completion_rejected", map[string]any{
			"order_number": orderNumber, "assignment_id": assignmentID, "qty": req.Qty, "reason": err.Error(),
		})
		return domain.CompletionResult{}, err
	}

	s.lg.Info("completion_recorded", map[string]any{
		"order_number":  orderNumber,
		"assignment_id": assignmentID,
		"craft":         string(res.Assignment.Craft),
		"qty":           req.Qty,
		"status":        string(res.Assignment.Status),
		"order_status":  string(res.OrderStatus),
		"activations":   len(res.Activations),
	})
	s.broadcast(ctx, orderNumber, domain.EventOrderProgress, res.Activations)
	return res, nil
}

// rollup runs the aggregator in a savepoint. A failure is logged and rolled back
// on its own; the triggering assignment write still commits.
func (s *TrackerService) rollup(ctx context.Context, tx repository.Tx, o domain.Order) (domain.OrderStatus, bool) {
	status := o.Status
	err := tx.Savepoint(ctx, func(ctx context.Context, sp repository.Tx) error {
		r, err := aggregator.RecheckOrder(ctx, sp, o.Number, s.now())
		if err != nil {
			return err
		}
		status = r.OrderStatus
		if r.Flipped {
			s.lg.Info("order_completed", map[string]any{"order_number": o.Number})
		}
		return nil
	})
	if err != nil {
		s.lg.Error("rollup_failed", err, map[string]any{"order_number": o.Number})
		return o.Status, true
	}
	return status, false
}

// Reconcile re-runs rollup and dispatch for every glass unit on the order.
func (s *TrackerService) Reconcile(ctx context.Context, orderNumber string) ([]domain.Activation, error) {
	var acts []domain.Activation
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		o, err := tx.LockOrder(ctx, orderNumber)
		if err != nil {
			return err
		}
		s.rollup(ctx, tx, o)
		acts, err = s.dispatch.Reconcile(ctx, tx, orderNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.lg.Info("order_reconciled", map[string]any{"order_number": orderNumber, "activations": len(acts)})
	if len(acts) > 0 {
		s.broadcast(ctx, orderNumber, domain.EventOrderProgress, acts)
	}
	return acts, nil
}

func (s *TrackerService) PurgeLedger(ctx context.Context, ttl time.Duration) (int64, error) {
	n, err := s.store.PurgeLedger(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.lg.Info("ledger_purged", map[string]any{"rows": n, "ttl": ttl.String()})
	}
	return n, nil
}

// RunLedgerJanitor purges the dedup ledger every interval until ctx is done.
func (s *TrackerService) RunLedgerJanitor(ctx context.Context, every, ttl time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.PurgeLedger(ctx, ttl); err != nil && ctx.Err() == nil {
				s.lg.Error("ledger_purge_failed", err, nil)
			}
		}
	}
}

// broadcast loads the committed order and fans it out. Failures only log.
func (s *TrackerService) broadcast(ctx context.Context, orderNumber, event string, acts []domain.Activation) {
	if s.notify == nil {
		return
	}
	v, err := repository.LoadOrderView(ctx, s.store, orderNumber)
	if err != nil {
		s.lg.Error("broadcast_load_failed", err, map[string]any{"order_number": orderNumber, "event": event})
		return
	}
	s.notify.PublishOrder(ctx, event, v)
	if len(acts) > 0 {
		s.notify.PublishActivations(ctx, acts, v)
	}
}
