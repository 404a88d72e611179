// Package dispatcher moves glass units through their decoration stages.
//
// Every glass assignment is one physical glass unit with its own chain. When the
// glass itself or one of its stages completes, the next stage of that chain is
// activated exactly once: the dedup ledger key (order, item, glass unit, stage)
// is claimed in the same transaction that sets the readiness flag, so a failed
// activation leaves the key unclaimed and a retry can run again.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/repository"
)

type Dispatcher struct {
	lg  *logger.Logger
	now func() time.Time
}

func New(lg *logger.Logger) *Dispatcher {
	return &Dispatcher{lg: lg, now: func() time.Time { return time.Now().UTC() }}
}

// AfterCompletion evaluates the chain of the glass unit a belongs to after a was updated.
func (d *Dispatcher) AfterCompletion(ctx context.Context, tx repository.Tx, a domain.Assignment) ([]domain.Activation, error) {
	switch {
	case a.Craft == domain.CraftGlass:
		if !a.IsComplete() || a.Glass == nil {
			return nil, nil
		}
		return d.advance(ctx, tx, a, domain.CraftGlass)
	case a.Craft.IsDecoration():
		if !a.IsComplete() {
			return nil, nil
		}
		glass, err := tx.GetAssignment(ctx, a.GlassAssignmentID)
		if err != nil {
			return nil, fmt.Errorf("resolve glass unit of %s stage %s: %w", a.Craft, a.ID, err)
		}
		return d.advance(ctx, tx, glass, a.Craft)
	}
	return nil, nil
}

// Reconcile re-evaluates every glass unit on the order and activates any stage whose
// predecessor is complete but whose ledger key was never claimed.
func (d *Dispatcher) Reconcile(ctx context.Context, tx repository.Tx, orderNumber string) ([]domain.Activation, error) {
	as, err := tx.ListOrderAssignments(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	var out []domain.Activation
	for _, g := range as {
		if g.Craft != domain.CraftGlass || g.Glass == nil {
			continue
		}
		seq, err := domain.Sequence(g.Glass.Combination)
		if err != nil {
			return nil, err
		}
		if len(seq) == 0 || !g.IsComplete() {
			continue
		}
		after := domain.CraftGlass
		for _, stage := range seq {
			acts, err := d.advance(ctx, tx, g, after)
			if err != nil {
				return nil, err
			}
			out = append(out, acts...)

			st, err := tx.FindStageAssignment(ctx, g.ID, stage)
			if err != nil {
				return nil, err
			}
			if !st.IsComplete() {
				break
			}
			after = stage
		}
		if after == seq[len(seq)-1] {
			d.lg.Debug("decoration_chain_done", map[string]any{"order_number": orderNumber, "glass_assignment_id": g.ID})
		}
	}
	return out, nil
}

// advance activates the stage following completed on glass's chain.
func (d *Dispatcher) advance(ctx context.Context, tx repository.Tx, glass domain.Assignment, completed domain.Craft) ([]domain.Activation, error) {
	next, ok, err := domain.NextStage(glass.Glass.Combination, completed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	// The first stage waits on the glass unit itself, not on another stage.
	if completed == domain.CraftGlass && !glass.IsComplete() {
		return nil, nil
	}

	key := domain.DispatchKey{
		OrderNumber:       glass.OrderNumber,
		ItemID:            glass.ItemID,
		GlassAssignmentID: glass.ID,
		Stage:             next,
	}
	done, err := tx.IsDispatched(ctx, key)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, nil
	}

	target, err := tx.FindStageAssignment(ctx, glass.ID, next)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", key, err)
	}
	now := d.now()
	claimed, err := tx.MarkDispatched(ctx, key, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}
	activated, err := tx.ActivateStage(ctx, target.ID, now)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s: %w", key, err)
	}
	if !activated {
		d.lg.Debug("stage_already_ready", map[string]any{"key": key.String(), "assignment_id": target.ID})
		return nil, nil
	}
	d.lg.Info("stage_dispatched", map[string]any{
		"key": key.String(), "assignment_id": target.ID, "after": string(completed),
	})
	return []domain.Activation{{
		Key:          key,
		AssignmentID: target.ID,
		Stage:        next,
		After:        completed,
		ActivatedAt:  now,
	}}, nil
}
