// Package aggregator rolls completion up from assignments to items to orders.
package aggregator

import (
	"context"
	"fmt"
	"time"

	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/repository"
)

// IsAssignmentComplete applies the craft-specific completion predicate.
// Caps with an assembly process need both metal and assembly tracking full.
func IsAssignmentComplete(a domain.Assignment) bool {
	return a.IsComplete()
}

// IsItemComplete reports whether every non-empty craft group on item is complete.
// Empty groups are satisfied.
func IsItemComplete(item domain.OrderItem, byID map[string]domain.Assignment) bool {
	for _, c := range domain.Crafts {
		if !groupComplete(item.TeamAssignments[c], byID) {
			return false
		}
	}
	return true
}

func groupComplete(ids []string, byID map[string]domain.Assignment) bool {
	for _, id := range ids {
		a, ok := byID[id]
		if !ok || !IsAssignmentComplete(a) {
			return false
		}
	}
	return true
}

func groupStatus(ids []string, byID map[string]domain.Assignment) domain.AssignmentStatus {
	if groupComplete(ids, byID) {
		return domain.StatusCompleted
	}
	for _, id := range ids {
		if byID[id].DeriveStatus() != domain.StatusPending {
			return domain.StatusInProgress
		}
	}
	return domain.StatusPending
}

type Result struct {
	OrderStatus domain.OrderStatus
	// Flipped is true when this recheck moved the order to completed.
	Flipped bool
}

// RecheckOrder refreshes each item's team_status cache and moves the order to
// completed once every item is complete. It never moves an order back to pending.
func RecheckOrder(ctx context.Context, tx repository.Tx, number string, now time.Time) (Result, error) {
	o, err := tx.GetOrder(ctx, number)
	if err != nil {
		return Result{}, err
	}
	items, err := tx.ListItems(ctx, number)
	if err != nil {
		return Result{}, err
	}
	as, err := tx.ListOrderAssignments(ctx, number)
	if err != nil {
		return Result{}, err
	}
	byID := make(map[string]domain.Assignment, len(as))
	for _, a := range as {
		byID[a.ID] = a
	}

	for _, it := range items {
		for c, ids := range it.TeamAssignments {
			if len(ids) == 0 {
				continue
			}
			st := groupStatus(ids, byID)
			if it.TeamStatus[c] == st {
				continue
			}
			if err := tx.SetTeamStatus(ctx, it.ID, c, st); err != nil {
				return Result{}, fmt.Errorf("refresh %s status of item %s: %w", c, it.ID, err)
			}
		}
	}

	if o.Status == domain.OrderCompleted {
		return Result{OrderStatus: o.Status}, nil
	}
	for _, it := range items {
		if !IsItemComplete(it, byID) {
			return Result{OrderStatus: o.Status}, nil
		}
	}
	flipped, err := tx.SetOrderCompleted(ctx, number, now)
	if err != nil {
		return Result{}, err
	}
	return Result{OrderStatus: domain.OrderCompleted, Flipped: flipped}, nil
}
