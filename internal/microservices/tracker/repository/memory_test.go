package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"fulfillment-tracker/internal/domain"
)

func seedOrder(t *testing.T, m *MemoryStore) {
	t.Helper()
	now := time.Now().UTC()
	err := m.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.CreateOrder(ctx,
			domain.Order{Number: "ORD-1", Status: domain.OrderPending, ItemIDs: []string{"i1"}, CreatedAt: now},
			[]domain.OrderItem{{ID: "i1", OrderNumber: "ORD-1", TeamAssignments: map[domain.Craft][]string{
				domain.CraftPumps:    {"p1"},
				domain.CraftPrinting: {"s1"},
			}}},
			[]domain.Assignment{
				{ID: "p1", ItemID: "i1", OrderNumber: "ORD-1", Craft: domain.CraftPumps, Quantity: 5},
				{ID: "s1", ItemID: "i1", OrderNumber: "ORD-1", Craft: domain.CraftPrinting, Quantity: 5, GlassAssignmentID: "g-x"},
			})
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func entry(qty int) domain.Entry {
	return domain.Entry{Qty: qty, SubmittedBy: "op", SubmittedAt: time.Now().UTC()}
}

func TestMemoryRecordCompletionCapacity(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	ctx := context.Background()

	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		a, err := tx.RecordCompletion(ctx, "p1", "", entry(5))
		if err != nil {
			return err
		}
		if a.Status != domain.StatusCompleted || a.Tracking.LastUpdated == nil {
			t.Errorf("expected completed assignment with last_updated, got %+v", a)
		}
		_, err = tx.RecordCompletion(ctx, "p1", "", entry(1))
		return err
	})
	if !errors.Is(err, domain.ErrQuantityExceeded) {
		t.Fatalf("expected quantity exceeded, got %v", err)
	}
	a, _ := m.GetAssignment(ctx, "p1")
	if a.Tracking.TotalCompletedQty != 0 {
		t.Fatalf("failed transaction must not commit, got %d", a.Tracking.TotalCompletedQty)
	}
}

func TestMemoryRejectsBlockedStage(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	err := m.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.RecordCompletion(ctx, "s1", "", entry(1))
		return err
	})
	var ce *domain.ConflictError
	if !errors.As(err, &ce) || !ce.Retryable {
		t.Fatalf("expected retryable conflict, got %v", err)
	}
}

func TestMemorySavepointRollsBackOnlyInnerWrites(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	ctx := context.Background()

	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.RecordCompletion(ctx, "p1", "", entry(2)); err != nil {
			return err
		}
		spErr := tx.Savepoint(ctx, func(ctx context.Context, sp Tx) error {
			if err := sp.SetTeamStatus(ctx, "i1", domain.CraftPumps, domain.StatusInProgress); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		if spErr == nil {
			t.Errorf("expected savepoint error")
		}
		return tx.SetTeamStatus(ctx, "i1", domain.CraftPrinting, domain.StatusPending)
	})
	if err != nil {
		t.Fatalf("outer transaction failed: %v", err)
	}

	a, _ := m.GetAssignment(ctx, "p1")
	if a.Tracking.TotalCompletedQty != 2 {
		t.Fatalf("outer write lost, got %d", a.Tracking.TotalCompletedQty)
	}
	it, _ := m.GetItem(ctx, "i1")
	if _, ok := it.TeamStatus[domain.CraftPumps]; ok {
		t.Fatalf("savepoint write survived rollback: %v", it.TeamStatus)
	}
	if it.TeamStatus[domain.CraftPrinting] != domain.StatusPending {
		t.Fatalf("write after savepoint lost: %v", it.TeamStatus)
	}
}

func TestMemoryLedgerClaimAndActivation(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	ctx := context.Background()
	key := domain.DispatchKey{OrderNumber: "ORD-1", ItemID: "i1", GlassAssignmentID: "g-x", Stage: domain.CraftPrinting}

	err := m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		now := time.Now().UTC()
		first, err := tx.MarkDispatched(ctx, key, now)
		if err != nil || !first {
			t.Errorf("first claim: %v, %v", first, err)
		}
		second, err := tx.MarkDispatched(ctx, key, now)
		if err != nil || second {
			t.Errorf("second claim must report false: %v, %v", second, err)
		}
		on, err := tx.ActivateStage(ctx, "s1", now)
		if err != nil || !on {
			t.Errorf("activate: %v, %v", on, err)
		}
		again, err := tx.ActivateStage(ctx, "s1", now)
		if err != nil || again {
			t.Errorf("second activate must report false: %v, %v", again, err)
		}
		if _, err := tx.ActivateStage(ctx, "p1", now); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for non-stage, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if ok, _ := m.IsDispatched(ctx, key); !ok {
		t.Fatalf("ledger claim not committed")
	}
}

func TestMemoryPurgeLedgerOnlyCompletedOrders(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	ctx := context.Background()
	old := time.Now().UTC().Add(-2 * time.Hour)
	key := domain.DispatchKey{OrderNumber: "ORD-1", ItemID: "i1", GlassAssignmentID: "g-x", Stage: domain.CraftPrinting}
	_ = m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.MarkDispatched(ctx, key, old)
		return err
	})

	cutoff := time.Now().UTC().Add(-time.Hour)
	if n, _ := m.PurgeLedger(ctx, cutoff); n != 0 {
		t.Fatalf("pending order rows purged: %d", n)
	}
	_ = m.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.SetOrderCompleted(ctx, "ORD-1", time.Now().UTC())
		return err
	})
	if n, _ := m.PurgeLedger(ctx, cutoff); n != 1 {
		t.Fatalf("expected one purged row, got %d", n)
	}
}

func TestMemoryReadsAreCopies(t *testing.T) {
	m := NewMemoryStore()
	seedOrder(t, m)
	ctx := context.Background()
	it, _ := m.GetItem(ctx, "i1")
	it.TeamAssignments[domain.CraftPumps][0] = "mutated"
	again, _ := m.GetItem(ctx, "i1")
	if again.TeamAssignments[domain.CraftPumps][0] != "p1" {
		t.Fatalf("caller mutated stored item")
	}
}
