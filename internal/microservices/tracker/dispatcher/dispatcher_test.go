package dispatcher

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/tracker/repository"
)

func TestMain(m *testing.M) {
	logger.Configure("error", io.Discard)
	os.Exit(m.Run())
}

// seedGlass creates one glass unit of qty with its stages pre-created and blocked.
func seedGlass(t *testing.T, store *repository.MemoryStore, combination string, qty int) {
	t.Helper()
	now := time.Now().UTC()
	glass := domain.Assignment{ID: "g1", ItemID: "i1", OrderNumber: "ORD-1", Craft: domain.CraftGlass, Quantity: qty,
		Glass: &domain.GlassDetails{Name: "Flint", Combination: combination}}
	item := domain.OrderItem{ID: "i1", OrderNumber: "ORD-1", TeamAssignments: map[domain.Craft][]string{domain.CraftGlass: {"g1"}}}
	as := []domain.Assignment{glass}
	seq, err := domain.Sequence(combination)
	if err != nil {
		t.Fatalf("sequence failed: %v", err)
	}
	for _, st := range seq {
		id := "st-" + string(st)
		as = append(as, domain.Assignment{ID: id, ItemID: "i1", OrderNumber: "ORD-1", Craft: st, Quantity: qty, GlassAssignmentID: "g1"})
		item.TeamAssignments[st] = []string{id}
	}
	err = store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.CreateOrder(ctx, domain.Order{Number: "ORD-1", Status: domain.OrderPending, ItemIDs: []string{"i1"}, CreatedAt: now},
			[]domain.OrderItem{item}, as)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func complete(t *testing.T, store *repository.MemoryStore, d *Dispatcher, id string, qty int) []domain.Activation {
	t.Helper()
	var acts []domain.Activation
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.RecordCompletion(ctx, id, "", domain.Entry{Qty: qty, SubmittedBy: "op", SubmittedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		acts, err = d.AfterCompletion(ctx, tx, a)
		return err
	})
	if err != nil {
		t.Fatalf("complete %s failed: %v", id, err)
	}
	return acts
}

func TestAfterCompletionWalksTheChain(t *testing.T) {
	store := repository.NewMemoryStore()
	seedGlass(t, store, "frosting_printing_foiling", 4)
	d := New(logger.New("dispatcher-test"))

	if acts := complete(t, store, d, "g1", 3); len(acts) != 0 {
		t.Fatalf("partial glass dispatched: %+v", acts)
	}
	acts := complete(t, store, d, "g1", 1)
	if len(acts) != 1 || acts[0].Stage != domain.CraftFrosting || acts[0].AssignmentID != "st-frosting" {
		t.Fatalf("expected frosting activation, got %+v", acts)
	}
	want := domain.DispatchKey{OrderNumber: "ORD-1", ItemID: "i1", GlassAssignmentID: "g1", Stage: domain.CraftFrosting}
	if acts[0].Key != want {
		t.Fatalf("unexpected key %s", acts[0].Key)
	}
	st, _ := store.GetAssignment(context.Background(), "st-frosting")
	if !st.Ready || st.ReadyAt == nil {
		t.Fatalf("frosting stage must be ready, got %+v", st)
	}

	acts = complete(t, store, d, "st-frosting", 4)
	if len(acts) != 1 || acts[0].Stage != domain.CraftPrinting || acts[0].After != domain.CraftFrosting {
		t.Fatalf("expected printing activation, got %+v", acts)
	}
	acts = complete(t, store, d, "st-printing", 4)
	if len(acts) != 1 || acts[0].Stage != domain.CraftFoiling {
		t.Fatalf("expected foiling activation, got %+v", acts)
	}
	if acts = complete(t, store, d, "st-foiling", 4); len(acts) != 0 {
		t.Fatalf("chain end dispatched: %+v", acts)
	}
}

func TestUndecoratedGlassDispatchesNothing(t *testing.T) {
	store := repository.NewMemoryStore()
	seedGlass(t, store, domain.NoDecoration, 2)
	d := New(logger.New("dispatcher-test"))
	if acts := complete(t, store, d, "g1", 2); len(acts) != 0 {
		t.Fatalf("undecorated glass dispatched: %+v", acts)
	}
}

func TestReconcileActivatesMissedStagesOnce(t *testing.T) {
	store := repository.NewMemoryStore()
	seedGlass(t, store, "coating_foiling", 2)
	d := New(logger.New("dispatcher-test"))

	// Glass completed without running the dispatcher.
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.RecordCompletion(ctx, "g1", "", domain.Entry{Qty: 2, SubmittedBy: "op", SubmittedAt: time.Now().UTC()})
		return err
	})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}

	reconcile := func() []domain.Activation {
		var acts []domain.Activation
		err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
			var err error
			acts, err = d.Reconcile(ctx, tx, "ORD-1")
			return err
		})
		if err != nil {
			t.Fatalf("reconcile failed: %v", err)
		}
		return acts
	}
	acts := reconcile()
	if len(acts) != 1 || acts[0].Stage != domain.CraftCoating {
		t.Fatalf("expected coating activation, got %+v", acts)
	}
	if acts := reconcile(); len(acts) != 0 {
		t.Fatalf("second reconcile re-dispatched: %+v", acts)
	}
}

func TestDispatchFailureRollsBackLedgerClaim(t *testing.T) {
	store := repository.NewMemoryStore()
	seedGlass(t, store, "printing", 1)
	d := New(logger.New("dispatcher-test"))

	activateErr := errors.New("activation failed")
	key := domain.DispatchKey{OrderNumber: "ORD-1", ItemID: "i1", GlassAssignmentID: "g1", Stage: domain.CraftPrinting}
	err := store.WithTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		a, err := tx.RecordCompletion(ctx, "g1", "", domain.Entry{Qty: 1, SubmittedBy: "op", SubmittedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		if _, err := d.AfterCompletion(ctx, tx, a); err != nil {
			return err
		}
		return activateErr
	})
	if !errors.Is(err, activateErr) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if claimed, _ := store.IsDispatched(context.Background(), key); claimed {
		t.Fatalf("aborted transaction left a ledger claim")
	}
	st, _ := store.GetAssignment(context.Background(), "st-printing")
	if st.Ready {
		t.Fatalf("aborted transaction left the stage ready")
	}
}
