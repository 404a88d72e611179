package service

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/catalog/repository"
)

func TestMain(m *testing.M) {
	logger.Configure("error", io.Discard)
	os.Exit(m.Run())
}

func newCatalog() *CatalogService {
	return NewCatalogService(repository.NewMemoryRepository(), logger.New("catalog-test"))
}

func TestPutUpsertsByCode(t *testing.T) {
	svc := newCatalog()
	ctx := context.Background()

	first, err := svc.Put(ctx, "glass", EntryRequest{Code: " fl-30 ", Name: "Flint 30ml", WeightGrams: decimal.RequireFromString("62.5"), NeckSize: "18/415"})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if first.Code != "FL-30" {
		t.Fatalf("code not normalized: %q", first.Code)
	}
	second, err := svc.Put(ctx, "Glass", EntryRequest{Code: "FL-30", Name: "Flint 30ml heavy", WeightGrams: decimal.RequireFromString("70")})
	if err != nil {
		t.Fatalf("second put failed: %v", err)
	}
	if second.ID != first.ID || second.Name != "Flint 30ml heavy" {
		t.Fatalf("expected in-place update of %s, got %+v", first.ID, second)
	}
	rows, _ := svc.List(ctx, "glass")
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}

	spec, err := svc.GlassSpec(ctx, "fl-30")
	if err != nil {
		t.Fatalf("glass spec failed: %v", err)
	}
	if spec.Name != "Flint 30ml heavy" || !spec.Weight.Equal(decimal.NewFromInt(70)) {
		t.Fatalf("unexpected spec %+v", spec)
	}
}

func TestCatalogRejectsDecorationKinds(t *testing.T) {
	svc := newCatalog()
	if _, err := svc.List(context.Background(), "printing"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Put(context.Background(), "caps", EntryRequest{Code: "C1"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for missing name, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newCatalog()
	ctx := context.Background()
	a, _ := svc.Put(ctx, "pumps", EntryRequest{Code: "P1", Name: "Lotion pump"})
	b, _ := svc.Put(ctx, "pumps", EntryRequest{Code: "P2", Name: "Mist pump"})

	if _, err := svc.Update(ctx, "pumps", b.ID, EntryRequest{Code: "P1", Name: "dup"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate code, got %v", err)
	}
	got, err := svc.Update(ctx, "pumps", a.ID, EntryRequest{Code: "P1", Name: "Lotion pump 24/410"})
	if err != nil || got.Name != "Lotion pump 24/410" {
		t.Fatalf("update failed: %+v, %v", got, err)
	}
	if _, err := svc.Get(ctx, "boxes", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("entry must not be visible under another kind, got %v", err)
	}
	if err := svc.Delete(ctx, "pumps", a.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := svc.Delete(ctx, "pumps", a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
