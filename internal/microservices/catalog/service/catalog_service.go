package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fulfillment-tracker/internal/common/logger"
	"fulfillment-tracker/internal/domain"
	"fulfillment-tracker/internal/microservices/catalog/repository"
)

type EntryRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	WeightGrams decimal.Decimal `json:"weight_grams"`
	NeckSize    string          `json:"neck_size,omitempty"`
}

func (r *EntryRequest) normalize() error {
	r.Code = strings.ToUpper(strings.TrimSpace(r.Code))
	r.Name = strings.TrimSpace(r.Name)
	r.NeckSize = strings.TrimSpace(r.NeckSize)
	switch {
	case r.Code == "":
		return domain.Validation("code", "is required")
	case r.Name == "":
		return domain.Validation("name", "is required")
	case r.WeightGrams.IsNegative():
		return domain.Validation("weight_grams", "must not be negative")
	}
	return nil
}

type CatalogServiceInterface interface {
	List(ctx context.Context, kind string) ([]repository.Entry, error)
	Get(ctx context.Context, kind, id string) (repository.Entry, error)
	Put(ctx context.Context, kind string, req EntryRequest) (repository.Entry, error)
	Update(ctx context.Context, kind, id string, req EntryRequest) (repository.Entry, error)
	Delete(ctx context.Context, kind, id string) error
}

type CatalogService struct {
	repo repository.Repository
	lg   *logger.Logger
	now  func() time.Time
}

func NewCatalogService(repo repository.Repository, lg *logger.Logger) *CatalogService {
	return &CatalogService{repo: repo, lg: lg, now: func() time.Time { return time.Now().UTC() }}
}

// ParseKind accepts the crafts that own physical stock. Decoration crafts have no catalog.
func ParseKind(s string) (domain.Craft, error) {
	c, err := domain.ParseCraft(s)
	if err != nil {
		return "", err
	}
	if c.IsDecoration() {
		return "", domain.Validation("kind", "%s has no catalog", c)
	}
	return c, nil
}

func (s *CatalogService) List(ctx context.Context, kind string) ([]repository.Entry, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, k)
}

func (s *CatalogService) Get(ctx context.Context, kind, id string) (repository.Entry, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return repository.Entry{}, err
	}
	return s.repo.Get(ctx, k, id)
}

// Put creates the entry or refreshes the one already stored under the same code.
func (s *CatalogService) Put(ctx context.Context, kind string, req EntryRequest) (repository.Entry, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return repository.Entry{}, err
	}
	if err := req.normalize(); err != nil {
		return repository.Entry{}, err
	}
	now := s.now()
	e, err := s.repo.Upsert(ctx, repository.Entry{
		ID: uuid.NewString(), Kind: k, Code: req.Code, Name: req.Name,
		WeightGrams: req.WeightGrams, NeckSize: req.NeckSize, CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		return repository.Entry{}, err
	}
	s.lg.Info("catalog_entry_saved", map[string]any{"kind": string(k), "code": e.Code, "id": e.ID})
	return e, nil
}

func (s *CatalogService) Update(ctx context.Context, kind, id string, req EntryRequest) (repository.Entry, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return repository.Entry{}, err
	}
	if err := req.normalize(); err != nil {
		return repository.Entry{}, err
	}
	e, err := s.repo.Update(ctx, repository.Entry{
		ID: id, Kind: k, Code: req.Code, Name: req.Name,
		WeightGrams: req.WeightGrams, NeckSize: req.NeckSize, UpdatedAt: s.now(),
	})
	if err != nil {
		return repository.Entry{}, err
	}
	s.lg.Info("catalog_entry_updated", map[string]any{"kind": string(k), "id": id})
	return e, nil
}

func (s *CatalogService) Delete(ctx context.Context, kind, id string) error {
	k, err := ParseKind(kind)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, k, id); err != nil {
		return err
	}
	s.lg.Info("catalog_entry_deleted", map[string]any{"kind": string(k), "id": id})
	return nil
}

// GlassSpec resolves a bottle code into the glass attributes copied onto an order line.
func (s *CatalogService) GlassSpec(ctx context.Context, code string) (domain.GlassDetails, error) {
	e, err := s.repo.FindByCode(ctx, domain.CraftGlass, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.GlassDetails{}, err
	}
	return domain.GlassDetails{Name: e.Name, Weight: e.WeightGrams, NeckSize: e.NeckSize}, nil
}
