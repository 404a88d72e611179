// Package repository stores reference data: the bottles, caps, pumps, boxes and
// accessories dispatchers pick from when they place orders.
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"fulfillment-tracker/internal/domain"
)

// Entry is one catalog item. Code is unique within its kind.
type Entry struct {
	ID          string          `json:"id" gorm:"column:id;primaryKey"`
	Kind        domain.Craft    `json:"kind" gorm:"column:kind;uniqueIndex:idx_catalog_kind_code;not null"`
	Code        string          `json:"code" gorm:"column:code;uniqueIndex:idx_catalog_kind_code;not null"`
	Name        string          `json:"name" gorm:"column:name;not null"`
	WeightGrams decimal.Decimal `json:"weight_grams" gorm:"column:weight_grams;type:numeric(12,3);not null;default:0"`
	NeckSize    string          `json:"neck_size,omitempty" gorm:"column:neck_size"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time       `json:"updated_at" gorm:"column:updated_at"`
}

func (Entry) TableName() string { return "catalog_entries" }

type Repository interface {
	List(ctx context.Context, kind domain.Craft) ([]Entry, error)
	Get(ctx context.Context, kind domain.Craft, id string) (Entry, error)
	FindByCode(ctx context.Context, kind domain.Craft, code string) (Entry, error)
	// Upsert inserts e or, when (kind, code) exists, updates that row in place.
	Upsert(ctx context.Context, e Entry) (Entry, error)
	Update(ctx context.Context, e Entry) (Entry, error)
	Delete(ctx context.Context, kind domain.Craft, id string) error
}
