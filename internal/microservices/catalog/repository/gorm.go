package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fulfillment-tracker/internal/domain"
)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the catalog table.
func (r *GormRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Entry{})
}

func (r *GormRepository) List(ctx context.Context, kind domain.Craft) ([]Entry, error) {
	var rows []Entry
	err := r.db.WithContext(ctx).
		Where("kind = ?", kind).
		Order("code ASC").
		Find(&rows).Error
	return rows, err
}

func (r *GormRepository) Get(ctx context.Context, kind domain.Craft, id string) (Entry, error) {
	var row Entry
	err := r.db.WithContext(ctx).Where("kind = ? AND id = ?", kind, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, domain.NotFound("catalog "+string(kind), id)
	}
	return row, err
}

func (r *GormRepository) FindByCode(ctx context.Context, kind domain.Craft, code string) (Entry, error) {
	var row Entry
	err := r.db.WithContext(ctx).Where("kind = ? AND code = ?", kind, code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, domain.NotFound("catalog "+string(kind)+" code", code)
	}
	return row, err
}

func (r *GormRepository) Upsert(ctx context.Context, e Entry) (Entry, error) {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}, {Name: "code"}},
		DoUpdates: clause.Assignments(map[string]any{
			"name":         e.Name,
			"weight_grams": e.WeightGrams,
			"neck_size":    e.NeckSize,
			"updated_at":   e.UpdatedAt,
		}),
	}).Create(&e).Error
	if err != nil {
		return Entry{}, err
	}
	return r.FindByCode(ctx, e.Kind, e.Code)
}

func (r *GormRepository) Update(ctx context.Context, e Entry) (Entry, error) {
	res := r.db.WithContext(ctx).Model(&Entry{}).
		Where("kind = ? AND id = ?", e.Kind, e.ID).
		Updates(map[string]any{
			"code":         e.Code,
			"name":         e.Name,
			"weight_grams": e.WeightGrams,
			"neck_size":    e.NeckSize,
			"updated_at":   e.UpdatedAt,
		})
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return Entry{}, &domain.ConflictError{Reason: "catalog code " + e.Code + " already exists"}
		}
		return Entry{}, res.Error
	}
	if res.RowsAffected == 0 {
		return Entry{}, domain.NotFound("catalog "+string(e.Kind), e.ID)
	}
	return r.Get(ctx, e.Kind, e.ID)
}

func (r *GormRepository) Delete(ctx context.Context, kind domain.Craft, id string) error {
	res := r.db.WithContext(ctx).Where("kind = ? AND id = ?", kind, id).Delete(&Entry{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("catalog "+string(kind), id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Repository = (*GormRepository)(nil)
