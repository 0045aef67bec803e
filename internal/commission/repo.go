package commission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
)

// Repository persists commission rate rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActive(ctx context.Context, at time.Time) (*models.Commission, error)
	FindLatest(ctx context.Context) (*models.Commission, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, row *models.Commission) error
	CloseOpen(ctx context.Context, at time.Time) (int64, error)
	List(ctx context.Context) ([]models.Commission, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a commission repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActive returns the row whose window contains at, or nil.
func (r *repository) FindActive(ctx context.Context, at time.Time) (*models.Commission, error) {
	var row models.Commission
	err := r.db.WithContext(ctx).
		Where("effective_from <= ?", at).
		Where("effective_to IS NULL OR effective_to > ?", at).
		Order("effective_from DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// FindLatest returns the most recently effective row regardless of window, or nil.
func (r *repository) FindLatest(ctx context.Context) (*models.Commission, error) {
	var row models.Commission
	err := r.db.WithContext(ctx).
		Order("effective_from DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Commission{}).Count(&count).Error
	return count, err
}

func (r *repository) Create(ctx context.Context, row *models.Commission) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// CloseOpen ends every row that has no effective_to yet.
func (r *repository) CloseOpen(ctx context.Context, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Where("effective_to IS NULL").
		Update("effective_to", at)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context) ([]models.Commission, error) {
	var rows []models.Commission
	if err := r.db.WithContext(ctx).Order("effective_from DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
