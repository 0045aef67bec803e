package tracking

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// Repository persists activity rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, metric *models.Metric) error
	ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.Metric, error)
	CountByType(ctx context.Context, metricType enums.MetricType) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an activity repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, metric *models.Metric) error {
	return r.db.WithContext(ctx).Create(metric).Error
}

func (r *repository) ListByEntity(ctx context.Context, entityID uuid.UUID) ([]models.Metric, error) {
	var rows []models.Metric
	if err := r.db.WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountByType(ctx context.Context, metricType enums.MetricType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Metric{}).
		Where("metric_type = ?", metricType).
		Count(&count).Error
	return count, err
}
