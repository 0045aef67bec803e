package meals

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
)

// Repository reads and maintains meal listings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Meal, error)
	Create(ctx context.Context, meal *models.Meal) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a meal repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Get returns gorm.ErrRecordNotFound when the meal does not exist.
func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Meal, error) {
	var meal models.Meal
	if err := r.db.WithContext(ctx).First(&meal, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &meal, nil
}

func (r *repository) Create(ctx context.Context, meal *models.Meal) error {
	if meal.ID == uuid.Nil {
		meal.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(meal).Error
}

// DeactivateExpired hides every active meal whose pickup window ended before now.
func (r *repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE meals SET is_active = ?, updated_at = ? WHERE is_active = ? AND pickup_end_time < ?`,
		false, now.UTC(), true, now.UTC(),
	)
	return res.RowsAffected, res.Error
}
