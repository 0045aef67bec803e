package outbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

const defaultDeadLetterLimit = 50

// ErrNotDeadLettered is returned by Requeue when the event has no dead
// letter or was already published.
var ErrNotDeadLettered = errors.New("event is not dead-lettered")

// DeadLetterFilter narrows List. Zero values match everything.
type DeadLetterFilter struct {
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Reason        enums.OutboxDLQErrorReason
	Limit         int
}

// DLQRepository stores events the relay gave up on. A dead letter pins its
// outbox row at the terminal attempt count until it is requeued.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("unknown dead letter reason " + string(entry.ErrorReason))
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.ErrorMessage != nil {
		entry.ErrorMessage = truncateError(errors.New(*entry.ErrorMessage))
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event was never
// dead-lettered.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the newest dead letters first.
func (r *DLQRepository) List(ctx context.Context, filter DeadLetterFilter) ([]models.OutboxDLQ, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	q := r.db.WithContext(ctx)
	if filter.AggregateType != "" {
		q = q.Where("aggregate_type = ?", filter.AggregateType)
	}
	if filter.AggregateID != uuid.Nil {
		q = q.Where("aggregate_id = ?", filter.AggregateID)
	}
	if filter.Reason != "" {
		q = q.Where("error_reason = ?", filter.Reason)
	}
	var rows []models.OutboxDLQ
	err := q.Order("failed_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue drops the dead letters for eventID and resets the outbox row so
// the relay picks it up on its next poll. Published events are never
// requeued.
func (r *DLQRepository) Requeue(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed := tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{})
		if removed.Error != nil {
			return removed.Error
		}
		if removed.RowsAffected == 0 {
			return ErrNotDeadLettered
		}
		reset := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", eventID).
			Updates(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
			})
		if reset.Error != nil {
			return reset.Error
		}
		if reset.RowsAffected == 0 {
			return ErrNotDeadLettered
		}
		return nil
	})
}
