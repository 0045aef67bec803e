package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

// Recorder appends activity rows inside the caller's transaction.
type Recorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, input MetricInput) error
}

// MetricInput describes one activity row. A zero Value is stored as 1 so
// plain occurrences read as counts.
type MetricInput struct {
	Type     enums.MetricType
	Value    float64
	EntityID uuid.UUID
	UserID   uuid.UUID
	Metadata map[string]any
	At       time.Time
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires an activity recorder with the provided repository.
func NewService(repo Repository) (Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, input MetricInput) error {
	if !input.Type.IsValid() {
		return fmt.Errorf("invalid metric type %q", input.Type)
	}

	metric := &models.Metric{
		ID:         uuid.New(),
		MetricType: input.Type,
		Value:      input.Value,
		Metadata:   types.JSONMap(input.Metadata),
		Timestamp:  input.At.UTC(),
	}
	if metric.Value == 0 {
		metric.Value = 1
	}
	if input.At.IsZero() {
		metric.Timestamp = s.now().UTC()
	}
	if input.EntityID != uuid.Nil {
		id := input.EntityID
		metric.EntityID = &id
	}
	if input.UserID != uuid.Nil {
		id := input.UserID
		metric.UserID = &id
	}

	return s.repo.WithTx(tx).Create(ctx, metric)
}

// Nop discards activity; used where tracking is not wired.
type Nop struct{}

func (Nop) RecordTx(context.Context, *gorm.DB, MetricInput) error { return nil }
