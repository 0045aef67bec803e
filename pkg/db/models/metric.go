package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

// Metric is an append-only activity record.
type Metric struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MetricType enums.MetricType `gorm:"column:metric_type;not null" json:"metric_type"`
	Value      float64          `gorm:"column:value;not null" json:"value"`
	EntityID   *uuid.UUID       `gorm:"column:entity_id;type:uuid" json:"entity_id,omitempty"`
	UserID     *uuid.UUID       `gorm:"column:user_id;type:uuid" json:"user_id,omitempty"`
	Metadata   types.JSONMap    `gorm:"column:metadata;type:jsonb" json:"metadata"`
	Timestamp  time.Time        `gorm:"column:timestamp;not null" json:"timestamp"`
}
