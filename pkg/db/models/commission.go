package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Commission is the platform fee rate valid over [EffectiveFrom, EffectiveTo).
type Commission struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CommissionRate decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4);not null" json:"commission_rate"`
	EffectiveFrom  time.Time       `gorm:"column:effective_from;not null" json:"effective_from"`
	EffectiveTo    *time.Time      `gorm:"column:effective_to" json:"effective_to,omitempty"`
	Description    *string         `gorm:"column:description" json:"description,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
