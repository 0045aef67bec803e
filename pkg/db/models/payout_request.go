package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// PayoutRequest aggregates a vendor's unpaid net earnings for one month.
type PayoutRequest struct {
	ID                    uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VendorID              uuid.UUID          `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	Amount                decimal.Decimal    `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency              enums.Currency     `gorm:"column:currency;type:text;not null;default:'KZT'" json:"currency"`
	Status                enums.PayoutStatus `gorm:"column:status;type:payout_status;not null;default:'pending'" json:"status"`
	PeriodYear            int                `gorm:"column:period_year;not null" json:"period_year"`
	PeriodMonth           int                `gorm:"column:period_month;not null" json:"period_month"`
	ExternalTransactionID *string            `gorm:"column:external_transaction_id" json:"external_transaction_id,omitempty"`
	ExternalNotes         *string            `gorm:"column:external_notes" json:"external_notes,omitempty"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	ProcessedAt           *time.Time         `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CompletedAt           *time.Time         `gorm:"column:completed_at" json:"completed_at,omitempty"`
}
