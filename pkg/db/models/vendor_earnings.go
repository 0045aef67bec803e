package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VendorEarnings is the commission split recorded once per completed order.
type VendorEarnings struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	VendorID         uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null" json:"vendor_id"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex" json:"order_id"`
	GrossAmount      decimal.Decimal `gorm:"column:gross_amount;type:numeric(12,2);not null" json:"gross_amount"`
	CommissionRate   decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,4);not null" json:"commission_rate"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null" json:"commission_amount"`
	NetAmount        decimal.Decimal `gorm:"column:net_amount;type:numeric(12,2);not null" json:"net_amount"`
	PeriodYear       int             `gorm:"column:period_year;not null" json:"period_year"`
	PeriodMonth      int             `gorm:"column:period_month;not null" json:"period_month"`
	IsPaidOut        bool            `gorm:"column:is_paid_out;not null;default:false" json:"is_paid_out"`
	PaidOutAt        *time.Time      `gorm:"column:paid_out_at" json:"paid_out_at,omitempty"`
	// PayoutRequestID is set when a payout request summed this row.
	PayoutRequestID  *uuid.UUID      `gorm:"column:payout_request_id;type:uuid" json:"payout_request_id,omitempty"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (VendorEarnings) TableName() string { return "vendor_earnings" }
