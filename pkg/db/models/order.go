package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// Order is a consumer's purchase of one or more portions of a single meal.
type Order struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MealID         uuid.UUID             `gorm:"column:meal_id;type:uuid;not null" json:"meal_id"`
	ConsumerID     uuid.UUID             `gorm:"column:consumer_id;type:uuid;not null" json:"consumer_id"`
	Quantity       int                   `gorm:"column:quantity;not null" json:"quantity"`
	Status         enums.OrderStatus     `gorm:"column:status;type:order_status;not null;default:'pending'" json:"status"`
	PaymentID      *string               `gorm:"column:payment_id;uniqueIndex" json:"payment_id,omitempty"`
	PaymentBackend *enums.PaymentBackend `gorm:"column:payment_backend;type:payment_backend" json:"payment_backend,omitempty"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	PaidAt         *time.Time            `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CompletedAt    *time.Time            `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CancelledAt    *time.Time            `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// SettledAt is the instant used to bucket the order into an earnings period.
func (o Order) SettledAt() time.Time {
	if o.CompletedAt != nil {
		return *o.CompletedAt
	}
	return o.CreatedAt
}
