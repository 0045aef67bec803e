package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// CreateOrderInput is what the bot submits when a consumer reserves portions.
type CreateOrderInput struct {
	MealID     uuid.UUID `json:"meal_id" validate:"required"`
	ConsumerID uuid.UUID `json:"consumer_id" validate:"required"`
	Quantity   int       `json:"quantity" validate:"required,min=1"`
}

// OrderDetail is an order joined with the meal fields callers usually need.
type OrderDetail struct {
	ID             uuid.UUID             `json:"id"`
	MealID         uuid.UUID             `json:"meal_id"`
	MealName       string                `json:"meal_name"`
	VendorID       uuid.UUID             `json:"vendor_id"`
	ConsumerID     uuid.UUID             `json:"consumer_id"`
	Quantity       int                   `json:"quantity"`
	UnitPrice      decimal.Decimal       `json:"unit_price"`
	Amount         decimal.Decimal       `json:"amount"`
	Status         enums.OrderStatus     `json:"status"`
	PaymentID      *string               `json:"payment_id,omitempty"`
	PaymentBackend *enums.PaymentBackend `json:"payment_backend,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	PaidAt         *time.Time            `json:"paid_at,omitempty"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
	CancelledAt    *time.Time            `json:"cancelled_at,omitempty"`
}

// NewOrderDetail combines an order with its meal.
func NewOrderDetail(order *models.Order, meal *models.Meal) *OrderDetail {
	detail := &OrderDetail{
		ID:             order.ID,
		MealID:         order.MealID,
		ConsumerID:     order.ConsumerID,
		Quantity:       order.Quantity,
		Status:         order.Status,
		PaymentID:      order.PaymentID,
		PaymentBackend: order.PaymentBackend,
		CreatedAt:      order.CreatedAt,
		PaidAt:         order.PaidAt,
		CompletedAt:    order.CompletedAt,
		CancelledAt:    order.CancelledAt,
	}
	if meal != nil {
		detail.MealName = meal.Name
		detail.VendorID = meal.VendorID
		detail.UnitPrice = meal.Price
		detail.Amount = Amount(meal.Price, order.Quantity)
	}
	return detail
}

// Amount is the charge for quantity portions at price.
func Amount(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// CompletionResult reports the order and the earnings written when it completed.
type CompletionResult struct {
	Order    *models.Order          `json:"order"`
	Earnings *models.VendorEarnings `json:"earnings"`
}
