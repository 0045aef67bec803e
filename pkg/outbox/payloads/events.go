package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// OrderPaidEvent tells the notification collaborator to confirm a paid order
// to the consumer and alert the vendor.
type OrderPaidEvent struct {
	OrderID    uuid.UUID            `json:"order_id"`
	MealID     uuid.UUID            `json:"meal_id"`
	VendorID   uuid.UUID            `json:"vendor_id"`
	ConsumerID uuid.UUID            `json:"consumer_id"`
	Quantity   int                  `json:"quantity"`
	Amount     decimal.Decimal      `json:"amount"`
	PaymentID  string               `json:"payment_id"`
	Backend    enums.PaymentBackend `json:"payment_backend,omitempty"`
	PaidAt     time.Time            `json:"paid_at"`
}

// OrderCompletedEvent is emitted when the vendor hands over the portions.
type OrderCompletedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	ConsumerID  uuid.UUID       `json:"consumer_id"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	CompletedAt time.Time       `json:"completed_at"`
}

// OrderCancelledEvent is emitted for operator cancellations and TTL expiry.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	ConsumerID     uuid.UUID         `json:"consumer_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Reason         string            `json:"reason,omitempty"`
	CancelledAt    time.Time         `json:"cancelled_at"`
}

// PayoutRequestedEvent announces a new pending payout for a vendor month.
type PayoutRequestedEvent struct {
	PayoutID    uuid.UUID       `json:"payout_id"`
	VendorID    uuid.UUID       `json:"vendor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    enums.Currency  `json:"currency"`
	PeriodYear  int             `json:"period_year"`
	PeriodMonth int             `json:"period_month"`
}

// PayoutCompletedEvent reports that the operator settled a payout.
type PayoutCompletedEvent struct {
	PayoutID      uuid.UUID       `json:"payout_id"`
	VendorID      uuid.UUID       `json:"vendor_id"`
	Amount        decimal.Decimal `json:"amount"`
	PeriodYear    int             `json:"period_year"`
	PeriodMonth   int             `json:"period_month"`
	ExternalRef   string          `json:"external_ref,omitempty"`
	EarningsCount int64           `json:"earnings_count"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// Keyed payloads name the aggregate they describe. The publisher refuses a
// row whose payload points at a different aggregate than the row itself.
type Keyed interface {
	AggregateKey() uuid.UUID
}

func (e OrderPaidEvent) AggregateKey() uuid.UUID       { return e.OrderID }
func (e OrderCompletedEvent) AggregateKey() uuid.UUID  { return e.OrderID }
func (e OrderCancelledEvent) AggregateKey() uuid.UUID  { return e.OrderID }
func (e PayoutRequestedEvent) AggregateKey() uuid.UUID { return e.PayoutID }
func (e PayoutCompletedEvent) AggregateKey() uuid.UUID { return e.PayoutID }
