package confirmation

import (
	"strings"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
)

// WebhookPayload is the body the external gateway posts on status changes.
type WebhookPayload struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	OrderID   string `json:"order_id"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (p WebhookPayload) missingFields() []string {
	var missing []string
	if strings.TrimSpace(p.PaymentID) == "" {
		missing = append(missing, "payment_id")
	}
	if strings.TrimSpace(p.Status) == "" {
		missing = append(missing, "status")
	}
	if strings.TrimSpace(p.OrderID) == "" {
		missing = append(missing, "order_id")
	}
	return missing
}

// Outcome describes what a confirmation did. Exactly one of Applied,
// Duplicate and Ignored is set.
type Outcome struct {
	OrderID   uuid.UUID         `json:"order_id,omitempty"`
	PaymentID string            `json:"payment_id,omitempty"`
	Status    enums.OrderStatus `json:"status,omitempty"`
	Applied   bool              `json:"applied"`
	Duplicate bool              `json:"duplicate"`
	Ignored   bool              `json:"ignored"`
}

// PreCheckoutResult answers the chat platform's pre-checkout query.
type PreCheckoutResult struct {
	OK     bool   `json:"ok"`
	Reason string `json:"error_message,omitempty"`
}

// Reasons shown to the consumer when pre-checkout is refused.
const (
	ReasonOrderNotFound   = "Order not found."
	ReasonOrderNotPending = "This order can no longer be paid."
	ReasonMealUnavailable = "This meal is no longer available."
	ReasonSoldOut         = "Not enough portions left."
	ReasonTryAgain        = "Payment could not be verified, please try again."
)
