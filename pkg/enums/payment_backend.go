package enums

import "fmt"

// PaymentBackend identifies which gateway backend issued a payment.
type PaymentBackend string

const (
	// PaymentBackendNative is an invoice rendered inside the chat client.
	PaymentBackendNative PaymentBackend = "native"
	// PaymentBackendExternal is a redirect to a hosted payment page.
	PaymentBackendExternal PaymentBackend = "external"
)

var validPaymentBackends = []PaymentBackend{
	PaymentBackendNative,
	PaymentBackendExternal,
}

func (b PaymentBackend) String() string {
	return string(b)
}

func (b PaymentBackend) IsValid() bool {
	for _, candidate := range validPaymentBackends {
		if candidate == b {
			return true
		}
	}
	return false
}

func ParsePaymentBackend(value string) (PaymentBackend, error) {
	for _, candidate := range validPaymentBackends {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment backend %q", value)
}

// WebhookPaymentStatusCompleted is the only webhook status that settles an order.
const WebhookPaymentStatusCompleted = "completed"
