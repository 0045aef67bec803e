package native

import (
	"context"
	"net/http"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/internal/confirmation"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

type nativeProcessor interface {
	PreCheckout(ctx context.Context, invoicePayload string) confirmation.PreCheckoutResult
	ConfirmNative(ctx context.Context, invoicePayload, providerChargeID string) (*confirmation.Outcome, error)
}

type preCheckoutRequest struct {
	InvoicePayload string `json:"invoice_payload" validate:"required,max=128"`
}

type successfulPaymentRequest struct {
	InvoicePayload          string `json:"invoice_payload" validate:"required,max=128"`
	ProviderPaymentChargeID string `json:"provider_payment_charge_id" validate:"omitempty,max=255"`
	TelegramPaymentChargeID string `json:"telegram_payment_charge_id,omitempty" validate:"omitempty,max=255"`
	TotalAmount             int64  `json:"total_amount,omitempty"`
	Currency                string `json:"currency,omitempty"`
}

// PreCheckout answers the chat platform's pre-checkout query. The answer is
// always 200; a refusal is carried in ok=false with a consumer-facing reason.
func PreCheckout(proc nativeProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if proc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation processor unavailable"))
			return
		}
		var req preCheckoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proc.PreCheckout(r.Context(), req.InvoicePayload))
	}
}

// SuccessfulPayment relays the in-chat successful_payment notice.
func SuccessfulPayment(proc nativeProcessor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if proc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "confirmation processor unavailable"))
			return
		}
		var req successfulPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := proc.ConfirmNative(r.Context(), req.InvoicePayload, req.ProviderPaymentChargeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
