package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/internal/confirmation"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

const maxWebhookBytes = 64 << 10

type webhookHandler interface {
	Handle(ctx context.Context, body []byte, signature string) (*confirmation.Outcome, error)
}

// PaymentWebhook receives external gateway callbacks. Duplicates and
// non-completed statuses are acknowledged with 200 like any success.
func PaymentWebhook(svc webhookHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidWebhook, err, "read webhook body"))
			return
		}

		outcome, err := svc.Handle(ctx, body, r.Header.Get(payments.SignatureHeader))
		if err != nil {
			responses.WriteWebhookError(ctx, logg, w, err)
			return
		}

		if logg != nil && outcome != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"order_id":   outcome.OrderID.String(),
				"payment_id": outcome.PaymentID,
				"applied":    outcome.Applied,
				"duplicate":  outcome.Duplicate,
				"ignored":    outcome.Ignored,
			})
			logg.Info(logCtx, "payment webhook acknowledged")
		}
		responses.WriteWebhookAck(w)
	}
}
