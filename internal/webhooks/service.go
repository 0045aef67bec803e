package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asbolsyn/mealmarket-backend/internal/confirmation"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

type webhookProcessor interface {
	HandleWebhook(ctx context.Context, payload confirmation.WebhookPayload) (*confirmation.Outcome, error)
}

type ServiceParams struct {
	Processor webhookProcessor
	Verifier  *payments.Verifier
	Guard     *IdempotencyGuard
	Logger    *logger.Logger
}

// Service authenticates and de-duplicates external gateway callbacks before
// handing them to the confirmation processor.
type Service struct {
	processor webhookProcessor
	verifier  *payments.Verifier
	guard     *IdempotencyGuard
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "confirmation processor required")
	}
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier required")
	}
	return &Service{
		processor: params.Processor,
		verifier:  params.Verifier,
		guard:     params.Guard,
		logg:      params.Logger,
	}, nil
}

// Handle verifies the raw body against signature, decodes it and applies it.
// A nil guard disables redis de-duplication.
func (s *Service) Handle(ctx context.Context, body []byte, signature string) (*confirmation.Outcome, error) {
	if s == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable")
	}
	if err := s.verifier.Verify(body, signature); err != nil {
		return nil, err
	}

	var payload confirmation.WebhookPayload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidWebhook, err, "decode webhook body")
	}

	deliveryID := deliveryKey(payload)
	if s.guard == nil || deliveryID == "" {
		return s.processor.HandleWebhook(ctx, payload)
	}

	seen, err := s.guard.CheckAndMark(ctx, deliveryID)
	if err != nil {
		// redis is an optimisation; fall through to the database guard
		s.warn(ctx, deliveryID, err)
		return s.processor.HandleWebhook(ctx, payload)
	}
	if seen {
		return &confirmation.Outcome{PaymentID: strings.TrimSpace(payload.PaymentID), Duplicate: true}, nil
	}

	outcome, err := s.processor.HandleWebhook(ctx, payload)
	if err != nil {
		if delErr := s.guard.Delete(ctx, deliveryID); delErr != nil {
			s.warn(ctx, deliveryID, delErr)
		}
		return nil, err
	}
	return outcome, nil
}

func deliveryKey(p confirmation.WebhookPayload) string {
	paymentID := strings.TrimSpace(p.PaymentID)
	status := strings.ToLower(strings.TrimSpace(p.Status))
	if paymentID == "" || status == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", paymentID, status)
}

func (s *Service) warn(ctx context.Context, deliveryID string, err error) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"delivery_id": deliveryID, "error": err.Error()})
	s.logg.Warn(logCtx, "webhook idempotency store unavailable")
}
