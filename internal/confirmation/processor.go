package confirmation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/internal/payments"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Decrementer removes sold portions inside the payment transaction.
type Decrementer interface {
	DecrementFloor(ctx context.Context, tx *gorm.DB, mealID uuid.UUID, portions int) error
}

// Processor turns payment confirmations from either backend into the
// PENDING -> PAID transition.
type Processor interface {
	PreCheckout(ctx context.Context, invoicePayload string) PreCheckoutResult
	ConfirmNative(ctx context.Context, invoicePayload, providerChargeID string) (*Outcome, error)
	HandleWebhook(ctx context.Context, payload WebhookPayload) (*Outcome, error)
}

// ProcessorParams wires the confirmation processor.
type ProcessorParams struct {
	Orders    orders.Repository
	Meals     meals.Repository
	Inventory Decrementer
	Outbox    outbox.Emitter
	Tracker   tracking.Recorder
	DB        txRunner
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type processor struct {
	orders    orders.Repository
	meals     meals.Repository
	inventory Decrementer
	outbox    outbox.Emitter
	tracker   tracking.Recorder
	tx        txRunner
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewProcessor(params ProcessorParams) (Processor, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Meals == nil {
		return nil, fmt.Errorf("meals repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	p := &processor{
		orders:    params.Orders,
		meals:     params.Meals,
		inventory: params.Inventory,
		outbox:    params.Outbox,
		tracker:   params.Tracker,
		tx:        params.DB,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       params.Now,
	}
	if p.tracker == nil {
		p.tracker = tracking.Nop{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// PreCheckout is read-only and fails closed: any lookup error refuses the payment.
func (p *processor) PreCheckout(ctx context.Context, invoicePayload string) PreCheckoutResult {
	orderID, err := payments.ParseInvoicePayload(invoicePayload)
	if err != nil {
		return PreCheckoutResult{Reason: ReasonOrderNotFound}
	}
	order, err := p.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PreCheckoutResult{Reason: ReasonOrderNotFound}
		}
		p.logError(ctx, "pre-checkout order lookup failed", err)
		return PreCheckoutResult{Reason: ReasonTryAgain}
	}
	if order.Status != enums.OrderStatusPending {
		return PreCheckoutResult{Reason: ReasonOrderNotPending}
	}
	meal, err := p.meals.Get(ctx, order.MealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PreCheckoutResult{Reason: ReasonMealUnavailable}
		}
		p.logError(ctx, "pre-checkout meal lookup failed", err)
		return PreCheckoutResult{Reason: ReasonTryAgain}
	}
	if err := meals.Availability(meal, p.now(), order.Quantity); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock) {
			return PreCheckoutResult{Reason: ReasonSoldOut}
		}
		return PreCheckoutResult{Reason: ReasonMealUnavailable}
	}
	return PreCheckoutResult{OK: true}
}

func (p *processor) ConfirmNative(ctx context.Context, invoicePayload, providerChargeID string) (*Outcome, error) {
	orderID, err := payments.ParseInvoicePayload(invoicePayload)
	if err != nil {
		p.metrics.IncConfirmation(metrics.SourceNative, metrics.ResultRejected)
		return nil, err
	}
	paymentID := strings.TrimSpace(providerChargeID)
	if paymentID == "" {
		paymentID = payments.InvoicePayload(orderID)
	}

	outcome, err := p.applyPayment(ctx, metrics.SourceNative, paymentID, enums.PaymentBackendNative, func(repo orders.Repository) (*models.Order, error) {
		order, err := repo.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return order, nil
	})
	return outcome, err
}

func (p *processor) HandleWebhook(ctx context.Context, payload WebhookPayload) (*Outcome, error) {
	if missing := payload.missingFields(); len(missing) > 0 {
		p.metrics.IncConfirmation(metrics.SourceWebhook, metrics.ResultRejected)
		return nil, pkgerrors.New(pkgerrors.CodeInvalidWebhook, "missing required webhook fields").
			WithDetails(map[string]any{"missing": missing})
	}
	paymentID := strings.TrimSpace(payload.PaymentID)
	if !strings.EqualFold(strings.TrimSpace(payload.Status), enums.WebhookPaymentStatusCompleted) {
		p.metrics.IncConfirmation(metrics.SourceWebhook, metrics.ResultIgnored)
		if p.logg != nil {
			logCtx := p.logg.WithFields(ctx, map[string]any{"payment_id": paymentID, "status": payload.Status})
			p.logg.Info(logCtx, "payment webhook status ignored")
		}
		return &Outcome{PaymentID: paymentID, Ignored: true}, nil
	}
	orderID, err := uuid.Parse(strings.TrimSpace(payload.OrderID))
	if err != nil {
		p.metrics.IncConfirmation(metrics.SourceWebhook, metrics.ResultRejected)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidWebhook, err, "invalid order id")
	}

	return p.applyPayment(ctx, metrics.SourceWebhook, paymentID, enums.PaymentBackendExternal, func(repo orders.Repository) (*models.Order, error) {
		return resolveWebhookOrder(ctx, repo, paymentID, orderID)
	})
}

// resolveWebhookOrder prefers the order already carrying paymentID and falls
// back to the order id from the payload.
func resolveWebhookOrder(ctx context.Context, repo orders.Repository, paymentID string, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		if order.ID != orderID {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidWebhook, "payment belongs to a different order")
		}
		return order, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment")
	}

	order, err = repo.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidWebhook, "unknown order")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.PaymentID != nil && *order.PaymentID != paymentID {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidWebhook, "order carries a different payment")
	}
	return order, nil
}

// applyPayment runs the whole confirmation unit in one transaction: the
// guarded status flip, the inventory decrement, the order_paid event and the
// activity row. Orders that are no longer pending are reported as duplicates
// and left untouched.
func (p *processor) applyPayment(
	ctx context.Context,
	source string,
	paymentID string,
	backend enums.PaymentBackend,
	resolve func(repo orders.Repository) (*models.Order, error),
) (*Outcome, error) {
	var outcome *Outcome
	err := p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.orders.WithTx(tx)
		order, err := resolve(repo)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			outcome = &Outcome{OrderID: order.ID, PaymentID: paymentID, Status: order.Status, Duplicate: true}
			return nil
		}

		paidAt := p.now().UTC()
		ok, err := repo.UpdateStatus(ctx, order.ID, enums.OrderStatusPending, enums.OrderStatusPaid, map[string]any{
			"payment_id":      paymentID,
			"payment_backend": backend,
			"paid_at":         paidAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			current, err := repo.Get(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			outcome = &Outcome{OrderID: order.ID, PaymentID: paymentID, Status: current.Status, Duplicate: true}
			return nil
		}

		meal, err := p.meals.WithTx(tx).Get(ctx, order.MealID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load meal")
		}
		if err := p.inventory.DecrementFloor(ctx, tx, meal.ID, order.Quantity); err != nil {
			return err
		}

		amount := orders.Amount(meal.Price, order.Quantity)
		if err := p.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Subject: string(backend), Role: "payment_provider"},
			OccurredAt:    paidAt,
			Data: payloads.OrderPaidEvent{
				OrderID:    order.ID,
				MealID:     meal.ID,
				VendorID:   meal.VendorID,
				ConsumerID: order.ConsumerID,
				Quantity:   order.Quantity,
				Amount:     amount,
				PaymentID:  paymentID,
				Backend:    backend,
				PaidAt:     paidAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
		}
		if err := p.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricOrderPaid,
			Value:    amount.InexactFloat64(),
			EntityID: order.ID,
			UserID:   order.ConsumerID,
			Metadata: map[string]any{"payment_id": paymentID, "backend": string(backend)},
			At:       paidAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment activity")
		}

		outcome = &Outcome{OrderID: order.ID, PaymentID: paymentID, Status: enums.OrderStatusPaid, Applied: true}
		return nil
	})
	if err != nil {
		p.metrics.IncConfirmation(source, metrics.ResultRejected)
		p.logError(ctx, "payment confirmation failed", err)
		return nil, err
	}

	result := metrics.ResultApplied
	if outcome.Duplicate {
		result = metrics.ResultDuplicate
	}
	p.metrics.IncConfirmation(source, result)
	if p.logg != nil {
		logCtx := p.logg.WithFields(p.logg.WithOrderID(ctx, outcome.OrderID.String()), map[string]any{
			"payment_id": paymentID,
			"source":     source,
			"result":     result,
		})
		p.logg.Info(logCtx, "payment confirmation processed")
	}
	return outcome, nil
}

func (p *processor) logError(ctx context.Context, msg string, err error) {
	if p.logg == nil {
		return
	}
	p.logg.Error(ctx, msg, err)
}
