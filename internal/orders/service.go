package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// EarningsRecorder writes the commission split inside the completion transaction.
type EarningsRecorder interface {
	RecordTx(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.VendorEarnings, error)
}

// Service exposes the order lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error)
	Complete(ctx context.Context, orderID, vendorID uuid.UUID) (*CompletionResult, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
	AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string, backend enums.PaymentBackend) error
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	ListCompletedWithoutEarnings(ctx context.Context, limit int) ([]models.Order, error)
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repository Repository
	Meals      meals.Repository
	Earnings   EarningsRecorder
	Outbox     outbox.Emitter
	Tracker    tracking.Recorder
	DB         txRunner
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo     Repository
	meals    meals.Repository
	earnings EarningsRecorder
	outbox   outbox.Emitter
	tracker  tracking.Recorder
	tx       txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Meals == nil {
		return nil, fmt.Errorf("meals repository required")
	}
	if params.Earnings == nil {
		return nil, fmt.Errorf("earnings recorder required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	svc := &service{
		repo:     params.Repository,
		meals:    params.Meals,
		earnings: params.Earnings,
		outbox:   params.Outbox,
		tracker:  params.Tracker,
		tx:       params.DB,
		logg:     params.Logger,
		now:      params.Now,
	}
	if svc.tracker == nil {
		svc.tracker = tracking.Nop{}
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

var _ EarningsRecorder = (earnings.Ledger)(nil)

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.MealID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "meal id required")
	}
	if input.ConsumerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "consumer id required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}

	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		meal, err := s.meals.WithTx(tx).Get(ctx, input.MealID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "meal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load meal")
		}
		if err := meals.Availability(meal, s.now(), input.Quantity); err != nil {
			return err
		}

		order := &models.Order{
			ID:         uuid.New(),
			MealID:     meal.ID,
			ConsumerID: input.ConsumerID,
			Quantity:   input.Quantity,
			Status:     enums.OrderStatusPending,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if err := s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricOrderCreated,
			EntityID: order.ID,
			UserID:   order.ConsumerID,
			Metadata: map[string]any{
				"meal_id":  meal.ID.String(),
				"quantity": order.Quantity,
				"amount":   Amount(meal.Price, order.Quantity).StringFixed(2),
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order activity")
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithOrderID(ctx, created.ID.String()), "order created")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	meal, err := s.meals.Get(ctx, order.MealID)
	if err != nil {
		return nil, notFoundOr(err, "meal not found", "load meal")
	}
	return NewOrderDetail(order, meal), nil
}

func (s *service) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	if paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	order, err := s.repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order by payment")
	}
	return order, nil
}

// Transition applies one lifecycle edge and its timestamp without further
// side effects. PAID is refused here: only payment confirmation sets it,
// together with the stock decrement and the order_paid event.
func (s *service) Transition(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) (*models.Order, error) {
	if target == enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "orders are marked paid by payment confirmation").
			WithDetails(map[string]any{"to": target})
	}
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		updated, err = s.transitionTx(ctx, tx, order, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) Complete(ctx context.Context, orderID, vendorID uuid.UUID) (*CompletionResult, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}

	var result *CompletionResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		meal, err := s.meals.WithTx(tx).Get(ctx, order.MealID)
		if err != nil {
			return notFoundOr(err, "meal not found", "load meal")
		}
		if meal.VendorID != vendorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to vendor")
		}

		completed, err := s.transitionTx(ctx, tx, order, enums.OrderStatusCompleted)
		if err != nil {
			return err
		}
		row, err := s.earnings.RecordTx(ctx, tx, completed)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   completed.ID,
			Actor:         &outbox.ActorRef{Subject: vendorID.String(), Role: "vendor"},
			Data: payloads.OrderCompletedEvent{
				OrderID:     completed.ID,
				VendorID:    vendorID,
				ConsumerID:  completed.ConsumerID,
				GrossAmount: row.GrossAmount,
				NetAmount:   row.NetAmount,
				CompletedAt: *completed.CompletedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order completed")
		}
		if err := s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricOrderCompleted,
			Value:    row.GrossAmount.InexactFloat64(),
			EntityID: completed.ID,
			UserID:   vendorID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record completion activity")
		}

		result = &CompletionResult{Order: completed, Earnings: row}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithVendorID(s.logg.WithOrderID(ctx, orderID.String()), vendorID.String())
		s.logg.Info(logCtx, "order completed")
	}
	return result, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.loadTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		previous := order.Status
		cancelled, err = s.transitionTx(ctx, tx, order, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   cancelled.ID,
			Data: payloads.OrderCancelledEvent{
				OrderID:        cancelled.ID,
				ConsumerID:     cancelled.ConsumerID,
				PreviousStatus: previous,
				Reason:         reason,
				CancelledAt:    *cancelled.CancelledAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order cancelled")
		}
		return s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricOrderCancelled,
			EntityID: cancelled.ID,
			UserID:   cancelled.ConsumerID,
			Metadata: map[string]any{"previous_status": string(previous), "reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithField(s.logg.WithOrderID(ctx, orderID.String()), "reason", reason)
		s.logg.Info(logCtx, "order cancelled")
	}
	return cancelled, nil
}

func (s *service) AttachPayment(ctx context.Context, orderID uuid.UUID, paymentID string, backend enums.PaymentBackend) error {
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	if !backend.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment backend")
	}
	ok, err := s.repo.AttachPayment(ctx, orderID, paymentID, backend)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment")
	}
	if ok {
		return nil
	}
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return notFoundOr(err, "order not found", "load order")
	}
	return invalidTransition(order.Status, enums.OrderStatusPaid)
}

func (s *service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	orders, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}
	return orders, nil
}

func (s *service) ListCompletedWithoutEarnings(ctx context.Context, limit int) ([]models.Order, error) {
	orders, err := s.repo.ListCompletedWithoutEarnings(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list completed orders without earnings")
	}
	return orders, nil
}

func (s *service) loadTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.WithTx(tx).Get(ctx, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order not found", "load order")
	}
	return order, nil
}

// transitionTx guards on the status the order was read in, so a concurrent
// writer that got there first turns this call into InvalidTransition.
func (s *service) transitionTx(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus) (*models.Order, error) {
	if !CanTransition(order.Status, target) {
		return nil, invalidTransition(order.Status, target)
	}

	now := s.now().UTC()
	updates := map[string]any{}
	next := *order
	next.Status = target
	switch target {
	case enums.OrderStatusPaid:
		updates["paid_at"] = now
		next.PaidAt = &now
	case enums.OrderStatusCompleted:
		updates["completed_at"] = now
		next.CompletedAt = &now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		next.CancelledAt = &now
	}

	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, order.ID, order.Status, target, updates)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return nil, invalidTransition(order.Status, target).
			WithDetails(map[string]any{"from": order.Status, "to": target, "reason": "status changed concurrently"})
	}
	return &next, nil
}

func notFoundOr(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
