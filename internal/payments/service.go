package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/orders"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/metrics"
)

// PaymentCreator is the gateway surface the service needs.
type PaymentCreator interface {
	CreatePayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal) (*Payment, error)
}

type orderStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	AttachPayment(ctx context.Context, id uuid.UUID, paymentID string, backend enums.PaymentBackend) (bool, error)
}

// StartPaymentResult is everything the chat adapter needs to present the payment.
type StartPaymentResult struct {
	OrderID     uuid.UUID `json:"order_id"`
	MealName    string    `json:"meal_name"`
	Quantity    int       `json:"quantity"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	*Payment
}

// Service starts payments for pending orders.
type Service interface {
	StartPayment(ctx context.Context, orderID uuid.UUID) (*StartPaymentResult, error)
}

// ServiceParams wires the payment service.
type ServiceParams struct {
	Gateway PaymentCreator
	Orders  orders.Repository
	Meals   meals.Repository
	Metrics *metrics.PaymentMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

type service struct {
	gateway PaymentCreator
	orders  orderStore
	meals   meals.Repository
	metrics *metrics.PaymentMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Meals == nil {
		return nil, fmt.Errorf("meals repository required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		gateway: params.Gateway,
		orders:  params.Orders,
		meals:   params.Meals,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// StartPayment prices the order, asks the gateway for a payment and stores
// the payment reference on the order. Repeated calls for a pending order
// issue a fresh payment and replace the reference.
func (s *service) StartPayment(ctx context.Context, orderID uuid.UUID) (*StartPaymentResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "only pending orders can be paid").
			WithDetails(map[string]any{"status": order.Status})
	}

	meal, err := s.meals.Get(ctx, order.MealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "meal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load meal")
	}
	if err := meals.Availability(meal, s.now(), order.Quantity); err != nil {
		return nil, err
	}

	amount := orders.Amount(meal.Price, order.Quantity)
	payment, err := s.gateway.CreatePayment(ctx, order.ID, amount)
	if err != nil {
		return nil, err
	}

	attached, err := s.orders.AttachPayment(ctx, order.ID, payment.ID, payment.Backend)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment reference")
	}
	if !attached {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order is no longer pending")
	}
	s.metrics.IncCreated(string(payment.Backend))

	if s.logg != nil {
		logCtx := s.logg.WithPayment(s.logg.WithOrderID(ctx, order.ID.String()), payment.ID, string(payment.Backend))
		logCtx = s.logg.WithField(logCtx, "amount", amount.StringFixed(2))
		s.logg.Info(logCtx, "payment created")
	}

	return &StartPaymentResult{
		OrderID:     order.ID,
		MealName:    meal.Name,
		Quantity:    order.Quantity,
		Title:       meal.Name,
		Description: fmt.Sprintf("%d x %s", order.Quantity, meal.Name),
		Payment:     payment,
	}, nil
}
