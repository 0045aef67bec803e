package earnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/meals"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RateSource resolves the commission rate in effect at an instant.
type RateSource interface {
	RateAtTx(ctx context.Context, tx *gorm.DB, at time.Time) (decimal.Decimal, error)
}

// Ledger records the commission split for completed orders and reports on it.
type Ledger interface {
	Record(ctx context.Context, orderID uuid.UUID) (*models.VendorEarnings, error)
	RecordTx(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.VendorEarnings, error)
	VendorMonthly(ctx context.Context, vendorID uuid.UUID, period types.Period) (*MonthlySummary, error)
	VendorUnpaid(ctx context.Context, vendorID uuid.UUID) ([]PeriodTotal, error)
	PlatformRevenue(ctx context.Context, period types.Period) (*RevenueReport, error)
}

// ServiceParams wires the earnings ledger.
type ServiceParams struct {
	Repository Repository
	Meals      meals.Repository
	Rates      RateSource
	Tracker    tracking.Recorder
	DB         txRunner
	Location   *time.Location
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo    Repository
	meals   meals.Repository
	rates   RateSource
	tracker tracking.Recorder
	tx      txRunner
	loc     *time.Location
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Ledger, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("earnings repository required")
	}
	if params.Meals == nil {
		return nil, fmt.Errorf("meals repository required")
	}
	if params.Rates == nil {
		return nil, fmt.Errorf("commission rate source required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	svc := &service{
		repo:    params.Repository,
		meals:   params.Meals,
		rates:   params.Rates,
		tracker: params.Tracker,
		tx:      params.DB,
		loc:     params.Location,
		logg:    params.Logger,
		now:     params.Now,
	}
	if svc.tracker == nil {
		svc.tracker = tracking.Nop{}
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

func (s *service) Record(ctx context.Context, orderID uuid.UUID) (*models.VendorEarnings, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	var recorded *models.VendorEarnings
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		recorded, err = s.RecordTx(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}
	return recorded, nil
}

// RecordTx computes and stores the split for a completed order. The rate is
// the one in effect at recording time, not at payment time. An existing row
// is returned unchanged.
func (s *service) RecordTx(ctx context.Context, tx *gorm.DB, order *models.Order) (*models.VendorEarnings, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotCompleted, "earnings are only recorded for completed orders").
			WithDetails(map[string]any{"order_id": order.ID.String(), "status": order.Status})
	}

	repo := s.repo.WithTx(tx)
	existing, err := repo.FindByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load earnings")
	}
	if existing != nil {
		return existing, nil
	}

	meal, err := s.meals.WithTx(tx).Get(ctx, order.MealID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "meal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load meal")
	}

	rate, err := s.rates.RateAtTx(ctx, tx, s.now())
	if err != nil {
		return nil, err
	}

	split := Compute(meal.Price, order.Quantity, rate)
	period := types.PeriodOf(order.SettledAt(), s.loc)
	row := &models.VendorEarnings{
		ID:               uuid.New(),
		VendorID:         meal.VendorID,
		OrderID:          order.ID,
		GrossAmount:      split.Gross,
		CommissionRate:   rate,
		CommissionAmount: split.Commission,
		NetAmount:        split.Net,
		PeriodYear:       period.Year,
		PeriodMonth:      period.Month,
	}

	inserted, err := repo.InsertIfAbsent(ctx, row)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert earnings")
	}
	if !inserted {
		winner, err := repo.FindByOrder(ctx, order.ID)
		if err != nil || winner == nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload earnings after conflict")
		}
		return winner, nil
	}

	if err := s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
		Type:     enums.MetricEarningsCalculated,
		Value:    split.Net.InexactFloat64(),
		EntityID: order.ID,
		UserID:   meal.VendorID,
		Metadata: map[string]any{
			"gross_amount":      split.Gross.StringFixed(2),
			"commission_amount": split.Commission.StringFixed(2),
			"commission_rate":   rate.String(),
			"period":            period.String(),
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record earnings activity")
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":  order.ID.String(),
			"vendor_id": meal.VendorID.String(),
			"net":       split.Net.StringFixed(2),
			"period":    period.String(),
		})
		s.logg.Info(logCtx, "vendor earnings recorded")
	}
	return row, nil
}
