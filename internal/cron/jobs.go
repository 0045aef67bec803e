package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/payouts"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

const (
	defaultScanLimit     = 200
	defaultPendingTTL    = 30 * time.Minute
	outboxRetentionDays  = 30
	orderTTLCancelReason = "payment window expired"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// meal-expiry

type mealExpirer interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type mealExpiryJob struct {
	meals mealExpirer
	now   func() time.Time
}

func NewMealExpiryJob(meals mealExpirer) (Job, error) {
	if meals == nil {
		return nil, fmt.Errorf("meals repository required")
	}
	return &mealExpiryJob{meals: meals, now: time.Now}, nil
}

func (j *mealExpiryJob) Name() string { return "meal-expiry" }

func (j *mealExpiryJob) Run(ctx context.Context) (int64, error) {
	n, err := j.meals.DeactivateExpired(ctx, j.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired meals: %w", err)
	}
	return n, nil
}

// order-ttl

type orderCanceller interface {
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string) (*models.Order, error)
}

type OrderTTLJobParams struct {
	Orders orderCanceller
	TTL    time.Duration
	Limit  int
	Logger *logger.Logger
}

type orderTTLJob struct {
	orders orderCanceller
	ttl    time.Duration
	limit  int
	logg   *logger.Logger
	now    func() time.Time
}

func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	return &orderTTLJob{orders: params.Orders, ttl: ttl, limit: limit, logg: params.Logger, now: time.Now}, nil
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run cancels orders left PENDING past the TTL through the normal state
// machine, so an order paid in the meantime is skipped rather than cancelled.
func (j *orderTTLJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.ttl)
	stale, err := j.orders.ListStalePending(ctx, cutoff, j.limit)
	if err != nil {
		return 0, fmt.Errorf("list stale pending orders: %w", err)
	}
	var (
		cancelled int64
		errs      error
	)
	for _, order := range stale {
		if _, err := j.orders.Cancel(ctx, order.ID, orderTTLCancelReason); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) {
				continue
			}
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
			continue
		}
		cancelled++
	}
	if cancelled > 0 && j.logg != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{"cutoff": cutoff, "cancelled": cancelled})
		j.logg.Info(logCtx, "stale pending orders cancelled")
	}
	return cancelled, errs
}

// earnings-backfill

type completedOrderLister interface {
	ListCompletedWithoutEarnings(ctx context.Context, limit int) ([]models.Order, error)
}

type earningsRecorder interface {
	Record(ctx context.Context, orderID uuid.UUID) (*models.VendorEarnings, error)
}

type earningsBackfillJob struct {
	orders completedOrderLister
	ledger earningsRecorder
	limit  int
}

func NewEarningsBackfillJob(orders completedOrderLister, ledger earningsRecorder, limit int) (Job, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("earnings ledger required")
	}
	if limit <= 0 {
		limit = defaultScanLimit
	}
	return &earningsBackfillJob{orders: orders, ledger: ledger, limit: limit}, nil
}

func (j *earningsBackfillJob) Name() string { return "earnings-backfill" }

func (j *earningsBackfillJob) Run(ctx context.Context) (int64, error) {
	missing, err := j.orders.ListCompletedWithoutEarnings(ctx, j.limit)
	if err != nil {
		return 0, fmt.Errorf("list completed orders without earnings: %w", err)
	}
	var (
		recorded int64
		errs     error
	)
	for _, order := range missing {
		if _, err := j.ledger.Record(ctx, order.ID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record earnings for order %s: %w", order.ID, err))
			continue
		}
		recorded++
	}
	return recorded, errs
}

// payout-rollup

type periodRoller interface {
	RollupPeriod(ctx context.Context, period types.Period) (*payouts.RollupResult, error)
}

type payoutRollupJob struct {
	payouts periodRoller
	loc     *time.Location
	now     func() time.Time
}

func NewPayoutRollupJob(payouts periodRoller, loc *time.Location) (Job, error) {
	if payouts == nil {
		return nil, fmt.Errorf("payouts service required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &payoutRollupJob{payouts: payouts, loc: loc, now: time.Now}, nil
}

func (j *payoutRollupJob) Name() string { return "payout-rollup" }

// Run opens payout requests for the previous settlement month. Existing
// requests are left alone, so running every cycle is harmless.
func (j *payoutRollupJob) Run(ctx context.Context) (int64, error) {
	period := types.PeriodOf(j.now(), j.loc).Previous()
	res, err := j.payouts.RollupPeriod(ctx, period)
	if err != nil {
		return 0, fmt.Errorf("rollup payouts for %s: %w", period, err)
	}
	return int64(res.Requested), res.Err
}

// outbox-retention

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type outboxRetentionJob struct {
	db        txRunner
	repo      outboxPurger
	retention time.Duration
	now       func() time.Time
}

func NewOutboxRetentionJob(db txRunner, repo outboxPurger, retentionDays int) (Job, error) {
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if retentionDays <= 0 {
		retentionDays = outboxRetentionDays
	}
	return &outboxRetentionJob{
		db:        db,
		repo:      repo,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("outbox retention: %w", err)
	}
	return deleted, nil
}
