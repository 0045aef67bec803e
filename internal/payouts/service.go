package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	"github.com/asbolsyn/mealmarket-backend/internal/tracking"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/payloads"
	"github.com/asbolsyn/mealmarket-backend/pkg/pagination"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service aggregates unpaid vendor earnings into monthly payout requests and
// tracks their settlement.
type Service interface {
	RequestPayout(ctx context.Context, vendorID uuid.UUID, period types.Period) (*models.PayoutRequest, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.PayoutRequest, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error)
	ListPending(ctx context.Context, params ListParams) (*ListResult, error)
	RollupPeriod(ctx context.Context, period types.Period) (*RollupResult, error)
}

type MarkPaidInput struct {
	VendorID    uuid.UUID    `json:"vendor_id" validate:"required"`
	Period      types.Period `json:"period"`
	ExternalRef string       `json:"external_ref,omitempty" validate:"omitempty,max=255"`
}

// MarkPaidResult reports the settled earnings rows. Payout is nil when the
// operator settled a month no request was opened for.
type MarkPaidResult struct {
	EarningsCount int64                 `json:"earnings_count"`
	Payout        *models.PayoutRequest `json:"payout,omitempty"`
}

type ListParams struct {
	Limit  int
	Cursor string
}

type PendingPayout struct {
	models.PayoutRequest
	VendorName       string `json:"vendor_name"`
	VendorTelegramID int64  `json:"vendor_telegram_id"`
	Period           string `json:"period"`
}

type ListResult struct {
	Items  []PendingPayout `json:"items"`
	Cursor string          `json:"cursor"`
}

// RollupResult summarises one pass of RollupPeriod. Err aggregates per-vendor
// failures; vendors that failed do not stop the rest.
type RollupResult struct {
	Period    types.Period `json:"period"`
	Requested int          `json:"requested"`
	Existing  int          `json:"existing"`
	Skipped   int          `json:"skipped"`
	Err       error        `json:"-"`
}

type ServiceParams struct {
	Repository Repository
	Earnings   earnings.Repository
	Outbox     outbox.Emitter
	Tracker    tracking.Recorder
	DB         txRunner
	Currency   enums.Currency
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo     Repository
	earnings earnings.Repository
	outbox   outbox.Emitter
	tracker  tracking.Recorder
	tx       txRunner
	currency enums.Currency
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if params.Earnings == nil {
		return nil, fmt.Errorf("earnings repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	s := &service{
		repo:     params.Repository,
		earnings: params.Earnings,
		outbox:   params.Outbox,
		tracker:  params.Tracker,
		tx:       params.DB,
		currency: params.Currency,
		logg:     params.Logger,
		now:      params.Now,
	}
	if s.tracker == nil {
		s.tracker = tracking.Nop{}
	}
	if s.currency == "" {
		s.currency = enums.CurrencyKZT
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *service) RequestPayout(ctx context.Context, vendorID uuid.UUID, period types.Period) (*models.PayoutRequest, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}

	var (
		payout  *models.PayoutRequest
		created bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// WithTx reruns the closure after a serialization failure.
		payout, created = nil, false
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByVendorPeriod(ctx, vendorID, period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout request")
		}
		if existing != nil {
			payout = existing
			return nil
		}

		ledger := s.earnings.WithTx(tx)
		rows, err := ledger.ListUnpaidByVendorPeriod(ctx, vendorID, period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load unpaid earnings")
		}
		total := decimal.Zero
		for _, row := range rows {
			total = total.Add(row.NetAmount)
		}
		if len(rows) == 0 || !total.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeNothingToPayout, "no unpaid earnings for period").
				WithDetails(map[string]any{"vendor_id": vendorID.String(), "period": period.String()})
		}

		candidate := &models.PayoutRequest{
			ID:          uuid.New(),
			VendorID:    vendorID,
			Amount:      total.Round(2),
			Currency:    s.currency,
			Status:      enums.PayoutStatusPending,
			PeriodYear:  period.Year,
			PeriodMonth: period.Month,
			CreatedAt:   s.now().UTC(),
		}
		inserted, err := repo.InsertIfAbsent(ctx, candidate)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout request")
		}
		if !inserted {
			winner, err := repo.FindByVendorPeriod(ctx, vendorID, period)
			if err != nil || winner == nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payout request")
			}
			payout = winner
			return nil
		}

		ids := make([]uuid.UUID, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		claimed, err := ledger.AssignToPayout(ctx, candidate.ID, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link earnings to payout request")
		}
		if claimed != int64(len(ids)) {
			return pkgerrors.New(pkgerrors.CodeConflict, "earnings changed while the payout was requested").
				WithDetails(map[string]any{"expected": len(ids), "claimed": claimed})
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRequested,
			AggregateType: enums.AggregatePayout,
			AggregateID:   candidate.ID,
			OccurredAt:    candidate.CreatedAt,
			Data: payloads.PayoutRequestedEvent{
				PayoutID:    candidate.ID,
				VendorID:    vendorID,
				Amount:      candidate.Amount,
				Currency:    candidate.Currency,
				PeriodYear:  period.Year,
				PeriodMonth: period.Month,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout requested")
		}
		if err := s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricPayoutRequested,
			Value:    candidate.Amount.InexactFloat64(),
			EntityID: candidate.ID,
			UserID:   vendorID,
			Metadata: map[string]any{
				"vendor_id":    vendorID.String(),
				"period_year":  period.Year,
				"period_month": period.Month,
				"total_orders": len(rows),
			},
			At: candidate.CreatedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout activity")
		}
		payout = candidate
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created && s.logg != nil {
		logCtx := s.logg.WithPeriod(s.logg.WithVendorID(ctx, vendorID.String()), period.Year, period.Month)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"payout_id": payout.ID.String(),
			"amount":    payout.Amount.StringFixed(2),
		})
		s.logg.Info(logCtx, "payout request created")
	}
	return payout, nil
}

// MarkPaid settles a vendor's month. With an open payout request only the
// rows that request summed are flipped, so the settled amount always equals
// the request amount. Rows recorded after the request, or with no request at
// all, are settled without a payout and without a payout_completed event.
func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*MarkPaidResult, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor id required")
	}
	if err := input.Period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	ref := strings.TrimSpace(input.ExternalRef)

	var result *MarkPaidResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		result = &MarkPaidResult{}
		now := s.now().UTC()
		repo := s.repo.WithTx(tx)
		ledger := s.earnings.WithTx(tx)

		payout, err := repo.FindByVendorPeriod(ctx, input.VendorID, input.Period)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout request")
		}
		if payout == nil || !isOpen(payout.Status) {
			count, err := ledger.MarkPaidOut(ctx, input.VendorID, input.Period, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark earnings paid out")
			}
			if count == 0 {
				return noUnpaidEarnings(input)
			}
			result.EarningsCount = count
			return nil
		}

		count, err := ledger.MarkPayoutPaidOut(ctx, payout.ID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark earnings paid out")
		}
		if count == 0 {
			return noUnpaidEarnings(input)
		}
		result.EarningsCount = count

		updates := map[string]any{"completed_at": now}
		if ref != "" {
			updates["external_transaction_id"] = ref
		}
		ok, err := repo.UpdateStatus(ctx, payout.ID, openStatuses, enums.PayoutStatusCompleted, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payout request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "payout request is no longer open").
				WithDetails(map[string]any{"payout_id": payout.ID.String()})
		}
		payout, err = repo.Get(ctx, payout.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payout request")
		}
		result.Payout = payout

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Actor:         &outbox.ActorRef{Role: string(enums.ActorRoleAdmin)},
			OccurredAt:    now,
			Data: payloads.PayoutCompletedEvent{
				PayoutID:      payout.ID,
				VendorID:      payout.VendorID,
				Amount:        payout.Amount,
				PeriodYear:    payout.PeriodYear,
				PeriodMonth:   payout.PeriodMonth,
				ExternalRef:   ref,
				EarningsCount: count,
				CompletedAt:   now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payout completed")
		}
		return s.tracker.RecordTx(ctx, tx, tracking.MetricInput{
			Type:     enums.MetricPayoutCompleted,
			Value:    payout.Amount.InexactFloat64(),
			EntityID: payout.ID,
			UserID:   payout.VendorID,
			Metadata: map[string]any{
				"vendor_id":               payout.VendorID.String(),
				"period_year":             payout.PeriodYear,
				"period_month":            payout.PeriodMonth,
				"external_transaction_id": ref,
			},
			At: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithPeriod(s.logg.WithVendorID(ctx, input.VendorID.String()), input.Period.Year, input.Period.Month)
		fields := map[string]any{"earnings_count": result.EarningsCount}
		if result.Payout != nil {
			fields["payout_id"] = result.Payout.ID.String()
		}
		s.logg.Info(s.logg.WithFields(logCtx, fields), "earnings marked paid out")
	}
	return result, nil
}

func noUnpaidEarnings(input MarkPaidInput) error {
	return pkgerrors.New(pkgerrors.CodeNoUnpaidEarnings, "no unpaid earnings for period").
		WithDetails(map[string]any{"vendor_id": input.VendorID.String(), "period": input.Period.String()})
}

func isOpen(status enums.PayoutStatus) bool {
	for _, candidate := range openStatuses {
		if candidate == status {
			return true
		}
	}
	return false
}

var openStatuses = []enums.PayoutStatus{
	enums.PayoutStatusPending,
	enums.PayoutStatusProcessing,
	enums.PayoutStatusFailed,
}

func (s *service) MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.PayoutRequest, error) {
	return s.transition(ctx, payoutID, []enums.PayoutStatus{enums.PayoutStatusPending}, enums.PayoutStatusProcessing,
		map[string]any{"processed_at": s.now().UTC()})
}

func (s *service) MarkFailed(ctx context.Context, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error) {
	updates := map[string]any{}
	if notes = strings.TrimSpace(notes); notes != "" {
		updates["external_notes"] = notes
	}
	return s.transition(ctx, payoutID, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, enums.PayoutStatusFailed, updates)
}

func (s *service) transition(ctx context.Context, payoutID uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (*models.PayoutRequest, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id required")
	}
	var payout *models.PayoutRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.Get(ctx, payoutID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout request not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout request")
		}
		ok, err := repo.UpdateStatus(ctx, payoutID, from, to, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "payout status transition not allowed").
				WithDetails(map[string]any{"from": current.Status, "to": to})
		}
		payout, err = repo.Get(ctx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payout request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *service) ListPending(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listPendingParams{Limit: params.Limit}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.ListPending(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending payouts")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.VendorID)
	}
	vendors, err := s.repo.VendorsByID(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendors")
	}

	items := make([]PendingPayout, 0, len(rows))
	for _, row := range rows {
		vendor := vendors[row.VendorID]
		items = append(items, PendingPayout{
			PayoutRequest:    row,
			VendorName:       vendor.Name,
			VendorTelegramID: vendor.TelegramID,
			Period:           types.Period{Year: row.PeriodYear, Month: row.PeriodMonth}.String(),
		})
	}

	cursor := ""
	if next != nil {
		cursor = pagination.EncodeCursor(*next)
	}
	return &ListResult{Items: items, Cursor: cursor}, nil
}

func (s *service) RollupPeriod(ctx context.Context, period types.Period) (*RollupResult, error) {
	if err := period.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid period")
	}
	vendorIDs, err := s.earnings.VendorsWithUnpaid(ctx, period)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors with unpaid earnings")
	}

	result := &RollupResult{Period: period}
	for _, vendorID := range vendorIDs {
		existing, err := s.repo.FindByVendorPeriod(ctx, vendorID, period)
		if err != nil {
			result.Err = multierr.Append(result.Err, fmt.Errorf("vendor %s: %w", vendorID, err))
			continue
		}
		if existing != nil {
			result.Existing++
			continue
		}
		if _, err := s.RequestPayout(ctx, vendorID, period); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNothingToPayout) {
				result.Skipped++
				continue
			}
			result.Err = multierr.Append(result.Err, fmt.Errorf("vendor %s: %w", vendorID, err))
			continue
		}
		result.Requested++
	}
	return result, nil
}
