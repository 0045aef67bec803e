package earnings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

// Repository persists vendor earnings rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorEarnings, error)
	InsertIfAbsent(ctx context.Context, row *models.VendorEarnings) (bool, error)
	ListByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) ([]models.VendorEarnings, error)
	ListUnpaidByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorEarnings, error)
	ListUnpaidByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) ([]models.VendorEarnings, error)
	ListByPeriod(ctx context.Context, period types.Period) ([]models.VendorEarnings, error)
	VendorsWithUnpaid(ctx context.Context, period types.Period) ([]uuid.UUID, error)
	MarkPaidOut(ctx context.Context, vendorID uuid.UUID, period types.Period, at time.Time) (int64, error)
	AssignToPayout(ctx context.Context, payoutID uuid.UUID, earningIDs []uuid.UUID) (int64, error)
	MarkPayoutPaidOut(ctx context.Context, payoutID uuid.UUID, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an earnings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByOrder returns nil when no earnings exist for the order.
func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.VendorEarnings, error) {
	var row models.VendorEarnings
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertIfAbsent relies on the unique order_id constraint; it reports false
// when another writer already recorded the order.
func (r *repository) InsertIfAbsent(ctx context.Context, row *models.VendorEarnings) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "order_id"}}, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) ([]models.VendorEarnings, error) {
	var rows []models.VendorEarnings
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND period_year = ? AND period_month = ?", vendorID, period.Year, period.Month).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListUnpaidByVendor(ctx context.Context, vendorID uuid.UUID) ([]models.VendorEarnings, error) {
	var rows []models.VendorEarnings
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND is_paid_out = ?", vendorID, false).
		Order("period_year DESC, period_month DESC, created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListUnpaidByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) ([]models.VendorEarnings, error) {
	var rows []models.VendorEarnings
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND period_year = ? AND period_month = ? AND is_paid_out = ?", vendorID, period.Year, period.Month, false).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByPeriod(ctx context.Context, period types.Period) ([]models.VendorEarnings, error) {
	var rows []models.VendorEarnings
	err := r.db.WithContext(ctx).
		Where("period_year = ? AND period_month = ?", period.Year, period.Month).
		Find(&rows).Error
	return rows, err
}

func (r *repository) VendorsWithUnpaid(ctx context.Context, period types.Period) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.VendorEarnings{}).
		Where("period_year = ? AND period_month = ? AND is_paid_out = ?", period.Year, period.Month, false).
		Distinct().
		Pluck("vendor_id", &ids).Error
	return ids, err
}

// MarkPaidOut settles the vendor's unpaid rows for period that no payout
// request has claimed.
func (r *repository) MarkPaidOut(ctx context.Context, vendorID uuid.UUID, period types.Period, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorEarnings{}).
		Where("vendor_id = ? AND period_year = ? AND period_month = ? AND is_paid_out = ? AND payout_request_id IS NULL",
			vendorID, period.Year, period.Month, false).
		Updates(map[string]any{"is_paid_out": true, "paid_out_at": at.UTC()})
	return res.RowsAffected, res.Error
}

// AssignToPayout claims the listed unpaid rows for payoutID. Rows already
// paid or claimed are left alone, so a short count means a concurrent writer
// got there first.
func (r *repository) AssignToPayout(ctx context.Context, payoutID uuid.UUID, earningIDs []uuid.UUID) (int64, error) {
	if len(earningIDs) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.VendorEarnings{}).
		Where("id IN ? AND is_paid_out = ? AND payout_request_id IS NULL", earningIDs, false).
		Update("payout_request_id", payoutID)
	return res.RowsAffected, res.Error
}

// MarkPayoutPaidOut settles exactly the rows claimed by payoutID.
func (r *repository) MarkPayoutPaidOut(ctx context.Context, payoutID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.VendorEarnings{}).
		Where("payout_request_id = ? AND is_paid_out = ?", payoutID, false).
		Updates(map[string]any{"is_paid_out": true, "paid_out_at": at.UTC()})
	return res.RowsAffected, res.Error
}
