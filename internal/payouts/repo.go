package payouts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/pagination"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

// Repository persists payout requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error)
	FindByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) (*models.PayoutRequest, error)
	InsertIfAbsent(ctx context.Context, payout *models.PayoutRequest) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error)
	ListPending(ctx context.Context, params listPendingParams) ([]models.PayoutRequest, *pagination.Cursor, error)
	VendorsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error)
}

type listPendingParams struct {
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

// FindByVendorPeriod returns nil, nil when the vendor has no request for period.
func (r *repository) FindByVendorPeriod(ctx context.Context, vendorID uuid.UUID, period types.Period) (*models.PayoutRequest, error) {
	var payout models.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("vendor_id = ? AND period_year = ? AND period_month = ?", vendorID, period.Year, period.Month).
		First(&payout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// InsertIfAbsent reports false when a request for the same vendor month exists.
func (r *repository) InsertIfAbsent(ctx context.Context, payout *models.PayoutRequest) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "vendor_id"}, {Name: "period_year"}, {Name: "period_month"}},
			DoNothing: true,
		}).
		Create(payout)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.PayoutStatus, to enums.PayoutStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.PayoutRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPending pages pending requests newest first. The returned cursor is the
// last row of the page and is nil on the final page.
func (r *repository) ListPending(ctx context.Context, params listPendingParams) ([]models.PayoutRequest, *pagination.Cursor, error) {
	var rows []models.PayoutRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.PayoutStatusPending).
		Scopes(pagination.Keyset(params.Cursor, params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, err
	}
	page, next := pagination.Window(rows, params.Limit, func(p models.PayoutRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	return page, next, nil
}

func (r *repository) VendorsByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Vendor, error) {
	out := make(map[uuid.UUID]models.Vendor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var vendors []models.Vendor
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&vendors).Error; err != nil {
		return nil, err
	}
	for _, v := range vendors {
		out[v.ID] = v
	}
	return out, nil
}
