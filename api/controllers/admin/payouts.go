package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/internal/payouts"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/pagination"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

const maxNotesLen = 1000

type payoutService interface {
	RequestPayout(ctx context.Context, vendorID uuid.UUID, period types.Period) (*models.PayoutRequest, error)
	MarkPaid(ctx context.Context, input payouts.MarkPaidInput) (*payouts.MarkPaidResult, error)
	MarkProcessing(ctx context.Context, payoutID uuid.UUID) (*models.PayoutRequest, error)
	MarkFailed(ctx context.Context, payoutID uuid.UUID, notes string) (*models.PayoutRequest, error)
	ListPending(ctx context.Context, params payouts.ListParams) (*payouts.ListResult, error)
}

type payoutPeriodRequest struct {
	VendorID uuid.UUID `json:"vendor_id" validate:"required"`
	Year     int       `json:"year" validate:"required,min=2000,max=9999"`
	Month    int       `json:"month" validate:"required,min=1,max=12"`
}

type markPaidRequest struct {
	payoutPeriodRequest
	ExternalRef string `json:"external_ref" validate:"omitempty,max=255"`
}

type markFailedRequest struct {
	Notes string `json:"notes"`
}

func RequestPayout(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		var req payoutPeriodRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.RequestPayout(r.Context(), req.VendorID, types.Period{Year: req.Year, Month: req.Month})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

// MarkPaid settles every unpaid earnings row of the vendor's month.
func MarkPaid(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		var req markPaidRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.MarkPaid(r.Context(), payouts.MarkPaidInput{
			VendorID:    req.VendorID,
			Period:      types.Period{Year: req.Year, Month: req.Month},
			ExternalRef: strings.TrimSpace(req.ExternalRef),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func MarkProcessing(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.MarkProcessing(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

func MarkFailed(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		payoutID, err := validators.ParseUUIDParam(r, "payoutId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req markFailedRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payout, err := svc.MarkFailed(r.Context(), payoutID, validators.SanitizeString(req.Notes, maxNotesLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// ListPending pages through pending requests, newest first.
func ListPending(svc payoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListPending(r.Context(), payouts.ListParams{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
