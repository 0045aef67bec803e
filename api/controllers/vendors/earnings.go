package vendors

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

type earningsReader interface {
	VendorMonthly(ctx context.Context, vendorID uuid.UUID, period types.Period) (*earnings.MonthlySummary, error)
	VendorUnpaid(ctx context.Context, vendorID uuid.UUID) ([]earnings.PeriodTotal, error)
}

type unpaidResponse struct {
	VendorID uuid.UUID              `json:"vendor_id"`
	Periods  []earnings.PeriodTotal `json:"periods"`
}

// MonthlyEarnings reports one vendor's month. year and month default to the
// current settlement month in loc.
func MonthlyEarnings(ledger earningsReader, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "earnings ledger unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		period, err := validators.ParsePeriodQuery(r, types.PeriodOf(time.Now(), loc))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, err := ledger.VendorMonthly(r.Context(), vendorID, period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func UnpaidEarnings(ledger earningsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "earnings ledger unavailable"))
			return
		}
		vendorID, err := validators.ParseUUIDParam(r, "vendorId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		periods, err := ledger.VendorUnpaid(r.Context(), vendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if periods == nil {
			periods = []earnings.PeriodTotal{}
		}
		responses.WriteSuccess(w, unpaidResponse{VendorID: vendorID, Periods: periods})
	}
}
