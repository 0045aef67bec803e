package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/internal/earnings"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/types"
)

type revenueReporter interface {
	PlatformRevenue(ctx context.Context, period types.Period) (*earnings.RevenueReport, error)
}

func Revenue(reporter revenueReporter, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reporter == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "earnings ledger unavailable"))
			return
		}
		period, err := validators.ParsePeriodQuery(r, types.PeriodOf(time.Now(), loc))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := reporter.PlatformRevenue(r.Context(), period)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
