package admin

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
)

const maxDescriptionLen = 255

type commissionAdmin interface {
	Current(ctx context.Context) (*models.Commission, error)
	SetRate(ctx context.Context, rate decimal.Decimal, description string) (*models.Commission, error)
	History(ctx context.Context) ([]models.Commission, error)
}

type commissionView struct {
	Current *models.Commission  `json:"current"`
	History []models.Commission `json:"history"`
}

type setCommissionRequest struct {
	Rate        *decimal.Decimal `json:"rate" validate:"required,gte=0,lte=1"`
	Description string           `json:"description"`
}

func GetCommission(svc commissionAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}
		current, err := svc.Current(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		history, err := svc.History(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if history == nil {
			history = []models.Commission{}
		}
		responses.WriteSuccess(w, commissionView{Current: current, History: history})
	}
}

// SetCommission closes the open rate and starts a new one effective now.
func SetCommission(svc commissionAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "commission service unavailable"))
			return
		}
		var req setCommissionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := svc.SetRate(r.Context(), *req.Rate, validators.SanitizeString(req.Description, maxDescriptionLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, row)
	}
}
