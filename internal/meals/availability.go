package meals

import (
	"time"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

// Availability reports whether portions of meal can still be sold at now.
// A nil error means the sale may proceed.
func Availability(meal *models.Meal, now time.Time, portions int) error {
	if meal == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "meal not found")
	}
	if portions < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if !meal.IsActive {
		return pkgerrors.New(pkgerrors.CodeMealUnavailable, "meal is no longer available")
	}
	if !now.Before(meal.PickupEndTime) {
		return pkgerrors.New(pkgerrors.CodeMealUnavailable, "pickup window has ended")
	}
	if portions > meal.Quantity {
		return pkgerrors.New(pkgerrors.CodeOutOfStock, "not enough portions left").
			WithDetails(map[string]any{"requested": portions, "available": meal.Quantity})
	}
	return nil
}
