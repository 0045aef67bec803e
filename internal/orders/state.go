package orders

import (
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending: {enums.OrderStatusPaid, enums.OrderStatusCancelled},
	enums.OrderStatusPaid:    {enums.OrderStatusCompleted, enums.OrderStatusCancelled},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func invalidTransition(from, to enums.OrderStatus) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order cannot move from "+string(from)+" to "+string(to)).
		WithDetails(map[string]any{"from": from, "to": to})
}
