package payments

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
)

const invoicePrefix = "order_"

// InvoicePayload is the correlation token attached to a native invoice.
func InvoicePayload(orderID uuid.UUID) string {
	return invoicePrefix + orderID.String()
}

// ParseInvoicePayload is the inverse of InvoicePayload.
func ParseInvoicePayload(payload string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(strings.TrimSpace(payload), invoicePrefix)
	if !ok || raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "malformed invoice payload")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed invoice payload")
	}
	return id, nil
}
