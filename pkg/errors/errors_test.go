package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDomainCodesMapToClientStatuses(t *testing.T) {
	tests := map[Code]int{
		CodeInvalidTransition: http.StatusUnprocessableEntity,
		CodeOutOfStock:        http.StatusConflict,
		CodeMealUnavailable:   http.StatusConflict,
		CodeGatewayDisabled:   http.StatusServiceUnavailable,
		CodeInvalidWebhook:    http.StatusBadRequest,
		CodeNotCompleted:      http.StatusUnprocessableEntity,
		CodeNothingToPayout:   http.StatusUnprocessableEntity,
		CodeNoUnpaidEarnings:  http.StatusUnprocessableEntity,
	}
	for code, status := range tests {
		meta := MetadataFor(code)
		if meta.HTTPStatus != status {
			t.Fatalf("code %s expected status %d got %d", code, status, meta.HTTPStatus)
		}
		if meta.Retryable {
			t.Fatalf("code %s should not be retryable", code)
		}
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	inner := New(CodeOutOfStock, "only 1 portion left")
	outer := fmt.Errorf("create order: %w", inner)

	if !IsCode(outer, CodeOutOfStock) {
		t.Fatalf("expected wrapped error to match out of stock code")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected match for not found code")
	}
	if IsCode(stdErrors.New("plain"), CodeOutOfStock) {
		t.Fatalf("plain errors carry no code")
	}

	// the inner code stays visible under an outer coded wrapper
	layered := Wrap(CodeDependency, outer, "reserve portions")
	if !IsCode(layered, CodeOutOfStock) || !IsCode(layered, CodeDependency) {
		t.Fatalf("expected both codes in chain of %v", layered)
	}
	if As(layered).Code() != CodeDependency {
		t.Fatalf("As should return the outermost error")
	}
	if !stdErrors.Is(layered, New(CodeOutOfStock, "")) {
		t.Fatalf("errors.Is should match by code")
	}
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := Errorf(CodeOutOfStock, "only %d portions left", 2)
	if err.Error() != "OUT_OF_STOCK: only 2 portions left" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	if Wrap(CodeNotFound, nil, "meal").Unwrap() != nil {
		t.Fatalf("Wrap(nil) should carry no cause")
	}
}

func TestDiagnoseLiftsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_vendor_earnings_order", TableName: "vendor_earnings"}
	err := Wrap(CodeConflict, fmt.Errorf("insert earning: %w", pgErr), "earning already recorded")

	d := Diagnose(err)
	if d.Code != CodeConflict || d.SQLClass != "unique_violation" {
		t.Fatalf("unexpected diagnostics %+v", d)
	}
	fields := d.Fields()
	if fields["sql_constraint"] != "ux_vendor_earnings_order" {
		t.Fatalf("expected constraint field, got %v", fields["sql_constraint"])
	}
	if _, ok := fields["sql_detail"]; ok {
		t.Fatalf("empty driver details should be omitted")
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestDiagnoseClassifiesSQLiteMessages(t *testing.T) {
	d := Diagnose(stdErrors.New("CHECK constraint failed: quantity >= 0"))
	if d.SQLState != "23514" || d.SQLClass != "check_violation" {
		t.Fatalf("unexpected diagnostics %+v", d)
	}
	if _, ok := d.Fields()["error_code"]; ok {
		t.Fatalf("untyped errors carry no error_code")
	}
	if Diagnose(nil).Message != "" {
		t.Fatalf("nil error should produce empty diagnostics")
	}
}
