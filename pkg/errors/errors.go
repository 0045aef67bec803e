package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Marketplace codes surfaced to the chat adapter.
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeOutOfStock        Code = "OUT_OF_STOCK"
	CodeMealUnavailable   Code = "MEAL_UNAVAILABLE"
	CodeGatewayDisabled   Code = "GATEWAY_DISABLED"
	CodeInvalidWebhook    Code = "INVALID_WEBHOOK"
	CodeNotCompleted      Code = "NOT_COMPLETED"
	CodeNothingToPayout   Code = "NOTHING_TO_PAYOUT"
	CodeNoUnpaidEarnings  Code = "NO_UNPAID_EARNINGS"
)

// Metadata drives the HTTP rendering of a code. PublicMessage is what
// clients see; the internal message only reaches the logs.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

type metaFlag uint8

const (
	retryable metaFlag = 1 << iota
	withDetails
)

func meta(status int, public string, flags metaFlag) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      flags&retryable != 0,
		DetailsAllowed: flags&withDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", withDetails),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", 0),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", 0),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", 0),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", 0),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", withDetails),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", withDetails),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|withDetails),

	CodeInvalidTransition: meta(http.StatusUnprocessableEntity, "order status transition not allowed", withDetails),
	CodeOutOfStock:        meta(http.StatusConflict, "not enough portions available", withDetails),
	CodeMealUnavailable:   meta(http.StatusConflict, "meal is no longer available", withDetails),
	CodeGatewayDisabled:   meta(http.StatusServiceUnavailable, "payments are currently disabled", 0),
	CodeInvalidWebhook:    meta(http.StatusBadRequest, "invalid webhook payload", 0),
	CodeNotCompleted:      meta(http.StatusUnprocessableEntity, "order is not completed", withDetails),
	CodeNothingToPayout:   meta(http.StatusUnprocessableEntity, "nothing to pay out for period", withDetails),
	CodeNoUnpaidEarnings:  meta(http.StatusUnprocessableEntity, "no unpaid earnings for period", withDetails),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded domain error. A nil *Error behaves as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and message to err. A nil err yields New(code, message).
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the client-visible details in place and returns e.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches any *Error with the same code, so errors.Is(err,
// New(CodeOutOfStock, "")) works across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any *Error in err's chain carries code.
func IsCode(err error, code Code) bool {
	return err != nil && stdErrors.Is(err, &Error{code: code})
}
