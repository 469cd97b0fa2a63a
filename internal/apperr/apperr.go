// internal/apperr/apperr.go
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds shared by the booking core. Callers match them with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("slot conflict")
	ErrAdvanceNotice     = errors.New("insufficient advance notice")
	ErrDebtExceeded      = errors.New("debt limit exceeded")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrGameClosed        = errors.New("reservation is closed")
	ErrInvitationClosed  = errors.New("invitation is closed")
	ErrInvitationExpired = errors.New("invitation has expired")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrPaymentGateway    = errors.New("payment gateway error")

	// ErrIdempotentNoOp marks a request that was accepted but changed nothing.
	// It is not a failure.
	ErrIdempotentNoOp = errors.New("idempotent no-op")
)

// FieldError is a validation failure addressable to one input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e FieldError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for a FieldError.
func Invalid(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// ConflictError reports the occupied ranges that collide with a request.
type ConflictError struct {
	CourtID int64
	Date    string
	Ranges  []string
}

func (e ConflictError) Error() string {
	if len(e.Ranges) == 0 {
		return fmt.Sprintf("court %d on %s: requested range is unavailable", e.CourtID, e.Date)
	}
	return fmt.Sprintf("court %d on %s: overlaps %s", e.CourtID, e.Date, strings.Join(e.Ranges, ", "))
}

func (e ConflictError) Unwrap() error {
	return ErrConflict
}

// GatewayError wraps a failed payment gateway call.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() []error {
	return []error{ErrPaymentGateway, e.Err}
}

// Retryable reports whether the call may succeed if repeated.
func (e *GatewayError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
