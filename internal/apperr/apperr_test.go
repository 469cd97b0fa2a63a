package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFieldErrorIsValidation(t *testing.T) {
	err := fmt.Errorf("configure split: %w", Invalid("participants[0].split_value", "must be positive"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldError")
	}
	if fieldErr.Field != "participants[0].split_value" {
		t.Fatalf("field: %s", fieldErr.Field)
	}
}

func TestConflictErrorIsConflict(t *testing.T) {
	err := ConflictError{CourtID: 1, Date: "2024-06-01", Ranges: []string{"18:00-19:00"}}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict")
	}
	if errors.Is(err, ErrAdvanceNotice) {
		t.Fatalf("conflict must not match advance notice")
	}
}

func TestGatewayErrorMatchesCause(t *testing.T) {
	err := &GatewayError{Op: "capture", Err: context.DeadlineExceeded}
	if !errors.Is(err, ErrPaymentGateway) {
		t.Fatalf("expected ErrPaymentGateway")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped deadline error")
	}
	if !err.Retryable() {
		t.Fatalf("transport errors should be retryable")
	}
	if (&GatewayError{Op: "refund", StatusCode: 400, Err: errors.New("bad")}).Retryable() {
		t.Fatalf("4xx should not be retryable")
	}
}
