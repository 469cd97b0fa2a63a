package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/credits"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Field   string   `json:"field,omitempty"`
	Ranges  []string `json:"conflicting_ranges,omitempty"`
	// Debt details come with debt_exceeded.
	BalanceCents *int64 `json:"balance_cents,omitempty"`
	MaxDebtCents *int64 `json:"max_debt_cents,omitempty"`
}

// DecodeJSON reads exactly one JSON object into dst and rejects unknown
// fields. Decoding failures come back as FieldErrors on "body".
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Invalid("body", "is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("body", "is required")
		}
		return apperr.Invalid("body", err.Error())
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return apperr.Invalid("body", "must contain a single JSON object")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteMessage writes an ErrorResponse with the status text as its code.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: codeForStatus(status), Message: message})
}

// WriteError maps an error kind to its HTTP status and JSON body. Unknown
// errors are logged and reported as 500 without their text.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := Describe(err)
	logger := log.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	if writeErr := WriteJSON(w, status, body); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

// Describe returns the status and body WriteError would send for err.
func Describe(err error) (int, ErrorResponse) {
	body := ErrorResponse{Message: err.Error()}

	var field apperr.FieldError
	var conflict apperr.ConflictError
	var debt credits.DebtExceededError
	var status int
	switch {
	case errors.As(err, &field):
		status, body.Error, body.Field, body.Message = http.StatusBadRequest, "validation", field.Field, field.Reason
	case errors.Is(err, apperr.ErrValidation):
		status, body.Error = http.StatusBadRequest, "validation"
	case errors.Is(err, authz.ErrUnauthenticated), errors.Is(err, authz.ErrBadIdentity):
		status, body.Error = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperr.ErrForbidden), errors.Is(err, authz.ErrForbidden):
		status, body.Error = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperr.ErrNotFound):
		status, body.Error = http.StatusNotFound, "not_found"
	case errors.As(err, &conflict):
		status, body.Error, body.Ranges = http.StatusConflict, "conflict", conflict.Ranges
	case errors.Is(err, apperr.ErrConflict):
		status, body.Error = http.StatusConflict, "conflict"
	case errors.As(err, &debt):
		status, body.Error = http.StatusUnprocessableEntity, "debt_exceeded"
		body.BalanceCents, body.MaxDebtCents = &debt.BalanceCents, &debt.MaxDebtCents
	case errors.Is(err, apperr.ErrDebtExceeded):
		status, body.Error = http.StatusUnprocessableEntity, "debt_exceeded"
	case errors.Is(err, apperr.ErrAdvanceNotice):
		status, body.Error = http.StatusUnprocessableEntity, "advance_notice"
	case errors.Is(err, apperr.ErrCapacityExceeded):
		status, body.Error = http.StatusUnprocessableEntity, "capacity_exceeded"
	case errors.Is(err, apperr.ErrInvitationExpired):
		status, body.Error = http.StatusGone, "invitation_expired"
	case errors.Is(err, apperr.ErrInvitationClosed):
		status, body.Error = http.StatusGone, "invitation_closed"
	case errors.Is(err, apperr.ErrGameClosed):
		status, body.Error = http.StatusGone, "game_closed"
	case errors.Is(err, apperr.ErrPaymentGateway):
		status, body.Error, body.Message = http.StatusBadGateway, "payment_gateway", "payment gateway unavailable"
	default:
		status, body.Error, body.Message = http.StatusInternalServerError, "internal", "internal server error"
	}
	return status, body
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthenticated"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal"
	}
	return fmt.Sprintf("http_%d", status)
}
