package apiutil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/credits"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperr.Invalid("date", "is required"), http.StatusBadRequest, "validation"},
		{fmt.Errorf("wrap: %w", apperr.ErrValidation), http.StatusBadRequest, "validation"},
		{authz.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{apperr.ErrForbidden, http.StatusForbidden, "forbidden"},
		{apperr.NotFound("reservation"), http.StatusNotFound, "not_found"},
		{apperr.ConflictError{CourtID: 1, Date: "2030-06-01", Ranges: []string{"18:00-19:00"}}, http.StatusConflict, "conflict"},
		{credits.DebtExceededError{BalanceCents: -19000, CostCents: 2000, MaxDebtCents: 20000}, http.StatusUnprocessableEntity, "debt_exceeded"},
		{apperr.ErrAdvanceNotice, http.StatusUnprocessableEntity, "advance_notice"},
		{apperr.ErrCapacityExceeded, http.StatusUnprocessableEntity, "capacity_exceeded"},
		{apperr.ErrInvitationExpired, http.StatusGone, "invitation_expired"},
		{apperr.ErrInvitationClosed, http.StatusGone, "invitation_closed"},
		{apperr.ErrGameClosed, http.StatusGone, "game_closed"},
		{&apperr.GatewayError{Op: "refund", StatusCode: 503, Err: errors.New("unavailable")}, http.StatusBadGateway, "payment_gateway"},
		{errors.New("disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, body := Describe(tt.err)
		if status != tt.status || body.Error != tt.code {
			t.Fatalf("Describe(%v) = %d %s, want %d %s", tt.err, status, body.Error, tt.status, tt.code)
		}
	}

	_, body := Describe(apperr.Invalid("participants[1].split_value", "must be positive"))
	if body.Field != "participants[1].split_value" || body.Message != "must be positive" {
		t.Fatalf("field error body: %+v", body)
	}
	_, body = Describe(apperr.ConflictError{Ranges: []string{"18:00-19:00"}})
	if len(body.Ranges) != 1 {
		t.Fatalf("conflict body should list ranges: %+v", body)
	}
	_, body = Describe(errors.New("secret dsn"))
	if strings.Contains(body.Message, "secret") {
		t.Fatalf("internal errors must not leak: %+v", body)
	}
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Reason string `json:"reason"`
	}
	decode := func(body string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dst payload
		return DecodeJSON(httptest.NewRecorder(), req, &dst)
	}

	if err := decode(`{"reason":"chuva forte"}`); err != nil {
		t.Fatalf("valid body: %v", err)
	}
	for _, bad := range []string{"", `{"other":1}`, `{"reason":"a"}{"reason":"b"}`, `[`} {
		err := decode(bad)
		var field apperr.FieldError
		if !errors.As(err, &field) || field.Field != "body" {
			t.Fatalf("%q: expected body FieldError, got %v", bad, err)
		}
	}
}

func TestPathIDAndQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/courts/7/availability?date=2030-06-01&from=18:00&to=25:00", nil)
	req.SetPathValue("id", "7")
	id, err := PathID(req, "id")
	if err != nil || id != 7 {
		t.Fatalf("PathID = %d, %v", id, err)
	}
	req.SetPathValue("id", "x")
	if _, err := PathID(req, "id"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if date, err := QueryDate(req, "date"); err != nil || date != "2030-06-01" {
		t.Fatalf("QueryDate = %q, %v", date, err)
	}
	if _, err := QueryDate(req, "missing"); err == nil {
		t.Fatal("missing date should fail")
	}
	if from, err := QueryClock(req, "from"); err != nil || from != "18:00" {
		t.Fatalf("QueryClock = %q, %v", from, err)
	}
	if _, err := QueryClock(req, "to"); err == nil {
		t.Fatal("25:00 should fail")
	}
}
