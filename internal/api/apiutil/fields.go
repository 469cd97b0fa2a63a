package apiutil

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/models"
)

// PathID parses a positive integer path parameter.
func PathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// QueryDate reads a required YYYY-MM-DD query parameter.
func QueryDate(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", apperr.Invalid(name, "is required")
	}
	if _, err := time.Parse(models.DateLayout, raw); err != nil {
		return "", apperr.Invalid(name, "must be a date in YYYY-MM-DD format")
	}
	return raw, nil
}

// QueryClock reads an optional HH:MM query parameter.
func QueryClock(r *http.Request, name string) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(models.TimeLayout, raw); err != nil {
		return "", apperr.Invalid(name, "must be a time in HH:MM format")
	}
	return raw, nil
}
