package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/metrics"
)

type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
	// Backoff is the delay before the first retry; each retry doubles it.
	Backoff time.Duration
}

// HTTPClient is the REST implementation of Client.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	http       *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		http:       &http.Client{},
	}, nil
}

type chargeBody struct {
	Customer    string      `json:"customer"`
	BillingType string      `json:"billingType"`
	Value       json.Number `json:"value"`
	DueDate     string      `json:"dueDate,omitempty"`
	Description string      `json:"description,omitempty"`
	ExternalRef string      `json:"externalReference,omitempty"`
	CardToken   string      `json:"creditCardToken,omitempty"`
	HolderName  string      `json:"creditCardHolderName,omitempty"`
	Authorize   bool        `json:"authorizeOnly,omitempty"`
}

type chargeResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Value  decimal.Decimal `json:"value"`
}

func (r chargeResponse) charge() Charge {
	return Charge{ID: r.ID, Status: r.Status, AmountCents: r.Value.Shift(2).Round(0).IntPart()}
}

func reais(cents int64) json.Number {
	return json.Number(decimal.New(cents, -2).StringFixed(2))
}

var billingTypes = map[string]string{
	"pix":   "PIX",
	"card":  "CREDIT_CARD",
	"debit": "DEBIT_CARD",
}

func (c *HTTPClient) CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error) {
	billing, ok := billingTypes[string(req.Method)]
	if !ok {
		return Charge{}, &apperr.GatewayError{Op: "create_charge", Err: fmt.Errorf("method %q is not charged through the gateway", req.Method)}
	}
	body := chargeBody{
		Customer:    strconv.FormatInt(req.PayerID, 10),
		BillingType: billing,
		Value:       reais(req.AmountCents),
		DueDate:     req.DueDate,
		Description: req.Description,
		ExternalRef: req.IdempotencyKey,
	}
	var out chargeResponse
	if err := c.do(ctx, "create_charge", http.MethodPost, "/payments", req.IdempotencyKey, body, &out, false); err != nil {
		return Charge{}, err
	}
	return out.charge(), nil
}

func (c *HTTPClient) CreatePreAuth(ctx context.Context, req PreAuthRequest) (Charge, error) {
	if req.Card.Token == "" {
		return Charge{}, apperr.Invalid("card.token", "is required")
	}
	body := chargeBody{
		Customer:    strconv.FormatInt(req.PayerID, 10),
		BillingType: "CREDIT_CARD",
		Value:       reais(req.AmountCents),
		Description: req.Description,
		ExternalRef: req.IdempotencyKey,
		CardToken:   req.Card.Token,
		HolderName:  req.Card.HolderName,
		Authorize:   true,
	}
	var out chargeResponse
	if err := c.do(ctx, "create_preauth", http.MethodPost, "/payments", req.IdempotencyKey, body, &out, false); err != nil {
		return Charge{}, err
	}
	return out.charge(), nil
}

// Capture is retried on transient failures.
func (c *HTTPClient) Capture(ctx context.Context, externalID string, amountCents int64) (Charge, error) {
	body := map[string]json.Number{"value": reais(amountCents)}
	var out chargeResponse
	path := "/payments/" + externalID + "/captureAuthorizedPayment"
	if err := c.do(ctx, "capture", http.MethodPost, path, "capture-"+externalID, body, &out, true); err != nil {
		return Charge{}, err
	}
	return out.charge(), nil
}

func (c *HTTPClient) CancelPreAuth(ctx context.Context, externalID string) error {
	return c.do(ctx, "cancel_preauth", http.MethodDelete, "/payments/"+externalID, "cancel-"+externalID, nil, nil, false)
}

// CancelCharge deletes a charge that has not been paid. Deleting is
// idempotent, so it is retried on transient failures.
func (c *HTTPClient) CancelCharge(ctx context.Context, externalID string) error {
	return c.do(ctx, "cancel_charge", http.MethodDelete, "/payments/"+externalID, "void-"+externalID, nil, nil, true)
}

func (c *HTTPClient) Refund(ctx context.Context, externalID string, amountCents int64, idempotencyKey string) (Charge, error) {
	body := map[string]json.Number{"value": reais(amountCents)}
	var out chargeResponse
	if err := c.do(ctx, "refund", http.MethodPost, "/payments/"+externalID+"/refund", idempotencyKey, body, &out, false); err != nil {
		return Charge{}, err
	}
	return out.charge(), nil
}

func (c *HTTPClient) GetPayment(ctx context.Context, externalID string) (Charge, error) {
	var out chargeResponse
	if err := c.do(ctx, "get_payment", http.MethodGet, "/payments/"+externalID, "", nil, &out, true); err != nil {
		return Charge{}, err
	}
	return out.charge(), nil
}

func (c *HTTPClient) do(ctx context.Context, op, method, path, idempotencyKey string, body, out any, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return &apperr.GatewayError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
	}

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	var lastErr error
	delay := c.backoff
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = c.once(ctx, op, method, path, idempotencyKey, payload, out)
		if lastErr == nil {
			return nil
		}
		var gwErr *apperr.GatewayError
		if !errors.As(lastErr, &gwErr) || !gwErr.Retryable() || attempt == attempts {
			break
		}
		log.Ctx(ctx).Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("Retrying gateway call")
		select {
		case <-ctx.Done():
			return &apperr.GatewayError{Op: op, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}
	return lastErr
}

func (c *HTTPClient) once(ctx context.Context, op, method, path, idempotencyKey string, payload []byte, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, reader)
	if err != nil {
		return &apperr.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access_token", c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.TrackGatewayRequest(op, 0, time.Since(started))
		return &apperr.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	metrics.TrackGatewayRequest(op, resp.StatusCode, time.Since(started))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &apperr.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperr.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", strings.TrimSpace(string(data)))}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &apperr.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
