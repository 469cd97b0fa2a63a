package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/api/apiutil"
	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/payments"
)

const (
	// WebhookTokenHeader carries the shared secret configured at the gateway.
	WebhookTokenHeader = "Asaas-Access-Token"
	DeliveryIDHeader   = "X-Delivery-ID"
	maxWebhookBytes    = 256 << 10
)

type createPaymentRequest struct {
	ReservationID  int64                `json:"reservation_id"`
	ParticipantID  int64                `json:"participant_id,omitempty"`
	PayerID        int64                `json:"payer_id,omitempty"`
	AmountCents    int64                `json:"amount_cents"`
	Method         models.PaymentMethod `json:"method"`
	IdempotencyKey string               `json:"idempotency_key,omitempty"`
	DueDate        string               `json:"due_date,omitempty"`
	Description    string               `json:"description,omitempty"`
}

// POST /api/v1/payments
//
// The Idempotency-Key header wins over the body field.
func (h *Handler) HandleCreatePayment(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req createPaymentRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if req.PayerID == 0 {
		req.PayerID = user.ID
	}
	if !authz.CanPayFor(user, req.PayerID) {
		apiutil.WriteError(w, r, apperr.ErrForbidden)
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	payment, err := h.Payments.CreateCharge(r.Context(), payments.ChargeRequest{
		ReservationID:  req.ReservationID,
		ParticipantID:  req.ParticipantID,
		PayerID:        req.PayerID,
		AmountCents:    req.AmountCents,
		Method:         req.Method,
		IdempotencyKey: req.IdempotencyKey,
		DueDate:        req.DueDate,
		Description:    req.Description,
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, payment)
}

// POST /api/v1/payments/{id}/sync
func (h *Handler) HandleSyncPayment(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireManager(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	payment, err := h.Payments.SyncPayment(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, payment)
}

type cardRequest struct {
	Token      string `json:"token"`
	HolderName string `json:"holder_name"`
}

type createPreAuthRequest struct {
	ReservationID int64       `json:"reservation_id"`
	AmountCents   int64       `json:"amount_cents"`
	Card          cardRequest `json:"card"`
}

// POST /api/v1/preauths
func (h *Handler) HandleCreatePreAuth(w http.ResponseWriter, r *http.Request) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req createPreAuthRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	hold, err := h.Payments.CreatePreAuth(r.Context(), payments.PreAuthRequest{
		ReservationID: req.ReservationID,
		PayerID:       user.ID,
		AmountCents:   req.AmountCents,
		Card:          gateway.CardData{Token: req.Card.Token, HolderName: req.Card.HolderName},
	})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusCreated, hold)
}

type captureRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// POST /api/v1/preauths/{id}/capture
func (h *Handler) HandleCapturePreAuth(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireManager(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req captureRequest
	if err := apiutil.DecodeJSON(w, r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	payment, err := h.Payments.CapturePreAuth(r.Context(), id, req.AmountCents)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, payment)
}

// POST /api/v1/preauths/{id}/cancel
func (h *Handler) HandleCancelPreAuth(w http.ResponseWriter, r *http.Request) {
	if _, err := authz.RequireManager(r.Context()); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	id, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	hold, err := h.Payments.CancelPreAuth(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, hold)
}

// POST /api/v1/webhooks/gateway
//
// Every parsed delivery is acknowledged with 200 whatever its outcome, so
// business no-ops never trigger redelivery. Only a delivery that could not be
// recorded gets a 5xx, and the gateway's redelivery is then safe.
func (h *Handler) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if h.WebhookToken != "" {
		got := r.Header.Get(WebhookTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookToken)) != 1 {
			logger.Warn().Msg("Webhook rejected: bad access token")
			apiutil.WriteMessage(w, http.StatusUnauthorized, "invalid webhook token")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		apiutil.WriteError(w, r, apperr.Invalid("body", err.Error()))
		return
	}
	delivery, err := payments.ParseDelivery(r.Header.Get(DeliveryIDHeader), body)
	if err != nil {
		logger.Warn().Err(err).Msg("Unparsable webhook delivery")
		apiutil.WriteError(w, r, apperr.Invalid("body", err.Error()))
		return
	}

	result, err := h.Payments.HandleWebhook(r.Context(), delivery)
	if err != nil {
		apiutil.WriteMessage(w, http.StatusServiceUnavailable, "delivery not recorded, retry later")
		return
	}
	_ = apiutil.WriteJSON(w, http.StatusOK, result)
}
