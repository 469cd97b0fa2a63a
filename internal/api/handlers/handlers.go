// Package handlers exposes the booking core over JSON HTTP.
package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/api/authz"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/booking"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/invitations"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/payments"
	"github.com/codr1/quadra/internal/ratelimit"
)

type Deps struct {
	DB          *db.DB
	Resolver    *availability.Resolver
	Bookings    *booking.Service
	Invitations *invitations.Service
	Ledger      *credits.Ledger
	Payments    *payments.Service
	// AcceptLimiter throttles the public invitation acceptance endpoint.
	AcceptLimiter *ratelimit.Limiter
	// WebhookToken must match the gateway's access token header. Empty
	// disables the check.
	WebhookToken  string
	EnableMetrics bool
}

type Handler struct {
	Deps
}

func New(deps Deps) *Handler {
	if deps.WebhookToken == "" {
		log.Warn().Msg("Gateway webhook token not configured; webhook deliveries are not authenticated")
	}
	return &Handler{Deps: deps}
}

// Register adds every route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if h.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	mux.HandleFunc("GET /api/v1/courts/{id}/availability", h.HandleAvailability)

	mux.HandleFunc("POST /api/v1/bookings", h.HandleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", h.HandleGetBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}", h.HandleEditBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", h.HandleConfirmBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/split", h.HandleConfigureSplit)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", h.HandleCancelBooking)

	mux.HandleFunc("POST /api/v1/bookings/{id}/invitations", h.HandleCreateInvitation)
	mux.HandleFunc("POST /api/v1/invitations/{id}/close", h.HandleCloseInvitation)
	accept := http.Handler(http.HandlerFunc(h.HandleAcceptInvitation))
	if h.AcceptLimiter != nil {
		accept = h.AcceptLimiter.Middleware("invitation_accept")(accept)
	}
	mux.Handle("POST /api/v1/invitations/accept", accept)

	mux.HandleFunc("GET /api/v1/credits/balance", h.HandleBalance)
	mux.HandleFunc("POST /api/v1/referrals", h.HandleReferral)

	mux.HandleFunc("POST /api/v1/payments", h.HandleCreatePayment)
	mux.HandleFunc("POST /api/v1/payments/{id}/sync", h.HandleSyncPayment)
	mux.HandleFunc("POST /api/v1/preauths", h.HandleCreatePreAuth)
	mux.HandleFunc("POST /api/v1/preauths/{id}/capture", h.HandleCapturePreAuth)
	mux.HandleFunc("POST /api/v1/preauths/{id}/cancel", h.HandleCancelPreAuth)
	mux.HandleFunc("POST /api/v1/webhooks/gateway", h.HandleGatewayWebhook)
}

func actorFrom(user *authz.AuthUser) booking.Actor {
	return booking.Actor{UserID: user.ID, Manager: user.Manager}
}
