package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quadra_booking_operations_total",
			Help: "Booking operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	invitationAcceptances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quadra_invitation_acceptances_total",
			Help: "Invitation acceptance attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quadra_webhook_events_total",
			Help: "Gateway webhook deliveries by event kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	gatewayRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quadra_gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	sweepItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quadra_sweep_items_total",
			Help: "Records transitioned by background sweeps",
		},
		[]string{"sweep"},
	)

	httpRequests = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quadra_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

// Outcome maps an error to the "ok" or "error" label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

func TrackBooking(operation string, err error) {
	bookingOperations.WithLabelValues(operation, Outcome(err)).Inc()
}

func TrackInvitationAcceptance(outcome string) {
	invitationAcceptances.WithLabelValues(outcome).Inc()
}

func TrackWebhook(kind, outcome string) {
	webhookEvents.WithLabelValues(kind, outcome).Inc()
}

func TrackGatewayRequest(operation string, status int, d time.Duration) {
	gatewayRequests.WithLabelValues(operation, strconv.Itoa(status)).Observe(d.Seconds())
}

func TrackSweep(sweep string, n int64) {
	if n > 0 {
		sweepItems.WithLabelValues(sweep).Add(float64(n))
	}
}

func ObserveHTTP(route string, status int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
