// Package gateway talks to the external payment gateway.
package gateway

import (
	"context"
	"strings"

	"github.com/codr1/quadra/internal/models"
)

// Client is the gateway surface the reconciliation core depends on.
type Client interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	CreatePreAuth(ctx context.Context, req PreAuthRequest) (Charge, error)
	Capture(ctx context.Context, externalID string, amountCents int64) (Charge, error)
	CancelPreAuth(ctx context.Context, externalID string) error
	CancelCharge(ctx context.Context, externalID string) error
	Refund(ctx context.Context, externalID string, amountCents int64, idempotencyKey string) (Charge, error)
	GetPayment(ctx context.Context, externalID string) (Charge, error)
}

type ChargeRequest struct {
	IdempotencyKey string
	Method         models.PaymentMethod
	AmountCents    int64
	PayerID        int64
	DueDate        string
	Description    string
}

// CardData carries a tokenized card; raw card numbers never reach this service.
type CardData struct {
	Token      string
	HolderName string
}

type PreAuthRequest struct {
	IdempotencyKey string
	AmountCents    int64
	PayerID        int64
	Card           CardData
	Description    string
}

// Charge is the gateway's view of a payment.
type Charge struct {
	ID          string
	Status      string
	AmountCents int64
}

// MapStatus converts a gateway status to the local payment status. The second
// result is false for statuses that do not settle a payment either way.
func MapStatus(status string) (models.PaymentStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "PENDING", "AWAITING_RISK_ANALYSIS", "AUTHORIZED":
		return models.PaymentPending, true
	case "CONFIRMED", "RECEIVED", "RECEIVED_IN_CASH":
		return models.PaymentConfirmed, true
	case "OVERDUE", "REFUSED", "DELETED", "CANCELLED", "REPROVED_BY_RISK_ANALYSIS":
		return models.PaymentFailed, true
	case "REFUNDED", "REFUND_IN_PROGRESS", "CHARGEBACK_REQUESTED":
		return models.PaymentRefunded, true
	}
	return "", false
}
