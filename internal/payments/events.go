package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/models"
)

// Event is a gateway webhook parsed into one of the variants below.
type Event interface {
	Kind() string
	ExternalID() string
}

type PaymentConfirmed struct {
	GatewayID   string
	AmountCents int64
}

type PaymentFailed struct {
	GatewayID string
	Reason    string
}

type PaymentRefunded struct {
	GatewayID string
	// AmountCents is 0 when the gateway did not say how much was refunded.
	AmountCents int64
}

// Unknown is any event type this service does not act on.
type Unknown struct {
	Type      string
	GatewayID string
}

func (e PaymentConfirmed) Kind() string       { return "confirmed" }
func (e PaymentConfirmed) ExternalID() string { return e.GatewayID }
func (e PaymentFailed) Kind() string          { return "failed" }
func (e PaymentFailed) ExternalID() string    { return e.GatewayID }
func (e PaymentRefunded) Kind() string        { return "refunded" }
func (e PaymentRefunded) ExternalID() string  { return e.GatewayID }
func (e Unknown) Kind() string                { return "unknown" }
func (e Unknown) ExternalID() string          { return e.GatewayID }

// Delivery is one webhook call. ID is unique per delivery and is what makes
// redelivery safe.
type Delivery struct {
	ID    string
	Type  string
	Event Event
	Raw   []byte
}

type webhookBody struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment *struct {
		ID            string          `json:"id"`
		Status        string          `json:"status"`
		Value         decimal.Decimal `json:"value"`
		RefundedValue decimal.Decimal `json:"refundedValue"`
		Description   string          `json:"description"`
	} `json:"payment"`
}

// ParseDelivery decodes a webhook body. deliveryID comes from the transport
// header and wins over the body id when both are present.
func ParseDelivery(deliveryID string, body []byte) (Delivery, error) {
	var wb webhookBody
	if err := json.Unmarshal(body, &wb); err != nil {
		return Delivery{}, fmt.Errorf("decode webhook: %w", err)
	}
	id := strings.TrimSpace(deliveryID)
	if id == "" {
		id = strings.TrimSpace(wb.ID)
	}
	if id == "" {
		return Delivery{}, fmt.Errorf("webhook delivery id is missing")
	}
	eventType := strings.ToUpper(strings.TrimSpace(wb.Event))
	if eventType == "" {
		return Delivery{}, fmt.Errorf("webhook event type is missing")
	}

	d := Delivery{ID: id, Type: eventType, Raw: body}
	if wb.Payment == nil || wb.Payment.ID == "" {
		d.Event = Unknown{Type: eventType}
		return d, nil
	}

	p := wb.Payment
	switch eventType {
	case "PAYMENT_CONFIRMED", "PAYMENT_RECEIVED", "PAYMENT_RECEIVED_IN_CASH", "PAYMENT_AUTHORIZED_CAPTURED":
		d.Event = PaymentConfirmed{GatewayID: p.ID, AmountCents: cents(p.Value)}
	case "PAYMENT_OVERDUE", "PAYMENT_DELETED", "PAYMENT_REPROVED_BY_RISK_ANALYSIS", "PAYMENT_CREDIT_CARD_CAPTURE_REFUSED":
		d.Event = PaymentFailed{GatewayID: p.ID, Reason: strings.ToLower(strings.TrimPrefix(eventType, "PAYMENT_"))}
	case "PAYMENT_REFUNDED", "PAYMENT_PARTIALLY_REFUNDED":
		d.Event = PaymentRefunded{GatewayID: p.ID, AmountCents: cents(p.RefundedValue)}
	default:
		d.Event = Unknown{Type: eventType, GatewayID: p.ID}
	}
	return d, nil
}

func cents(v decimal.Decimal) int64 {
	return v.Shift(2).Round(0).IntPart()
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to models.PaymentStatus) bool {
	switch from {
	case models.PaymentPending:
		return to == models.PaymentConfirmed || to == models.PaymentFailed
	case models.PaymentConfirmed:
		return to == models.PaymentRefunded
	}
	return false
}
