package payments

import (
	"testing"

	"github.com/codr1/quadra/internal/models"
)

func TestCanTransition(t *testing.T) {
	legal := map[[2]models.PaymentStatus]bool{
		{models.PaymentPending, models.PaymentConfirmed}:  true,
		{models.PaymentPending, models.PaymentFailed}:     true,
		{models.PaymentConfirmed, models.PaymentRefunded}: true,
	}
	all := []models.PaymentStatus{models.PaymentPending, models.PaymentConfirmed, models.PaymentFailed, models.PaymentRefunded}
	for _, from := range all {
		for _, to := range all {
			want := legal[[2]models.PaymentStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestParseDelivery(t *testing.T) {
	body := []byte(`{"id":"evt_1","event":"PAYMENT_RECEIVED","payment":{"id":"pay_9","status":"RECEIVED","value":100.5}}`)
	d, err := ParseDelivery("", body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.ID != "evt_1" {
		t.Fatalf("delivery id: %s", d.ID)
	}
	ev, ok := d.Event.(PaymentConfirmed)
	if !ok {
		t.Fatalf("expected PaymentConfirmed, got %T", d.Event)
	}
	if ev.GatewayID != "pay_9" || ev.AmountCents != 10050 {
		t.Fatalf("unexpected event %+v", ev)
	}

	d, err = ParseDelivery("hdr-7", []byte(`{"id":"evt_2","event":"payment_overdue","payment":{"id":"pay_9"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.ID != "hdr-7" {
		t.Fatalf("header id should win, got %s", d.ID)
	}
	if _, ok := d.Event.(PaymentFailed); !ok {
		t.Fatalf("expected PaymentFailed, got %T", d.Event)
	}

	d, err = ParseDelivery("", []byte(`{"id":"evt_3","event":"PAYMENT_REFUNDED","payment":{"id":"pay_9","refundedValue":20}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev, ok := d.Event.(PaymentRefunded); !ok || ev.AmountCents != 2000 {
		t.Fatalf("expected 20.00 refund, got %#v", d.Event)
	}

	d, err = ParseDelivery("", []byte(`{"id":"evt_4","event":"PAYMENT_CREATED","payment":{"id":"pay_9"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := d.Event.(Unknown); !ok {
		t.Fatalf("expected Unknown, got %T", d.Event)
	}

	for _, bad := range []string{`not json`, `{"event":"PAYMENT_RECEIVED"}`, `{"id":"evt_5"}`} {
		if _, err := ParseDelivery("", []byte(bad)); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}
