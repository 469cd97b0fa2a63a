package email

import (
	"context"
	"strings"
	"testing"
)

func TestFormatBRL(t *testing.T) {
	tests := map[int64]string{
		0:       "R$ 0,00",
		5:       "R$ 0,05",
		10000:   "R$ 100,00",
		123450:  "R$ 1.234,50",
		-2000:   "-R$ 20,00",
		1000000: "R$ 10.000,00",
	}
	for cents, want := range tests {
		if got := FormatBRL(cents); got != want {
			t.Fatalf("FormatBRL(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestBuildBookingCancelled(t *testing.T) {
	subject, body := BuildBookingCancelled(BookingDetails{
		ReservationID: 42,
		CourtName:     "Quadra 1",
		Date:          "2030-06-01",
		TimeRange:     "18:00-19:00",
		AmountCents:   10000,
		Reason:        "Chuva forte no local",
	})
	if subject != "Booking cancelled #42" {
		t.Fatalf("unexpected subject %q", subject)
	}
	for _, want := range []string{"Court: Quadra 1", "Time: 18:00-19:00", "Amount: R$ 100,00", "Reason: Chuva forte no local"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected body to contain %q, got:\n%s", want, body)
		}
	}
	if strings.Contains(body, "Guest:") {
		t.Fatalf("expected no guest line, got:\n%s", body)
	}
}

func TestSESClientValidation(t *testing.T) {
	if _, err := NewSESClient(context.Background(), "", "noreply@quadra.test", "", ""); err == nil {
		t.Fatal("expected error for missing region")
	}
	if _, err := NewSESClient(context.Background(), "sa-east-1", "", "", ""); err == nil {
		t.Fatal("expected error for missing sender")
	}

	var nilClient *SESClient
	if err := nilClient.Send(context.Background(), Message{To: "a@b.c"}); err == nil {
		t.Fatal("expected error for nil client")
	}

	c := &SESClient{sender: "noreply@quadra.test"}
	if _, err := c.buildInput(Message{Subject: "s", Body: "b"}); err == nil {
		t.Fatal("expected error for missing recipient")
	}
	input, err := c.buildInput(Message{To: " owner@quadra.test ", Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("buildInput: %v", err)
	}
	if got := *input.FromEmailAddress; got != "noreply@quadra.test" {
		t.Fatalf("expected default sender, got %q", got)
	}
	if got := input.Destination.ToAddresses[0]; got != "owner@quadra.test" {
		t.Fatalf("expected trimmed recipient, got %q", got)
	}
	input, err = c.buildInput(Message{From: "ops@quadra.test", To: "owner@quadra.test"})
	if err != nil {
		t.Fatalf("buildInput: %v", err)
	}
	if got := *input.FromEmailAddress; got != "ops@quadra.test" {
		t.Fatalf("expected sender override, got %q", got)
	}
}
