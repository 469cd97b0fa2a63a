package email

import (
	"fmt"
	"strings"
)

// BookingDetails describes the reservation an email is about.
type BookingDetails struct {
	ReservationID int64
	CourtName     string
	Date          string
	TimeRange     string
	AmountCents   int64
	Reason        string
	GuestName     string
}

// FormatBRL renders cents as a Brazilian real amount, e.g. R$ 1.234,50.
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := fmt.Sprintf("%d", cents/100)
	var groups []string
	for len(whole) > 3 {
		groups = append([]string{whole[len(whole)-3:]}, groups...)
		whole = whole[:len(whole)-3]
	}
	groups = append([]string{whole}, groups...)
	return fmt.Sprintf("%sR$ %s,%02d", sign, strings.Join(groups, "."), cents%100)
}

func BuildBookingCreated(d BookingDetails) (subject, body string) {
	return build("Booking created", "Your booking was created and is waiting for payment.", d)
}

func BuildBookingConfirmed(d BookingDetails) (subject, body string) {
	return build("Booking confirmed", "Your booking is confirmed.", d)
}

func BuildBookingCancelled(d BookingDetails) (subject, body string) {
	return build("Booking cancelled", "Your booking was cancelled.", d)
}

func BuildInvitationAccepted(d BookingDetails) (subject, body string) {
	return build("Invitation accepted", "A guest accepted your invitation.", d)
}

func BuildPaymentConfirmed(d BookingDetails) (subject, body string) {
	return build("Payment confirmed", "A payment for your booking was confirmed.", d)
}

func BuildPaymentRefunded(d BookingDetails) (subject, body string) {
	return build("Payment refunded", "A payment for your booking was refunded.", d)
}

func build(title, intro string, d BookingDetails) (string, string) {
	court := strings.TrimSpace(d.CourtName)
	if court == "" {
		court = "TBD"
	}
	subject := fmt.Sprintf("%s #%d", title, d.ReservationID)

	lines := []string{
		intro,
		"",
		fmt.Sprintf("Reservation: #%d", d.ReservationID),
		fmt.Sprintf("Court: %s", court),
	}
	if date := strings.TrimSpace(d.Date); date != "" {
		lines = append(lines, fmt.Sprintf("Date: %s", date))
	}
	if tr := strings.TrimSpace(d.TimeRange); tr != "" {
		lines = append(lines, fmt.Sprintf("Time: %s", tr))
	}
	if guest := strings.TrimSpace(d.GuestName); guest != "" {
		lines = append(lines, fmt.Sprintf("Guest: %s", guest))
	}
	if d.AmountCents != 0 {
		lines = append(lines, fmt.Sprintf("Amount: %s", FormatBRL(d.AmountCents)))
	}
	if reason := strings.TrimSpace(d.Reason); reason != "" {
		lines = append(lines, fmt.Sprintf("Reason: %s", reason))
	}
	return subject, strings.Join(lines, "\n")
}
