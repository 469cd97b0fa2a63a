// Package notify delivers post-commit notifications. Delivery failures are
// logged and never reach the caller's transaction.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/email"
)

type Kind string

const (
	BookingCreated     Kind = "booking_created"
	BookingConfirmed   Kind = "booking_confirmed"
	BookingCancelled   Kind = "booking_cancelled"
	InvitationAccepted Kind = "invitation_accepted"
	PaymentConfirmed   Kind = "payment_confirmed"
	PaymentRefunded    Kind = "payment_refunded"
	HoldReleased       Kind = "hold_released"
)

type Event struct {
	Kind          Kind
	ReservationID int64
	UserID        int64
	AmountCents   int64
	Date          string
	TimeRange     string
	Reason        string
	GuestName     string
}

type Dispatcher interface {
	Notify(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// LogDispatcher writes events to the structured log.
type LogDispatcher struct {
	Logger zerolog.Logger
}

func (d LogDispatcher) Notify(ctx context.Context, ev Event) error {
	d.Logger.Info().
		Str("kind", string(ev.Kind)).
		Int64("reservation_id", ev.ReservationID).
		Int64("user_id", ev.UserID).
		Int64("amount_cents", ev.AmountCents).
		Msg("Notification")
	return nil
}

// EmailDispatcher mails every event to a fixed operations recipient.
type EmailDispatcher struct {
	Sender    email.Sender
	Recipient string
}

func (d EmailDispatcher) Notify(ctx context.Context, ev Event) error {
	details := email.BookingDetails{
		ReservationID: ev.ReservationID,
		Date:          ev.Date,
		TimeRange:     ev.TimeRange,
		AmountCents:   ev.AmountCents,
		Reason:        ev.Reason,
		GuestName:     ev.GuestName,
	}

	var subject, body string
	switch ev.Kind {
	case BookingCreated:
		subject, body = email.BuildBookingCreated(details)
	case BookingConfirmed:
		subject, body = email.BuildBookingConfirmed(details)
	case BookingCancelled:
		subject, body = email.BuildBookingCancelled(details)
	case InvitationAccepted:
		subject, body = email.BuildInvitationAccepted(details)
	case PaymentConfirmed:
		subject, body = email.BuildPaymentConfirmed(details)
	case PaymentRefunded, HoldReleased:
		subject, body = email.BuildPaymentRefunded(details)
	default:
		return fmt.Errorf("unsupported notification kind %q", ev.Kind)
	}

	return d.Sender.Send(ctx, email.Message{To: d.Recipient, Subject: subject, Body: body})
}

const defaultTimeout = 5 * time.Second

// Async runs the wrapped dispatcher in its own goroutine with a detached,
// bounded context. Notify always returns nil.
type Async struct {
	next    Dispatcher
	timeout time.Duration
}

func NewAsync(next Dispatcher, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Async{next: next, timeout: timeout}
}

func (a *Async) Notify(ctx context.Context, ev Event) error {
	// Detach cancellation so handler-scoped contexts don't abort async sends.
	parent := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(parent, a.timeout)
		defer cancel()
		defer func() {
			if p := recover(); p != nil {
				log.Ctx(sendCtx).Error().Interface("panic", p).Str("kind", string(ev.Kind)).Msg("Notification dispatcher panicked")
			}
		}()
		if err := a.next.Notify(sendCtx, ev); err != nil {
			log.Ctx(sendCtx).Error().Err(err).
				Str("kind", string(ev.Kind)).
				Int64("reservation_id", ev.ReservationID).
				Msg("Failed to deliver notification")
		}
	}()
	return nil
}

// Send dispatches ev and logs a synchronous failure. Callers use it after
// commit so a failed notification never changes their result.
func Send(ctx context.Context, d Dispatcher, ev Event) {
	if d == nil {
		return
	}
	if err := d.Notify(ctx, ev); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("kind", string(ev.Kind)).Msg("Notification failed")
	}
}
