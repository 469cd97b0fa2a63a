package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/models"
)

// Webhook outcomes recorded on the delivery and reported to the caller.
const (
	OutcomeApplied        = "applied"
	OutcomeDuplicate      = "duplicate"
	OutcomeNoOp           = "noop"
	OutcomeIgnored        = "ignored"
	OutcomeUnknownPayment = "unknown_payment"
)

type WebhookResult struct {
	Outcome   string `json:"outcome"`
	PaymentID int64  `json:"payment_id,omitempty"`
}

// HandleWebhook applies one delivery. Seeing the same delivery id again is
// acknowledged without reprocessing, and an event that would break the state
// machine is a no-op, so the gateway may redeliver freely.
func (s *Service) HandleWebhook(ctx context.Context, d Delivery) (WebhookResult, error) {
	logger := log.Ctx(ctx).With().
		Str("delivery_id", d.ID).
		Str("event", d.Type).
		Str("external_id", d.Event.ExternalID()).
		Logger()

	fx := &effects{}
	var result WebhookResult
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		inserted, err := q.InsertWebhookDelivery(ctx, models.WebhookDelivery{
			DeliveryID: d.ID,
			EventType:  d.Type,
			ExternalID: d.Event.ExternalID(),
			ReceivedAt: s.now(),
		})
		if err != nil {
			return fmt.Errorf("record delivery: %w", err)
		}
		if !inserted {
			result.Outcome = OutcomeDuplicate
			return nil
		}

		result.Outcome, result.PaymentID, err = s.applyEvent(ctx, tx, d, fx)
		if err != nil {
			return err
		}
		return q.SetWebhookOutcome(ctx, d.ID, result.Outcome)
	})
	metrics.TrackWebhook(d.Event.Kind(), result.Outcome)
	if err != nil {
		logger.Error().Err(err).Msg("Webhook processing failed")
		return WebhookResult{}, err
	}
	s.afterCommit(ctx, fx)

	logger.Info().Str("outcome", result.Outcome).Int64("payment_id", result.PaymentID).Msg("Webhook handled")
	return result, nil
}

func (s *Service) applyEvent(ctx context.Context, tx *db.DB, d Delivery, fx *effects) (string, int64, error) {
	var to models.PaymentStatus
	var amount int64
	switch ev := d.Event.(type) {
	case PaymentConfirmed:
		to = models.PaymentConfirmed
	case PaymentFailed:
		to = models.PaymentFailed
	case PaymentRefunded:
		to = models.PaymentRefunded
		amount = ev.AmountCents
	default:
		return OutcomeIgnored, 0, nil
	}

	payment, err := tx.Queries.GetPaymentByExternalID(ctx, d.Event.ExternalID())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OutcomeUnknownPayment, 0, nil
		}
		return "", 0, fmt.Errorf("load payment: %w", err)
	}

	_, err = s.transition(ctx, tx.Queries, payment, to, amount, d.Raw, fx)
	if errors.Is(err, apperr.ErrIdempotentNoOp) {
		log.Ctx(ctx).Info().
			Int64("payment_id", payment.ID).
			Str("status", string(payment.Status)).
			Str("target", string(to)).
			Msg("Ignoring out-of-order payment event")
		return OutcomeNoOp, payment.ID, nil
	}
	if err != nil {
		return "", 0, err
	}
	return OutcomeApplied, payment.ID, nil
}
