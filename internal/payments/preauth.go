package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/store"
)

type PreAuthRequest struct {
	ReservationID int64
	PayerID       int64
	AmountCents   int64
	Card          gateway.CardData
}

// CreatePreAuth opens a hold (caução) on the payer's card. The hold must be
// captured or released by game close plus the capture window.
func (s *Service) CreatePreAuth(ctx context.Context, req PreAuthRequest) (models.PreAuthorization, error) {
	if req.AmountCents <= 0 {
		return models.PreAuthorization{}, apperr.Invalid("amount", "must be positive")
	}
	if req.PayerID <= 0 {
		return models.PreAuthorization{}, apperr.Invalid("payer_id", "is required")
	}
	if req.Card.Token == "" {
		return models.PreAuthorization{}, apperr.Invalid("card.token", "is required")
	}

	now := s.now()
	var hold models.PreAuthorization
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		res, err := tx.Queries.GetReservation(ctx, req.ReservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("reservation")
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.Status == models.ReservationCancelled {
			return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
		}
		start, err := s.gameStart(res)
		if err != nil {
			return fmt.Errorf("reservation %d start: %w", res.ID, err)
		}
		releaseAfter := start.Add(-s.cfg.CloseWindow).Add(s.cfg.CaptureWindow)
		if !now.Before(releaseAfter) {
			return fmt.Errorf("reservation %d can no longer take a hold: %w", res.ID, apperr.ErrGameClosed)
		}

		hold, err = tx.Queries.CreatePreAuth(ctx, store.CreatePreAuthParams{
			ReservationID:   res.ID,
			PayerID:         req.PayerID,
			AuthorizedCents: req.AmountCents,
			ReleaseAfter:    releaseAfter,
			CreatedAt:       now,
		})
		if err != nil {
			return fmt.Errorf("create hold: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.PreAuthorization{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	charge, err := s.gateway.CreatePreAuth(callCtx, gateway.PreAuthRequest{
		IdempotencyKey: fmt.Sprintf("preauth-%d", hold.ID),
		AmountCents:    hold.AuthorizedCents,
		PayerID:        hold.PayerID,
		Card:           req.Card,
		Description:    fmt.Sprintf("Caução reserva #%d", hold.ReservationID),
	})
	if err != nil {
		// The local hold stays open without a gateway id; the release sweep
		// cancels it.
		log.Ctx(ctx).Error().Err(err).Int64("preauth_id", hold.ID).Msg("Gateway pre-authorization failed")
		return models.PreAuthorization{}, err
	}
	if err := s.db.Queries.SetPreAuthExternalID(ctx, hold.ID, charge.ID, s.now()); err != nil {
		return models.PreAuthorization{}, fmt.Errorf("set hold external id: %w", err)
	}
	hold.ExternalID = sql.NullString{String: charge.ID, Valid: true}

	log.Ctx(ctx).Info().
		Int64("preauth_id", hold.ID).
		Int64("reservation_id", hold.ReservationID).
		Int64("authorized_cents", hold.AuthorizedCents).
		Msg("Hold opened")
	return hold, nil
}

// CapturePreAuth charges up to the authorized amount of an open hold and
// records it as a confirmed collateral payment.
func (s *Service) CapturePreAuth(ctx context.Context, id, amountCents int64) (models.Payment, error) {
	hold, err := s.loadHold(ctx, s.db.Queries, id)
	if err != nil {
		return models.Payment{}, err
	}
	if hold.Status != models.PreAuthOpen {
		return models.Payment{}, fmt.Errorf("hold %d is %s: %w", hold.ID, hold.Status, apperr.ErrConflict)
	}
	if amountCents <= 0 || amountCents > hold.AuthorizedCents {
		return models.Payment{}, apperr.Invalid("amount", fmt.Sprintf("must be between 0.01 and the authorized %d cents", hold.AuthorizedCents))
	}
	if !hold.ExternalID.Valid {
		return models.Payment{}, fmt.Errorf("hold %d was never authorized by the gateway: %w", hold.ID, apperr.ErrConflict)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	if _, err := s.gateway.Capture(callCtx, hold.ExternalID.String, amountCents); err != nil {
		return models.Payment{}, err
	}

	now := s.now()
	fx := &effects{}
	var payment models.Payment
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		n, err := q.CapturePreAuth(ctx, hold.ID, amountCents, now)
		if err != nil {
			return fmt.Errorf("capture hold: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("hold %d is no longer open: %w", hold.ID, apperr.ErrConflict)
		}

		participantID, err := payerParticipant(ctx, q, hold)
		if err != nil {
			return err
		}
		payment, err = q.CreatePayment(ctx, store.CreatePaymentParams{
			ReservationID:  nullInt(hold.ReservationID),
			ParticipantID:  nullInt(participantID),
			PayerID:        hold.PayerID,
			AmountCents:    amountCents,
			Method:         models.MethodCollateral,
			ExternalID:     hold.ExternalID,
			IdempotencyKey: fmt.Sprintf("capture-%d", hold.ID),
			CreatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("record collateral payment: %w", err)
		}
		payment, err = s.transition(ctx, q, payment, models.PaymentConfirmed, 0, nil, fx)
		return err
	})
	if err != nil {
		return models.Payment{}, err
	}
	s.afterCommit(ctx, fx)

	log.Ctx(ctx).Info().
		Int64("preauth_id", hold.ID).
		Int64("payment_id", payment.ID).
		Int64("captured_cents", amountCents).
		Msg("Hold captured")
	return payment, nil
}

// payerParticipant finds the payer's participant row, or 0.
func payerParticipant(ctx context.Context, q store.ParticipantRepository, hold models.PreAuthorization) (int64, error) {
	participants, err := q.ListParticipants(ctx, hold.ReservationID)
	if err != nil {
		return 0, fmt.Errorf("list participants: %w", err)
	}
	for _, p := range participants {
		if p.UserID.Valid && p.UserID.Int64 == hold.PayerID {
			return p.ID, nil
		}
	}
	return 0, nil
}

// CancelPreAuth releases an uncaptured hold. Releasing a hold that is no
// longer open returns it unchanged.
func (s *Service) CancelPreAuth(ctx context.Context, id int64) (models.PreAuthorization, error) {
	hold, err := s.loadHold(ctx, s.db.Queries, id)
	if err != nil {
		return models.PreAuthorization{}, err
	}
	if hold.Status != models.PreAuthOpen {
		return hold, nil
	}
	return s.releaseHold(ctx, hold)
}

func (s *Service) releaseHold(ctx context.Context, hold models.PreAuthorization) (models.PreAuthorization, error) {
	if hold.ExternalID.Valid {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
		if err := s.gateway.CancelPreAuth(callCtx, hold.ExternalID.String); err != nil {
			return hold, err
		}
	}

	n, err := s.db.Queries.CancelPreAuth(ctx, hold.ID, s.now())
	if err != nil {
		return hold, fmt.Errorf("release hold: %w", err)
	}
	released, err := s.loadHold(ctx, s.db.Queries, hold.ID)
	if err != nil {
		return hold, err
	}
	if n == 0 {
		return released, nil
	}

	log.Ctx(ctx).Info().Int64("preauth_id", hold.ID).Int64("reservation_id", hold.ReservationID).Msg("Hold released")
	notify.Send(ctx, s.notifier, notify.Event{
		Kind:          notify.HoldReleased,
		ReservationID: hold.ReservationID,
		UserID:        hold.PayerID,
		AmountCents:   hold.AuthorizedCents,
	})
	return released, nil
}

// ReleaseExpiredHolds releases every open hold past its release deadline and
// returns how many were released. One failed release does not stop the rest.
func (s *Service) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	holds, err := s.db.Queries.ListExpiredPreAuths(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired holds: %w", err)
	}

	var released int64
	var errs []error
	for _, h := range holds {
		out, err := s.releaseHold(ctx, h)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("preauth_id", h.ID).Msg("Failed to release expired hold")
			errs = append(errs, err)
			continue
		}
		if out.Status == models.PreAuthCancelled {
			released++
		}
	}
	metrics.TrackSweep("hold_release", released)
	return released, errors.Join(errs...)
}

func (s *Service) loadHold(ctx context.Context, q store.PreAuthRepository, id int64) (models.PreAuthorization, error) {
	hold, err := q.GetPreAuth(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PreAuthorization{}, apperr.NotFound("pre-authorization")
		}
		return models.PreAuthorization{}, fmt.Errorf("load hold: %w", err)
	}
	return hold, nil
}
