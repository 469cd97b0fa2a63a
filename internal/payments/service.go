// internal/payments/service.go
package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/store"
)

// AutoConfirm decides when a confirmed payment confirms its reservation.
type AutoConfirm string

const (
	ConfirmOnFirstPayment AutoConfirm = "first_payment"
	ConfirmOnFullPayment  AutoConfirm = "full_payment"
)

type Config struct {
	AutoConfirm    AutoConfirm
	Location       *time.Location
	CloseWindow    time.Duration
	CaptureWindow  time.Duration
	GatewayTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		AutoConfirm:    ConfirmOnFirstPayment,
		Location:       time.UTC,
		CloseWindow:    2 * time.Hour,
		CaptureWindow:  4 * time.Hour,
		GatewayTimeout: 10 * time.Second,
	}
}

type Service struct {
	db       *db.DB
	gateway  gateway.Client
	ledger   *credits.Ledger
	notifier notify.Dispatcher
	cfg      Config
	now      func() time.Time
}

func NewService(database *db.DB, gw gateway.Client, ledger *credits.Ledger, notifier notify.Dispatcher, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.AutoConfirm == "" {
		cfg.AutoConfirm = ConfirmOnFirstPayment
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{db: database, gateway: gw, ledger: ledger, notifier: notifier, cfg: cfg, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// effects collects what a committed transaction should announce, and the
// orphaned payments it owes back.
type effects struct {
	events  []notify.Event
	orphans []models.Payment
}

func (e *effects) add(ev notify.Event) {
	e.events = append(e.events, ev)
}

// afterCommit sends the collected events and refunds orphaned payments in
// full. A failed refund leaves the payment confirmed and orphaned, which
// ReservationCancelled picks up again.
func (s *Service) afterCommit(ctx context.Context, e *effects) {
	for _, ev := range e.events {
		notify.Send(ctx, s.notifier, ev)
	}
	for _, p := range e.orphans {
		if err := s.refundPayment(ctx, p, p.AmountCents-p.RefundedCents); err != nil {
			log.Ctx(ctx).Error().Err(err).Int64("payment_id", p.ID).Msg("Refund of orphaned payment failed")
		}
	}
}

// transition applies a legal status change with compare-and-set and cascades
// it to the participant and the reservation. An illegal or lost transition
// returns ErrIdempotentNoOp.
func (s *Service) transition(ctx context.Context, q store.Querier, p models.Payment, to models.PaymentStatus, amount int64, metadata []byte, fx *effects) (models.Payment, error) {
	if !CanTransition(p.Status, to) {
		return p, fmt.Errorf("payment %d %s -> %s: %w", p.ID, p.Status, to, apperr.ErrIdempotentNoOp)
	}
	now := s.now()

	if to == models.PaymentRefunded {
		if amount <= 0 || amount > p.AmountCents-p.RefundedCents {
			amount = p.AmountCents - p.RefundedCents
		}
		n, err := q.RecordPaymentRefund(ctx, p.ID, amount, now)
		if err != nil {
			return p, fmt.Errorf("record refund: %w", err)
		}
		if n == 0 {
			return p, fmt.Errorf("payment %d changed concurrently: %w", p.ID, apperr.ErrIdempotentNoOp)
		}
		if err := s.cascadeRefund(ctx, q, p, amount, now); err != nil {
			return p, err
		}
		fx.add(notify.Event{Kind: notify.PaymentRefunded, ReservationID: p.ReservationID.Int64, UserID: p.PayerID, AmountCents: amount})
		return q.GetPayment(ctx, p.ID)
	}

	meta := sql.NullString{}
	if len(metadata) > 0 {
		meta = sql.NullString{String: string(metadata), Valid: true}
	}
	n, err := q.TransitionPayment(ctx, store.TransitionPaymentParams{ID: p.ID, From: p.Status, To: to, Metadata: meta, UpdatedAt: now})
	if err != nil {
		return p, fmt.Errorf("transition payment: %w", err)
	}
	if n == 0 {
		return p, fmt.Errorf("payment %d changed concurrently: %w", p.ID, apperr.ErrIdempotentNoOp)
	}
	if to == models.PaymentConfirmed {
		if err := s.cascadeConfirm(ctx, q, p, now, fx); err != nil {
			return p, err
		}
	}
	return q.GetPayment(ctx, p.ID)
}

// cascadeConfirm counts a confirmed payment towards its participant and
// reservation. A payment confirming after the reservation was cancelled is
// marked orphaned instead and queued for a full refund.
func (s *Service) cascadeConfirm(ctx context.Context, q store.Querier, p models.Payment, now time.Time, fx *effects) error {
	var res models.Reservation
	if p.ReservationID.Valid {
		var err error
		res, err = q.GetReservation(ctx, p.ReservationID.Int64)
		if err != nil {
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.Status == models.ReservationCancelled {
			if err := q.MarkPaymentOrphaned(ctx, p.ID, now); err != nil {
				return fmt.Errorf("mark orphaned: %w", err)
			}
			p.Status = models.PaymentConfirmed
			p.Orphaned = true
			fx.orphans = append(fx.orphans, p)
			log.Ctx(ctx).Warn().
				Int64("payment_id", p.ID).
				Int64("reservation_id", res.ID).
				Msg("Payment confirmed after cancellation; refunding")
			return nil
		}
	}

	if p.ParticipantID.Valid {
		if _, err := q.ApplyParticipantPayment(ctx, p.ParticipantID.Int64, p.AmountCents); err != nil {
			return fmt.Errorf("apply participant payment: %w", err)
		}
	}
	fx.add(notify.Event{Kind: notify.PaymentConfirmed, ReservationID: p.ReservationID.Int64, UserID: p.PayerID, AmountCents: p.AmountCents})
	if !p.ReservationID.Valid {
		return nil
	}

	if err := q.AddReservationPaid(ctx, res.ID, p.AmountCents, now); err != nil {
		return fmt.Errorf("update paid total: %w", err)
	}
	res.PaidCents += p.AmountCents
	if res.Status != models.ReservationPending {
		return nil
	}
	if s.cfg.AutoConfirm == ConfirmOnFullPayment && res.PaidCents < res.TotalCents {
		return nil
	}
	n, err := q.TransitionReservation(ctx, res.ID, models.ReservationPending, models.ReservationConfirmed, now)
	if err != nil {
		return fmt.Errorf("auto-confirm reservation: %w", err)
	}
	if n > 0 {
		fx.add(notify.Event{
			Kind:          notify.BookingConfirmed,
			ReservationID: res.ID,
			UserID:        res.OrganizerID,
			AmountCents:   res.PaidCents,
			Date:          res.Date,
			TimeRange:     res.StartTime + "-" + res.EndTime,
		})
	}
	return nil
}

func (s *Service) cascadeRefund(ctx context.Context, q store.Querier, p models.Payment, amount int64, now time.Time) error {
	if p.Orphaned {
		return nil
	}
	if p.ParticipantID.Valid {
		if _, err := q.RefundParticipantPayment(ctx, p.ParticipantID.Int64, amount); err != nil {
			return fmt.Errorf("refund participant: %w", err)
		}
	}
	if p.ReservationID.Valid {
		if err := q.AddReservationPaid(ctx, p.ReservationID.Int64, -amount, now); err != nil {
			return fmt.Errorf("update paid total: %w", err)
		}
	}
	return nil
}

type ChargeRequest struct {
	ReservationID int64
	ParticipantID int64
	PayerID       int64
	AmountCents   int64
	Method        models.PaymentMethod
	// IdempotencyKey makes retries return the same payment. Generated when empty.
	IdempotencyKey string
	DueDate        string
	Description    string
}

// CreateCharge records a pending payment and asks the gateway to collect it.
// A gateway failure keeps the payment pending; calling again with the same
// key retries with the same gateway idempotency key.
func (s *Service) CreateCharge(ctx context.Context, req ChargeRequest) (models.Payment, error) {
	if !req.Method.Valid() {
		return models.Payment{}, apperr.Invalid("method", "must be pix, card, debit or balance")
	}
	if req.Method == models.MethodCollateral {
		return models.Payment{}, apperr.Invalid("method", "collateral is charged through a pre-authorization")
	}
	if req.AmountCents <= 0 {
		return models.Payment{}, apperr.Invalid("amount", "must be positive")
	}
	if req.PayerID <= 0 {
		return models.Payment{}, apperr.Invalid("payer_id", "is required")
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	}

	fx := &effects{}
	var payment models.Payment
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		existing, err := q.GetPaymentByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			payment = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load payment: %w", err)
		}

		if req.ReservationID > 0 {
			res, err := q.GetReservation(ctx, req.ReservationID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.NotFound("reservation")
				}
				return fmt.Errorf("load reservation: %w", err)
			}
			if res.Status == models.ReservationCancelled {
				return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
			}
		}
		if req.ParticipantID > 0 {
			part, err := q.GetParticipant(ctx, req.ParticipantID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.NotFound("participant")
				}
				return fmt.Errorf("load participant: %w", err)
			}
			if part.ReservationID != req.ReservationID {
				return apperr.Invalid("participant_id", "does not belong to the reservation")
			}
		}

		payment, err = q.CreatePayment(ctx, store.CreatePaymentParams{
			ReservationID:  nullInt(req.ReservationID),
			ParticipantID:  nullInt(req.ParticipantID),
			PayerID:        req.PayerID,
			AmountCents:    req.AmountCents,
			Method:         req.Method,
			IdempotencyKey: req.IdempotencyKey,
			CreatedAt:      s.now(),
		})
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}

		if req.Method == models.MethodBalance {
			if _, err := s.ledger.Charge(ctx, q, req.PayerID, req.ReservationID, req.AmountCents); err != nil {
				return err
			}
			payment, err = s.transition(ctx, q, payment, models.PaymentConfirmed, 0, nil, fx)
			return err
		}
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}
	s.afterCommit(ctx, fx)

	if payment.Method == models.MethodBalance || payment.ExternalID.Valid || payment.Status != models.PaymentPending {
		return payment, nil
	}
	return s.submitCharge(ctx, payment, req)
}

func (s *Service) submitCharge(ctx context.Context, payment models.Payment, req ChargeRequest) (models.Payment, error) {
	logger := log.Ctx(ctx)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	charge, err := s.gateway.CreateCharge(callCtx, gateway.ChargeRequest{
		IdempotencyKey: payment.IdempotencyKey,
		Method:         payment.Method,
		AmountCents:    payment.AmountCents,
		PayerID:        payment.PayerID,
		DueDate:        req.DueDate,
		Description:    req.Description,
	})
	if err != nil {
		logger.Error().Err(err).Int64("payment_id", payment.ID).Msg("Gateway charge failed; payment stays pending")
		return models.Payment{}, err
	}

	fx := &effects{}
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		if err := q.SetPaymentExternalID(ctx, payment.ID, charge.ID, s.now()); err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("gateway id %s already belongs to another payment: %w", charge.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("set external id: %w", err)
		}
		current, err := q.GetPayment(ctx, payment.ID)
		if err != nil {
			return fmt.Errorf("reload payment: %w", err)
		}
		payment = current
		if status, ok := gateway.MapStatus(charge.Status); ok && status != models.PaymentPending {
			payment, err = s.transition(ctx, q, current, status, charge.AmountCents, nil, fx)
			if errors.Is(err, apperr.ErrIdempotentNoOp) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Payment{}, err
	}
	s.afterCommit(ctx, fx)

	logger.Info().
		Int64("payment_id", payment.ID).
		Str("external_id", charge.ID).
		Str("status", string(payment.Status)).
		Msg("Charge submitted")
	return payment, nil
}

// SyncPayment polls the gateway for a payment and applies whatever it reports
// through the same transitions as webhooks.
func (s *Service) SyncPayment(ctx context.Context, paymentID int64) (models.Payment, error) {
	payment, err := s.loadPayment(ctx, s.db.Queries, paymentID)
	if err != nil {
		return models.Payment{}, err
	}
	if !payment.ExternalID.Valid {
		return models.Payment{}, apperr.Invalid("payment_id", "has not been submitted to the gateway")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	charge, err := s.gateway.GetPayment(callCtx, payment.ExternalID.String)
	if err != nil {
		return models.Payment{}, err
	}
	status, ok := gateway.MapStatus(charge.Status)
	if !ok || status == payment.Status {
		return payment, nil
	}

	fx := &effects{}
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		current, err := s.loadPayment(ctx, tx.Queries, paymentID)
		if err != nil {
			return err
		}
		payment, err = s.transition(ctx, tx.Queries, current, status, 0, nil, fx)
		if errors.Is(err, apperr.ErrIdempotentNoOp) {
			payment = current
			return nil
		}
		return err
	})
	if err != nil {
		return models.Payment{}, err
	}
	s.afterCommit(ctx, fx)
	return payment, nil
}

// ReservationCancelled refunds up to refundCents over the reservation's
// confirmed payments, largest first, cancels its pending charges and releases
// its open holds. Orphaned payments are refunded in full on top of
// refundCents. It can be called again after a partial failure; amounts
// already refunded count towards refundCents.
func (s *Service) ReservationCancelled(ctx context.Context, reservationID, refundCents int64) error {
	logger := log.Ctx(ctx).With().Int64("reservation_id", reservationID).Logger()

	payments, err := s.db.Queries.ListPaymentsForReservation(ctx, reservationID)
	if err != nil {
		return fmt.Errorf("list payments: %w", err)
	}
	remaining := refundCents
	for _, p := range payments {
		if !p.Orphaned {
			remaining -= p.RefundedCents
		}
	}

	var errs []error
	for _, p := range payments {
		switch {
		case p.Status == models.PaymentPending:
			if err := s.cancelPending(ctx, p); err != nil {
				logger.Error().Err(err).Int64("payment_id", p.ID).Msg("Pending charge cancellation failed")
				errs = append(errs, err)
			}
			continue
		case p.Status == models.PaymentConfirmed && p.Orphaned:
			if err := s.refundPayment(ctx, p, p.AmountCents-p.RefundedCents); err != nil {
				logger.Error().Err(err).Int64("payment_id", p.ID).Msg("Refund of orphaned payment failed")
				errs = append(errs, err)
			}
			continue
		case p.Status != models.PaymentConfirmed || remaining <= 0:
			continue
		}
		amount := min(p.AmountCents-p.RefundedCents, remaining)
		if amount <= 0 {
			continue
		}
		if err := s.refundPayment(ctx, p, amount); err != nil {
			logger.Error().Err(err).Int64("payment_id", p.ID).Msg("Refund failed")
			errs = append(errs, err)
			continue
		}
		remaining -= amount
	}

	holds, err := s.db.Queries.ListOpenPreAuthsForReservation(ctx, reservationID)
	if err != nil {
		errs = append(errs, fmt.Errorf("list holds: %w", err))
	}
	for _, h := range holds {
		if _, err := s.releaseHold(ctx, h); err != nil {
			logger.Error().Err(err).Int64("preauth_id", h.ID).Msg("Hold release failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) refundPayment(ctx context.Context, p models.Payment, amount int64) error {
	if p.Method != models.MethodBalance {
		if !p.ExternalID.Valid {
			return fmt.Errorf("payment %d has no gateway id", p.ID)
		}
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
		if _, err := s.gateway.Refund(callCtx, p.ExternalID.String, amount, fmt.Sprintf("refund-%d", p.ID)); err != nil {
			return err
		}
	}

	fx := &effects{}
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		current, err := s.loadPayment(ctx, q, p.ID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, models.PaymentRefunded) {
			// A refund webhook got here first.
			return nil
		}
		if current.Method == models.MethodBalance {
			if _, err := s.ledger.Refund(ctx, q, current.PayerID, current.ReservationID.Int64, amount); err != nil {
				return err
			}
		}
		_, err = s.transition(ctx, q, current, models.PaymentRefunded, amount, nil, fx)
		return err
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, fx)
	log.Ctx(ctx).Info().Int64("payment_id", p.ID).Int64("amount_cents", amount).Msg("Payment refunded")
	return nil
}

// cancelPending withdraws a charge that has not settled and fails it locally.
// A charge the gateway settles anyway arrives as an orphaned confirmation.
func (s *Service) cancelPending(ctx context.Context, p models.Payment) error {
	if p.ExternalID.Valid {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
		defer cancel()
		if err := s.gateway.CancelCharge(callCtx, p.ExternalID.String); err != nil {
			return err
		}
	}

	fx := &effects{}
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		current, err := s.loadPayment(ctx, tx.Queries, p.ID)
		if err != nil {
			return err
		}
		_, err = s.transition(ctx, tx.Queries, current, models.PaymentFailed, 0, nil, fx)
		if errors.Is(err, apperr.ErrIdempotentNoOp) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, fx)
	log.Ctx(ctx).Info().Int64("payment_id", p.ID).Msg("Pending charge cancelled")
	return nil
}

func (s *Service) loadPayment(ctx context.Context, q store.PaymentRepository, id int64) (models.Payment, error) {
	p, err := q.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Payment{}, apperr.NotFound("payment")
		}
		return models.Payment{}, fmt.Errorf("load payment: %w", err)
	}
	return p, nil
}

func (s *Service) gameStart(res models.Reservation) (time.Time, error) {
	return availability.Instant(res.Date, res.StartTime, s.cfg.Location)
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}
