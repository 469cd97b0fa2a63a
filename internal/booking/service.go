// internal/booking/service.go
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/rateio"
	"github.com/codr1/quadra/internal/store"
)

const maxObservations = 500

// Reconciler settles the money side of a cancellation: gateway refunds,
// balance credits and open holds.
type Reconciler interface {
	ReservationCancelled(ctx context.Context, reservationID, refundCents int64) error
}

type Config struct {
	Location        *time.Location
	CloseWindow     time.Duration
	Refunds         RefundPolicy
	MinCancelReason int
}

func DefaultConfig() Config {
	return Config{
		Location:        time.UTC,
		CloseWindow:     2 * time.Hour,
		Refunds:         DefaultRefundPolicy(),
		MinCancelReason: 10,
	}
}

// Actor is the caller of a booking operation. Managers may act on any
// reservation of the facility.
type Actor struct {
	UserID  int64
	Manager bool
}

func (a Actor) owns(res models.Reservation) bool {
	return a.Manager || (a.UserID > 0 && a.UserID == res.OrganizerID)
}

type Service struct {
	db         *db.DB
	resolver   *availability.Resolver
	ledger     *credits.Ledger
	reconciler Reconciler
	notifier   notify.Dispatcher
	cfg        Config
	now        func() time.Time
}

func NewService(database *db.DB, resolver *availability.Resolver, ledger *credits.Ledger, reconciler Reconciler, notifier notify.Dispatcher, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		db:         database,
		resolver:   resolver,
		ledger:     ledger,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateRequest struct {
	OrganizerID  int64
	CourtID      int64
	SlotID       int64
	Date         string
	StartTime    string
	EndTime      string
	Type         models.ReservationType
	Observations string
	TeamID       int64
	// MemberIDs selects the non-fixed team members who play.
	MemberIDs      []int64
	CouponCode     string
	PayWithBalance bool
}

type Details struct {
	Reservation  models.Reservation   `json:"reservation"`
	Participants []models.Participant `json:"participants"`
}

// CreateBooking books a range on a court. Every check and write happens in one
// transaction so a failure leaves nothing behind.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (Details, error) {
	out, err := s.createBooking(ctx, req)
	metrics.TrackBooking("create", err)
	if err != nil {
		return Details{}, err
	}

	res := out.Reservation
	log.Ctx(ctx).Info().
		Int64("reservation_id", res.ID).
		Int64("court_id", res.CourtID).
		Str("date", res.Date).
		Str("range", res.StartTime+"-"+res.EndTime).
		Int64("total_cents", res.TotalCents).
		Msg("Booking created")

	notify.Send(ctx, s.notifier, s.event(notify.BookingCreated, res, res.TotalCents))
	return out, nil
}

func (s *Service) createBooking(ctx context.Context, req CreateRequest) (Details, error) {
	if req.OrganizerID <= 0 {
		return Details{}, apperr.Invalid("organizer_id", "is required")
	}
	if req.CourtID <= 0 {
		return Details{}, apperr.Invalid("court_id", "is required")
	}
	if req.Type == "" {
		req.Type = models.ReservationSingle
	}
	if !req.Type.Valid() {
		return Details{}, apperr.Invalid("type", "must be single, monthly or recurring")
	}
	observations, err := cleanObservations(req.Observations)
	if err != nil {
		return Details{}, err
	}
	if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
		return Details{}, apperr.Invalid("date", "must be YYYY-MM-DD")
	}
	if (req.StartTime == "") != (req.EndTime == "") {
		return Details{}, apperr.Invalid("end_time", "start_time and end_time go together")
	}
	if req.StartTime == "" && req.SlotID == 0 {
		return Details{}, apperr.Invalid("start_time", "is required without slot_id")
	}

	now := s.now()
	var out Details
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries

		start, end := req.StartTime, req.EndTime
		if start == "" {
			slot, err := q.GetScheduleSlot(ctx, req.SlotID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.NotFound("schedule slot")
				}
				return fmt.Errorf("load schedule slot: %w", err)
			}
			if slot.CourtID != req.CourtID {
				return apperr.Invalid("slot_id", "belongs to another court")
			}
			start, end = slot.StartTime, slot.EndTime
		}

		slot, err := s.resolver.Check(ctx, q, availability.Request{
			CourtID:   req.CourtID,
			Date:      req.Date,
			StartTime: start,
			EndTime:   end,
			SlotID:    req.SlotID,
		})
		if err != nil {
			return err
		}
		court, err := q.GetCourt(ctx, req.CourtID)
		if err != nil {
			return fmt.Errorf("load court: %w", err)
		}

		members, err := s.teamMembers(ctx, q, req)
		if err != nil {
			return err
		}
		if int64(len(members))+1 > court.MaxCapacity {
			return fmt.Errorf("%d players on a court for %d: %w", len(members)+1, court.MaxCapacity, apperr.ErrCapacityExceeded)
		}

		var discount int64
		coupon := sql.NullString{}
		if code := strings.TrimSpace(req.CouponCode); code != "" {
			pct, err := redeemCoupon(ctx, q, code, now)
			if err != nil {
				return err
			}
			discount = pct
			coupon = sql.NullString{String: code, Valid: true}
		}
		total := applyDiscount(slot.Price(req.Type), discount)

		// The referral discount is consumed after the insert so the entry can
		// point at its reservation; the debt check below sees the final total.
		res, err := q.CreateReservation(ctx, store.CreateReservationParams{
			OrganizerID:     req.OrganizerID,
			CourtID:         req.CourtID,
			ScheduleSlotID:  slot.ID,
			Date:            req.Date,
			StartTime:       start,
			EndTime:         end,
			Type:            req.Type,
			TotalCents:      total,
			DiscountPercent: discount,
			TeamID:          nullInt(req.TeamID),
			Observations:    observations,
			CouponCode:      coupon,
			CreatedAt:       now,
		})
		if err != nil {
			if store.IsOverlapViolation(err) {
				return apperr.ConflictError{CourtID: req.CourtID, Date: req.Date, Ranges: []string{start + "-" + end}}
			}
			return fmt.Errorf("create reservation: %w", err)
		}

		referral, err := s.ledger.ConsumeDiscount(ctx, q, req.OrganizerID, res.ID)
		if err != nil {
			return err
		}
		if referral > 0 {
			discount = min(discount+referral, 100)
			total = applyDiscount(slot.Price(req.Type), discount)
			if err := q.SetReservationPricing(ctx, res.ID, total, discount, now); err != nil {
				return fmt.Errorf("apply referral discount: %w", err)
			}
		}

		if req.PayWithBalance && total > 0 {
			if _, err := s.ledger.Charge(ctx, q, req.OrganizerID, res.ID, total); err != nil {
				return err
			}
		} else if err := s.ledger.Check(ctx, q, req.OrganizerID, total); err != nil {
			return err
		}

		organizer, err := q.CreateParticipant(ctx, store.CreateParticipantParams{
			ReservationID: res.ID,
			UserID:        nullInt(req.OrganizerID),
			Origin:        models.OriginOrganizer,
			SplitCents:    total,
		})
		if err != nil {
			return fmt.Errorf("add organizer: %w", err)
		}
		for _, m := range members {
			if _, err := q.CreateParticipant(ctx, store.CreateParticipantParams{
				ReservationID: res.ID,
				UserID:        nullInt(m.UserID),
				Origin:        models.OriginTeam,
			}); err != nil {
				return fmt.Errorf("add team member %d: %w", m.UserID, err)
			}
		}

		if req.PayWithBalance && total > 0 {
			if err := settleWithBalance(ctx, q, res.ID, organizer, total, now); err != nil {
				return err
			}
		}

		out, err = loadDetails(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return Details{}, err
	}
	return out, nil
}

// teamMembers returns the team members who join the booking: fixed members
// always, the others only when selected.
func (s *Service) teamMembers(ctx context.Context, q store.TeamRepository, req CreateRequest) ([]models.TeamMember, error) {
	if req.TeamID == 0 {
		if len(req.MemberIDs) > 0 {
			return nil, apperr.Invalid("member_ids", "require team_id")
		}
		return nil, nil
	}
	if _, err := q.GetTeam(ctx, req.TeamID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("team")
		}
		return nil, fmt.Errorf("load team: %w", err)
	}
	all, err := q.ListTeamMembers(ctx, req.TeamID)
	if err != nil {
		return nil, fmt.Errorf("list team members: %w", err)
	}

	known := make(map[int64]bool, len(all))
	var members []models.TeamMember
	for _, m := range all {
		known[m.UserID] = true
		if m.UserID == req.OrganizerID {
			continue
		}
		if m.Fixed || slices.Contains(req.MemberIDs, m.UserID) {
			members = append(members, m)
		}
	}
	for i, id := range req.MemberIDs {
		if !known[id] {
			return nil, apperr.Invalid(fmt.Sprintf("member_ids[%d]", i), "is not a member of the team")
		}
	}
	return members, nil
}

func redeemCoupon(ctx context.Context, q store.CouponRepository, code string, now time.Time) (int64, error) {
	coupon, err := q.GetCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, apperr.Invalid("coupon_code", "is unknown")
		}
		return 0, fmt.Errorf("load coupon: %w", err)
	}
	n, err := q.RedeemCoupon(ctx, code, now)
	if err != nil {
		return 0, fmt.Errorf("redeem coupon: %w", err)
	}
	if n == 0 {
		return 0, apperr.Invalid("coupon_code", "is no longer valid")
	}
	return coupon.PercentOff, nil
}

// settleWithBalance records the balance payment that covers the whole total
// and confirms the reservation.
func settleWithBalance(ctx context.Context, q store.Querier, reservationID int64, organizer models.Participant, total int64, now time.Time) error {
	if _, err := q.CreatePayment(ctx, store.CreatePaymentParams{
		ReservationID:  nullInt(reservationID),
		ParticipantID:  nullInt(organizer.ID),
		PayerID:        organizer.UserID.Int64,
		AmountCents:    total,
		Method:         models.MethodBalance,
		Status:         models.PaymentConfirmed,
		IdempotencyKey: fmt.Sprintf("balance-%d", reservationID),
		CreatedAt:      now,
	}); err != nil {
		return fmt.Errorf("record balance payment: %w", err)
	}
	if _, err := q.ApplyParticipantPayment(ctx, organizer.ID, total); err != nil {
		return fmt.Errorf("mark organizer paid: %w", err)
	}
	if err := q.AddReservationPaid(ctx, reservationID, total, now); err != nil {
		return fmt.Errorf("update paid total: %w", err)
	}
	if _, err := q.TransitionReservation(ctx, reservationID, models.ReservationPending, models.ReservationConfirmed, now); err != nil {
		return fmt.Errorf("confirm reservation: %w", err)
	}
	return nil
}

type EditRequest struct {
	ReservationID int64
	Actor         Actor
	SlotID        int64
	// Empty values keep the current schedule.
	Date         string
	StartTime    string
	EndTime      string
	Observations *string
}

// EditBooking moves a reservation and/or changes its observations until game
// close. A new range is checked against the court excluding the reservation
// itself.
func (s *Service) EditBooking(ctx context.Context, req EditRequest) (Details, error) {
	out, err := s.editBooking(ctx, req)
	metrics.TrackBooking("edit", err)
	if err != nil {
		return Details{}, err
	}
	log.Ctx(ctx).Info().
		Int64("reservation_id", out.Reservation.ID).
		Str("date", out.Reservation.Date).
		Str("range", out.Reservation.StartTime+"-"+out.Reservation.EndTime).
		Msg("Booking edited")
	return out, nil
}

func (s *Service) editBooking(ctx context.Context, req EditRequest) (Details, error) {
	now := s.now()
	var out Details
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		res, err := s.loadOpen(ctx, q, req.ReservationID, req.Actor, now)
		if err != nil {
			return err
		}

		observations := res.Observations
		if req.Observations != nil {
			if observations, err = cleanObservations(*req.Observations); err != nil {
				return err
			}
		}

		arg := store.UpdateReservationScheduleParams{
			ID:             res.ID,
			ScheduleSlotID: res.ScheduleSlotID,
			Date:           res.Date,
			StartTime:      res.StartTime,
			EndTime:        res.EndTime,
			TotalCents:     res.TotalCents,
			Observations:   observations,
			UpdatedAt:      now,
		}

		moved := req.Date != "" || req.StartTime != "" || req.EndTime != "" || req.SlotID != 0
		if moved {
			if req.Date != "" {
				if _, err := time.Parse(models.DateLayout, req.Date); err != nil {
					return apperr.Invalid("date", "must be YYYY-MM-DD")
				}
				arg.Date = req.Date
			}
			if (req.StartTime == "") != (req.EndTime == "") {
				return apperr.Invalid("end_time", "start_time and end_time go together")
			}
			if req.StartTime != "" {
				arg.StartTime, arg.EndTime = req.StartTime, req.EndTime
			} else if req.SlotID != 0 {
				slot, err := q.GetScheduleSlot(ctx, req.SlotID)
				if err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return apperr.NotFound("schedule slot")
					}
					return fmt.Errorf("load schedule slot: %w", err)
				}
				arg.StartTime, arg.EndTime = slot.StartTime, slot.EndTime
			}

			slot, err := s.resolver.Check(ctx, q, availability.Request{
				CourtID:              res.CourtID,
				Date:                 arg.Date,
				StartTime:            arg.StartTime,
				EndTime:              arg.EndTime,
				SlotID:               req.SlotID,
				ExcludeReservationID: res.ID,
			})
			if err != nil {
				return err
			}
			arg.ScheduleSlotID = slot.ID
			arg.TotalCents = applyDiscount(slot.Price(res.Type), res.DiscountPercent)
		}

		if arg.TotalCents != res.TotalCents {
			if err := s.reprice(ctx, q, res, arg.TotalCents); err != nil {
				return err
			}
		}

		if err := q.UpdateReservationSchedule(ctx, arg); err != nil {
			if store.IsOverlapViolation(err) {
				return apperr.ConflictError{CourtID: res.CourtID, Date: arg.Date, Ranges: []string{arg.StartTime + "-" + arg.EndTime}}
			}
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
			}
			return fmt.Errorf("update reservation: %w", err)
		}

		out, err = loadDetails(ctx, q, res.ID)
		return err
	})
	if err != nil {
		return Details{}, err
	}
	return out, nil
}

// reprice spreads a new total over the participants. A percentage split is
// recalculated; a fixed split no longer adds up and must be configured again.
func (s *Service) reprice(ctx context.Context, q store.ParticipantRepository, res models.Reservation, total int64) error {
	participants, err := q.ListParticipants(ctx, res.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	switch models.SplitMode(res.SplitMode.String) {
	case models.SplitFixedValue:
		return apperr.Invalid("split_mode", "the price changed; configure the fixed split again")
	case models.SplitPercentage:
		in := rateio.Input{TotalCents: total, Mode: models.SplitPercentage}
		for _, p := range participants {
			in.Registered = append(in.Registered, p.ID)
			pct := decimal.Zero
			if p.SplitPercentage.Valid {
				pct = p.SplitPercentage.Decimal
			}
			in.Shares = append(in.Shares, rateio.Share{ParticipantID: p.ID, Value: pct})
		}
		allocations, err := rateio.Calculate(in)
		if err != nil {
			return err
		}
		for _, a := range allocations {
			if err := q.UpdateParticipantSplit(ctx, store.UpdateParticipantSplitParams{
				ID:              a.ParticipantID,
				SplitCents:      a.AmountCents,
				SplitPercentage: a.Percentage,
			}); err != nil {
				return fmt.Errorf("update participant %d split: %w", a.ParticipantID, err)
			}
		}
		return nil
	default:
		for _, p := range participants {
			if p.Origin != models.OriginOrganizer {
				continue
			}
			if err := q.UpdateParticipantSplit(ctx, store.UpdateParticipantSplitParams{ID: p.ID, SplitCents: total}); err != nil {
				return fmt.Errorf("update organizer share: %w", err)
			}
		}
		return nil
	}
}

// ConfirmBooking is the organizer's or a manager's explicit confirmation.
// Confirming a confirmed reservation changes nothing.
func (s *Service) ConfirmBooking(ctx context.Context, reservationID int64, actor Actor) (models.Reservation, error) {
	now := s.now()
	var res models.Reservation
	var changed bool
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		var err error
		res, err = loadReservation(ctx, tx.Queries, reservationID)
		if err != nil {
			return err
		}
		if !actor.owns(res) {
			return fmt.Errorf("confirm reservation %d: %w", res.ID, apperr.ErrForbidden)
		}
		switch res.Status {
		case models.ReservationCancelled:
			return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
		case models.ReservationConfirmed:
			return nil
		}
		n, err := tx.Queries.TransitionReservation(ctx, res.ID, models.ReservationPending, models.ReservationConfirmed, now)
		if err != nil {
			return fmt.Errorf("confirm reservation: %w", err)
		}
		changed = n > 0
		res.Status = models.ReservationConfirmed
		return nil
	})
	metrics.TrackBooking("confirm", err)
	if err != nil {
		return models.Reservation{}, err
	}

	if !changed {
		log.Ctx(ctx).Debug().Int64("reservation_id", res.ID).Msg("Reservation already confirmed")
		return res, nil
	}
	log.Ctx(ctx).Info().Int64("reservation_id", res.ID).Msg("Booking confirmed")
	notify.Send(ctx, s.notifier, s.event(notify.BookingConfirmed, res, res.PaidCents))
	return res, nil
}

type SplitRequest struct {
	ReservationID int64
	Actor         Actor
	Mode          models.SplitMode
	Shares        []rateio.Share
}

// ConfigureSplit replaces every participant's share. Participants left out of
// the request owe nothing. A participant whose payments already cover the new
// share stays paid; everyone else goes back to pending.
func (s *Service) ConfigureSplit(ctx context.Context, req SplitRequest) ([]models.Participant, error) {
	now := s.now()
	var participants []models.Participant
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		res, err := s.loadOpen(ctx, q, req.ReservationID, req.Actor, now)
		if err != nil {
			return err
		}

		current, err := q.ListParticipants(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("list participants: %w", err)
		}
		registered := make([]int64, len(current))
		for i, p := range current {
			registered[i] = p.ID
		}

		allocations, err := rateio.Calculate(rateio.Input{
			TotalCents: res.TotalCents,
			Mode:       req.Mode,
			Shares:     req.Shares,
			Registered: registered,
		})
		if err != nil {
			return err
		}
		byID := make(map[int64]rateio.Allocation, len(allocations))
		for _, a := range allocations {
			byID[a.ParticipantID] = a
		}

		for _, p := range current {
			a, ok := byID[p.ID]
			if !ok {
				a = rateio.Allocation{ParticipantID: p.ID}
				if req.Mode == models.SplitPercentage {
					a.Percentage = decimal.NewNullDecimal(decimal.Zero)
				}
			}
			if err := q.UpdateParticipantSplit(ctx, store.UpdateParticipantSplitParams{
				ID:              p.ID,
				SplitCents:      a.AmountCents,
				SplitPercentage: a.Percentage,
			}); err != nil {
				return fmt.Errorf("update participant %d split: %w", p.ID, err)
			}
		}
		if err := q.SetReservationSplitMode(ctx, res.ID, sql.NullString{String: string(req.Mode), Valid: true}, now); err != nil {
			return fmt.Errorf("set split mode: %w", err)
		}

		participants, err = q.ListParticipants(ctx, res.ID)
		return err
	})
	metrics.TrackBooking("split", err)
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().
		Int64("reservation_id", req.ReservationID).
		Str("mode", string(req.Mode)).
		Int("participants", len(participants)).
		Msg("Split configured")
	return participants, nil
}

type CancelResult struct {
	Reservation models.Reservation `json:"reservation"`
	RefundCents int64              `json:"refund_amount"`
	// RefundPending is set when the refund hand-off failed and must be retried.
	RefundPending bool `json:"refund_pending"`
}

// CancelBooking cancels a reservation before game close and computes the
// refund from the amount paid. The cancellation is final even when the refund
// hand-off fails.
func (s *Service) CancelBooking(ctx context.Context, reservationID int64, actor Actor, reason string) (CancelResult, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < s.cfg.MinCancelReason {
		err := apperr.Invalid("reason", fmt.Sprintf("must be at least %d characters", s.cfg.MinCancelReason))
		metrics.TrackBooking("cancel", err)
		return CancelResult{}, err
	}

	now := s.now()
	var out CancelResult
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		q := tx.Queries
		res, err := s.loadOpen(ctx, q, reservationID, actor, now)
		if err != nil {
			return err
		}
		start, err := availability.Instant(res.Date, res.StartTime, s.cfg.Location)
		if err != nil {
			return fmt.Errorf("reservation %d start: %w", res.ID, err)
		}
		refund := s.cfg.Refunds.RefundFor(res.PaidCents, start.Sub(now))

		n, err := q.CancelReservation(ctx, store.CancelReservationParams{
			ID:          res.ID,
			Reason:      reason,
			RefundCents: refund,
			CancelledAt: now,
		})
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("reservation %d is already cancelled: %w", res.ID, apperr.ErrGameClosed)
		}
		res, err = q.GetReservation(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("reload reservation: %w", err)
		}
		out = CancelResult{Reservation: res, RefundCents: refund}
		return nil
	})
	metrics.TrackBooking("cancel", err)
	if err != nil {
		return CancelResult{}, err
	}

	logger := log.Ctx(ctx)
	logger.Info().
		Int64("reservation_id", reservationID).
		Int64("refund_cents", out.RefundCents).
		Msg("Booking cancelled")

	if s.reconciler != nil {
		if err := s.reconciler.ReservationCancelled(ctx, reservationID, out.RefundCents); err != nil {
			logger.Error().Err(err).Int64("reservation_id", reservationID).Msg("Refund hand-off failed")
			out.RefundPending = true
		}
	}

	ev := s.event(notify.BookingCancelled, out.Reservation, out.RefundCents)
	ev.Reason = reason
	notify.Send(ctx, s.notifier, ev)
	return out, nil
}

func (s *Service) Get(ctx context.Context, reservationID int64) (Details, error) {
	return loadDetails(ctx, s.db.Queries, reservationID)
}

// loadOpen loads a reservation the actor may change: not cancelled and not
// yet closed.
func (s *Service) loadOpen(ctx context.Context, q store.ReservationRepository, id int64, actor Actor, now time.Time) (models.Reservation, error) {
	res, err := loadReservation(ctx, q, id)
	if err != nil {
		return models.Reservation{}, err
	}
	if !actor.owns(res) {
		return models.Reservation{}, fmt.Errorf("reservation %d: %w", res.ID, apperr.ErrForbidden)
	}
	if res.Status == models.ReservationCancelled {
		return models.Reservation{}, fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
	}
	closed, err := s.closed(res, now)
	if err != nil {
		return models.Reservation{}, err
	}
	if closed {
		return models.Reservation{}, fmt.Errorf("reservation %d is past game close: %w", res.ID, apperr.ErrGameClosed)
	}
	return res, nil
}

// closed reports whether now is inside the close window before start.
func (s *Service) closed(res models.Reservation, now time.Time) (bool, error) {
	start, err := availability.Instant(res.Date, res.StartTime, s.cfg.Location)
	if err != nil {
		return false, fmt.Errorf("reservation %d start: %w", res.ID, err)
	}
	return !now.Before(start.Add(-s.cfg.CloseWindow)), nil
}

func (s *Service) event(kind notify.Kind, res models.Reservation, amount int64) notify.Event {
	return notify.Event{
		Kind:          kind,
		ReservationID: res.ID,
		UserID:        res.OrganizerID,
		AmountCents:   amount,
		Date:          res.Date,
		TimeRange:     res.StartTime + "-" + res.EndTime,
	}
}

func loadReservation(ctx context.Context, q store.ReservationRepository, id int64) (models.Reservation, error) {
	res, err := q.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reservation{}, apperr.NotFound("reservation")
		}
		return models.Reservation{}, fmt.Errorf("load reservation: %w", err)
	}
	return res, nil
}

func loadDetails(ctx context.Context, q store.Querier, id int64) (Details, error) {
	res, err := loadReservation(ctx, q, id)
	if err != nil {
		return Details{}, err
	}
	participants, err := q.ListParticipants(ctx, id)
	if err != nil {
		return Details{}, fmt.Errorf("list participants: %w", err)
	}
	return Details{Reservation: res, Participants: participants}, nil
}

func cleanObservations(v string) (string, error) {
	v = strings.TrimSpace(v)
	if utf8.RuneCountInString(v) > maxObservations {
		return "", apperr.Invalid("observations", fmt.Sprintf("must be at most %d characters", maxObservations))
	}
	return v, nil
}

// applyDiscount takes percent off price, rounding in the customer's favor.
func applyDiscount(price, percent int64) int64 {
	if percent <= 0 {
		return price
	}
	if percent >= 100 {
		return 0
	}
	return price * (100 - percent) / 100
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}
