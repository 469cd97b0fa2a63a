// internal/invitations/service.go
package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/store"
)

const defaultRegion = "BR"

type Config struct {
	Location    *time.Location
	CloseWindow time.Duration
	// PhoneRegion is used for guest numbers without a country code.
	PhoneRegion string
}

type Service struct {
	db       *db.DB
	notifier notify.Dispatcher
	cfg      Config
	now      func() time.Time
}

func NewService(database *db.DB, notifier notify.Dispatcher, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PhoneRegion == "" {
		cfg.PhoneRegion = defaultRegion
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{db: database, notifier: notifier, cfg: cfg, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateParams struct {
	ReservationID     int64
	CreatorID         int64
	Name              string
	Description       string
	TotalSlots        int64
	PricePerSlotCents int64
	ExpiresAt         *time.Time
}

// Guest identifies whoever accepts an invitation: a registered user or a
// named guest with a phone number.
type Guest struct {
	UserID int64
	Name   string
	Phone  string
}

type Acceptance struct {
	Invitation  models.Invitation
	Acceptance  models.InvitationAcceptance
	Participant models.Participant
}

func (s *Service) gameClose(res models.Reservation) (time.Time, error) {
	start, err := availability.Instant(res.Date, res.StartTime, s.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("reservation %d start: %w", res.ID, err)
	}
	return start.Add(-s.cfg.CloseWindow), nil
}

// Create opens a public invitation for the remaining places of a reservation.
func (s *Service) Create(ctx context.Context, p CreateParams) (models.Invitation, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return models.Invitation{}, apperr.Invalid("name", "is required")
	}
	if p.TotalSlots < 1 {
		return models.Invitation{}, apperr.Invalid("total_slots", "must be at least 1")
	}
	if p.PricePerSlotCents < 0 {
		return models.Invitation{}, apperr.Invalid("price_per_slot", "must not be negative")
	}

	now := s.now()
	var inv models.Invitation
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		res, err := tx.Queries.GetReservation(ctx, p.ReservationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("reservation")
			}
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.OrganizerID != p.CreatorID {
			return fmt.Errorf("only the organizer can invite: %w", apperr.ErrForbidden)
		}
		if res.Status == models.ReservationCancelled {
			return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrGameClosed)
		}
		closesAt, err := s.gameClose(res)
		if err != nil {
			return err
		}
		if !now.Before(closesAt) {
			return fmt.Errorf("reservation %d closed at %s: %w", res.ID, closesAt.Format(time.RFC3339), apperr.ErrGameClosed)
		}

		court, err := tx.Queries.GetCourt(ctx, res.CourtID)
		if err != nil {
			return fmt.Errorf("load court: %w", err)
		}
		count, err := tx.Queries.CountParticipants(ctx, res.ID)
		if err != nil {
			return fmt.Errorf("count participants: %w", err)
		}
		open, err := s.openSlots(ctx, tx.Queries, res.ID)
		if err != nil {
			return err
		}
		if free := court.MaxCapacity - count - open; p.TotalSlots > free {
			return apperr.Invalid("total_slots", fmt.Sprintf("only %d places are left on this court", max(free, 0)))
		}

		expiresAt := closesAt
		if p.ExpiresAt != nil {
			if !p.ExpiresAt.After(now) {
				return apperr.Invalid("expires_at", "must be in the future")
			}
			if p.ExpiresAt.Before(closesAt) {
				expiresAt = *p.ExpiresAt
			}
		}

		inv, err = tx.Queries.CreateInvitation(ctx, store.CreateInvitationParams{
			ReservationID:     res.ID,
			CreatorID:         p.CreatorID,
			Name:              name,
			Description:       strings.TrimSpace(p.Description),
			Token:             uuid.NewString(),
			TotalSlots:        p.TotalSlots,
			PricePerSlotCents: p.PricePerSlotCents,
			ExpiresAt:         expiresAt,
			CreatedAt:         now,
		})
		if err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Invitation{}, err
	}

	log.Ctx(ctx).Info().
		Int64("reservation_id", inv.ReservationID).
		Int64("invitation_id", inv.ID).
		Int64("total_slots", inv.TotalSlots).
		Msg("Invitation created")
	return inv, nil
}

// openSlots counts places still reserved by other active invitations.
func (s *Service) openSlots(ctx context.Context, q store.InvitationRepository, reservationID int64) (int64, error) {
	invs, err := q.ListInvitationsForReservation(ctx, reservationID)
	if err != nil {
		return 0, fmt.Errorf("list invitations: %w", err)
	}
	var open int64
	for _, inv := range invs {
		if inv.Status == models.InvitationActive {
			open += inv.SlotsRemaining
		}
	}
	return open, nil
}

// Get loads an invitation by its public token.
func (s *Service) Get(ctx context.Context, token string) (models.Invitation, error) {
	inv, err := s.db.Queries.GetInvitationByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Invitation{}, apperr.NotFound("invitation")
		}
		return models.Invitation{}, fmt.Errorf("load invitation: %w", err)
	}
	return inv, nil
}

// Accept admits a guest into one slot. The slot decrement, the acceptance and
// the participant are written in one transaction.
func (s *Service) Accept(ctx context.Context, token string, guest Guest) (Acceptance, error) {
	out, err := s.accept(ctx, token, guest)
	metrics.TrackInvitationAcceptance(acceptOutcome(err))
	if err != nil {
		return Acceptance{}, err
	}

	log.Ctx(ctx).Info().
		Int64("invitation_id", out.Invitation.ID).
		Int64("participant_id", out.Participant.ID).
		Int64("slots_remaining", out.Invitation.SlotsRemaining).
		Msg("Invitation accepted")

	notify.Send(ctx, s.notifier, notify.Event{
		Kind:          notify.InvitationAccepted,
		ReservationID: out.Invitation.ReservationID,
		UserID:        out.Invitation.CreatorID,
		AmountCents:   out.Participant.SplitCents,
		GuestName:     out.Acceptance.GuestName,
	})
	return out, nil
}

func (s *Service) accept(ctx context.Context, token string, guest Guest) (Acceptance, error) {
	key, name, phone, err := s.guestIdentity(guest)
	if err != nil {
		return Acceptance{}, err
	}

	now := s.now()
	var out Acceptance
	var expired bool
	err = s.db.RunInTx(ctx, func(tx *db.DB) error {
		inv, err := tx.Queries.GetInvitationByToken(ctx, token)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("invitation")
			}
			return fmt.Errorf("load invitation: %w", err)
		}

		res, err := tx.Queries.GetReservation(ctx, inv.ReservationID)
		if err != nil {
			return fmt.Errorf("load reservation: %w", err)
		}
		if res.Status == models.ReservationCancelled {
			return fmt.Errorf("reservation %d is cancelled: %w", res.ID, apperr.ErrInvitationClosed)
		}

		switch inv.Status {
		case models.InvitationClosed, models.InvitationExpired:
			return fmt.Errorf("invitation %d is %s: %w", inv.ID, inv.Status, apperr.ErrInvitationClosed)
		}
		if now.After(inv.ExpiresAt) {
			if _, err := tx.Queries.ExpireInvitation(ctx, inv.ID); err != nil {
				return fmt.Errorf("expire invitation: %w", err)
			}
			// Commit the status change; the caller still gets ErrInvitationExpired.
			expired = true
			return nil
		}
		if inv.Status == models.InvitationFull || inv.SlotsRemaining <= 0 {
			return fmt.Errorf("invitation %d has no slots left: %w", inv.ID, apperr.ErrCapacityExceeded)
		}

		n, err := tx.Queries.TakeInvitationSlot(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("take invitation slot: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("invitation %d has no slots left: %w", inv.ID, apperr.ErrCapacityExceeded)
		}

		participant, err := tx.Queries.CreateParticipant(ctx, store.CreateParticipantParams{
			ReservationID: res.ID,
			UserID:        nullInt(guest.UserID),
			GuestName:     nullString(name),
			GuestPhone:    nullString(phone),
			Origin:        models.OriginInvite,
			SplitCents:    inv.PricePerSlotCents,
			PaymentStatus: participantStatus(inv.PricePerSlotCents),
		})
		if err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("user already takes part in reservation %d: %w", res.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("create participant: %w", err)
		}

		acceptance, err := tx.Queries.CreateInvitationAcceptance(ctx, store.CreateAcceptanceParams{
			InvitationID:  inv.ID,
			ParticipantID: participant.ID,
			GuestKey:      key,
			UserID:        nullInt(guest.UserID),
			GuestName:     name,
			GuestPhone:    nullString(phone),
			AcceptedAt:    now,
		})
		if err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("guest already accepted invitation %d: %w", inv.ID, apperr.ErrConflict)
			}
			return fmt.Errorf("create acceptance: %w", err)
		}

		inv, err = tx.Queries.GetInvitation(ctx, inv.ID)
		if err != nil {
			return fmt.Errorf("reload invitation: %w", err)
		}
		out = Acceptance{Invitation: inv, Acceptance: acceptance, Participant: participant}
		return nil
	})
	if err != nil {
		return Acceptance{}, err
	}
	if expired {
		return Acceptance{}, fmt.Errorf("invitation expired: %w", apperr.ErrInvitationExpired)
	}
	return out, nil
}

// Close stops an invitation from accepting anyone else. Only its creator may
// close it; the remaining count is left as is.
func (s *Service) Close(ctx context.Context, invitationID, requesterID int64) (models.Invitation, error) {
	var inv models.Invitation
	err := s.db.RunInTx(ctx, func(tx *db.DB) error {
		var err error
		inv, err = tx.Queries.GetInvitation(ctx, invitationID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("invitation")
			}
			return fmt.Errorf("load invitation: %w", err)
		}
		if inv.CreatorID != requesterID {
			return fmt.Errorf("only the creator can close invitation %d: %w", inv.ID, apperr.ErrForbidden)
		}
		if err := tx.Queries.SetInvitationStatus(ctx, inv.ID, models.InvitationClosed); err != nil {
			return fmt.Errorf("close invitation: %w", err)
		}
		inv.Status = models.InvitationClosed
		return nil
	})
	if err != nil {
		return models.Invitation{}, err
	}
	log.Ctx(ctx).Info().Int64("invitation_id", inv.ID).Msg("Invitation closed")
	return inv, nil
}

func (s *Service) guestIdentity(g Guest) (key, name, phone string, err error) {
	name = strings.TrimSpace(g.Name)
	if g.UserID > 0 {
		return fmt.Sprintf("user:%d", g.UserID), name, "", nil
	}
	if name == "" {
		return "", "", "", apperr.Invalid("guest_info.name", "is required")
	}
	phone, err = NormalizePhone(g.Phone, s.cfg.PhoneRegion)
	if err != nil {
		return "", "", "", err
	}
	return "phone:" + phone, name, phone, nil
}

// NormalizePhone returns the E.164 form of a phone number.
func NormalizePhone(raw, region string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Invalid("guest_info.phone", "is required")
	}
	num, err := phonenumbers.Parse(raw, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperr.Invalid("guest_info.phone", "is not a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func acceptOutcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, apperr.ErrCapacityExceeded):
		return "full"
	case errors.Is(err, apperr.ErrInvitationExpired):
		return "expired"
	case errors.Is(err, apperr.ErrInvitationClosed):
		return "closed"
	default:
		return "rejected"
	}
}

func participantStatus(price int64) models.ParticipantStatus {
	if price == 0 {
		return models.ParticipantPaid
	}
	return models.ParticipantPending
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v > 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
