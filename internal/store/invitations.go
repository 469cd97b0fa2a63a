package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type InvitationRepository interface {
	CreateInvitation(ctx context.Context, arg CreateInvitationParams) (models.Invitation, error)
	GetInvitation(ctx context.Context, id int64) (models.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (models.Invitation, error)
	ListInvitationsForReservation(ctx context.Context, reservationID int64) ([]models.Invitation, error)
	SetInvitationStatus(ctx context.Context, id int64, status models.InvitationStatus) error
	ExpireInvitation(ctx context.Context, id int64) (int64, error)
	TakeInvitationSlot(ctx context.Context, id int64) (int64, error)
	CreateInvitationAcceptance(ctx context.Context, arg CreateAcceptanceParams) (models.InvitationAcceptance, error)
	ListInvitationAcceptances(ctx context.Context, invitationID int64) ([]models.InvitationAcceptance, error)
}

type CreateInvitationParams struct {
	ReservationID     int64
	CreatorID         int64
	Name              string
	Description       string
	Token             string
	TotalSlots        int64
	PricePerSlotCents int64
	ExpiresAt         time.Time
	CreatedAt         time.Time
}

const createInvitation = `INSERT INTO invitations (
    reservation_id, creator_id, name, description, token, total_slots, slots_remaining,
    price_per_slot_cents, status, expires_at, acceptance_count, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, 0, ?)`

func (q *Queries) CreateInvitation(ctx context.Context, arg CreateInvitationParams) (models.Invitation, error) {
	res, err := q.db.ExecContext(ctx, createInvitation,
		arg.ReservationID,
		arg.CreatorID,
		arg.Name,
		arg.Description,
		arg.Token,
		arg.TotalSlots,
		arg.TotalSlots,
		arg.PricePerSlotCents,
		Timestamp(arg.ExpiresAt),
		Timestamp(arg.CreatedAt),
	)
	if err != nil {
		return models.Invitation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Invitation{}, err
	}
	return q.GetInvitation(ctx, id)
}

const invitationColumns = `id, reservation_id, creator_id, name, description, token, total_slots, slots_remaining,
    price_per_slot_cents, status, expires_at, acceptance_count, created_at`

func scanInvitation(row rowScanner) (models.Invitation, error) {
	var inv models.Invitation
	var status string
	err := row.Scan(
		&inv.ID,
		&inv.ReservationID,
		&inv.CreatorID,
		&inv.Name,
		&inv.Description,
		&inv.Token,
		&inv.TotalSlots,
		&inv.SlotsRemaining,
		&inv.PricePerSlotCents,
		&status,
		&inv.ExpiresAt,
		&inv.AcceptanceCount,
		&inv.CreatedAt,
	)
	inv.Status = models.InvitationStatus(status)
	return inv, err
}

func (q *Queries) GetInvitation(ctx context.Context, id int64) (models.Invitation, error) {
	return scanInvitation(q.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id))
}

func (q *Queries) GetInvitationByToken(ctx context.Context, token string) (models.Invitation, error) {
	return scanInvitation(q.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token = ?`, token))
}

func (q *Queries) ListInvitationsForReservation(ctx context.Context, reservationID int64) ([]models.Invitation, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE reservation_id = ? ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, inv)
	}
	return items, rows.Err()
}

func (q *Queries) SetInvitationStatus(ctx context.Context, id int64, status models.InvitationStatus) error {
	n, err := rowsAffected(q.db.ExecContext(ctx, `UPDATE invitations SET status = ? WHERE id = ?`, string(status), id))
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ExpireInvitation flips an active invitation to expired. Closed and full
// invitations keep their status.
func (q *Queries) ExpireInvitation(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'expired' WHERE id = ? AND status = 'active'`,
		id,
	))
}

const takeInvitationSlot = `UPDATE invitations
SET slots_remaining = slots_remaining - 1,
    acceptance_count = acceptance_count + 1,
    status = CASE WHEN slots_remaining - 1 = 0 THEN 'completo' ELSE status END
WHERE id = ? AND status = 'active' AND slots_remaining > 0`

// TakeInvitationSlot claims one slot. It returns 0 when no slot is left or the
// invitation stopped accepting.
func (q *Queries) TakeInvitationSlot(ctx context.Context, id int64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, takeInvitationSlot, id))
}

type CreateAcceptanceParams struct {
	InvitationID  int64
	ParticipantID int64
	GuestKey      string
	UserID        sql.NullInt64
	GuestName     string
	GuestPhone    sql.NullString
	AcceptedAt    time.Time
}

const createAcceptance = `INSERT INTO invitation_acceptances (
    invitation_id, participant_id, guest_key, user_id, guest_name, guest_phone, confirmed, accepted_at
) VALUES (?, ?, ?, ?, ?, ?, 1, ?)`

func (q *Queries) CreateInvitationAcceptance(ctx context.Context, arg CreateAcceptanceParams) (models.InvitationAcceptance, error) {
	acceptedAt := Timestamp(arg.AcceptedAt)
	res, err := q.db.ExecContext(ctx, createAcceptance,
		arg.InvitationID,
		arg.ParticipantID,
		arg.GuestKey,
		arg.UserID,
		arg.GuestName,
		arg.GuestPhone,
		acceptedAt,
	)
	if err != nil {
		return models.InvitationAcceptance{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.InvitationAcceptance{}, err
	}
	return models.InvitationAcceptance{
		ID:            id,
		InvitationID:  arg.InvitationID,
		ParticipantID: arg.ParticipantID,
		GuestKey:      arg.GuestKey,
		UserID:        arg.UserID,
		GuestName:     arg.GuestName,
		GuestPhone:    arg.GuestPhone,
		Confirmed:     true,
		AcceptedAt:    acceptedAt,
	}, nil
}

func (q *Queries) ListInvitationAcceptances(ctx context.Context, invitationID int64) ([]models.InvitationAcceptance, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, invitation_id, participant_id, guest_key, user_id, guest_name, guest_phone, confirmed, accepted_at
FROM invitation_acceptances WHERE invitation_id = ? ORDER BY id`, invitationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.InvitationAcceptance
	for rows.Next() {
		var a models.InvitationAcceptance
		if err := rows.Scan(&a.ID, &a.InvitationID, &a.ParticipantID, &a.GuestKey, &a.UserID, &a.GuestName, &a.GuestPhone, &a.Confirmed, &a.AcceptedAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
