package store

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/codr1/quadra/internal/models"
)

type ParticipantRepository interface {
	CreateParticipant(ctx context.Context, arg CreateParticipantParams) (models.Participant, error)
	GetParticipant(ctx context.Context, id int64) (models.Participant, error)
	ListParticipants(ctx context.Context, reservationID int64) ([]models.Participant, error)
	CountParticipants(ctx context.Context, reservationID int64) (int64, error)
	UpdateParticipantSplit(ctx context.Context, arg UpdateParticipantSplitParams) error
	ApplyParticipantPayment(ctx context.Context, id, amountCents int64) (models.Participant, error)
	RefundParticipantPayment(ctx context.Context, id, amountCents int64) (models.Participant, error)
}

type CreateParticipantParams struct {
	ReservationID int64
	UserID        sql.NullInt64
	GuestName     sql.NullString
	GuestPhone    sql.NullString
	Origin        models.ParticipantOrigin
	SplitCents    int64
	PaymentStatus models.ParticipantStatus
	PaidCents     int64
}

const createParticipant = `INSERT INTO participants (
    reservation_id, user_id, guest_name, guest_phone, origin, split_cents, payment_status, paid_cents
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateParticipant(ctx context.Context, arg CreateParticipantParams) (models.Participant, error) {
	status := arg.PaymentStatus
	if status == "" {
		status = models.ParticipantPending
	}
	res, err := q.db.ExecContext(ctx, createParticipant,
		arg.ReservationID,
		arg.UserID,
		arg.GuestName,
		arg.GuestPhone,
		string(arg.Origin),
		arg.SplitCents,
		string(status),
		arg.PaidCents,
	)
	if err != nil {
		return models.Participant{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Participant{}, err
	}
	return q.GetParticipant(ctx, id)
}

const participantColumns = `id, reservation_id, user_id, guest_name, guest_phone, origin,
    split_cents, split_percentage, payment_status, paid_cents`

func scanParticipant(row rowScanner) (models.Participant, error) {
	var p models.Participant
	var origin, status string
	var pct sql.NullString
	err := row.Scan(
		&p.ID,
		&p.ReservationID,
		&p.UserID,
		&p.GuestName,
		&p.GuestPhone,
		&origin,
		&p.SplitCents,
		&pct,
		&status,
		&p.PaidCents,
	)
	if err != nil {
		return p, err
	}
	p.Origin = models.ParticipantOrigin(origin)
	p.PaymentStatus = models.ParticipantStatus(status)
	if pct.Valid {
		d, err := decimal.NewFromString(pct.String)
		if err != nil {
			return p, err
		}
		p.SplitPercentage = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return p, nil
}

func (q *Queries) GetParticipant(ctx context.Context, id int64) (models.Participant, error) {
	return scanParticipant(q.db.QueryRowContext(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = ?`, id))
}

func (q *Queries) ListParticipants(ctx context.Context, reservationID int64) ([]models.Participant, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+participantColumns+` FROM participants WHERE reservation_id = ? ORDER BY id`,
		reservationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (q *Queries) CountParticipants(ctx context.Context, reservationID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants WHERE reservation_id = ?`, reservationID).Scan(&n)
	return n, err
}

type UpdateParticipantSplitParams struct {
	ID              int64
	SplitCents      int64
	SplitPercentage decimal.NullDecimal
}

const updateParticipantSplit = `UPDATE participants
SET split_cents = ?, split_percentage = ?,
    payment_status = CASE WHEN ? > 0 AND paid_cents >= ? THEN 'paid' ELSE 'pending' END
WHERE id = ?`

// UpdateParticipantSplit replaces the participant's share and recomputes the
// payment status: paid when what was already paid covers the new share,
// pending otherwise.
func (q *Queries) UpdateParticipantSplit(ctx context.Context, arg UpdateParticipantSplitParams) error {
	var pct sql.NullString
	if arg.SplitPercentage.Valid {
		pct = sql.NullString{String: arg.SplitPercentage.Decimal.String(), Valid: true}
	}
	n, err := rowsAffected(q.db.ExecContext(ctx, updateParticipantSplit, arg.SplitCents, pct, arg.SplitCents, arg.SplitCents, arg.ID))
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const applyParticipantPayment = `UPDATE participants
SET paid_cents = paid_cents + ?,
    payment_status = CASE WHEN paid_cents + ? >= split_cents THEN 'paid' ELSE payment_status END
WHERE id = ?`

// ApplyParticipantPayment adds a confirmed amount and marks the participant
// paid once the share is covered.
func (q *Queries) ApplyParticipantPayment(ctx context.Context, id, amountCents int64) (models.Participant, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, applyParticipantPayment, amountCents, amountCents, id))
	if err != nil {
		return models.Participant{}, err
	}
	if n == 0 {
		return models.Participant{}, sql.ErrNoRows
	}
	return q.GetParticipant(ctx, id)
}

const refundParticipantPayment = `UPDATE participants
SET paid_cents = MAX(paid_cents - ?, 0), payment_status = 'refunded'
WHERE id = ?`

func (q *Queries) RefundParticipantPayment(ctx context.Context, id, amountCents int64) (models.Participant, error) {
	n, err := rowsAffected(q.db.ExecContext(ctx, refundParticipantPayment, amountCents, id))
	if err != nil {
		return models.Participant{}, err
	}
	if n == 0 {
		return models.Participant{}, sql.ErrNoRows
	}
	return q.GetParticipant(ctx, id)
}
