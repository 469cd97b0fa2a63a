package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type ReservationRepository interface {
	CreateReservation(ctx context.Context, arg CreateReservationParams) (models.Reservation, error)
	GetReservation(ctx context.Context, id int64) (models.Reservation, error)
	ListActiveReservations(ctx context.Context, courtID int64, date string) ([]models.Reservation, error)
	UpdateReservationSchedule(ctx context.Context, arg UpdateReservationScheduleParams) error
	TransitionReservation(ctx context.Context, id int64, from, to models.ReservationStatus, at time.Time) (int64, error)
	CancelReservation(ctx context.Context, arg CancelReservationParams) (int64, error)
	SetReservationSplitMode(ctx context.Context, id int64, mode sql.NullString, at time.Time) error
	AddReservationPaid(ctx context.Context, id, deltaCents int64, at time.Time) error
	SetReservationPricing(ctx context.Context, id, totalCents, discountPercent int64, at time.Time) error
}

type CreateReservationParams struct {
	OrganizerID     int64
	CourtID         int64
	ScheduleSlotID  int64
	Date            string
	StartTime       string
	EndTime         string
	Type            models.ReservationType
	TotalCents      int64
	PaidCents       int64
	DiscountPercent int64
	TeamID          sql.NullInt64
	Observations    string
	CouponCode      sql.NullString
	CreatedAt       time.Time
}

const createReservation = `INSERT INTO reservations (
    organizer_id, court_id, schedule_slot_id, date, start_time, end_time, reservation_type,
    status, total_cents, paid_cents, discount_percent, team_id, observations, coupon_code, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateReservation(ctx context.Context, arg CreateReservationParams) (models.Reservation, error) {
	createdAt := Timestamp(arg.CreatedAt)
	res, err := q.db.ExecContext(ctx, createReservation,
		arg.OrganizerID,
		arg.CourtID,
		arg.ScheduleSlotID,
		arg.Date,
		arg.StartTime,
		arg.EndTime,
		string(arg.Type),
		arg.TotalCents,
		arg.PaidCents,
		arg.DiscountPercent,
		arg.TeamID,
		arg.Observations,
		arg.CouponCode,
		createdAt,
		createdAt,
	)
	if err != nil {
		return models.Reservation{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Reservation{}, err
	}
	return q.GetReservation(ctx, id)
}

const reservationColumns = `id, organizer_id, court_id, schedule_slot_id, date, start_time, end_time, reservation_type,
    status, total_cents, paid_cents, discount_percent, team_id, split_mode, observations, coupon_code,
    cancel_reason, refund_cents, cancelled_at, created_at, updated_at`

func scanReservation(row rowScanner) (models.Reservation, error) {
	var r models.Reservation
	var resType, status string
	err := row.Scan(
		&r.ID,
		&r.OrganizerID,
		&r.CourtID,
		&r.ScheduleSlotID,
		&r.Date,
		&r.StartTime,
		&r.EndTime,
		&resType,
		&status,
		&r.TotalCents,
		&r.PaidCents,
		&r.DiscountPercent,
		&r.TeamID,
		&r.SplitMode,
		&r.Observations,
		&r.CouponCode,
		&r.CancelReason,
		&r.RefundCents,
		&r.CancelledAt,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	r.Type = models.ReservationType(resType)
	r.Status = models.ReservationStatus(status)
	return r, err
}

func (q *Queries) GetReservation(ctx context.Context, id int64) (models.Reservation, error) {
	return scanReservation(q.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
}

const listActiveReservations = `SELECT ` + reservationColumns + ` FROM reservations
WHERE court_id = ? AND date = ? AND status != 'cancelled'
ORDER BY start_time, id`

func (q *Queries) ListActiveReservations(ctx context.Context, courtID int64, date string) ([]models.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, listActiveReservations, courtID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

type UpdateReservationScheduleParams struct {
	ID             int64
	ScheduleSlotID int64
	Date           string
	StartTime      string
	EndTime        string
	TotalCents     int64
	Observations   string
	UpdatedAt      time.Time
}

const updateReservationSchedule = `UPDATE reservations
SET schedule_slot_id = ?, date = ?, start_time = ?, end_time = ?, total_cents = ?, observations = ?, updated_at = ?
WHERE id = ? AND status != 'cancelled'`

func (q *Queries) UpdateReservationSchedule(ctx context.Context, arg UpdateReservationScheduleParams) error {
	n, err := rowsAffected(q.db.ExecContext(ctx, updateReservationSchedule,
		arg.ScheduleSlotID,
		arg.Date,
		arg.StartTime,
		arg.EndTime,
		arg.TotalCents,
		arg.Observations,
		Timestamp(arg.UpdatedAt),
		arg.ID,
	))
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TransitionReservation moves a reservation from one status to another and
// returns 0 when the reservation is no longer in the expected status.
func (q *Queries) TransitionReservation(ctx context.Context, id int64, from, to models.ReservationStatus, at time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), Timestamp(at), id, string(from),
	))
}

type CancelReservationParams struct {
	ID          int64
	Reason      string
	RefundCents int64
	CancelledAt time.Time
}

const cancelReservation = `UPDATE reservations
SET status = 'cancelled', cancel_reason = ?, refund_cents = ?, cancelled_at = ?, updated_at = ?
WHERE id = ? AND status != 'cancelled'`

func (q *Queries) CancelReservation(ctx context.Context, arg CancelReservationParams) (int64, error) {
	at := Timestamp(arg.CancelledAt)
	return rowsAffected(q.db.ExecContext(ctx, cancelReservation, arg.Reason, arg.RefundCents, at, at, arg.ID))
}

func (q *Queries) SetReservationSplitMode(ctx context.Context, id int64, mode sql.NullString, at time.Time) error {
	_, err := q.db.ExecContext(ctx, `UPDATE reservations SET split_mode = ?, updated_at = ? WHERE id = ?`, mode, Timestamp(at), id)
	return err
}

// AddReservationPaid adjusts the paid total; negative deltas never take it below zero.
func (q *Queries) AddReservationPaid(ctx context.Context, id, deltaCents int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE reservations SET paid_cents = MAX(paid_cents + ?, 0), updated_at = ? WHERE id = ?`,
		deltaCents, Timestamp(at), id,
	)
	return err
}

func (q *Queries) SetReservationPricing(ctx context.Context, id, totalCents, discountPercent int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE reservations SET total_cents = ?, discount_percent = ?, updated_at = ? WHERE id = ?`,
		totalCents, discountPercent, Timestamp(at), id,
	)
	return err
}
