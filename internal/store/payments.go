package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type PaymentRepository interface {
	CreatePayment(ctx context.Context, arg CreatePaymentParams) (models.Payment, error)
	GetPayment(ctx context.Context, id int64) (models.Payment, error)
	GetPaymentByIdempotencyKey(ctx context.Context, key string) (models.Payment, error)
	GetPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error)
	SetPaymentExternalID(ctx context.Context, id int64, externalID string, at time.Time) error
	TransitionPayment(ctx context.Context, arg TransitionPaymentParams) (int64, error)
	RecordPaymentRefund(ctx context.Context, id, amountCents int64, at time.Time) (int64, error)
	MarkPaymentOrphaned(ctx context.Context, id int64, at time.Time) error
	ListPaymentsForReservation(ctx context.Context, reservationID int64) ([]models.Payment, error)
}

type CreatePaymentParams struct {
	ReservationID  sql.NullInt64
	ParticipantID  sql.NullInt64
	PayerID        int64
	AmountCents    int64
	Method         models.PaymentMethod
	Status         models.PaymentStatus
	ExternalID     sql.NullString
	IdempotencyKey string
	CreatedAt      time.Time
}

const createPayment = `INSERT INTO payments (
    reservation_id, participant_id, payer_id, amount_cents, method, status, external_id, idempotency_key, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (models.Payment, error) {
	status := arg.Status
	if status == "" {
		status = models.PaymentPending
	}
	createdAt := Timestamp(arg.CreatedAt)
	res, err := q.db.ExecContext(ctx, createPayment,
		arg.ReservationID,
		arg.ParticipantID,
		arg.PayerID,
		arg.AmountCents,
		string(arg.Method),
		string(status),
		arg.ExternalID,
		arg.IdempotencyKey,
		createdAt,
		createdAt,
	)
	if err != nil {
		return models.Payment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Payment{}, err
	}
	return q.GetPayment(ctx, id)
}

const paymentColumns = `id, reservation_id, participant_id, payer_id, amount_cents, refunded_cents, method, status,
    orphaned, external_id, idempotency_key, metadata, created_at, updated_at`

func scanPayment(row rowScanner) (models.Payment, error) {
	var p models.Payment
	var method, status string
	err := row.Scan(
		&p.ID,
		&p.ReservationID,
		&p.ParticipantID,
		&p.PayerID,
		&p.AmountCents,
		&p.RefundedCents,
		&method,
		&status,
		&p.Orphaned,
		&p.ExternalID,
		&p.IdempotencyKey,
		&p.Metadata,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	p.Method = models.PaymentMethod(method)
	p.Status = models.PaymentStatus(status)
	return p, err
}

func (q *Queries) GetPayment(ctx context.Context, id int64) (models.Payment, error) {
	return scanPayment(q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
}

func (q *Queries) GetPaymentByIdempotencyKey(ctx context.Context, key string) (models.Payment, error) {
	return scanPayment(q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ?`, key))
}

func (q *Queries) GetPaymentByExternalID(ctx context.Context, externalID string) (models.Payment, error) {
	return scanPayment(q.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE external_id = ?`, externalID))
}

func (q *Queries) SetPaymentExternalID(ctx context.Context, id int64, externalID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE payments SET external_id = ?, updated_at = ? WHERE id = ? AND external_id IS NULL`,
		externalID, Timestamp(at), id,
	)
	return err
}

type TransitionPaymentParams struct {
	ID        int64
	From      models.PaymentStatus
	To        models.PaymentStatus
	Metadata  sql.NullString
	UpdatedAt time.Time
}

const transitionPayment = `UPDATE payments
SET status = ?, metadata = COALESCE(?, metadata), updated_at = ?
WHERE id = ? AND status = ?`

// TransitionPayment is a compare-and-set on the payment status. A result of 0
// means another writer moved the payment first.
func (q *Queries) TransitionPayment(ctx context.Context, arg TransitionPaymentParams) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, transitionPayment,
		string(arg.To),
		arg.Metadata,
		Timestamp(arg.UpdatedAt),
		arg.ID,
		string(arg.From),
	))
}

const recordPaymentRefund = `UPDATE payments
SET refunded_cents = refunded_cents + ?, status = 'refunded', updated_at = ?
WHERE id = ? AND status = 'confirmed' AND refunded_cents + ? <= amount_cents`

// RecordPaymentRefund moves a confirmed payment to refunded and accumulates the
// refunded amount.
func (q *Queries) RecordPaymentRefund(ctx context.Context, id, amountCents int64, at time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, recordPaymentRefund, amountCents, Timestamp(at), id, amountCents))
}

// MarkPaymentOrphaned flags a payment that settled after its reservation was
// cancelled. Its amount is owed back in full.
func (q *Queries) MarkPaymentOrphaned(ctx context.Context, id int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE payments SET orphaned = 1, updated_at = ? WHERE id = ?`,
		Timestamp(at), id,
	)
	return err
}

func (q *Queries) ListPaymentsForReservation(ctx context.Context, reservationID int64) ([]models.Payment, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE reservation_id = ? ORDER BY amount_cents DESC, id`,
		reservationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
