package store

import (
	"context"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type PreAuthRepository interface {
	CreatePreAuth(ctx context.Context, arg CreatePreAuthParams) (models.PreAuthorization, error)
	GetPreAuth(ctx context.Context, id int64) (models.PreAuthorization, error)
	SetPreAuthExternalID(ctx context.Context, id int64, externalID string, at time.Time) error
	CapturePreAuth(ctx context.Context, id, amountCents int64, at time.Time) (int64, error)
	CancelPreAuth(ctx context.Context, id int64, at time.Time) (int64, error)
	ListOpenPreAuthsForReservation(ctx context.Context, reservationID int64) ([]models.PreAuthorization, error)
	ListExpiredPreAuths(ctx context.Context, now time.Time) ([]models.PreAuthorization, error)
}

type CreatePreAuthParams struct {
	ReservationID   int64
	PayerID         int64
	AuthorizedCents int64
	ReleaseAfter    time.Time
	CreatedAt       time.Time
}

func (q *Queries) CreatePreAuth(ctx context.Context, arg CreatePreAuthParams) (models.PreAuthorization, error) {
	createdAt := Timestamp(arg.CreatedAt)
	res, err := q.db.ExecContext(ctx, `INSERT INTO preauthorizations (
    reservation_id, payer_id, authorized_cents, status, release_after, created_at, updated_at
) VALUES (?, ?, ?, 'open', ?, ?, ?)`,
		arg.ReservationID,
		arg.PayerID,
		arg.AuthorizedCents,
		Timestamp(arg.ReleaseAfter),
		createdAt,
		createdAt,
	)
	if err != nil {
		return models.PreAuthorization{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PreAuthorization{}, err
	}
	return q.GetPreAuth(ctx, id)
}

const preAuthColumns = `id, reservation_id, payer_id, external_id, authorized_cents, captured_cents, status,
    release_after, created_at, updated_at`

func scanPreAuth(row rowScanner) (models.PreAuthorization, error) {
	var p models.PreAuthorization
	var status string
	err := row.Scan(
		&p.ID,
		&p.ReservationID,
		&p.PayerID,
		&p.ExternalID,
		&p.AuthorizedCents,
		&p.CapturedCents,
		&status,
		&p.ReleaseAfter,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	p.Status = models.PreAuthStatus(status)
	return p, err
}

func (q *Queries) GetPreAuth(ctx context.Context, id int64) (models.PreAuthorization, error) {
	return scanPreAuth(q.db.QueryRowContext(ctx, `SELECT `+preAuthColumns+` FROM preauthorizations WHERE id = ?`, id))
}

func (q *Queries) SetPreAuthExternalID(ctx context.Context, id int64, externalID string, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE preauthorizations SET external_id = ?, updated_at = ? WHERE id = ?`,
		externalID, Timestamp(at), id,
	)
	return err
}

// CapturePreAuth settles an open hold. It returns 0 when the hold is no longer
// open or the amount exceeds what was authorized.
func (q *Queries) CapturePreAuth(ctx context.Context, id, amountCents int64, at time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, `UPDATE preauthorizations
SET status = 'captured', captured_cents = ?, updated_at = ?
WHERE id = ? AND status = 'open' AND ? <= authorized_cents`,
		amountCents, Timestamp(at), id, amountCents,
	))
}

func (q *Queries) CancelPreAuth(ctx context.Context, id int64, at time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx,
		`UPDATE preauthorizations SET status = 'cancelled', updated_at = ? WHERE id = ? AND status = 'open'`,
		Timestamp(at), id,
	))
}

func (q *Queries) ListOpenPreAuthsForReservation(ctx context.Context, reservationID int64) ([]models.PreAuthorization, error) {
	return q.listPreAuths(ctx,
		`SELECT `+preAuthColumns+` FROM preauthorizations WHERE reservation_id = ? AND status = 'open' ORDER BY id`,
		reservationID,
	)
}

func (q *Queries) ListExpiredPreAuths(ctx context.Context, now time.Time) ([]models.PreAuthorization, error) {
	return q.listPreAuths(ctx,
		`SELECT `+preAuthColumns+` FROM preauthorizations WHERE status = 'open' AND release_after <= ? ORDER BY release_after, id`,
		Timestamp(now),
	)
}

func (q *Queries) listPreAuths(ctx context.Context, query string, args ...any) ([]models.PreAuthorization, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PreAuthorization
	for rows.Next() {
		p, err := scanPreAuth(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
