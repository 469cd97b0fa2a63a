package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type CreditRepository interface {
	CreateCreditEntry(ctx context.Context, arg CreateCreditEntryParams) (models.CreditEntry, error)
	SumActiveCredits(ctx context.Context, userID int64) (int64, error)
	ListCreditEntries(ctx context.Context, userID int64) ([]models.CreditEntry, error)
	ExpireCreditEntries(ctx context.Context, now time.Time) (int64, error)
	OldestActiveDiscount(ctx context.Context, userID int64, now time.Time) (models.CreditEntry, error)
	MarkCreditUsed(ctx context.Context, id int64, reservationID sql.NullInt64) (int64, error)
	CreateReferral(ctx context.Context, referredID, referrerID int64, at time.Time) error
}

type CreateCreditEntryParams struct {
	UserID          int64
	Type            models.CreditType
	ValueCents      int64
	DiscountPercent int64
	ExpiresAt       sql.NullTime
	ReservationID   sql.NullInt64
	CreatedAt       time.Time
}

const createCreditEntry = `INSERT INTO credit_entries (
    user_id, entry_type, value_cents, discount_percent, status, expires_at, reservation_id, created_at
) VALUES (?, ?, ?, ?, 'active', ?, ?, ?)`

func (q *Queries) CreateCreditEntry(ctx context.Context, arg CreateCreditEntryParams) (models.CreditEntry, error) {
	createdAt := Timestamp(arg.CreatedAt)
	expiresAt := nullTimestamp(arg.ExpiresAt)
	res, err := q.db.ExecContext(ctx, createCreditEntry,
		arg.UserID,
		string(arg.Type),
		arg.ValueCents,
		arg.DiscountPercent,
		expiresAt,
		arg.ReservationID,
		createdAt,
	)
	if err != nil {
		return models.CreditEntry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.CreditEntry{}, err
	}
	return models.CreditEntry{
		ID:              id,
		UserID:          arg.UserID,
		Type:            arg.Type,
		ValueCents:      arg.ValueCents,
		DiscountPercent: arg.DiscountPercent,
		Status:          models.CreditActive,
		ExpiresAt:       expiresAt,
		ReservationID:   arg.ReservationID,
		CreatedAt:       createdAt,
	}, nil
}

func (q *Queries) SumActiveCredits(ctx context.Context, userID int64) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value_cents), 0) FROM credit_entries WHERE user_id = ? AND status = 'active'`,
		userID,
	).Scan(&total)
	return total, err
}

const creditColumns = `id, user_id, entry_type, value_cents, discount_percent, status, expires_at, reservation_id, created_at`

func scanCredit(row rowScanner) (models.CreditEntry, error) {
	var c models.CreditEntry
	var entryType, status string
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&entryType,
		&c.ValueCents,
		&c.DiscountPercent,
		&status,
		&c.ExpiresAt,
		&c.ReservationID,
		&c.CreatedAt,
	)
	c.Type = models.CreditType(entryType)
	c.Status = models.CreditStatus(status)
	return c, err
}

func (q *Queries) ListCreditEntries(ctx context.Context, userID int64) ([]models.CreditEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+creditColumns+` FROM credit_entries WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CreditEntry
	for rows.Next() {
		c, err := scanCredit(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// ExpireCreditEntries only ever moves active entries to expired.
func (q *Queries) ExpireCreditEntries(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx,
		`UPDATE credit_entries SET status = 'expired' WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < ?`,
		Timestamp(now),
	))
}

const oldestActiveDiscount = `SELECT ` + creditColumns + ` FROM credit_entries
WHERE user_id = ? AND status = 'active' AND discount_percent > 0
  AND (expires_at IS NULL OR expires_at >= ?)
ORDER BY created_at, id
LIMIT 1`

func (q *Queries) OldestActiveDiscount(ctx context.Context, userID int64, now time.Time) (models.CreditEntry, error) {
	return scanCredit(q.db.QueryRowContext(ctx, oldestActiveDiscount, userID, Timestamp(now)))
}

func (q *Queries) MarkCreditUsed(ctx context.Context, id int64, reservationID sql.NullInt64) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx,
		`UPDATE credit_entries SET status = 'used', reservation_id = ? WHERE id = ? AND status = 'active'`,
		reservationID, id,
	))
}

func (q *Queries) CreateReferral(ctx context.Context, referredID, referrerID int64, at time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO referrals (referred_id, referrer_id, created_at) VALUES (?, ?, ?)`,
		referredID, referrerID, Timestamp(at),
	)
	return err
}
