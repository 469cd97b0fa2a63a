// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// Querier groups every repository the booking core reads and writes.
type Querier interface {
	CourtRepository
	ReservationRepository
	ParticipantRepository
	TeamRepository
	CouponRepository
	InvitationRepository
	PaymentRepository
	PreAuthRepository
	WebhookRepository
	CreditRepository
}

var _ Querier = (*Queries)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

// Timestamp normalizes instants before they are written so that stored values
// compare correctly as text.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func nullTimestamp(t sql.NullTime) sql.NullTime {
	if !t.Valid {
		return t
	}
	return sql.NullTime{Time: Timestamp(t.Time), Valid: true}
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
}

// IsOverlapViolation reports whether err was raised by the reservation overlap triggers.
func IsOverlapViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "reservation_overlap")
}

func rowsAffected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
