// internal/credits/ledger.go
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/metrics"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/store"
)

type Config struct {
	MaxDebtCents            int64
	ReferralBonusCents      int64
	ReferralDiscountPercent int64
	Expiration              time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxDebtCents:            20000,
		ReferralBonusCents:      2000,
		ReferralDiscountPercent: 10,
		Expiration:              180 * 24 * time.Hour,
	}
}

// DebtExceededError reports a charge that would take the balance past the
// allowed debt.
type DebtExceededError struct {
	BalanceCents int64
	CostCents    int64
	MaxDebtCents int64
}

func (e DebtExceededError) Error() string {
	return fmt.Sprintf("balance %d minus cost %d exceeds the maximum debt of %d", e.BalanceCents, e.CostCents, e.MaxDebtCents)
}

func (e DebtExceededError) Unwrap() error {
	return apperr.ErrDebtExceeded
}

type Ledger struct {
	db  *db.DB
	cfg Config
	now func() time.Time
}

func NewLedger(database *db.DB, cfg Config) *Ledger {
	return &Ledger{db: database, cfg: cfg, now: time.Now}
}

// WithClock replaces the ledger clock.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) MaxDebtCents() int64 {
	return l.cfg.MaxDebtCents
}

// Balance sums the user's active entries. Outstanding debts are active
// negative entries.
func (l *Ledger) Balance(ctx context.Context, userID int64) (int64, error) {
	return l.balance(ctx, l.db.Queries, userID)
}

func (l *Ledger) balance(ctx context.Context, q store.CreditRepository, userID int64) (int64, error) {
	balance, err := q.SumActiveCredits(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sum active credits: %w", err)
	}
	return balance, nil
}

// CanBook reports whether the user may take on additionalCost more.
func (l *Ledger) CanBook(ctx context.Context, userID, additionalCost int64) (bool, error) {
	err := l.Check(ctx, l.db.Queries, userID, additionalCost)
	if errors.Is(err, apperr.ErrDebtExceeded) {
		return false, nil
	}
	return err == nil, err
}

// Check returns DebtExceededError when balance - cost < -MaxDebt. Pass the
// transactional queries so the read and the following write are atomic.
func (l *Ledger) Check(ctx context.Context, q store.CreditRepository, userID, cost int64) error {
	balance, err := l.balance(ctx, q, userID)
	if err != nil {
		return err
	}
	if balance-cost < -l.cfg.MaxDebtCents {
		return DebtExceededError{BalanceCents: balance, CostCents: cost, MaxDebtCents: l.cfg.MaxDebtCents}
	}
	return nil
}

// Charge debits cost from the user's balance after the debt check.
func (l *Ledger) Charge(ctx context.Context, q store.CreditRepository, userID, reservationID, cost int64) (models.CreditEntry, error) {
	if cost <= 0 {
		return models.CreditEntry{}, apperr.Invalid("amount", "must be positive")
	}
	if err := l.Check(ctx, q, userID, cost); err != nil {
		return models.CreditEntry{}, err
	}
	entry, err := q.CreateCreditEntry(ctx, store.CreateCreditEntryParams{
		UserID:        userID,
		Type:          models.CreditUse,
		ValueCents:    -cost,
		ReservationID: nullID(reservationID),
		CreatedAt:     l.now(),
	})
	if err != nil {
		return models.CreditEntry{}, fmt.Errorf("record balance use: %w", err)
	}
	return entry, nil
}

// Refund credits amount back to the user, typically for a cancelled booking
// that was paid with balance.
func (l *Ledger) Refund(ctx context.Context, q store.CreditRepository, userID, reservationID, amount int64) (models.CreditEntry, error) {
	if amount <= 0 {
		return models.CreditEntry{}, apperr.Invalid("amount", "must be positive")
	}
	entry, err := q.CreateCreditEntry(ctx, store.CreateCreditEntryParams{
		UserID:        userID,
		Type:          models.CreditRefund,
		ValueCents:    amount,
		ReservationID: nullID(reservationID),
		CreatedAt:     l.now(),
	})
	if err != nil {
		return models.CreditEntry{}, fmt.Errorf("record refund credit: %w", err)
	}
	return entry, nil
}

func (l *Ledger) Purchase(ctx context.Context, userID, amount int64) (models.CreditEntry, error) {
	if amount <= 0 {
		return models.CreditEntry{}, apperr.Invalid("amount", "must be positive")
	}
	entry, err := l.db.Queries.CreateCreditEntry(ctx, store.CreateCreditEntryParams{
		UserID:     userID,
		Type:       models.CreditPurchase,
		ValueCents: amount,
		CreatedAt:  l.now(),
	})
	if err != nil {
		return models.CreditEntry{}, fmt.Errorf("record purchase: %w", err)
	}
	return entry, nil
}

// ApplyReferralBonus credits the referrer and gives the referred user a
// discount on a future booking. Each user can be referred once.
func (l *Ledger) ApplyReferralBonus(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return apperr.Invalid("referred_id", "cannot refer yourself")
	}
	if referrerID <= 0 || referredID <= 0 {
		return apperr.Invalid("referred_id", "is required")
	}

	now := l.now()
	expires := sql.NullTime{Time: now.Add(l.cfg.Expiration), Valid: l.cfg.Expiration > 0}

	err := l.db.RunInTx(ctx, func(tx *db.DB) error {
		if err := tx.Queries.CreateReferral(ctx, referredID, referrerID, now); err != nil {
			if store.IsUniqueViolation(err) {
				return fmt.Errorf("user %d was already referred: %w", referredID, apperr.ErrConflict)
			}
			return fmt.Errorf("record referral: %w", err)
		}
		if _, err := tx.Queries.CreateCreditEntry(ctx, store.CreateCreditEntryParams{
			UserID:     referrerID,
			Type:       models.CreditReferral,
			ValueCents: l.cfg.ReferralBonusCents,
			ExpiresAt:  expires,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}
		if _, err := tx.Queries.CreateCreditEntry(ctx, store.CreateCreditEntryParams{
			UserID:          referredID,
			Type:            models.CreditReferral,
			DiscountPercent: l.cfg.ReferralDiscountPercent,
			ExpiresAt:       expires,
			CreatedAt:       now,
		}); err != nil {
			return fmt.Errorf("credit referred user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Ctx(ctx).Info().
		Int64("referrer_id", referrerID).
		Int64("referred_id", referredID).
		Msg("Referral bonus applied")
	return nil
}

// ConsumeDiscount marks the user's oldest active discount as used by the
// reservation and returns its percentage, or 0 when there is none.
func (l *Ledger) ConsumeDiscount(ctx context.Context, q store.CreditRepository, userID, reservationID int64) (int64, error) {
	entry, err := q.OldestActiveDiscount(ctx, userID, l.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("load discount: %w", err)
	}
	n, err := q.MarkCreditUsed(ctx, entry.ID, nullID(reservationID))
	if err != nil {
		return 0, fmt.Errorf("mark discount used: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	return entry.DiscountPercent, nil
}

// ExpireEntries moves active entries past their expiration to expired. It
// never touches any other status.
func (l *Ledger) ExpireEntries(ctx context.Context, now time.Time) (int64, error) {
	n, err := l.db.Queries.ExpireCreditEntries(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire credit entries: %w", err)
	}
	metrics.TrackSweep("credit_expiry", n)
	if n > 0 {
		log.Ctx(ctx).Info().Int64("expired", n).Msg("Expired credit entries")
	}
	return n, nil
}

func (l *Ledger) Entries(ctx context.Context, userID int64) ([]models.CreditEntry, error) {
	return l.db.Queries.ListCreditEntries(ctx, userID)
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id > 0}
}
