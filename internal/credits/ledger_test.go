package credits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codr1/quadra/internal/apperr"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/models"
	"github.com/codr1/quadra/internal/testutil"
)

func newLedger(t *testing.T, now time.Time) (*Ledger, *db.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)
	return NewLedger(database, DefaultConfig()).WithClock(func() time.Time { return now }), database
}

func TestDebtCeiling(t *testing.T) {
	ctx := testutil.Ctx()
	ledger, database := newLedger(t, time.Now())

	// Bring the user to -190.
	_, err := ledger.Charge(ctx, database.Queries, 7, 0, 19000)
	require.NoError(t, err)
	balance, err := ledger.Balance(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(-19000), balance)

	ok, err := ledger.CanBook(ctx, 7, 2000)
	require.NoError(t, err)
	assert.False(t, ok, "-190 - 20 exceeds the 200 cap")

	ok, err = ledger.CanBook(ctx, 7, 1000)
	require.NoError(t, err)
	assert.True(t, ok, "-190 - 10 sits exactly on the cap")

	_, err = ledger.Charge(ctx, database.Queries, 7, 0, 2000)
	var debtErr DebtExceededError
	require.ErrorAs(t, err, &debtErr)
	assert.ErrorIs(t, err, apperr.ErrDebtExceeded)
	assert.Equal(t, int64(-19000), debtErr.BalanceCents)

	_, err = ledger.Charge(ctx, database.Queries, 7, 0, 1000)
	require.NoError(t, err)
	balance, err = ledger.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-20000), balance)
}

func TestPurchaseAndRefundRaiseBalance(t *testing.T) {
	ctx := testutil.Ctx()
	ledger, database := newLedger(t, time.Now())

	_, err := ledger.Purchase(ctx, 3, 5000)
	require.NoError(t, err)
	_, err = ledger.Refund(ctx, database.Queries, 3, 0, 1500)
	require.NoError(t, err)
	_, err = ledger.Purchase(ctx, 3, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	balance, err := ledger.Balance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(6500), balance)
}

func TestApplyReferralBonus(t *testing.T) {
	ctx := testutil.Ctx()
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)
	ledger, database := newLedger(t, now)

	require.NoError(t, ledger.ApplyReferralBonus(ctx, 1, 2))

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), balance)

	entries, err := ledger.Entries(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CreditReferral, entries[0].Type)
	assert.Equal(t, int64(10), entries[0].DiscountPercent)
	require.True(t, entries[0].ExpiresAt.Valid)
	assert.True(t, entries[0].ExpiresAt.Time.Equal(now.Add(180*24*time.Hour)))

	err = ledger.ApplyReferralBonus(ctx, 3, 2)
	assert.ErrorIs(t, err, apperr.ErrConflict, "a user can be referred once")
	err = ledger.ApplyReferralBonus(ctx, 4, 4)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	balance, err = ledger.Balance(ctx, 3)
	require.NoError(t, err)
	assert.Zero(t, balance, "rejected referral must not credit anyone")

	pct, err := ledger.ConsumeDiscount(ctx, database.Queries, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(10), pct)
	pct, err = ledger.ConsumeDiscount(ctx, database.Queries, 2, 0)
	require.NoError(t, err)
	assert.Zero(t, pct, "discount is single use")
}

func TestExpireEntries(t *testing.T) {
	ctx := testutil.Ctx()
	now := time.Date(2030, 1, 10, 12, 0, 0, 0, time.UTC)
	ledger, _ := newLedger(t, now)

	require.NoError(t, ledger.ApplyReferralBonus(ctx, 1, 2))
	_, err := ledger.Purchase(ctx, 1, 500)
	require.NoError(t, err)

	n, err := ledger.ExpireEntries(ctx, now.Add(179*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = ledger.ExpireEntries(ctx, now.Add(181*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance, "purchases without expiration stay")

	n, err = ledger.ExpireEntries(ctx, now.Add(400*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n, "sweep is idempotent")
}
