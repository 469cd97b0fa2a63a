package store

import (
	"context"
	"time"

	"github.com/codr1/quadra/internal/models"
)

type CouponRepository interface {
	CreateCoupon(ctx context.Context, c models.Coupon) error
	GetCoupon(ctx context.Context, code string) (models.Coupon, error)
	RedeemCoupon(ctx context.Context, code string, now time.Time) (int64, error)
}

func (q *Queries) CreateCoupon(ctx context.Context, c models.Coupon) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO coupons (code, percent_off, active, expires_at, max_redemptions, redemptions_count) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Code, c.PercentOff, c.Active, nullTimestamp(c.ExpiresAt), c.MaxRedemptions, c.RedemptionsCount,
	)
	return err
}

func (q *Queries) GetCoupon(ctx context.Context, code string) (models.Coupon, error) {
	var c models.Coupon
	err := q.db.QueryRowContext(ctx,
		`SELECT code, percent_off, active, expires_at, max_redemptions, redemptions_count FROM coupons WHERE code = ?`,
		code,
	).Scan(&c.Code, &c.PercentOff, &c.Active, &c.ExpiresAt, &c.MaxRedemptions, &c.RedemptionsCount)
	return c, err
}

// A max_redemptions of 0 means unlimited.
const redeemCoupon = `UPDATE coupons
SET redemptions_count = redemptions_count + 1
WHERE code = ?
  AND active = 1
  AND (expires_at IS NULL OR expires_at > ?)
  AND (max_redemptions = 0 OR redemptions_count < max_redemptions)`

// RedeemCoupon counts one use of the coupon. It returns 0 when the coupon can
// no longer be redeemed.
func (q *Queries) RedeemCoupon(ctx context.Context, code string, now time.Time) (int64, error) {
	return rowsAffected(q.db.ExecContext(ctx, redeemCoupon, code, Timestamp(now)))
}
