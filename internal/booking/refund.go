package booking

import "time"

// RefundPolicy holds the cancellation tiers. Cancelling at least Full before
// start refunds everything paid, at least Half before refunds half, anything
// later refunds nothing.
type RefundPolicy struct {
	Full time.Duration
	Half time.Duration
}

func DefaultRefundPolicy() RefundPolicy {
	return RefundPolicy{Full: 24 * time.Hour, Half: 12 * time.Hour}
}

func (p RefundPolicy) RefundFor(paidCents int64, untilStart time.Duration) int64 {
	if paidCents <= 0 {
		return 0
	}
	switch {
	case untilStart >= p.Full:
		return paidCents
	case untilStart >= p.Half:
		return paidCents / 2
	default:
		return 0
	}
}

// RefundFor applies the default tiers.
func RefundFor(paidCents int64, untilStart time.Duration) int64 {
	return DefaultRefundPolicy().RefundFor(paidCents, untilStart)
}
