package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/config"
)

const (
	CreditExpiryJob = "credit_expiry"
	HoldReleaseJob  = "hold_release"
)

type CreditExpirer interface {
	ExpireEntries(ctx context.Context, now time.Time) (int64, error)
}

type HoldReleaser interface {
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int64, error)
}

// Sweeps are the periodic state transitions that no request triggers.
type Sweeps struct {
	Credits CreditExpirer
	Holds   HoldReleaser
	Now     func() time.Time
}

func (sw Sweeps) now() time.Time {
	if sw.Now != nil {
		return sw.Now()
	}
	return time.Now()
}

// ExpireCredits moves active credit entries past their expiration to expired.
func (sw Sweeps) ExpireCredits(ctx context.Context) error {
	if sw.Credits == nil {
		return fmt.Errorf("credit expiry requires a ledger")
	}
	n, err := sw.Credits.ExpireEntries(ctx, sw.now())
	if err != nil {
		return err
	}
	log.Ctx(ctx).Debug().Int64("expired", n).Msg("Credit expiry sweep finished")
	return nil
}

// ReleaseHolds cancels open pre-authorizations past their capture deadline.
func (sw Sweeps) ReleaseHolds(ctx context.Context) error {
	if sw.Holds == nil {
		return fmt.Errorf("hold release requires the payment service")
	}
	n, err := sw.Holds.ReleaseExpiredHolds(ctx, sw.now())
	if n > 0 {
		log.Ctx(ctx).Info().Int64("released", n).Msg("Released expired holds")
	}
	return err
}

// RegisterSweeps adds both sweeps with the configured schedules.
func RegisterSweeps(s *Service, cfg config.SchedulerConfig, sw Sweeps) error {
	if _, err := s.AddJob(CreditExpiryJob, cfg.CreditExpiryCron, sw.ExpireCredits); err != nil {
		return fmt.Errorf("register %s: %w", CreditExpiryJob, err)
	}
	if _, err := s.AddJob(HoldReleaseJob, cfg.HoldReleaseCron, sw.ReleaseHolds); err != nil {
		return fmt.Errorf("register %s: %w", HoldReleaseJob, err)
	}
	return nil
}
