// cmd/server/server.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/quadra/internal/api"
	"github.com/codr1/quadra/internal/api/handlers"
	"github.com/codr1/quadra/internal/availability"
	"github.com/codr1/quadra/internal/booking"
	"github.com/codr1/quadra/internal/config"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/email"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/invitations"
	"github.com/codr1/quadra/internal/notify"
	"github.com/codr1/quadra/internal/payments"
	"github.com/codr1/quadra/internal/ratelimit"
	"github.com/codr1/quadra/internal/scheduler"
)

type app struct {
	server    *http.Server
	db        *db.DB
	scheduler *scheduler.Service
	limiter   *ratelimit.Limiter
	closeOnce sync.Once
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: database}

	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	gw, err := gateway.NewHTTPClient(gateway.HTTPConfig{
		BaseURL:    cfg.Gateway.BaseURL,
		APIKey:     cfg.Gateway.APIKey,
		Timeout:    cfg.GatewayTimeout(),
		MaxRetries: cfg.Gateway.MaxRetries,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("gateway client: %w", err)
	}

	loc := cfg.Location()
	closeWindow := time.Duration(cfg.Booking.CloseWindowHours) * time.Hour

	ledger := credits.NewLedger(database, credits.Config{
		MaxDebtCents:            cfg.Credits.MaxDebtCents,
		ReferralBonusCents:      cfg.Credits.ReferralBonusCents,
		ReferralDiscountPercent: cfg.Credits.ReferralDiscountPercent,
		Expiration:              time.Duration(cfg.Credits.ExpirationDays) * 24 * time.Hour,
	})
	resolver := availability.NewResolver(loc, time.Duration(cfg.Booking.MinAdvanceHours)*time.Hour)

	paymentSvc := payments.NewService(database, gw, ledger, notifier, payments.Config{
		AutoConfirm:    payments.AutoConfirm(cfg.Booking.AutoConfirmPolicy),
		Location:       loc,
		CloseWindow:    closeWindow,
		CaptureWindow:  time.Duration(cfg.PreAuth.CaptureWindowHours) * time.Hour,
		GatewayTimeout: cfg.GatewayTimeout(),
	})
	bookingSvc := booking.NewService(database, resolver, ledger, paymentSvc, notifier, booking.Config{
		Location:    loc,
		CloseWindow: closeWindow,
		Refunds: booking.RefundPolicy{
			Full: time.Duration(cfg.Booking.FullRefundHours) * time.Hour,
			Half: time.Duration(cfg.Booking.HalfRefundHours) * time.Hour,
		},
		MinCancelReason: cfg.Booking.MinCancelReason,
	})
	invitationSvc := invitations.NewService(database, notifier, invitations.Config{
		Location:    loc,
		CloseWindow: closeWindow,
		PhoneRegion: cfg.Booking.PhoneRegion,
	})

	a.scheduler, err = scheduler.New()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if err := scheduler.RegisterSweeps(a.scheduler, cfg.Scheduler, scheduler.Sweeps{
		Credits: ledger,
		Holds:   paymentSvc,
	}); err != nil {
		a.close()
		return nil, err
	}
	a.scheduler.Start()

	a.limiter = ratelimit.New(&ratelimit.Config{
		Window:      cfg.RateLimitWindow(),
		MaxRequests: cfg.RateLimit.MaxRequests,
		TrustProxy:  cfg.RateLimit.TrustProxy,
	})

	router := http.NewServeMux()
	handlers.New(handlers.Deps{
		DB:            database,
		Resolver:      resolver,
		Bookings:      bookingSvc,
		Invitations:   invitationSvc,
		Ledger:        ledger,
		Payments:      paymentSvc,
		AcceptLimiter: a.limiter,
		WebhookToken:  cfg.Gateway.WebhookToken,
		EnableMetrics: cfg.Features.EnableMetrics,
	}).Register(router)

	// WithLogging stays innermost so it sees the matched route pattern.
	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithAuth,
		api.WithRecovery,
		api.WithRequestID,
	)

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func newNotifier(ctx context.Context, cfg *config.Config) (notify.Dispatcher, error) {
	switch cfg.Notifications.Driver {
	case "ses":
		client, err := email.NewSESClient(ctx,
			cfg.Notifications.AWSRegion,
			cfg.Notifications.Sender,
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
		)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return notify.NewAsync(notify.EmailDispatcher{Sender: client, Recipient: cfg.Notifications.Recipient}, 0), nil
	default:
		return notify.NewAsync(notify.LogDispatcher{Logger: log.Logger}, 0), nil
	}
}

func (a *app) close() {
	a.closeOnce.Do(func() {
		if a.scheduler != nil {
			if err := a.scheduler.Stop(); err != nil {
				log.Error().Err(err).Msg("Failed to stop scheduler")
			}
		}
		if a.limiter != nil {
			a.limiter.Close()
		}
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close database")
			}
		}
	})
}
