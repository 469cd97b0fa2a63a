// cmd/quadractl/main.go
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/codr1/quadra/internal/config"
	"github.com/codr1/quadra/internal/credits"
	"github.com/codr1/quadra/internal/db"
	"github.com/codr1/quadra/internal/gateway"
	"github.com/codr1/quadra/internal/payments"
	"github.com/codr1/quadra/internal/scheduler"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "quadractl",
	Short:         "Operational commands for the quadra booking service",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.DefaultContextLogger = &log.Logger
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or inspect the embedded schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}
			log.Info().Msg("Migrations applied")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			log.Info().Msg("Migrations rolled back")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMigrator(func(m *migrate.Migrate) error {
			version, dirty, err := m.Version()
			if errors.Is(err, migrate.ErrNilVersion) {
				fmt.Fprintln(cmd.OutOrStdout(), "Version: none")
				return nil
			}
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %d, Dirty: %v\n", version, dirty)
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a scheduled sweep once",
}

var sweepCreditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Expire credit entries past their expiry date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := open()
		if err != nil {
			return err
		}
		defer database.Close()

		sw := scheduler.Sweeps{Credits: newLedger(cfg, database)}
		return sw.ExpireCredits(cmd.Context())
	},
}

var sweepHoldsCmd = &cobra.Command{
	Use:   "holds",
	Short: "Release open pre-authorizations past their release time",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := open()
		if err != nil {
			return err
		}
		defer database.Close()

		gw, err := gateway.NewHTTPClient(gateway.HTTPConfig{
			BaseURL:    cfg.Gateway.BaseURL,
			APIKey:     cfg.Gateway.APIKey,
			Timeout:    cfg.GatewayTimeout(),
			MaxRetries: cfg.Gateway.MaxRetries,
		})
		if err != nil {
			return fmt.Errorf("gateway client: %w", err)
		}
		svc := payments.NewService(database, gw, newLedger(cfg, database), nil, payments.Config{
			Location:       cfg.Location(),
			CloseWindow:    time.Duration(cfg.Booking.CloseWindowHours) * time.Hour,
			CaptureWindow:  time.Duration(cfg.PreAuth.CaptureWindowHours) * time.Hour,
			GatewayTimeout: cfg.GatewayTimeout(),
		})
		sw := scheduler.Sweeps{Holds: svc}
		return sw.ReleaseHolds(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/app.yaml", "Path to the yaml configuration file")

	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)

	rootCmd.AddCommand(sweepCmd)
	sweepCmd.AddCommand(sweepCreditsCmd, sweepHoldsCmd)
}

// open loads the configuration and opens the database, which applies
// pending migrations.
func open() (*config.Config, *db.DB, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, err
	}
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, database, nil
}

func newLedger(cfg *config.Config, database *db.DB) *credits.Ledger {
	return credits.NewLedger(database, credits.Config{
		MaxDebtCents:            cfg.Credits.MaxDebtCents,
		ReferralBonusCents:      cfg.Credits.ReferralBonusCents,
		ReferralDiscountPercent: cfg.Credits.ReferralDiscountPercent,
		Expiration:              time.Duration(cfg.Credits.ExpirationDays) * 24 * time.Hour,
	})
}

// withMigrator opens the sqlite file without migrating it so the schema
// commands act on the current state.
func withMigrator(fn func(*migrate.Migrate) error) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	sqlDB, err := db.Open(cfg.Database.Filename)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	m, err := db.NewMigrator(sqlDB)
	if err != nil {
		sqlDB.Close()
		return err
	}
	defer m.Close()
	return fn(m)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
