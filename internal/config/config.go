// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Filename string `yaml:"filename"`
}

// BookingConfig holds the business rules of the orchestrator.
type BookingConfig struct {
	Timezone          string `yaml:"timezone"`
	MinAdvanceHours   int    `yaml:"min_advance_hours"`
	CloseWindowHours  int    `yaml:"close_window_hours"`
	FullRefundHours   int    `yaml:"full_refund_hours"`
	HalfRefundHours   int    `yaml:"half_refund_hours"`
	AutoConfirmPolicy string `yaml:"auto_confirm_policy"`
	MinCancelReason   int    `yaml:"min_cancel_reason"`
	// PhoneRegion applies to guest phone numbers given without a country code.
	PhoneRegion string `yaml:"phone_region"`
}

type CreditsConfig struct {
	MaxDebtCents            int64 `yaml:"max_debt_cents"`
	ReferralBonusCents      int64 `yaml:"referral_bonus_cents"`
	ReferralDiscountPercent int64 `yaml:"referral_discount_percent"`
	ExpirationDays          int   `yaml:"expiration_days"`
}

type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
	APIKey         string `yaml:"-"` // Loaded from environment
	WebhookToken   string `yaml:"-"` // Loaded from environment
}

type PreAuthConfig struct {
	CaptureWindowHours int `yaml:"capture_window_hours"`
}

type SchedulerConfig struct {
	CreditExpiryCron string `yaml:"credit_expiry_cron"`
	HoldReleaseCron  string `yaml:"hold_release_cron"`
}

// RateLimitConfig throttles the public invitation acceptance endpoint per
// client IP.
type RateLimitConfig struct {
	WindowSeconds int  `yaml:"window_seconds"`
	MaxRequests   int  `yaml:"max_requests"`
	TrustProxy    bool `yaml:"trust_proxy"`
}

type NotificationsConfig struct {
	Driver    string `yaml:"driver"`
	Sender    string `yaml:"sender"`
	Recipient string `yaml:"recipient"`
	AWSRegion string `yaml:"aws_region"`
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
		BaseURL     string `yaml:"base_url"`
	} `yaml:"app"`

	Database DatabaseConfig `yaml:"database"`

	Features struct {
		EnableMetrics bool `yaml:"enable_metrics"`
		EnableDebug   bool `yaml:"enable_debug"`
	} `yaml:"features"`

	Booking       BookingConfig       `yaml:"booking"`
	Credits       CreditsConfig       `yaml:"credits"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	PreAuth       PreAuthConfig       `yaml:"preauth"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

const (
	AutoConfirmFirstPayment = "first_payment"
	AutoConfirmFullPayment  = "full_payment"
)

// Default returns a configuration with every business default filled in.
func Default() *Config {
	var cfg Config
	cfg.App.Name = "quadra"
	cfg.App.Environment = "development"
	cfg.App.Port = 8080
	cfg.Database = DatabaseConfig{Driver: "sqlite", Filename: "data/quadra.db"}
	cfg.Booking = BookingConfig{
		Timezone:          "America/Sao_Paulo",
		MinAdvanceHours:   1,
		CloseWindowHours:  2,
		FullRefundHours:   24,
		HalfRefundHours:   12,
		AutoConfirmPolicy: AutoConfirmFirstPayment,
		MinCancelReason:   10,
		PhoneRegion:       "BR",
	}
	cfg.Credits = CreditsConfig{
		MaxDebtCents:            20000,
		ReferralBonusCents:      2000,
		ReferralDiscountPercent: 10,
		ExpirationDays:          180,
	}
	cfg.Gateway = GatewayConfig{BaseURL: "https://sandbox.asaas.com/api/v3", TimeoutSeconds: 10, MaxRetries: 3}
	cfg.PreAuth = PreAuthConfig{CaptureWindowHours: 4}
	cfg.Scheduler = SchedulerConfig{
		CreditExpiryCron: "0 3 * * *",
		HoldReleaseCron:  "*/15 * * * *",
	}
	cfg.Notifications = NotificationsConfig{Driver: "log"}
	cfg.RateLimit = RateLimitConfig{WindowSeconds: 60, MaxRequests: 10}
	return &cfg
}

// Load loads both .env and yaml configuration. Values missing from the yaml
// file keep their defaults.
func Load(configPath string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Load sensitive values from environment
	cfg.Gateway.APIKey = os.Getenv("GATEWAY_API_KEY")
	cfg.Gateway.WebhookToken = os.Getenv("GATEWAY_WEBHOOK_TOKEN")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Filename == "" {
			return fmt.Errorf("database filename is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", c.Booking.Timezone, err)
	}
	if c.Booking.MinAdvanceHours < 0 || c.Booking.CloseWindowHours < 0 {
		return fmt.Errorf("booking windows must not be negative")
	}
	if c.Booking.HalfRefundHours > c.Booking.FullRefundHours {
		return fmt.Errorf("half refund hours (%d) must not exceed full refund hours (%d)",
			c.Booking.HalfRefundHours, c.Booking.FullRefundHours)
	}
	switch c.Booking.AutoConfirmPolicy {
	case AutoConfirmFirstPayment, AutoConfirmFullPayment:
	default:
		return fmt.Errorf("unsupported auto confirm policy: %s", c.Booking.AutoConfirmPolicy)
	}

	if c.Credits.MaxDebtCents < 0 {
		return fmt.Errorf("credits max debt must not be negative")
	}
	if c.Credits.ReferralDiscountPercent < 0 || c.Credits.ReferralDiscountPercent > 100 {
		return fmt.Errorf("referral discount percent must be between 0 and 100")
	}

	if c.Gateway.TimeoutSeconds <= 0 {
		return fmt.Errorf("gateway timeout must be positive")
	}
	if c.Gateway.MaxRetries < 0 {
		return fmt.Errorf("gateway max retries must not be negative")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for name, expr := range map[string]string{
		"credit_expiry_cron": c.Scheduler.CreditExpiryCron,
		"hold_release_cron":  c.Scheduler.HoldReleaseCron,
	} {
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid scheduler %s %q: %w", name, expr, err)
		}
	}

	if c.RateLimit.WindowSeconds <= 0 || c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate limit window and max requests must be positive")
	}

	switch c.Notifications.Driver {
	case "log", "":
	case "ses":
		if c.Notifications.Sender == "" {
			return fmt.Errorf("notifications sender is required for ses")
		}
	default:
		return fmt.Errorf("unsupported notifications driver: %s", c.Notifications.Driver)
	}

	return nil
}

// Location returns the facility timezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}
