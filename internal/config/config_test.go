package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadKeepsDefaultsAndReadsEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `app:
  name: quadra-test
  port: 9090
credits:
  max_debt_cents: 5000
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GATEWAY_API_KEY=secret\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("GATEWAY_API_KEY", "")
	os.Unsetenv("GATEWAY_API_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.App.Port)
	}
	if cfg.Credits.MaxDebtCents != 5000 {
		t.Fatalf("expected max debt 5000, got %d", cfg.Credits.MaxDebtCents)
	}
	if cfg.Credits.ReferralBonusCents != 2000 {
		t.Fatalf("expected default referral bonus, got %d", cfg.Credits.ReferralBonusCents)
	}
	if cfg.Booking.AutoConfirmPolicy != AutoConfirmFirstPayment {
		t.Fatalf("expected default auto confirm policy, got %q", cfg.Booking.AutoConfirmPolicy)
	}
	if cfg.Gateway.APIKey != "secret" {
		t.Fatalf("expected api key from .env, got %q", cfg.Gateway.APIKey)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad timezone", func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad cron", func(c *Config) { c.Scheduler.HoldReleaseCron = "every minute" }, "hold_release_cron"},
		{"bad policy", func(c *Config) { c.Booking.AutoConfirmPolicy = "never" }, "auto confirm"},
		{"inverted refund tiers", func(c *Config) { c.Booking.HalfRefundHours = 48 }, "half refund"},
		{"ses without sender", func(c *Config) { c.Notifications.Driver = "ses" }, "sender"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "unsupported database driver"},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxRequests = 0 }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
