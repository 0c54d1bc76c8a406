package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.ChartinkConfig.ScanClause = "( {cash} ( latest close > 100 ) )"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config with scan clause should validate, got %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "window start after end",
			mutate:  func(c *Config) { c.WindowConfig.StartHour = 16 },
			wantMsg: "must precede",
		},
		{
			name:    "window start equals end",
			mutate:  func(c *Config) { c.WindowConfig.StartHour, c.WindowConfig.StartMinute = 15, 15 },
			wantMsg: "must precede",
		},
		{
			name:    "hour out of range",
			mutate:  func(c *Config) { c.WindowConfig.EndHour = 24 },
			wantMsg: "out of range",
		},
		{
			name:    "zero scan interval",
			mutate:  func(c *Config) { c.WindowConfig.ScanIntervalMinutes = -5 },
			wantMsg: "scan interval",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.WindowConfig.Timezone = "Mars/Olympus" },
			wantMsg: "timezone",
		},
		{
			name:    "missing scan clause",
			mutate:  func(c *Config) { c.ChartinkConfig.ScanClause = "" },
			wantMsg: "scan clause",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.RetryConfig.MaxAttempts = 0 },
			wantMsg: "retry max attempts",
		},
		{
			name: "telegram enabled without credentials",
			mutate: func(c *Config) {
				c.NotificationConfig.Enabled = true
				c.NotificationConfig.Telegram.Enabled = true
			},
			wantMsg: "bot token or chat id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate should have failed")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestVaultSuppliesTelegramCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.NotificationConfig.Enabled = true
	cfg.NotificationConfig.Telegram.Enabled = true
	cfg.VaultConfig.Enabled = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("vault-backed telegram should not require static credentials, got %v", err)
	}
}

func TestDefaultWindow(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	w := cfg.WindowConfig
	if w.StartHour != 9 || w.StartMinute != 15 {
		t.Errorf("default open = %02d:%02d, want 09:15", w.StartHour, w.StartMinute)
	}
	if w.EndHour != 15 || w.EndMinute != 15 {
		t.Errorf("default close = %02d:%02d, want 15:15", w.EndHour, w.EndMinute)
	}
	if w.ScanIntervalMinutes != 15 {
		t.Errorf("default interval = %d, want 15", w.ScanIntervalMinutes)
	}
	if w.Timezone != "Asia/Kolkata" {
		t.Errorf("default timezone = %q, want Asia/Kolkata", w.Timezone)
	}
}
