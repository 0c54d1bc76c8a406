package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ChartinkConfig     ChartinkConfig     `json:"chartink"`
	WindowConfig       WindowConfig       `json:"trading_window"`
	RetryConfig        RetryConfig        `json:"retry"`
	NotificationConfig NotificationConfig `json:"notification"`
	LockConfig         LockConfig         `json:"lock"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	RedisConfig        RedisConfig        `json:"redis"`
	VaultConfig        VaultConfig        `json:"vault"`
	ServerConfig       ServerConfig       `json:"server"`
}

// ChartinkConfig holds the screener endpoint and the scan clause
type ChartinkConfig struct {
	URL            string `json:"url"`
	ScanClause     string `json:"scan_clause"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// WindowConfig holds the daily trading window and scan cadence
type WindowConfig struct {
	StartHour           int    `json:"start_hour"`
	StartMinute         int    `json:"start_minute"`
	EndHour             int    `json:"end_hour"`
	EndMinute           int    `json:"end_minute"`
	ScanIntervalMinutes int    `json:"scan_interval_minutes"`
	Timezone            string `json:"timezone"` // IANA name, e.g. "Asia/Kolkata"
}

type RetryConfig struct {
	MaxAttempts      int `json:"max_attempts"`
	BaseDelaySeconds int `json:"base_delay_seconds"`
	MaxDelaySeconds  int `json:"max_delay_seconds"`
}

type NotificationConfig struct {
	Enabled         bool           `json:"enabled"`
	Telegram        TelegramConfig `json:"telegram"`
	Discord         DiscordConfig  `json:"discord"`
	DedupTTLMinutes int            `json:"dedup_ttl_minutes"` // 0 disables alert dedup
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// LockConfig holds the single-instance lock settings
type LockConfig struct {
	FilePath string `json:"file_path"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // JSON output, console writer otherwise
}

// RedisConfig holds Redis configuration for the alert dedup cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration for messaging credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // path of the telegram credential secret
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// ServerConfig holds the status HTTP server configuration
type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Chartink config
	cfg.ChartinkConfig.URL = getEnvOrDefault("CHARTINK_URL", cfg.ChartinkConfig.URL)
	cfg.ChartinkConfig.ScanClause = getEnvOrDefault("CHARTINK_SCAN_CLAUSE", cfg.ChartinkConfig.ScanClause)
	cfg.ChartinkConfig.TimeoutSeconds = getEnvIntOrDefault("CHARTINK_TIMEOUT_SECONDS", cfg.ChartinkConfig.TimeoutSeconds)

	// Trading window config
	cfg.WindowConfig.StartHour = getEnvIntOrDefault("TRADING_START_HOUR", cfg.WindowConfig.StartHour)
	cfg.WindowConfig.StartMinute = getEnvIntOrDefault("TRADING_START_MINUTE", cfg.WindowConfig.StartMinute)
	cfg.WindowConfig.EndHour = getEnvIntOrDefault("TRADING_END_HOUR", cfg.WindowConfig.EndHour)
	cfg.WindowConfig.EndMinute = getEnvIntOrDefault("TRADING_END_MINUTE", cfg.WindowConfig.EndMinute)
	cfg.WindowConfig.ScanIntervalMinutes = getEnvIntOrDefault("SCAN_INTERVAL_MINUTES", cfg.WindowConfig.ScanIntervalMinutes)
	cfg.WindowConfig.Timezone = getEnvOrDefault("TRADING_TIMEZONE", cfg.WindowConfig.Timezone)

	// Retry config
	cfg.RetryConfig.MaxAttempts = getEnvIntOrDefault("RETRY_MAX_ATTEMPTS", cfg.RetryConfig.MaxAttempts)
	cfg.RetryConfig.BaseDelaySeconds = getEnvIntOrDefault("RETRY_BASE_DELAY_SECONDS", cfg.RetryConfig.BaseDelaySeconds)
	cfg.RetryConfig.MaxDelaySeconds = getEnvIntOrDefault("RETRY_MAX_DELAY_SECONDS", cfg.RetryConfig.MaxDelaySeconds)

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolString(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
	cfg.NotificationConfig.DedupTTLMinutes = getEnvIntOrDefault("ALERT_DEDUP_TTL_MINUTES", cfg.NotificationConfig.DedupTTLMinutes)

	// Lock config
	cfg.LockConfig.FilePath = getEnvOrDefault("LOCK_FILE", cfg.LockConfig.FilePath)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", boolString(cfg.LoggingConfig.JSONFormat)) == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.RedisConfig.PoolSize)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", boolString(cfg.VaultConfig.TLSEnabled)) == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("WEB_ENABLED", boolString(cfg.ServerConfig.Enabled)) == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("WEB_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("WEB_SHUTDOWN_TIMEOUT", cfg.ServerConfig.ShutdownTimeout)
}

// applyDefaults fills in values that are still unset after file and env
func applyDefaults(cfg *Config) {
	if cfg.ChartinkConfig.URL == "" {
		cfg.ChartinkConfig.URL = "https://chartink.com/screener/process"
	}
	if cfg.ChartinkConfig.TimeoutSeconds == 0 {
		cfg.ChartinkConfig.TimeoutSeconds = 15
	}
	if cfg.WindowConfig.StartHour == 0 && cfg.WindowConfig.StartMinute == 0 {
		cfg.WindowConfig.StartHour = 9
		cfg.WindowConfig.StartMinute = 15
	}
	if cfg.WindowConfig.EndHour == 0 && cfg.WindowConfig.EndMinute == 0 {
		cfg.WindowConfig.EndHour = 15
		cfg.WindowConfig.EndMinute = 15
	}
	if cfg.WindowConfig.ScanIntervalMinutes == 0 {
		cfg.WindowConfig.ScanIntervalMinutes = 15
	}
	if cfg.WindowConfig.Timezone == "" {
		cfg.WindowConfig.Timezone = "Asia/Kolkata"
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig.MaxAttempts = 3
	}
	if cfg.RetryConfig.BaseDelaySeconds == 0 {
		cfg.RetryConfig.BaseDelaySeconds = 2
	}
	if cfg.RetryConfig.MaxDelaySeconds == 0 {
		cfg.RetryConfig.MaxDelaySeconds = 60
	}
	if cfg.LockConfig.FilePath == "" {
		cfg.LockConfig.FilePath = "chartink_bot.lock"
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
	if cfg.LoggingConfig.Output == "" {
		cfg.LoggingConfig.Output = "stdout"
	}
	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 5
	}
	if cfg.VaultConfig.MountPath == "" {
		cfg.VaultConfig.MountPath = "secret"
	}
	if cfg.VaultConfig.SecretPath == "" {
		cfg.VaultConfig.SecretPath = "chartink-bot/telegram"
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8088
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}
}

// Validate checks invariants that must hold before the bot starts.
// A violation here is fatal: abort startup, no retry.
func (c *Config) Validate() error {
	w := c.WindowConfig
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("trading window hours out of range: start=%02d end=%02d", w.StartHour, w.EndHour)
	}
	if w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return fmt.Errorf("trading window minutes out of range: start=%02d end=%02d", w.StartMinute, w.EndMinute)
	}
	start := w.StartHour*60 + w.StartMinute
	end := w.EndHour*60 + w.EndMinute
	if start >= end {
		return fmt.Errorf("trading window start %02d:%02d must precede end %02d:%02d",
			w.StartHour, w.StartMinute, w.EndHour, w.EndMinute)
	}
	if w.ScanIntervalMinutes <= 0 {
		return fmt.Errorf("scan interval must be positive, got %d minutes", w.ScanIntervalMinutes)
	}
	if _, err := time.LoadLocation(w.Timezone); err != nil {
		return fmt.Errorf("invalid trading timezone %q: %w", w.Timezone, err)
	}
	if c.ChartinkConfig.ScanClause == "" {
		return fmt.Errorf("chartink scan clause is required")
	}
	if c.RetryConfig.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.RetryConfig.MaxAttempts)
	}
	if c.NotificationConfig.Enabled && c.NotificationConfig.Telegram.Enabled && !c.VaultConfig.Enabled {
		if c.NotificationConfig.Telegram.BotToken == "" || c.NotificationConfig.Telegram.ChatID == "" {
			return fmt.Errorf("telegram enabled but bot token or chat id missing")
		}
	}
	return nil
}

// Location returns the configured trading timezone.
// Validate must have been called first.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.WindowConfig.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
