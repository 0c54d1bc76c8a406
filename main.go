package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartink-scanner-bot/config"
	"chartink-scanner-bot/internal/api"
	"chartink-scanner-bot/internal/cache"
	"chartink-scanner-bot/internal/chartink"
	"chartink-scanner-bot/internal/logging"
	"chartink-scanner-bot/internal/market"
	"chartink-scanner-bot/internal/notification"
	"chartink-scanner-bot/internal/orchestrator"
	"chartink-scanner-bot/internal/singleton"
	"chartink-scanner-bot/internal/vault"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	// Initialize structured logging
	logger := logging.New(cfg.LoggingConfig)
	logger.Info().Msg("chartink scanner bot starting")

	// Single-instance lock: a second copy must not double-fire alerts
	guard := singleton.NewGuard(cfg.LockConfig.FilePath, logger)
	handle, err := guard.Acquire()
	if err != nil {
		if errors.Is(err, singleton.ErrAlreadyRunning) {
			logger.Error().Err(err).Msg("another instance is already running, exiting")
		} else {
			logger.Error().Err(err).Msg("failed to acquire instance lock")
		}
		return 1
	}
	defer handle.Release()
	logger.Info().Str("instance_id", handle.InstanceID()).Msg("instance lock acquired")

	// Shutdown on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telegram credentials from Vault override the static config
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize vault client")
			return 1
		}
		creds, err := vaultClient.GetTelegramCredentials(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load telegram credentials from vault")
			return 1
		}
		cfg.NotificationConfig.Telegram.BotToken = creds.BotToken
		cfg.NotificationConfig.Telegram.ChatID = creds.ChatID
		logger.Info().Msg("telegram credentials loaded from vault")
	}

	// Notification manager
	notifyManager := notification.NewManager(cfg.NotificationConfig.Enabled)
	if cfg.NotificationConfig.Telegram.Enabled {
		notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  cfg.NotificationConfig.Telegram.Enabled,
		}))
		logger.Info().Msg("telegram notifications enabled")
	}
	if cfg.NotificationConfig.Discord.Enabled {
		notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    cfg.NotificationConfig.Discord.Enabled,
		}))
		logger.Info().Msg("discord notifications enabled")
	}

	// Alert dedup cache; nil when Redis or the TTL is not configured
	dedupTTL := time.Duration(cfg.NotificationConfig.DedupTTLMinutes) * time.Minute
	alertCache := cache.NewAlertCache(cfg.RedisConfig, dedupTTL, logger)
	defer alertCache.Close()

	// Screener client and trading calendar
	client := chartink.NewClient(cfg.ChartinkConfig, logger)
	calendar := market.NewCalendar(cfg.WindowConfig, cfg.Location())

	var dedup orchestrator.Dedup
	if alertCache != nil {
		dedup = alertCache
	}
	orch := orchestrator.New(cfg, calendar, client, notifyManager, dedup, logger)

	// Status server runs beside the scan loop
	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, orch, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error().Err(err).Msg("status server failed")
			}
		}()
	}

	if err := orch.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("scan loop failed")
		return 1
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("status server shutdown failed")
		}
	}

	logger.Info().Msg("shutdown complete")
	return 0
}
