// Package cache provides Redis-backed suppression of repeat alerts.
// When Redis is unavailable the cache fails open: every symbol is treated
// as new and the scan loop is never blocked.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chartink-scanner-bot/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "chartink:alerted:%s"

// AlertCache remembers which symbols were alerted within the TTL window.
// A nil *AlertCache is valid and performs no deduplication.
type AlertCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger

	mu           sync.Mutex
	healthy      bool
	failureCount int
	maxFailures  int
}

// NewAlertCache connects to Redis and returns the cache, or nil when dedup
// is not configured.
func NewAlertCache(cfg config.RedisConfig, ttl time.Duration, logger zerolog.Logger) *AlertCache {
	if !cfg.Enabled || ttl <= 0 {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	c := &AlertCache{
		client:      client,
		ttl:         ttl,
		logger:      logger.With().Str("component", "alert_cache").Logger(),
		maxFailures: 3,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("initial Redis connection failed, dedup degraded")
		return c
	}

	c.healthy = true
	c.logger.Info().Str("address", cfg.Address).Dur("ttl", ttl).Msg("alert dedup cache connected")
	return c
}

// FilterNew returns the symbols that have not been alerted within the TTL
// window. On any Redis failure it returns all symbols unchanged.
func (c *AlertCache) FilterNew(ctx context.Context, symbols []string) []string {
	if c == nil || len(symbols) == 0 {
		return symbols
	}

	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = fmt.Sprintf(keyPrefix, s)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		c.recordFailure(err)
		return symbols
	}
	c.recordSuccess()

	fresh := make([]string, 0, len(symbols))
	for i, v := range values {
		if v == nil {
			fresh = append(fresh, symbols[i])
		}
	}
	if skipped := len(symbols) - len(fresh); skipped > 0 {
		c.logger.Debug().Int("suppressed", skipped).Msg("suppressed recently alerted symbols")
	}
	return fresh
}

// MarkAlerted records that the symbols were alerted now. Failures are logged
// and otherwise ignored.
func (c *AlertCache) MarkAlerted(ctx context.Context, symbols []string) {
	if c == nil || len(symbols) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for _, s := range symbols {
		pipe.Set(ctx, fmt.Sprintf(keyPrefix, s), 1, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.recordFailure(err)
		return
	}
	c.recordSuccess()
}

// Close releases the Redis connection.
func (c *AlertCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *AlertCache) recordFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failureCount++
	if c.failureCount >= c.maxFailures && c.healthy {
		c.healthy = false
		c.logger.Warn().Err(err).Int("failures", c.failureCount).Msg("Redis marked unhealthy, dedup failing open")
	}
}

func (c *AlertCache) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.healthy && c.failureCount > 0 {
		c.logger.Info().Msg("Redis recovered, dedup active")
	}
	c.failureCount = 0
	c.healthy = true
}
