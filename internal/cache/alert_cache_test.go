package cache

import (
	"context"
	"testing"
	"time"

	"chartink-scanner-bot/config"

	"github.com/rs/zerolog"
)

func TestNilCacheFailsOpen(t *testing.T) {
	var c *AlertCache

	symbols := []string{"TCS", "INFY"}
	got := c.FilterNew(context.Background(), symbols)
	if len(got) != 2 {
		t.Errorf("nil cache FilterNew = %v, want passthrough", got)
	}

	// No-ops, must not panic
	c.MarkAlerted(context.Background(), symbols)
	if err := c.Close(); err != nil {
		t.Errorf("nil cache Close = %v", err)
	}
}

func TestDisabledConfigReturnsNil(t *testing.T) {
	if c := NewAlertCache(config.RedisConfig{Enabled: false}, time.Hour, zerolog.Nop()); c != nil {
		t.Error("disabled Redis config should yield a nil cache")
	}
	if c := NewAlertCache(config.RedisConfig{Enabled: true}, 0, zerolog.Nop()); c != nil {
		t.Error("zero TTL should yield a nil cache")
	}
}
