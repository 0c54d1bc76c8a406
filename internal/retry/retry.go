// Package retry wraps fallible operations with bounded retries and
// exponential backoff. Used identically for the scan fetch and the
// notification send.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExhaustedError reports that every attempt of an operation failed.
// It unwraps to the last attempt's error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Policy holds the retry parameters. It keeps no state across calls:
// every Do starts a fresh attempt counter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	logger      zerolog.Logger

	// sleep is swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, logger zerolog.Logger) *Policy {
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		logger:      logger.With().Str("component", "retry").Logger(),
		sleep:       sleepCtx,
	}
}

// Do runs fn until it succeeds or MaxAttempts have failed. Between failures
// it sleeps for BaseDelay doubled per attempt, capped at MaxDelay; the sleep
// aborts early when ctx is cancelled. Every failed attempt is logged, and
// exhaustion surfaces as *ExhaustedError wrapping the last error.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 1 {
				p.logger.Info().
					Str("op", op).
					Int("attempt", attempt).
					Msg("operation recovered")
			}
			return nil
		}

		p.logger.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", p.MaxAttempts).
			Err(lastErr).
			Msg("attempt failed")

		if attempt < p.MaxAttempts {
			delay := p.delayFor(attempt)
			if err := p.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}

	exhausted := &ExhaustedError{Op: op, Attempts: p.MaxAttempts, Last: lastErr}
	p.logger.Error().
		Str("op", op).
		Int("attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("retries exhausted")
	return exhausted
}

// delayFor computes the backoff before the next attempt: BaseDelay * 2^(n-1),
// capped at MaxDelay.
func (p *Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
