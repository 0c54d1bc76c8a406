// Package orchestrator drives the scan loop: it watches the trading
// calendar, polls the screener on a fixed cadence while the window is
// open, and forwards non-empty results to the notifiers.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"chartink-scanner-bot/config"
	"chartink-scanner-bot/internal/chartink"
	"chartink-scanner-bot/internal/market"
	"chartink-scanner-bot/internal/notification"
	"chartink-scanner-bot/internal/retry"

	"github.com/rs/zerolog"
)

// State names the phase the scan loop is currently in
type State string

const (
	StateWaiting  State = "waiting_for_window"
	StateScanning State = "scanning"
	StateSleeping State = "sleeping"
	StateStopped  State = "stopped"
)

// ScanSource fetches screener results. Satisfied by *chartink.Client.
type ScanSource interface {
	Fetch(ctx context.Context, scanClause string) (chartink.ScanResult, error)
}

// Alerter delivers a formatted alert. Satisfied by *notification.Manager.
type Alerter interface {
	Send(text string) error
	IsEnabled() bool
}

// Dedup suppresses symbols that were already alerted recently.
// Satisfied by *cache.AlertCache; may be nil when dedup is not configured.
type Dedup interface {
	FilterNew(ctx context.Context, symbols []string) []string
	MarkAlerted(ctx context.Context, symbols []string)
}

// Snapshot is a point-in-time copy of the loop state for the status API
type Snapshot struct {
	State              State          `json:"state"`
	CyclesRun          int            `json:"cycles_run"`
	LastScanAt         time.Time      `json:"last_scan_at"`
	LastRowCount       int            `json:"last_row_count"`
	LastError          string         `json:"last_error,omitempty"`
	FetchFailureStreak int            `json:"fetch_failure_streak"`
	AlertsSent         int            `json:"alerts_sent"`
	LastResult         []chartink.Row `json:"-"`
}

// Orchestrator runs the window-gated scan loop. Create with New, then call
// Run once; Run returns when the context is cancelled.
type Orchestrator struct {
	calendar     *market.Calendar
	source       ScanSource
	alerter      Alerter
	dedup        Dedup
	fetchPolicy  *retry.Policy
	notifyPolicy *retry.Policy
	scanClause   string
	interval     time.Duration
	logger       zerolog.Logger

	// clock and sleep are swappable in tests
	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	snap Snapshot
}

func New(cfg *config.Config, cal *market.Calendar, source ScanSource, alerter Alerter, dedup Dedup, logger zerolog.Logger) *Orchestrator {
	r := cfg.RetryConfig
	base := time.Duration(r.BaseDelaySeconds) * time.Second
	max := time.Duration(r.MaxDelaySeconds) * time.Second

	return &Orchestrator{
		calendar:     cal,
		source:       source,
		alerter:      alerter,
		dedup:        dedup,
		fetchPolicy:  retry.NewPolicy(r.MaxAttempts, base, max, logger),
		notifyPolicy: retry.NewPolicy(r.MaxAttempts, base, max, logger),
		scanClause:   cfg.ChartinkConfig.ScanClause,
		interval:     time.Duration(cfg.WindowConfig.ScanIntervalMinutes) * time.Minute,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		clock:        time.Now,
		sleep:        sleepCtx,
		snap:         Snapshot{State: StateWaiting},
	}
}

// Run blocks until ctx is cancelled. Fetch or delivery failures are logged
// and absorbed; they never stop the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info().
		Dur("interval", o.interval).
		Msg("scan loop starting")

	for {
		if ctx.Err() != nil {
			o.setState(StateStopped)
			o.logger.Info().Msg("scan loop stopped")
			return nil
		}

		now := o.clock()
		status := o.calendar.Status(now)
		if !status.Open {
			wait := o.calendar.UntilNextOpen(now)
			o.setState(StateWaiting)
			o.logger.Info().
				Str("reason", string(status.Reason)).
				Time("next_open", o.calendar.NextOpen(now)).
				Dur("wait", wait).
				Msg("trading window closed, waiting")
			o.sleep(ctx, wait)
			continue
		}

		o.setState(StateScanning)
		o.runCycle(ctx)

		if ctx.Err() != nil {
			continue
		}
		o.setState(StateSleeping)
		o.sleep(ctx, o.interval)
	}
}

// runCycle performs one fetch-and-notify pass. A cycle that started while
// the window was open always completes, even if the window closes mid-cycle.
func (o *Orchestrator) runCycle(ctx context.Context) {
	var result chartink.ScanResult
	err := o.fetchPolicy.Do(ctx, "chartink scan", func(ctx context.Context) error {
		var fetchErr error
		result, fetchErr = o.source.Fetch(ctx, o.scanClause)
		return fetchErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		o.recordFetchFailure(err)
		return
	}

	o.recordFetch(result)

	if result.Empty() {
		o.logger.Info().Msg("scan matched no stocks, nothing to send")
		return
	}
	o.logger.Info().Int("rows", len(result.Rows)).Msg("scan matched stocks")

	if o.alerter == nil || !o.alerter.IsEnabled() {
		o.logger.Debug().Msg("notifications disabled, skipping delivery")
		return
	}

	rows := result.Rows
	var fresh []string
	if o.dedup != nil {
		symbols := make([]string, len(rows))
		for i, row := range rows {
			symbols[i] = row.String("nsecode")
		}
		fresh = o.dedup.FilterNew(ctx, symbols)
		if len(fresh) == 0 {
			o.logger.Info().Int("suppressed", len(rows)).Msg("all matches alerted recently, nothing to send")
			return
		}
		rows = keepSymbols(rows, fresh)
	}

	message := notification.FormatScanAlert(chartink.ScanResult{Rows: rows, FetchedAt: result.FetchedAt})
	err = o.notifyPolicy.Do(ctx, "alert delivery", func(ctx context.Context) error {
		return o.alerter.Send(message)
	})
	if err != nil {
		if ctx.Err() == nil {
			o.recordError(err)
		}
		return
	}

	o.recordAlert()
	if o.dedup != nil {
		o.dedup.MarkAlerted(ctx, fresh)
	}
}

// Snapshot returns a copy of the current loop state
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := o.snap
	snap.LastResult = append([]chartink.Row(nil), o.snap.LastResult...)
	return snap
}

func keepSymbols(rows []chartink.Row, symbols []string) []chartink.Row {
	keep := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		keep[s] = true
	}
	out := make([]chartink.Row, 0, len(symbols))
	for _, row := range rows {
		if keep[row.String("nsecode")] {
			out = append(out, row)
		}
	}
	return out
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.snap.State = s
	o.mu.Unlock()
}

func (o *Orchestrator) recordFetch(result chartink.ScanResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.snap.CyclesRun++
	o.snap.LastScanAt = result.FetchedAt
	o.snap.LastRowCount = len(result.Rows)
	o.snap.LastResult = result.Rows
	o.snap.LastError = ""
	o.snap.FetchFailureStreak = 0
}

func (o *Orchestrator) recordFetchFailure(err error) {
	o.mu.Lock()
	o.snap.CyclesRun++
	o.snap.LastError = err.Error()
	o.snap.FetchFailureStreak++
	streak := o.snap.FetchFailureStreak
	o.mu.Unlock()

	o.logger.Error().Err(err).Int("failure_streak", streak).Msg("scan cycle failed, will retry next interval")
}

func (o *Orchestrator) recordError(err error) {
	o.mu.Lock()
	o.snap.LastError = err.Error()
	o.mu.Unlock()

	o.logger.Error().Err(err).Msg("alert delivery failed")
}

func (o *Orchestrator) recordAlert() {
	o.mu.Lock()
	o.snap.AlertsSent++
	o.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
