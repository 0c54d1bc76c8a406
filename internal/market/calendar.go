// Package market implements the trading calendar: pure wall-clock checks
// that decide whether the scan loop should be running.
package market

import (
	"fmt"
	"time"

	"chartink-scanner-bot/config"
)

// ClosedReason explains why the trading window is closed
type ClosedReason string

const (
	ReasonWeekend    ClosedReason = "weekend"
	ReasonBeforeOpen ClosedReason = "before_open"
	ReasonAfterHours ClosedReason = "after_hours"
)

// Status is the calendar's verdict for a given instant
type Status struct {
	Open   bool
	Reason ClosedReason // empty when Open
}

func (s Status) String() string {
	if s.Open {
		return "open"
	}
	return fmt.Sprintf("closed (%s)", s.Reason)
}

// Calendar answers window-membership questions for a fixed daily trading
// window in a fixed timezone. It is pure: no I/O, no side effects.
type Calendar struct {
	startMinutes int // minutes since midnight, inclusive
	endMinutes   int // minutes since midnight, exclusive
	loc          *time.Location
}

func NewCalendar(w config.WindowConfig, loc *time.Location) *Calendar {
	return &Calendar{
		startMinutes: w.StartHour*60 + w.StartMinute,
		endMinutes:   w.EndHour*60 + w.EndMinute,
		loc:          loc,
	}
}

// Status reports whether the trading window is open at the given instant.
// The start boundary is inclusive, the end boundary exclusive.
func (c *Calendar) Status(now time.Time) Status {
	now = now.In(c.loc)

	if isWeekend(now.Weekday()) {
		return Status{Reason: ReasonWeekend}
	}

	minutes := now.Hour()*60 + now.Minute()
	switch {
	case minutes < c.startMinutes:
		return Status{Reason: ReasonBeforeOpen}
	case minutes >= c.endMinutes:
		return Status{Reason: ReasonAfterHours}
	default:
		return Status{Open: true}
	}
}

// NextOpen returns the next instant at which the window opens. If the window
// is already open it returns now unchanged.
func (c *Calendar) NextOpen(now time.Time) time.Time {
	now = now.In(c.loc)
	if c.Status(now).Open {
		return now
	}

	day := now
	// Same-day open still ahead of us
	if !isWeekend(day.Weekday()) && day.Hour()*60+day.Minute() < c.startMinutes {
		return c.openingAt(day)
	}

	day = day.AddDate(0, 0, 1)
	for isWeekend(day.Weekday()) {
		day = day.AddDate(0, 0, 1)
	}
	return c.openingAt(day)
}

// UntilNextOpen returns how long to wait until the window next opens.
// Returns zero when the window is already open.
func (c *Calendar) UntilNextOpen(now time.Time) time.Duration {
	next := c.NextOpen(now)
	if d := next.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (c *Calendar) openingAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		c.startMinutes/60, c.startMinutes%60, 0, 0, c.loc)
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}
