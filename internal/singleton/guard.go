// Package singleton enforces that only one bot instance runs at a time,
// using a lock file whose owner is liveness-checked on acquisition.
package singleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrAlreadyRunning means a live prior instance holds the lock. This is a
// fatal precondition: the new instance must exit, not retry.
var ErrAlreadyRunning = errors.New("another instance is already running")

// claim is the JSON payload stored in the lock file
type claim struct {
	PID        int       `json:"pid"`
	InstanceID string    `json:"instance_id"`
	StartedAt  time.Time `json:"started_at"`
}

// Guard acquires and releases the single-instance lock
type Guard struct {
	path   string
	logger zerolog.Logger

	// alive is swappable in tests
	alive func(pid int) bool
}

func NewGuard(path string, logger zerolog.Logger) *Guard {
	return &Guard{
		path:   path,
		logger: logger.With().Str("component", "singleton").Logger(),
		alive:  processAlive,
	}
}

// Acquire claims the lock. A claim held by a dead process (or a PID reused by
// an unrelated executable) is treated as stale and reclaimed; a claim held by
// a live instance fails with ErrAlreadyRunning.
func (g *Guard) Acquire() (*Handle, error) {
	if existing, err := g.readClaim(); err == nil {
		if g.alive(existing.PID) {
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, existing.PID, g.path)
		}
		g.logger.Warn().
			Int("stale_pid", existing.PID).
			Str("stale_instance", existing.InstanceID).
			Msg("reclaiming stale lock")
		if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
	}

	c := claim{
		PID:        os.Getpid(),
		InstanceID: uuid.NewString(),
		StartedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock claim: %w", err)
	}

	// O_EXCL closes the race between two instances reclaiming at once
	file, err := os.OpenFile(g.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: lock file %s reappeared", ErrAlreadyRunning, g.path)
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(g.path)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(g.path)
		return nil, fmt.Errorf("failed to close lock file: %w", err)
	}

	g.logger.Info().
		Int("pid", c.PID).
		Str("instance", c.InstanceID).
		Str("path", g.path).
		Msg("lock acquired")

	return &Handle{path: g.path, instanceID: c.InstanceID, logger: g.logger}, nil
}

func (g *Guard) readClaim() (*claim, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, err
	}
	var c claim
	if err := json.Unmarshal(data, &c); err != nil {
		// Unreadable claim is treated as stale
		return &claim{PID: -1}, nil
	}
	return &c, nil
}

// processAlive reports whether pid belongs to a live instance of this
// executable. A PID recycled by an unrelated process does not count.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil {
		// Process exists but we cannot inspect it; err on the safe side
		return true
	}
	self := filepath.Base(os.Args[0])
	return strings.EqualFold(name, self)
}

// Handle represents the held lock. Release is idempotent and safe to call
// from every exit path.
type Handle struct {
	path       string
	instanceID string
	logger     zerolog.Logger
	once       sync.Once
}

// InstanceID returns the unique id recorded in the lock file.
func (h *Handle) InstanceID() string {
	return h.instanceID
}

// Release removes the lock file. Calling it more than once is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
			h.logger.Error().Err(err).Str("path", h.path).Msg("failed to remove lock file")
			return
		}
		h.logger.Info().Str("path", h.path).Msg("lock released")
	})
}
