package runner

import (
	"sync"
	"time"

	"github.com/yourusername/strategy-lab/internal/logger"
	"github.com/yourusername/strategy-lab/internal/metrics"
	"github.com/yourusername/strategy-lab/internal/models"
)

// SessionTracker accounts for a batch of runs started together. State is an
// immutable SessionSummary value; every update swaps in a new snapshot and
// publishes it to subscribers, so observers never see a half-updated batch.
type SessionTracker struct {
	mu       sync.Mutex
	current  models.SessionSummary
	active   bool
	onUpdate []func(models.SessionSummary)
	log      *logger.RunLogger
}

// NewSessionTracker creates an idle tracker.
func NewSessionTracker(log *logger.RunLogger) *SessionTracker {
	return &SessionTracker{log: log}
}

// Subscribe registers a callback invoked with each published snapshot.
// Callbacks run synchronously on the updating goroutine.
func (t *SessionTracker) Subscribe(fn func(models.SessionSummary)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = append(t.onUpdate, fn)
}

// Start opens a new session, replacing any previous one.
func (t *SessionTracker) Start(name string) models.SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = models.NewSessionSummary(name, time.Now().UTC())
	t.active = true
	metrics.RecordSessionStarted()
	return t.current
}

// RecordResult records one run outcome and publishes the new snapshot.
// A result recorded outside an active session is ignored.
func (t *SessionTracker) RecordResult(success bool) models.SessionSummary {
	t.mu.Lock()
	if !t.active {
		current := t.current
		t.mu.Unlock()
		return current
	}

	t.current = t.current.WithResult(success).WithDuration(time.Now().UTC())
	snapshot := t.current
	subscribers := make([]func(models.SessionSummary), len(t.onUpdate))
	copy(subscribers, t.onUpdate)
	t.mu.Unlock()

	t.log.LogSessionUpdated(snapshot.Name, snapshot.Total, snapshot.Succeeded, snapshot.Failed, snapshot.DurationSeconds)
	for _, fn := range subscribers {
		fn(snapshot)
	}
	return snapshot
}

// Finish closes the session and returns the final snapshot.
func (t *SessionTracker) Finish() models.SessionSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active {
		t.current = t.current.WithDuration(time.Now().UTC())
		t.active = false
	}
	return t.current
}

// Snapshot returns the latest snapshot and whether a session is active.
func (t *SessionTracker) Snapshot() (models.SessionSummary, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.active
}
