package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionSummary is an immutable snapshot of a batch of runs started
// together. Updates produce a new value; the orchestrator publishes each
// snapshot as a SessionUpdated event rather than mutating shared state.
// Sessions are a reporting convenience only; no run depends on one.
type SessionSummary struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	StartedAt       time.Time `json:"started_at"`
	Total           int       `json:"total"`
	Succeeded       int       `json:"succeeded"`
	Failed          int       `json:"failed"`
	DurationSeconds int       `json:"duration_seconds"`

	// Shared batch parameters
	Timeframe        string `json:"timeframe,omitempty"`
	Epochs           int    `json:"epochs,omitempty"`
	HyperoptFunction string `json:"hyperopt_function,omitempty"`
}

// NewSessionSummary starts a session envelope at the given time.
func NewSessionSummary(name string, startedAt time.Time) SessionSummary {
	if name == "" {
		name = "Session_" + startedAt.Format("20060102_150405")
	}
	return SessionSummary{
		ID:        uuid.New(),
		Name:      name,
		StartedAt: startedAt,
	}
}

// WithResult returns a copy with one run outcome recorded.
func (s SessionSummary) WithResult(success bool) SessionSummary {
	s.Total++
	if success {
		s.Succeeded++
	} else {
		s.Failed++
	}
	return s
}

// WithDuration returns a copy with the elapsed duration recorded.
func (s SessionSummary) WithDuration(now time.Time) SessionSummary {
	s.DurationSeconds = int(now.Sub(s.StartedAt).Seconds())
	return s
}

// SuccessRate returns the fraction of succeeded runs, in percent.
func (s SessionSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}
