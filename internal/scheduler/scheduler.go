// Package scheduler runs recurring batch optimization sessions on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/strategy-lab/internal/config"
	"github.com/yourusername/strategy-lab/internal/models"
)

// batchTimeout bounds one scheduled session; a batch of long searches can
// legitimately run for hours.
const batchTimeout = 12 * time.Hour

// BatchRunner runs one optimization session over a set of strategies.
type BatchRunner interface {
	RunBatch(ctx context.Context, strategies []string) (models.SessionSummary, error)
}

// Scheduler manages scheduled optimization sessions
type Scheduler struct {
	cron      *cron.Cron
	runner    BatchRunner
	logger    *logrus.Logger
	mu        sync.RWMutex
	isRunning bool
	jobIDs    []cron.EntryID
}

// NewScheduler creates a new scheduler
func NewScheduler(runner BatchRunner, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		runner: runner,
		logger: logger,
		jobIDs: make([]cron.EntryID, 0),
	}
}

// ScheduleBatch schedules a recurring optimization session over the given
// strategies.
func (s *Scheduler) ScheduleBatch(cronExpression string, strategies []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("cannot schedule job while scheduler is running")
	}
	if len(strategies) == 0 {
		return fmt.Errorf("no strategies to schedule")
	}

	jobFunc := func() {
		ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
		defer cancel()

		s.logger.WithFields(logrus.Fields{
			"strategies": strategies,
			"cron":       cronExpression,
		}).Info("Starting scheduled optimization session")

		summary, err := s.runner.RunBatch(ctx, strategies)
		if err != nil {
			s.logger.WithError(err).Error("Scheduled optimization session failed")
			return
		}
		s.logger.WithFields(logrus.Fields{
			"session_name": summary.Name,
			"total":        summary.Total,
			"succeeded":    summary.Succeeded,
			"failed":       summary.Failed,
		}).Info("Scheduled optimization session completed")
	}

	entryID, err := s.cron.AddFunc(cronExpression, jobFunc)
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	s.jobIDs = append(s.jobIDs, entryID)
	s.logger.WithField("cron", cronExpression).Info("Scheduled optimization session job")

	return nil
}

// FromConfig schedules the configured batch job, if scheduling is enabled.
func (s *Scheduler) FromConfig(cfg *config.SchedulerConfig) error {
	if !cfg.Enabled {
		return nil
	}
	return s.ScheduleBatch(cfg.CronExpression, cfg.Strategies)
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if len(s.jobIDs) == 0 {
		return fmt.Errorf("no jobs scheduled")
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("jobs", len(s.jobIDs)).Info("Scheduler started")

	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return nil
	}

	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped")

	return nil
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRun returns the time of the next scheduled job run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning || len(s.jobIDs) == 0 {
		return time.Time{}
	}

	nextRun := time.Time{}
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			nextTime := entry.Next
			if nextRun.IsZero() || nextTime.Before(nextRun) {
				nextRun = nextTime
			}
		}
	}

	return nextRun
}

// Entries returns information about scheduled entries
func (s *Scheduler) Entries() []cron.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]cron.Entry, 0, len(s.jobIDs))
	for _, jobID := range s.jobIDs {
		entry := s.cron.Entry(jobID)
		if entry.Valid() {
			entries = append(entries, entry)
		}
	}

	return entries
}
