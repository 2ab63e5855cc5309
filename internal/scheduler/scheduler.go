// Package scheduler runs the daily background sweeps. Today that is the
// archival engine; the advisory lock inside the archive service keeps
// multiple replicas from sweeping concurrently.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/breadworks/bakeops/internal/adapter/observability"
	"github.com/breadworks/bakeops/internal/usecase"
)

// Scheduler triggers the archive sweep once per day, aligned to midnight
// UTC so runs land in the quiet window between closing and the first bake.
type Scheduler struct {
	Archive usecase.ArchiveService
	Log     *slog.Logger
	Now     func() time.Time

	// RunTimeout bounds one sweep; a wedged sweep must not block the
	// next day's run.
	RunTimeout time.Duration
}

// New constructs a Scheduler.
func New(archive usecase.ArchiveService, log *slog.Logger, runTimeout time.Duration) *Scheduler {
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	return &Scheduler{
		Archive:    archive,
		Log:        log,
		Now:        func() time.Time { return time.Now().UTC() },
		RunTimeout: runTimeout,
	}
}

// Run blocks until ctx is done, firing the sweep at every midnight UTC.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.untilNextRun()
		s.Log.Info("archive sweep scheduled", slog.Duration("in", wait))
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		s.sweep(ctx)
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.RunTimeout)
	defer cancel()
	if err := s.Archive.RunScheduled(runCtx, s.Log); err != nil {
		observability.ObserveArchiveRun("scheduled", "failed")
		s.Log.Error("archive sweep failed", slog.Any("error", err))
		return
	}
	observability.ObserveArchiveRun("scheduled", "success")
}

// untilNextRun computes the delay to the next midnight UTC. A zero delay
// (started exactly at midnight) waits a full day instead of double firing.
func (s *Scheduler) untilNextRun() time.Duration {
	now := s.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	d := next.Sub(now)
	if d <= 0 {
		d = 24 * time.Hour
	}
	return d
}
