package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunavale/mnemo/pkg/memory"
)

// DefaultTriggerHour is the local hour of day at which calendar triggers
// fire: weekly on Sundays, monthly on the 1st, yearly on January 1st.
const DefaultTriggerHour = 3

// Scheduler drives the rollup pipeline on fixed calendar triggers and
// reconciles missed runs after downtime using the lifecycle checkpoints.
type Scheduler struct {
	pipeline    *Pipeline
	checkpoints memory.CheckpointStore
	logger      *slog.Logger

	hour      int
	threshold time.Duration
	now       func() time.Time
}

// SchedulerOption is a functional option for Scheduler.
type SchedulerOption func(*Scheduler)

// WithTriggerHour overrides the local hour of day for calendar triggers.
func WithTriggerHour(hour int) SchedulerOption {
	return func(s *Scheduler) {
		if hour >= 0 && hour <= 23 {
			s.hour = hour
		}
	}
}

// WithDowntimeThreshold overrides the downtime span that forces a catch-up
// weekly rollup on startup.
func WithDowntimeThreshold(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// withClock replaces the wall clock, for tests.
func withClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler constructs a scheduler over pipeline and checkpoints.
func NewScheduler(pipeline *Pipeline, checkpoints memory.CheckpointStore, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		pipeline:    pipeline,
		checkpoints: checkpoints,
		logger:      logger,
		hour:        DefaultTriggerHour,
		threshold:   DefaultDowntimeThreshold,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Reconcile runs the missed-rollup catch-up: it reads the last shutdown
// checkpoint, computes the downtime interval, and immediately runs every
// job the downtime implies. A missing checkpoint (first boot) is a no-op.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	lastShutdown, ok, err := s.checkpoints.Get(ctx, memory.CheckpointShutdown)
	if err != nil {
		return fmt.Errorf("scheduler: read shutdown checkpoint: %w", err)
	}
	if !ok {
		s.logger.Info("no shutdown checkpoint recorded; skipping reconciliation")
		return nil
	}

	now := s.now()
	jobs := MissedJobs(lastShutdown, now, s.threshold)
	if len(jobs) == 0 {
		s.logger.Info("no rollups missed during downtime",
			"last_shutdown", lastShutdown, "downtime", now.Sub(lastShutdown))
		return nil
	}

	s.logger.Info("reconciling missed rollups", "jobs", jobs, "last_shutdown", lastShutdown)
	for _, kind := range jobs {
		if err := s.pipeline.Run(ctx, kind); err != nil {
			s.logger.Error("missed rollup failed", "kind", kind, "error", err)
		}
	}
	return nil
}

// Run records the startup checkpoint, reconciles missed rollups, then blocks
// firing calendar triggers until ctx is cancelled. On exit it records the
// shutdown checkpoint.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.checkpoints.Record(ctx, memory.CheckpointStartup, s.now()); err != nil {
		return fmt.Errorf("scheduler: record startup checkpoint: %w", err)
	}
	if err := s.Reconcile(ctx); err != nil {
		s.logger.Error("reconciliation failed", "error", err)
	}

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		now := s.now()
		next, kinds := s.nextTrigger(now)
		s.logger.Debug("next rollup trigger scheduled", "at", next, "jobs", kinds)
		timer.Reset(next.Sub(now))

		select {
		case <-ctx.Done():
			// Detach from the cancelled context so the checkpoint write can
			// still complete during graceful shutdown.
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.checkpoints.Record(shutdownCtx, memory.CheckpointShutdown, s.now()); err != nil {
				return fmt.Errorf("scheduler: record shutdown checkpoint: %w", err)
			}
			return ctx.Err()
		case <-timer.C:
			for _, kind := range kinds {
				if err := s.pipeline.Run(ctx, kind); err != nil {
					s.logger.Error("scheduled rollup failed", "kind", kind, "error", err)
				}
			}
		}
	}
}

// nextTrigger returns the earliest upcoming trigger instant after now and
// the jobs due at that instant. Coinciding triggers (e.g. a Sunday that is
// also the 1st) run together.
func (s *Scheduler) nextTrigger(now time.Time) (time.Time, []memory.SummaryKind) {
	candidates := []struct {
		at   time.Time
		kind memory.SummaryKind
	}{
		{s.nextWeekly(now), memory.SummaryWeekly},
		{s.nextMonthly(now), memory.SummaryMonthly},
		{s.nextYearly(now), memory.SummaryYearly},
	}

	earliest := candidates[0].at
	for _, c := range candidates[1:] {
		if c.at.Before(earliest) {
			earliest = c.at
		}
	}
	var kinds []memory.SummaryKind
	for _, c := range candidates {
		if c.at.Equal(earliest) {
			kinds = append(kinds, c.kind)
		}
	}
	return earliest, kinds
}

// nextWeekly returns the next Sunday at the trigger hour strictly after now.
func (s *Scheduler) nextWeekly(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, now.Location())
	daysUntilSunday := (int(time.Sunday) - int(now.Weekday()) + 7) % 7
	at = at.AddDate(0, 0, daysUntilSunday)
	if !at.After(now) {
		at = at.AddDate(0, 0, 7)
	}
	return at
}

// nextMonthly returns the next 1st of a month at the trigger hour strictly
// after now.
func (s *Scheduler) nextMonthly(now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), 1, s.hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 1, 0)
	}
	return at
}

// nextYearly returns the next January 1st at the trigger hour strictly
// after now.
func (s *Scheduler) nextYearly(now time.Time) time.Time {
	at := time.Date(now.Year(), time.January, 1, s.hour, 0, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(1, 0, 0)
	}
	return at
}
