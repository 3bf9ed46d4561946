// Package reminders sweeps persisted runs for stalled activity and raises
// reminder events so a clinician is nudged back to an unfinished plan.
package reminders

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/runner"
)

// DefaultStallThreshold is how long a running plan may sit on one block
// before a reminder fires.
const DefaultStallThreshold = 30 * time.Minute

// DefaultSweepSchedule runs the sweep once a minute.
const DefaultSweepSchedule = "* * * * *"

// Scheduler periodically inspects run snapshots and publishes a
// run.reminder.due event for every stalled run. A run with a live countdown
// is never considered stalled; the timer is doing the waiting.
type Scheduler struct {
	store     runner.Store
	eventBus  eventbus.EventPublisher
	logger    *slog.Logger
	clock     clockwork.Clock
	cron      *cron.Cron
	schedule  string
	threshold time.Duration

	// reminded tracks the UpdatedAt already notified per plan so a stalled
	// run nags once, not once per sweep.
	mu       sync.Mutex
	reminded map[string]time.Time
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithThreshold overrides the stall threshold.
func WithThreshold(threshold time.Duration) Option {
	return func(s *Scheduler) {
		s.threshold = threshold
	}
}

// WithSchedule overrides the cron sweep expression.
func WithSchedule(schedule string) Option {
	return func(s *Scheduler) {
		s.schedule = schedule
	}
}

// WithClock substitutes the time source for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// NewScheduler creates a reminder scheduler over the given run store.
func NewScheduler(store runner.Store, eventBus eventbus.EventPublisher, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:     store,
		eventBus:  eventBus,
		logger:    logger.With("module", "reminder_scheduler"),
		clock:     clockwork.NewRealClock(),
		schedule:  DefaultSweepSchedule,
		threshold: DefaultStallThreshold,
		reminded:  make(map[string]time.Time),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start validates the schedule and begins sweeping.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "reminder sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule reminder sweep: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Reminder scheduler started",
		"schedule", s.schedule, "threshold", s.threshold)

	return nil
}

// Stop halts the sweep, waiting for an in-flight one to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep inspects every persisted run once. It is exported so a worker can
// trigger an immediate pass outside the cron cadence.
func (s *Scheduler) Sweep(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	now := s.clock.Now()

	for _, run := range runs {
		if !s.stalled(run, now) {
			continue
		}

		if last, ok := s.reminded[run.PlanID]; ok && last.Equal(run.UpdatedAt) {
			continue
		}

		event := events.ReminderDue{
			BaseEvent:  events.NewBaseEvent(events.ReminderDueEvent, run.PlanID),
			BlockIndex: run.CurrentIndex,
			StalledAt:  run.UpdatedAt,
		}

		if current := run.Current(); current != nil {
			event.BlockID = current.ID
		}

		if err := s.eventBus.Publish(ctx, run.PlanID, event); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish reminder",
				"plan_id", run.PlanID, "error", err)

			continue
		}

		s.reminded[run.PlanID] = run.UpdatedAt

		s.logger.InfoContext(ctx, "Reminder published",
			"plan_id", run.PlanID, "block_index", run.CurrentIndex)
	}

	return nil
}

func (s *Scheduler) stalled(run *runner.Run, now time.Time) bool {
	if !run.Running || run.TimerActive {
		return false
	}

	return now.Sub(run.UpdatedAt) >= s.threshold
}
