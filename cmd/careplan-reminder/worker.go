// Package main provides the reminder worker that sweeps run state for
// stalled care plans and publishes reminder events.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/reminders"
	"github.com/opencare/careplan/pkg/runner"
)

type Worker struct {
	id        string
	scheduler *reminders.Scheduler
	eventBus  eventbus.EventBus
	logger    *slog.Logger
}

func NewWorker(
	id string,
	runStore runner.Store,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	threshold time.Duration,
	schedule string,
) *Worker {
	scheduler := reminders.NewScheduler(
		runStore,
		eventBus,
		logger,
		reminders.WithThreshold(threshold),
		reminders.WithSchedule(schedule),
	)

	return &Worker{
		id:        id,
		scheduler: scheduler,
		eventBus:  eventBus,
		logger:    logger.With("module", "reminder_worker"),
	}
}

// Start runs the sweep scheduler until the process receives a shutdown
// signal or the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	wCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.logger.Info("Starting reminder worker")

	if err := w.subscribe(wCtx); err != nil {
		w.logger.Error("Failed to subscribe to reminder events", "error", err)

		return
	}

	if err := w.scheduler.Start(wCtx); err != nil {
		w.logger.Error("Failed to start sweep scheduler", "error", err)

		return
	}

	w.handleSignals(cancel)

	<-wCtx.Done()
	w.logger.Info("Reminder worker context cancelled, stopping...")
	w.scheduler.Stop()
}

// subscribe registers the reminder handler and starts consuming the event
// stream. Delivery notifications land here from every sweeper instance, not
// just this worker's own publishes.
func (w *Worker) subscribe(ctx context.Context) error {
	err := w.eventBus.Handle(events.ReminderDueEvent, func(_ context.Context, event interface{}) error {
		reminder, ok := event.(*events.ReminderDue)
		if !ok {
			w.logger.Warn("Dropping malformed reminder event")

			return nil
		}

		w.logger.Info("Reminder due",
			"worker_id", w.id,
			"plan_id", reminder.PlanID,
			"block_id", reminder.BlockID,
			"block_index", reminder.BlockIndex,
			"stalled_at", reminder.StalledAt)

		return nil
	})
	if err != nil {
		return err
	}

	return w.eventBus.Subscribe(ctx)
}

func (w *Worker) handleSignals(cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		w.logger.Info("Received signal", "signal", sig)
		w.logger.Info("Shutting down gracefully...")
		cancel()
	}()
}
