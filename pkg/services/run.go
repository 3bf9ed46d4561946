package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/persistence"
	"github.com/opencare/careplan/pkg/runner"
)

// ErrRunNotFound is returned when no run exists for the plan.
var ErrRunNotFound = runner.ErrRunNotFound

// Run orchestrates run lifecycles on top of the runner manager, emitting
// domain events as the bedside clinician moves through the plan.
type Run struct {
	persistence persistence.Persistence
	manager     *runner.Manager
	eventBus    eventbus.EventPublisher
	logger      *slog.Logger
}

// NewRun creates a new run service.
func NewRun(p persistence.Persistence, manager *runner.Manager, eventBus eventbus.EventPublisher, logger *slog.Logger) *Run {
	return &Run{
		persistence: p,
		manager:     manager,
		eventBus:    eventBus,
		logger:      logger,
	}
}

// StartRun snapshots the plan and begins sequential execution.
func (s *Run) StartRun(ctx context.Context, planID string) (*runner.Run, error) {
	plan, err := s.persistence.CarePlanByID(ctx, planID)
	if err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return nil, ErrCarePlanNotFound
		}

		return nil, fmt.Errorf("failed to get care plan: %w", err)
	}

	run, err := s.manager.Start(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	s.publish(ctx, planID, events.RunStarted{
		BaseEvent:  events.NewBaseEvent(events.RunStartedEvent, planID),
		BlockCount: len(run.Blocks),
	})

	return run, nil
}

// GetRun returns the current run state for the plan.
func (s *Run) GetRun(ctx context.Context, planID string) (*runner.Run, error) {
	run, err := s.manager.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, runner.ErrRunNotFound) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ToggleTask flips a task on the current ACTION block. Completing the last
// task advances the run.
func (s *Run) ToggleTask(ctx context.Context, planID, taskID string) (*runner.Run, error) {
	run, advanced, err := s.manager.ToggleTask(ctx, planID, taskID)
	if err != nil {
		return nil, err
	}

	// Completing the last block never moves the cursor, so check both.
	if advanced || run.Completed() {
		s.publishAdvance(ctx, planID, run)
	}

	return run, nil
}

// ChooseOption records the selected option of the current CONDITION block
// and advances.
func (s *Run) ChooseOption(ctx context.Context, planID, optionID string) (*runner.Run, error) {
	run, err := s.manager.ChooseOption(ctx, planID, optionID)
	if err != nil {
		return nil, err
	}

	s.publishAdvance(ctx, planID, run)

	return run, nil
}

// StartTimer arms the countdown of the current WAIT block.
func (s *Run) StartTimer(ctx context.Context, planID string) (*runner.Run, error) {
	return s.manager.StartTimer(ctx, planID)
}

// Skip moves past the current WAIT block without waiting it out.
func (s *Run) Skip(ctx context.Context, planID string) (*runner.Run, error) {
	run, err := s.manager.Skip(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.publishAdvance(ctx, planID, run)

	return run, nil
}

// StopRun leaves running mode, keeping the snapshot for later resumption.
func (s *Run) StopRun(ctx context.Context, planID string) (*runner.Run, error) {
	run, err := s.manager.Stop(ctx, planID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, planID, events.RunStopped{
		BaseEvent:  events.NewBaseEvent(events.RunStoppedEvent, planID),
		BlockIndex: run.CurrentIndex,
	})

	return run, nil
}

// DiscardRun removes the run entirely.
func (s *Run) DiscardRun(ctx context.Context, planID string) error {
	return s.manager.Discard(ctx, planID)
}

func (s *Run) publishAdvance(ctx context.Context, planID string, run *runner.Run) {
	if run.Completed() {
		s.publish(ctx, planID, events.RunCompleted{
			BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, planID),
			Duration:  run.UpdatedAt.Sub(run.StartedAt),
		})

		return
	}

	event := events.RunAdvanced{
		BaseEvent:  events.NewBaseEvent(events.RunAdvancedEvent, planID),
		BlockIndex: run.CurrentIndex,
	}

	if current := run.Current(); current != nil {
		event.BlockID = current.ID
	}

	s.publish(ctx, planID, event)
}

func (s *Run) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
