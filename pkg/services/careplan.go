package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/opencare/careplan/pkg/eventbus"
	"github.com/opencare/careplan/pkg/events"
	"github.com/opencare/careplan/pkg/models"
	"github.com/opencare/careplan/pkg/persistence"
	"github.com/opencare/careplan/pkg/runner"
)

// ErrCarePlanNotFound is returned when a care plan is not found.
var ErrCarePlanNotFound = persistence.ErrCarePlanNotFound

// CarePlan handles care-plan-level business operations.
type CarePlan struct {
	persistence persistence.Persistence
	runs        runner.Store
	eventBus    eventbus.EventPublisher
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewCarePlan creates a new care plan service. The run store may be nil when
// the deployment has no runner attached.
func NewCarePlan(p persistence.Persistence, runs runner.Store, eventBus eventbus.EventPublisher, logger *slog.Logger) *CarePlan {
	return &CarePlan{
		persistence: p,
		runs:        runs,
		eventBus:    eventBus,
		validator:   validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *CarePlan) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// CreateCarePlanRequest represents the request to create a new care plan.
type CreateCarePlanRequest struct {
	Title     string `validate:"required,min=3"`
	PatientID string `validate:"required"`
	EpisodeID string
	Owner     string
}

// CreateCarePlan creates an empty care plan for a patient.
func (s *CarePlan) CreateCarePlan(ctx context.Context, req *CreateCarePlanRequest) (*models.CarePlan, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}

	if strings.TrimSpace(req.PatientID) == "" {
		return nil, ErrPatientRequired
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError(
			"CreateCarePlan",
			"INVALID_REQUEST",
			err.Error(),
			fmt.Errorf("%w: %w", ErrInvalidRequest, err),
		)
	}

	plan := &models.CarePlan{
		Title:     req.Title,
		PatientID: req.PatientID,
		EpisodeID: req.EpisodeID,
		Blocks:    []*models.Block{},
		Owner:     req.Owner,
	}

	if err := s.persistence.SaveCarePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save care plan: %w", err)
	}

	s.publish(ctx, plan.ID, events.CarePlanCreated{
		BaseEvent: events.NewBaseEvent(events.CarePlanCreatedEvent, plan.ID),
		Title:     plan.Title,
		PatientID: plan.PatientID,
	})

	return plan, nil
}

// ListCarePlansRequest carries optional filtering and pagination parameters.
type ListCarePlansRequest struct {
	Owner  string
	Limit  int
	Offset int
}

type ListCarePlansResponse struct {
	CarePlans   []*models.CarePlan `json:"care_plans"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListCarePlans returns care plans newest first, optionally filtered by
// owner and paginated.
func (s *CarePlan) ListCarePlans(ctx context.Context, req ListCarePlansRequest) (*ListCarePlansResponse, error) {
	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	plans, err := s.persistence.CarePlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list care plans: %w", err)
	}

	if req.Owner != "" {
		filtered := make([]*models.CarePlan, 0, len(plans))

		for _, plan := range plans {
			if plan.Owner == req.Owner {
				filtered = append(filtered, plan)
			}
		}

		plans = filtered
	}

	total := len(plans)

	start := req.Offset
	if start > total {
		start = total
	}

	end := start + req.Limit
	if end > total {
		end = total
	}

	return &ListCarePlansResponse{
		CarePlans:   plans[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

// GetCarePlan returns a single care plan by id.
func (s *CarePlan) GetCarePlan(ctx context.Context, id string) (*models.CarePlan, error) {
	plan, err := s.persistence.CarePlanByID(ctx, id)
	if err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return nil, ErrCarePlanNotFound
		}

		return nil, fmt.Errorf("failed to get care plan: %w", err)
	}

	return plan, nil
}

// UpdateCarePlanRequest represents the mutable top-level fields of a plan.
type UpdateCarePlanRequest struct {
	Title     string `validate:"required,min=3"`
	EpisodeID string
}

// UpdateCarePlan updates the plan's top-level fields, leaving blocks alone.
func (s *CarePlan) UpdateCarePlan(ctx context.Context, id string, req *UpdateCarePlanRequest) (*models.CarePlan, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, ErrTitleRequired
	}

	if err := s.validator.Struct(req); err != nil {
		return nil, NewValidationError(
			"UpdateCarePlan",
			"INVALID_REQUEST",
			err.Error(),
			fmt.Errorf("%w: %w", ErrInvalidRequest, err),
		)
	}

	plan, err := s.GetCarePlan(ctx, id)
	if err != nil {
		return nil, err
	}

	plan.Title = req.Title
	plan.EpisodeID = req.EpisodeID

	if err := s.persistence.SaveCarePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to save care plan: %w", err)
	}

	s.publish(ctx, plan.ID, events.CarePlanUpdated{
		BaseEvent: events.NewBaseEvent(events.CarePlanUpdatedEvent, plan.ID),
		Title:     plan.Title,
	})

	return plan, nil
}

// DeleteCarePlan soft deletes a plan. A plan with a run still in progress
// cannot be deleted.
func (s *CarePlan) DeleteCarePlan(ctx context.Context, id string) error {
	if s.runs != nil {
		run, err := s.runs.Load(ctx, id)
		if err != nil && !errors.Is(err, runner.ErrRunNotFound) {
			return fmt.Errorf("failed to check for active run: %w", err)
		}

		if run != nil && run.Running {
			return ErrPlanHasActiveRun
		}
	}

	if err := s.persistence.DeleteCarePlan(ctx, id); err != nil {
		if persistence.IsCarePlanNotFound(err) {
			return ErrCarePlanNotFound
		}

		return fmt.Errorf("failed to delete care plan: %w", err)
	}

	s.publish(ctx, id, events.CarePlanDeleted{
		BaseEvent: events.NewBaseEvent(events.CarePlanDeletedEvent, id),
	})

	return nil
}

// publish emits a domain event, logging instead of failing the operation
// when the bus is down.
func (s *CarePlan) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(ctx, key, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event",
			"event_type", event.GetType(), "error", err)
	}
}
