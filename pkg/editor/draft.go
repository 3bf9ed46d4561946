// Package editor maintains a single in-progress block draft and commits it
// to the backend on explicit save.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencare/careplan/pkg/models"
)

// Saver is the backend collaborator the editor commits drafts through.
// CreateBlock returns the block with its server-assigned id and empty edge
// sets; UpdateBlockPayload sends the typed payload only, never
// relationships.
type Saver interface {
	CreateBlock(ctx context.Context, planID string, block *models.Block) (*models.Block, error)
	UpdateBlockPayload(ctx context.Context, planID string, block *models.Block) error
}

var (
	// ErrNoDraft is returned by draft operations before any draft exists.
	ErrNoDraft = errors.New("no draft in progress")
	// ErrSaveInFlight rejects a save while a previous one is outstanding.
	ErrSaveInFlight = errors.New("save already in flight")
	// ErrWrongDraftType is returned when a task or option operation does
	// not match the draft's type.
	ErrWrongDraftType = errors.New("operation does not match draft type")
	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
	// ErrOptionNotFound is returned for an unknown option id.
	ErrOptionNotFound = errors.New("option not found")
)

// OptionField names the editable fields of an option.
type OptionField string

const (
	OptionFieldResultat OptionField = "resultat"
	OptionFieldDecision OptionField = "decision"
)

// Editor owns the draft lifecycle for one care plan. Types are mutually
// exclusive views: switching type resets the payload and discards edits
// made under the previous type. Save failures leave the draft untouched so
// no input is lost; retry is always explicit.
type Editor struct {
	planID   string
	saver    Saver
	logger   *slog.Logger
	draft    *models.Block
	inFlight bool
}

// New creates an editor for the given care plan.
func New(planID string, saver Saver, logger *slog.Logger) *Editor {
	return &Editor{
		planID: planID,
		saver:  saver,
		logger: logger,
	}
}

// Draft returns the in-progress draft, or nil.
func (e *Editor) Draft() *models.Block {
	return e.draft
}

// StartDraft begins a fresh draft of the given type under a temporary id.
func (e *Editor) StartDraft(blockType models.BlockType) error {
	draft, err := models.NewBlock(models.NewTemporaryBlockID(), blockType)
	if err != nil {
		return err
	}

	e.draft = draft

	return nil
}

// Edit loads an existing persisted block into the editor.
func (e *Editor) Edit(block *models.Block) error {
	if err := block.Validate(); err != nil {
		return err
	}

	e.draft = block

	return nil
}

// SelectType switches the draft's type and resets the payload to that
// type's default, discarding unsaved payload edits for the previous type.
func (e *Editor) SelectType(blockType models.BlockType) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type == blockType {
		return nil
	}

	next, err := models.NewBlock(e.draft.ID, blockType)
	if err != nil {
		return err
	}

	next.ParentIDs = e.draft.ParentIDs
	next.ChildIDs = e.draft.ChildIDs
	e.draft = next

	return nil
}

// AddTask appends a blank task to an ACTION draft.
func (e *Editor) AddTask() (*models.Task, error) {
	if e.draft == nil {
		return nil, ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeAction {
		return nil, ErrWrongDraftType
	}

	task := models.NewTask()
	e.draft.Action.Tasks = append(e.draft.Action.Tasks, task)

	return task, nil
}

// UpdateTask replaces a task's text.
func (e *Editor) UpdateTask(taskID, text string) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeAction {
		return ErrWrongDraftType
	}

	for _, task := range e.draft.Action.Tasks {
		if task.ID == taskID {
			task.Text = text

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// DeleteTask removes a task from an ACTION draft.
func (e *Editor) DeleteTask(taskID string) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeAction {
		return ErrWrongDraftType
	}

	tasks := e.draft.Action.Tasks
	for i, task := range tasks {
		if task.ID == taskID {
			e.draft.Action.Tasks = append(tasks[:i], tasks[i+1:]...)

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

// AddOption appends a blank option to a CONDITION draft.
func (e *Editor) AddOption() (*models.Option, error) {
	if e.draft == nil {
		return nil, ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeCondition {
		return nil, ErrWrongDraftType
	}

	option := models.NewOption()
	e.draft.Condition.Options = append(e.draft.Condition.Options, option)

	return option, nil
}

// UpdateCondition replaces the condition text of a CONDITION draft.
func (e *Editor) UpdateCondition(text string) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeCondition {
		return ErrWrongDraftType
	}

	e.draft.Condition.Condition = text

	return nil
}

// UpdateOption replaces one field of an option.
func (e *Editor) UpdateOption(optionID string, field OptionField, value string) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeCondition {
		return ErrWrongDraftType
	}

	for _, option := range e.draft.Condition.Options {
		if option.ID != optionID {
			continue
		}

		switch field {
		case OptionFieldResultat:
			option.Resultat = value
		case OptionFieldDecision:
			option.Decision = value
		default:
			return fmt.Errorf("unknown option field %q", field)
		}

		return nil
	}

	return fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
}

// DeleteOption removes an option. The operation is rejected when exactly
// two options remain: a condition must keep at least two outcomes.
func (e *Editor) DeleteOption(optionID string) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeCondition {
		return ErrWrongDraftType
	}

	options := e.draft.Condition.Options
	if len(options) <= models.MinConditionOptions {
		return models.ErrOptionFloor
	}

	for i, option := range options {
		if option.ID == optionID {
			e.draft.Condition.Options = append(options[:i], options[i+1:]...)

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
}

// SetDuration sets the wait duration of a WAIT draft, in minutes.
func (e *Editor) SetDuration(minutes int) error {
	if e.draft == nil {
		return ErrNoDraft
	}

	if e.draft.Type != models.BlockTypeWait {
		return ErrWrongDraftType
	}

	if minutes < 0 {
		return errors.New("duration must be non-negative")
	}

	e.draft.Wait.DurationMinutes = minutes

	return nil
}

// Save commits the draft. A temporary id creates the block and restarts a
// fresh draft of the same type, so a sequence of same-type blocks can be
// entered rapidly; a persisted id updates the typed payload only and drops
// the selection. On failure the draft is retained unmodified.
func (e *Editor) Save(ctx context.Context) (*models.Block, error) {
	if e.draft == nil {
		return nil, ErrNoDraft
	}

	if e.inFlight {
		return nil, ErrSaveInFlight
	}

	if err := e.draft.Validate(); err != nil {
		return nil, err
	}

	e.inFlight = true
	defer func() { e.inFlight = false }()

	if models.IsTemporaryID(e.draft.ID) {
		saved, err := e.saver.CreateBlock(ctx, e.planID, e.draft)
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to create block",
				"plan_id", e.planID, "type", e.draft.Type, "error", err)

			return nil, err
		}

		blockType := e.draft.Type
		if err := e.StartDraft(blockType); err != nil {
			return nil, err
		}

		return saved, nil
	}

	err := e.saver.UpdateBlockPayload(ctx, e.planID, e.draft)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to update block",
			"plan_id", e.planID, "block_id", e.draft.ID, "error", err)

		return nil, err
	}

	saved := e.draft
	e.draft = nil

	return saved, nil
}
