// Package runner steps a user through a care plan's flat block collection
// in array order, with per-block-type advance rules and a one-second
// countdown for WAIT blocks.
package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencare/careplan/pkg/models"
)

var (
	// ErrNotRunning rejects operations on a run that left running mode.
	ErrNotRunning = errors.New("run is not active")
	// ErrWrongBlockType rejects an operation that does not match the
	// current block's type.
	ErrWrongBlockType = errors.New("operation does not match current block type")
	// ErrTaskNotFound is returned for an unknown task id on the current block.
	ErrTaskNotFound = errors.New("task not found on current block")
	// ErrOptionNotFound is returned for an unknown option id on the current block.
	ErrOptionNotFound = errors.New("option not found on current block")
	// ErrEmptyPlan rejects running a plan with no blocks.
	ErrEmptyPlan = errors.New("care plan has no blocks")
)

// Run is the execution state of one care plan walk. Blocks is a private
// snapshot of the plan taken when the run starts: task toggles mutate the
// snapshot, never the persisted plan. Traversal is strictly sequential over
// the flat collection; tree depth plays no part.
type Run struct {
	PlanID           string           `json:"plan_id"`
	Blocks           []*models.Block  `json:"blocks"`
	CurrentIndex     int              `json:"current_index"`
	Running          bool             `json:"running"`
	RemainingSeconds int              `json:"remaining_seconds"`
	TimerActive      bool             `json:"timer_active"`
	ChosenOptions    map[string]string `json:"chosen_options"`
	StartedAt        time.Time        `json:"started_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewRun snapshots the plan and positions the run at the first block.
func NewRun(plan *models.CarePlan, now time.Time) (*Run, error) {
	if len(plan.Blocks) == 0 {
		return nil, ErrEmptyPlan
	}

	blocks, err := snapshotBlocks(plan.Blocks)
	if err != nil {
		return nil, err
	}

	return &Run{
		PlanID:        plan.ID,
		Blocks:        blocks,
		Running:       true,
		ChosenOptions: make(map[string]string),
		StartedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// snapshotBlocks deep-copies blocks through their wire form so run-time
// task toggles cannot leak into the caller's plan.
func snapshotBlocks(blocks []*models.Block) ([]*models.Block, error) {
	data, err := json.Marshal(blocks)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot blocks: %w", err)
	}

	var copied []*models.Block
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to snapshot blocks: %w", err)
	}

	return copied, nil
}

// Clone deep-copies the run through its wire form. The manager hands out
// clones so callers never observe a snapshot mid-tick.
func (r *Run) Clone() (*Run, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to clone run: %w", err)
	}

	var copied Run
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to clone run: %w", err)
	}

	if copied.ChosenOptions == nil {
		copied.ChosenOptions = make(map[string]string)
	}

	return &copied, nil
}

// Current returns the block at the run cursor.
func (r *Run) Current() *models.Block {
	return r.Blocks[r.CurrentIndex]
}

// AtEnd reports whether the cursor sits on the last block.
func (r *Run) AtEnd() bool {
	return r.CurrentIndex >= len(r.Blocks)-1
}

// Completed reports whether the last block has been worked through: every
// task done for ACTION, an option chosen for CONDITION, countdown expired
// or skipped for WAIT. The run does not leave running mode by itself; that
// transition belongs to the caller.
func (r *Run) Completed() bool {
	if !r.AtEnd() {
		return false
	}

	block := r.Current()

	switch block.Type {
	case models.BlockTypeAction:
		return allTasksCompleted(block)
	case models.BlockTypeCondition:
		_, chosen := r.ChosenOptions[block.ID]

		return chosen
	case models.BlockTypeWait:
		return !r.TimerActive && r.RemainingSeconds == 0
	default:
		return false
	}
}

// advance moves the cursor forward by one, clamped at the last block, and
// resets all timer state: only the current block may own a countdown.
func (r *Run) advance() {
	if !r.AtEnd() {
		r.CurrentIndex++
	}

	r.TimerActive = false
	r.RemainingSeconds = 0
}

// ToggleTask flips one task of the current ACTION block. When every task is
// complete the run auto-advances once; un-toggling a task never retreats.
// The returned flag reports whether the cursor moved.
func (r *Run) ToggleTask(taskID string) (bool, error) {
	if !r.Running {
		return false, ErrNotRunning
	}

	block := r.Current()
	if block.Type != models.BlockTypeAction {
		return false, fmt.Errorf("%w: %s", ErrWrongBlockType, block.Type)
	}

	var toggled *models.Task

	for _, task := range block.Action.Tasks {
		if task.ID == taskID {
			toggled = task

			break
		}
	}

	if toggled == nil {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	toggled.Completed = !toggled.Completed

	if toggled.Completed && allTasksCompleted(block) && !r.AtEnd() {
		r.advance()

		return true, nil
	}

	return false, nil
}

func allTasksCompleted(block *models.Block) bool {
	for _, task := range block.Action.Tasks {
		if !task.Completed {
			return false
		}
	}

	return len(block.Action.Tasks) > 0
}

// ChooseOption records the selected option of the current CONDITION block
// and advances by exactly one. The option's decision text is informational:
// traversal stays linear regardless of the choice.
func (r *Run) ChooseOption(optionID string) error {
	if !r.Running {
		return ErrNotRunning
	}

	block := r.Current()
	if block.Type != models.BlockTypeCondition {
		return fmt.Errorf("%w: %s", ErrWrongBlockType, block.Type)
	}

	found := false

	for _, option := range block.Condition.Options {
		if option.ID == optionID {
			found = true

			break
		}
	}

	if !found {
		return fmt.Errorf("%w: %s", ErrOptionNotFound, optionID)
	}

	r.ChosenOptions[block.ID] = optionID
	r.advance()

	return nil
}

// beginCountdown arms the timer of the current WAIT block. A zero-duration
// block completes immediately.
func (r *Run) beginCountdown() (immediate bool, err error) {
	if !r.Running {
		return false, ErrNotRunning
	}

	block := r.Current()
	if block.Type != models.BlockTypeWait {
		return false, fmt.Errorf("%w: %s", ErrWrongBlockType, block.Type)
	}

	if r.TimerActive {
		return false, nil
	}

	r.RemainingSeconds = block.Wait.DurationMinutes * 60
	if r.RemainingSeconds == 0 {
		r.advance()

		return true, nil
	}

	r.TimerActive = true

	return false, nil
}

// tickSecond consumes one elapsed second. It only counts while
// running && timerActive && remaining > 0; hitting zero stops the timer and
// advances. The returned flag reports that the countdown finished.
func (r *Run) tickSecond() (done bool) {
	if !r.Running || !r.TimerActive || r.RemainingSeconds <= 0 {
		return true
	}

	r.RemainingSeconds--

	if r.RemainingSeconds == 0 {
		r.advance()

		return true
	}

	return false
}

// Skip moves past the current WAIT block without waiting for expiry. The
// timer need not have started.
func (r *Run) Skip() error {
	if !r.Running {
		return ErrNotRunning
	}

	block := r.Current()
	if block.Type != models.BlockTypeWait {
		return fmt.Errorf("%w: %s", ErrWrongBlockType, block.Type)
	}

	r.advance()

	return nil
}

// Stop leaves running mode and disarms any countdown.
func (r *Run) Stop() {
	r.Running = false
	r.TimerActive = false
}
