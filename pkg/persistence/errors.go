// Package persistence provides standardized error types for persistence
// operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrCarePlanNotFound indicates a care plan was not found by the given identifier.
	ErrCarePlanNotFound = errors.New("care plan not found")

	// ErrBlockNotFound indicates a block was not found within the care plan.
	ErrBlockNotFound = errors.New("block not found")

	// ErrCarePlanAlreadyExists indicates a care plan with the same identifier already exists.
	ErrCarePlanAlreadyExists = errors.New("care plan already exists")

	// ErrBlockAlreadyExists indicates a block with the same identifier already exists.
	ErrBlockAlreadyExists = errors.New("block already exists")

	// ErrBlockTypeImmutable indicates a payload update tried to change the
	// type a block was created with.
	ErrBlockTypeImmutable = errors.New("block type cannot be changed")
)

// PlanError wraps care-plan-related errors with additional context.
type PlanError struct {
	Op      string // Operation being performed (e.g. "GetByID", "Save", "Delete")
	PlanID  string
	Err     error
	Message string
}

func (e *PlanError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for care plan %s: %s (%v)", e.Op, e.PlanID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for care plan %s: %v", e.Op, e.PlanID, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

func (e *PlanError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewPlanError creates a new care-plan error with context.
func NewPlanError(op, planID string, err error) *PlanError {
	return &PlanError{
		Op:     op,
		PlanID: planID,
		Err:    err,
	}
}

// BlockError wraps block-related errors with additional context.
type BlockError struct {
	Op      string
	PlanID  string
	BlockID string
	Err     error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%s operation failed for block %s in care plan %s: %v", e.Op, e.BlockID, e.PlanID, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

func (e *BlockError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewBlockError creates a new block error with context.
func NewBlockError(op, planID, blockID string, err error) *BlockError {
	return &BlockError{
		Op:      op,
		PlanID:  planID,
		BlockID: blockID,
		Err:     err,
	}
}

// IsCarePlanNotFound checks if an error indicates a care plan was not found.
func IsCarePlanNotFound(err error) bool {
	return errors.Is(err, ErrCarePlanNotFound)
}

// IsBlockNotFound checks if an error indicates a block was not found.
func IsBlockNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound)
}

// IsBlockTypeImmutable checks if an error indicates a rejected block type change.
func IsBlockTypeImmutable(err error) bool {
	return errors.Is(err, ErrBlockTypeImmutable)
}
