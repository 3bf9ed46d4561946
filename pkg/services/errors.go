// Package services provides standardized error types for service layer operations.
package services

import (
	"errors"
	"fmt"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrTitleRequired       = errors.New("care plan title is required")
	ErrPatientRequired     = errors.New("patient ID is required")
	ErrInvalidBlockType    = errors.New("invalid block type")
	ErrInvalidBlockPayload = errors.New("block payload does not match its type")
	ErrSelfReference       = errors.New("block cannot reference itself")
	ErrBlockTypeImmutable  = errors.New("block type cannot be changed after creation")

	// Business Logic Conflicts (409 Conflict).
	ErrPlanHasActiveRun = errors.New("care plan has an active run")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTitleRequired) ||
		errors.Is(err, ErrPatientRequired) ||
		errors.Is(err, ErrInvalidBlockType) ||
		errors.Is(err, ErrInvalidBlockPayload) ||
		errors.Is(err, ErrSelfReference) ||
		errors.Is(err, ErrBlockTypeImmutable)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrPlanHasActiveRun)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
