// Package services provides the operations behind the HTTP API and their
// standardized error types.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/workflow"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidStatus   = errors.New("invalid run status")
	ErrInvalidDecision = errors.New("decision must be approved or rejected")
	ErrUserIDRequired  = errors.New("user id is required")
	ErrPortRequired    = errors.New("port is required")

	// Authorization Errors (403 Forbidden).
	ErrNotAssignee = errors.New("only the assigned user may decide")

	// Business Logic Conflicts (409 Conflict).
	ErrTaskClosed     = errors.New("approval task is already resolved")
	ErrRunNotWaiting  = errors.New("run is not waiting")
	ErrWorkflowUnable = errors.New("workflow cannot be started")
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
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrUserIDRequired) ||
		errors.Is(err, ErrPortRequired) ||
		errors.Is(err, registry.ErrInvalidWorkflow) ||
		errors.Is(err, workflow.ErrUndeclaredPort)
}

// IsForbiddenError checks if an error should return HTTP 403.
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrNotAssignee)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrTaskClosed) ||
		errors.Is(err, ErrRunNotWaiting) ||
		errors.Is(err, ErrWorkflowUnable) ||
		errors.Is(err, workflow.ErrRunTerminal) ||
		errors.Is(err, workflow.ErrWorkflowInactive)
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
