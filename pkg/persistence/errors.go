// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found by the given execution ID.
	ErrRunNotFound = errors.New("workflow run not found")

	// ErrRunAlreadyExists indicates a run with the same execution ID already exists.
	ErrRunAlreadyExists = errors.New("workflow run already exists")

	// ErrTimerNotFound indicates a timer was not found by the given identifier.
	ErrTimerNotFound = errors.New("timer not found")

	// ErrApprovalTaskNotFound indicates an approval task was not found.
	ErrApprovalTaskNotFound = errors.New("approval task not found")

	// ErrDocumentNotFound indicates a document was not found by the given identifier.
	ErrDocumentNotFound = errors.New("document not found")
)

// EntityError wraps repository errors with the operation and the entity they concern.
type EntityError struct {
	Op     string // Operation being performed (e.g., "RunByID", "CreateTimer")
	Entity string // Entity kind ("run", "timer", "approval_task", ...)
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new error for a workflow run operation.
func NewRunError(op, executionID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "run", ID: executionID, Err: err}
}

// NewWorkflowError creates a new error for a workflow definition operation.
func NewWorkflowError(op, workflowID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "workflow", ID: workflowID, Err: err}
}

// NewTimerError creates a new error for a timer operation.
func NewTimerError(op, timerID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "timer", ID: timerID, Err: err}
}

// NewApprovalError creates a new error for an approval task operation.
func NewApprovalError(op, taskID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "approval_task", ID: taskID, Err: err}
}

// NewDocumentError creates a new error for a document operation.
func NewDocumentError(op, documentID string, err error) *EntityError {
	return &EntityError{Op: op, Entity: "document", ID: documentID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a workflow run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsApprovalTaskNotFound checks if an error indicates an approval task was not found.
func IsApprovalTaskNotFound(err error) bool {
	return errors.Is(err, ErrApprovalTaskNotFound)
}

// IsDocumentNotFound checks if an error indicates a document was not found.
func IsDocumentNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound)
}

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return IsWorkflowNotFound(err) ||
		IsRunNotFound(err) ||
		errors.Is(err, ErrTimerNotFound) ||
		IsApprovalTaskNotFound(err) ||
		IsDocumentNotFound(err)
}
