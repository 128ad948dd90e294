package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrUndeclaredPort is a node reporting, or a caller resuming on, a port
	// the node type does not declare.
	ErrUndeclaredPort = errors.New("undeclared output port")
	// ErrUnexpectedStatus is a run found in a status the operation cannot start from.
	ErrUnexpectedStatus = errors.New("unexpected run status")
	// ErrNodePanic is a node executor that panicked.
	ErrNodePanic = errors.New("node executor panicked")
	// ErrUnknownNode is a cursor pointing at a node missing from the definition.
	ErrUnknownNode = errors.New("node not found in workflow")
	// ErrStepLimit is a run that executed more nodes than the engine allows.
	ErrStepLimit = errors.New("step limit exceeded")

	ErrWorkflowInactive = errors.New("workflow is not active")
	ErrRunTerminal      = errors.New("run already finished")
)

// IntegrityError reports a defect in a node type or a definition. The run it
// happened in is failed and the error is logged at error level.
type IntegrityError struct {
	ExecutionID string
	NodeID      string
	Err         error
	Detail      string
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("integrity violation in run %s", e.ExecutionID)
	if e.NodeID != "" {
		msg += " at node " + e.NodeID
	}

	msg += ": " + e.Err.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}

	return msg
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// IsIntegrityError reports whether err is or wraps an IntegrityError.
func IsIntegrityError(err error) bool {
	var integrityErr *IntegrityError

	return errors.As(err, &integrityErr)
}
