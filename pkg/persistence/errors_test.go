package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/docflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		runErr := persistence.NewRunError("RunByID", "exec-123", persistence.ErrRunNotFound)
		taskErr := persistence.NewApprovalError("ApprovalTaskByID", "task-1", persistence.ErrApprovalTaskNotFound)

		assert.True(t, persistence.IsRunNotFound(runErr))
		assert.False(t, persistence.IsWorkflowNotFound(runErr))
		assert.True(t, persistence.IsApprovalTaskNotFound(taskErr))
		assert.True(t, persistence.IsNotFound(taskErr))

		assert.True(t, errors.Is(runErr, persistence.ErrRunNotFound))
	})

	t.Run("wrapped errors keep their sentinel", func(t *testing.T) {
		err := fmt.Errorf("loading: %w", persistence.NewDocumentError("DocumentByID", "doc-1", persistence.ErrDocumentNotFound))

		assert.True(t, persistence.IsDocumentNotFound(err))
		assert.True(t, persistence.IsNotFound(err))
	})

	t.Run("entity error contains context", func(t *testing.T) {
		err := persistence.NewTimerError("TransitionTimerStatus", "timer-9", persistence.ErrTimerNotFound)

		assert.Contains(t, err.Error(), "TransitionTimerStatus")
		assert.Contains(t, err.Error(), "timer timer-9")
		assert.Contains(t, err.Error(), "timer not found")
	})

	t.Run("entity error without id", func(t *testing.T) {
		err := &persistence.EntityError{Op: "DueTimers", Entity: "timer", Err: errors.New("connection refused")}

		assert.Equal(t, "DueTimers operation failed for timer: connection refused", err.Error())
	})
}
