package services

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/testutil"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delayWorkflow(t *testing.T, f *fixture) *models.Workflow {
	t.Helper()

	wf := testutil.CreateTestWorkflow(testutil.DelayNode("wait", 2), testutil.LogNode("remind", "time is up"))
	testutil.Connect(wf, "wait", "timeout", "remind")
	require.NoError(t, f.store.SaveWorkflow(context.Background(), wf))

	return wf
}

func TestRuns_Start(t *testing.T) {
	f := newFixture(t)
	runs := NewRuns(f.store, f.engine, f.logger)
	ctx := context.Background()
	wf := delayWorkflow(t, f)

	run, err := runs.Start(ctx, StartRunRequest{WorkflowID: wf.ID, DocumentID: "doc-9", Variables: map[string]any{"priority": "high"}})
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusWaiting, run.Status)
	assert.Equal(t, "doc-9", run.DocumentID)
	assert.Equal(t, "high", run.Context.Variables["priority"])
	assert.Equal(t, "test", run.Context.Variables["env"])

	_, err = runs.Start(ctx, StartRunRequest{})
	assert.True(t, IsValidationError(err))

	_, err = runs.Start(ctx, StartRunRequest{WorkflowID: "missing"})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestRuns_Start_InactiveWorkflow(t *testing.T) {
	f := newFixture(t)
	runs := NewRuns(f.store, f.engine, f.logger)
	wf := delayWorkflow(t, f)
	wf.Status = models.WorkflowStatusInactive
	require.NoError(t, f.store.SaveWorkflow(context.Background(), wf))

	_, err := runs.Start(context.Background(), StartRunRequest{WorkflowID: wf.ID})
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestRuns_GetAndList(t *testing.T) {
	f := newFixture(t)
	runs := NewRuns(f.store, f.engine, f.logger)
	ctx := context.Background()
	wf := delayWorkflow(t, f)

	run, err := runs.Start(ctx, StartRunRequest{WorkflowID: wf.ID})
	require.NoError(t, err)

	detail, err := runs.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Timers, 1)
	assert.Len(t, detail.Logs, 1)
	assert.Empty(t, detail.Approvals)

	waiting, err := runs.List(ctx, "waiting", 0)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)

	_, err = runs.List(ctx, "paused", 10)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = runs.Get(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestRuns_Resume(t *testing.T) {
	f := newFixture(t)
	runs := NewRuns(f.store, f.engine, f.logger)
	ctx := context.Background()
	wf := delayWorkflow(t, f)

	run, err := runs.Start(ctx, StartRunRequest{WorkflowID: wf.ID})
	require.NoError(t, err)

	_, err = runs.Resume(ctx, run.ID, ResumeRequest{})
	assert.ErrorIs(t, err, ErrPortRequired)

	_, err = runs.Resume(ctx, run.ID, ResumeRequest{Port: "approved"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	stored, err := f.store.RunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaiting, stored.Status)

	outcome, err := runs.Resume(ctx, run.ID, ResumeRequest{Port: "timeout"})
	require.NoError(t, err)
	assert.True(t, outcome.Resumed)
	assert.Equal(t, models.RunStatusCompleted, outcome.Run.Status)

	again, err := runs.Resume(ctx, run.ID, ResumeRequest{Port: "timeout"})
	require.NoError(t, err)
	assert.False(t, again.Resumed)
}

func TestRuns_Cancel(t *testing.T) {
	f := newFixture(t)
	runs := NewRuns(f.store, f.engine, f.logger)
	ctx := context.Background()
	wf := delayWorkflow(t, f)

	run, err := runs.Start(ctx, StartRunRequest{WorkflowID: wf.ID})
	require.NoError(t, err)

	cancelled, err := runs.Cancel(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)
	assert.Equal(t, "cancelled by user", cancelled.Error)

	timers, err := f.store.DueTimers(ctx, f.clock.Now().Add(3*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, timers)

	_, err = runs.Cancel(ctx, run.ID, "again")
	require.ErrorIs(t, err, workflow.ErrRunTerminal)
	assert.True(t, IsConflictError(err))
}
