package services

import (
	"context"
	"testing"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalWorkflow() *models.Workflow {
	wf := testutil.CreateTestWorkflow(
		testutil.ApprovalNode("approve", "alice", map[string]any{"timeout_hours": 24}),
		testutil.LogNode("done", "approved"),
	)
	wf.ID = ""

	return testutil.Connect(wf, "approve", "approved", "done")
}

func TestWorkflow_Create(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.executors, f.engine)
	ctx := context.Background()

	wf := approvalWorkflow()
	wf.Status = ""

	created, err := service.Create(ctx, wf)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusActive, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	stored, err := service.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)

	all, err := service.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflow_Create_RejectsInvalidGraph(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.executors, f.engine)

	wf := approvalWorkflow()
	testutil.Connect(wf, "approve", "maybe", "done")

	_, err := service.Create(context.Background(), wf)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "maybe")

	all, err := service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestWorkflow_Update(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.executors, f.engine)
	ctx := context.Background()

	created, err := service.Create(ctx, approvalWorkflow())
	require.NoError(t, err)

	replacement := approvalWorkflow()
	replacement.Name = "Renamed"

	updated, err := service.Update(ctx, created.ID, replacement)
	require.NoError(t, err)

	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, err = service.Update(ctx, "missing", approvalWorkflow())
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_DryRun(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.executors, f.engine)
	ctx := context.Background()

	created, err := service.Create(ctx, approvalWorkflow())
	require.NoError(t, err)

	run, err := service.DryRun(ctx, created.ID, DryRunRequest{DocumentID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.FailedBranches)

	tasks, err := f.store.ApprovalTasksByUser(ctx, "alice", false)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = service.DryRun(ctx, "missing", DryRunRequest{})
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflow_HealthCheck(t *testing.T) {
	f := newFixture(t)
	service := NewWorkflow(f.store, f.executors, f.engine)

	message, ok := service.HealthCheck(context.Background())
	assert.True(t, ok)
	assert.NotEmpty(t, message)
}
