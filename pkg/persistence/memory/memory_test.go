package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunByID_NotFound(t *testing.T) {
	t.Parallel()

	p := memory.NewPersistence()

	_, err := p.RunByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, persistence.IsRunNotFound(err))
}

func TestSaveRun_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()

	run := &models.WorkflowRun{
		ID:      "exec-1",
		Status:  models.RunStatusRunning,
		Context: models.NewContextBag("exec-1", "doc-1"),
	}
	run.Context.Set("amount", "10")
	require.NoError(t, p.CreateRun(ctx, run))

	run.Context.Set("amount", "20")

	stored, err := p.RunByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "10", stored.Context.Variables["amount"])

	err = p.CreateRun(ctx, run)
	assert.ErrorIs(t, err, persistence.ErrRunAlreadyExists)
}

func TestClaimRun_SingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()

	require.NoError(t, p.CreateRun(ctx, &models.WorkflowRun{
		ID:            "exec-1",
		Status:        models.RunStatusWaiting,
		CurrentNodeID: "wait",
	}))

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := p.ClaimRun(ctx, "exec-1", []models.RunStatus{models.RunStatusWaiting}, models.RunStatusRunning, "wait")
			assert.NoError(t, err)

			if ok {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestClaimRun_WrongNode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()

	require.NoError(t, p.CreateRun(ctx, &models.WorkflowRun{
		ID:            "exec-1",
		Status:        models.RunStatusWaiting,
		CurrentNodeID: "second-wait",
	}))

	ok, err := p.ClaimRun(ctx, "exec-1", []models.RunStatus{models.RunStatusWaiting}, models.RunStatusRunning, "first-wait")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDueTimers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for _, timer := range []*models.Timer{
		{ID: "past", FireAt: now.Add(-time.Minute), Status: models.TimerStatusWaiting},
		{ID: "exact", FireAt: now, Status: models.TimerStatusWaiting},
		{ID: "future", FireAt: now.Add(time.Minute), Status: models.TimerStatusWaiting},
		{ID: "fired", FireAt: now.Add(-time.Hour), Status: models.TimerStatusFired},
	} {
		require.NoError(t, p.CreateTimer(ctx, timer))
	}

	due, err := p.DueTimers(ctx, now, 100)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "past", due[0].ID)
	assert.Equal(t, "exact", due[1].ID)

	limited, err := p.DueTimers(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTransitionTimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	now := time.Now().UTC()

	require.NoError(t, p.CreateTimer(ctx, &models.Timer{ID: "t1", Status: models.TimerStatusWaiting, FireAt: now}))

	ok, err := p.TransitionTimer(ctx, "t1", models.TimerStatusWaiting, models.TimerStatusFired, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.TransitionTimer(ctx, "t1", models.TimerStatusWaiting, models.TimerStatusFired, now)
	require.NoError(t, err)
	assert.False(t, ok)

	timer, err := p.TimerByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.TimerStatusFired, timer.Status)
	assert.NotNil(t, timer.FiredAt)
}

func TestResolveApprovalTask_OnlyOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	now := time.Now().UTC()

	require.NoError(t, p.CreateApprovalTask(ctx, &models.ApprovalTask{
		ID:             "task-1",
		AssignedUserID: "alice",
		Status:         models.ApprovalStatusPending,
	}))

	ok, err := p.ResolveApprovalTask(ctx, "task-1", models.ApprovalStatusApproved, "alice", "fine", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.ResolveApprovalTask(ctx, "task-1", models.ApprovalStatusRejected, "alice", "changed my mind", now)
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := p.ApprovalTaskByID(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalStatusApproved, task.Status)
	assert.Equal(t, "fine", task.Comment)
}

func TestEscalateApprovalTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	expires := time.Now().UTC().Add(time.Hour)

	require.NoError(t, p.CreateApprovalTask(ctx, &models.ApprovalTask{
		ID:              "task-1",
		AssignedUserID:  "alice",
		EscalationChain: []string{"bob"},
		Status:          models.ApprovalStatusPending,
	}))

	ok, err := p.EscalateApprovalTask(ctx, "task-1", "carol", "bob", &expires)
	require.NoError(t, err)
	assert.False(t, ok, "stale assignee must not escalate")

	ok, err = p.EscalateApprovalTask(ctx, "task-1", "alice", "bob", &expires)
	require.NoError(t, err)
	assert.True(t, ok)

	open, err := p.ApprovalTasksByUser(ctx, "bob", true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ApprovalStatusEscalated, open[0].Status)
	assert.Equal(t, 1, open[0].EscalationCount)
}

func TestWorkflowsByTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()

	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{ID: "a", Status: models.WorkflowStatusActive, TriggerEvent: models.TriggerDocumentAdded}))
	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{ID: "b", Status: models.WorkflowStatusInactive, TriggerEvent: models.TriggerDocumentAdded}))
	require.NoError(t, p.SaveWorkflow(ctx, &models.Workflow{ID: "c", Status: models.WorkflowStatusActive, TriggerEvent: models.TriggerManual}))

	workflows, err := p.WorkflowsByTrigger(ctx, models.TriggerDocumentAdded)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "a", workflows[0].ID)
}

func TestPendingDocuments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()

	require.NoError(t, p.SaveDocument(ctx, &models.Document{ID: "d1"}))
	require.NoError(t, p.SaveDocument(ctx, &models.Document{ID: "d2", IsIndexed: true}))

	pending, err := p.PendingDocuments(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "d1", pending[0].ID)
}

func TestSettledRuns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p := memory.NewPersistence()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	waitingOn := func(id, nodeID string, kind models.ResumeKind, key, recordID string) *models.WorkflowRun {
		bag := models.NewContextBag(id, "doc-1")
		bag.SetNodeOutput(nodeID, map[string]any{key: recordID})

		return &models.WorkflowRun{
			ID: id, Status: models.RunStatusWaiting, CurrentNodeID: nodeID, WaitingOn: kind,
			Context: bag, UpdatedAt: now,
		}
	}

	for _, run := range []*models.WorkflowRun{
		waitingOn("fired-timer", "wait", models.ResumeKindTimer, models.SuspensionTimerKey, "t-fired"),
		waitingOn("pending-timer", "wait", models.ResumeKindTimer, models.SuspensionTimerKey, "t-waiting"),
		waitingOn("approved-task", "approve", models.ResumeKindApproval, models.SuspensionTaskKey, "task-approved"),
		waitingOn("open-task", "approve", models.ResumeKindApproval, models.SuspensionTaskKey, "task-open"),
		waitingOn("unknown-task", "approve", models.ResumeKindApproval, models.SuspensionTaskKey, "task-missing"),
	} {
		require.NoError(t, p.CreateRun(ctx, run))
	}

	require.NoError(t, p.CreateTimer(ctx, &models.Timer{ID: "t-fired", ExecutionID: "fired-timer", NodeID: "wait", Status: models.TimerStatusFired}))
	require.NoError(t, p.CreateTimer(ctx, &models.Timer{ID: "t-waiting", ExecutionID: "pending-timer", NodeID: "wait", Status: models.TimerStatusWaiting}))
	require.NoError(t, p.CreateApprovalTask(ctx, &models.ApprovalTask{ID: "task-approved", ExecutionID: "approved-task", NodeID: "approve", Status: models.ApprovalStatusApproved}))
	require.NoError(t, p.CreateApprovalTask(ctx, &models.ApprovalTask{ID: "task-open", ExecutionID: "open-task", NodeID: "approve", Status: models.ApprovalStatusPending}))

	runs, err := p.SettledRuns(ctx, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}

	assert.ElementsMatch(t, []string{"fired-timer", "approved-task"}, ids)
}
