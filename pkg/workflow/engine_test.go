package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/docflow/pkg/eventbus"
	"github.com/dukex/docflow/pkg/events"
	"github.com/dukex/docflow/pkg/lock"
	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubNode is a node type whose behavior is supplied by the test.
type stubNode struct {
	id      string
	outputs []string
	exec    func(bag *models.ContextBag) models.ExecutionResult
}

func (s *stubNode) Create(protocol.Dependencies) (protocol.NodeExecutor, error) { return s, nil }
func (s *stubNode) ID() string                                                  { return s.id }
func (s *stubNode) Name() string                                                { return s.id }
func (s *stubNode) Description() string                                         { return "test node" }
func (s *stubNode) Outputs() []string                                           { return s.outputs }
func (s *stubNode) ConfigSchema() models.ConfigSchema                           { return models.ConfigSchema{} }

func (s *stubNode) Execute(_ context.Context, bag *models.ContextBag, _ *models.WorkflowNode) models.ExecutionResult {
	return s.exec(bag)
}

type recorder struct {
	mu        sync.Mutex
	published []events.EventType
	hooks     []string
}

func (r *recorder) Publish(_ context.Context, _ string, event eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.published = append(r.published, event.GetType())

	return nil
}

func (r *recorder) Trigger(_ context.Context, event string, _ map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hooks = append(r.hooks, event)
}

func (r *recorder) snapshot() ([]events.EventType, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]events.EventType(nil), r.published...), append([]string(nil), r.hooks...)
}

// flakyStore fails SaveRun while failSaves is set.
type flakyStore struct {
	*memory.Persistence
	failSaves atomic.Bool
}

func (f *flakyStore) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	if f.failSaves.Load() {
		return errors.New("connection reset")
	}

	return f.Persistence.SaveRun(ctx, run)
}

type harness struct {
	engine   *Engine
	store    *memory.Persistence
	flaky    *flakyStore
	clock    *testutil.Clock
	recorder *recorder
}

func newHarness(t *testing.T, extra ...protocol.NodeFactory) *harness {
	t.Helper()

	store := memory.NewPersistence()
	clock := testutil.NewClock(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	for _, factory := range extra {
		reg.RegisterNode(factory)
	}

	executors, err := reg.Build(protocol.Dependencies{Logger: logger, Timers: store, Approvals: store, Clock: clock.Now})
	require.NoError(t, err)

	rec := &recorder{}
	flaky := &flakyStore{Persistence: store}

	return &harness{
		engine: NewEngine(Config{
			Persistence: flaky,
			Executors:   executors,
			Locker:      lock.NewLocalLocker(),
			Events:      rec,
			Webhooks:    rec,
			Logger:      logger,
			Clock:       clock.Now,
		}),
		store:    store,
		flaky:    flaky,
		clock:    clock,
		recorder: rec,
	}
}

func (h *harness) save(t *testing.T, wf *models.Workflow) {
	t.Helper()
	require.NoError(t, h.store.SaveWorkflow(context.Background(), wf))
}

func (h *harness) run(t *testing.T, id string) *models.WorkflowRun {
	t.Helper()

	run, err := h.store.RunByID(context.Background(), id)
	require.NoError(t, err)

	return run
}

func delayThenLog() *models.Workflow {
	wf := testutil.CreateTestWorkflow(testutil.DelayNode("wait", 24), testutil.LogNode("done", "waited for {env}"))

	return testutil.Connect(wf, "wait", "timeout", "done")
}

func TestStart_SuspendsOnDelayAndResumesOnTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, models.NewContextBag("", "doc-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaiting, run.Status)
	assert.Equal(t, "wait", run.CurrentNodeID)
	assert.Equal(t, models.ResumeKindTimer, run.WaitingOn)

	stored := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusWaiting, stored.Status)
	assert.Equal(t, "test", stored.Context.Variables["env"])

	timers, err := h.store.TimersByExecution(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), timers[0].FireAt)

	outcome, err := h.engine.Resume(ctx, run.ID, "timeout", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Resumed)
	assert.Equal(t, models.RunStatusCompleted, outcome.Run.Status)

	stored = h.run(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	msg, ok := stored.Context.NodeOutput("done", "message")
	require.True(t, ok)
	assert.Equal(t, "waited for test", msg)

	logs, err := h.store.ExecutionLogs(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, models.NodeStatusWaiting, logs[0].Status)
	assert.Equal(t, "resumed", logs[1].Message)
	assert.Equal(t, "success", logs[2].Port)

	published, hooks := h.recorder.snapshot()
	assert.Equal(t, []events.EventType{
		events.WorkflowStartedEvent, events.WorkflowWaitingEvent, events.WorkflowResumedEvent, events.WorkflowCompletedEvent,
	}, published)
	assert.Equal(t, []string{"workflow.waiting", "workflow.completed"}, hooks)
}

func TestResume_ConcurrentCallersTraverseOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusWaiting, run.Status)

	var (
		wins atomic.Int32
		wg   sync.WaitGroup
	)

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			outcome, err := h.engine.Resume(ctx, run.ID, "timeout", nil)
			assert.NoError(t, err)

			if outcome != nil && outcome.Resumed {
				wins.Add(1)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	logs, err := h.store.ExecutionLogs(ctx, run.ID)
	require.NoError(t, err)

	executed := 0
	for _, entry := range logs {
		if entry.NodeID == "done" {
			executed++
		}
	}

	assert.Equal(t, 1, executed)
	assert.Equal(t, models.RunStatusCompleted, h.run(t, run.ID).Status)
}

func TestResume_UndeclaredPortLeavesRunWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	_, err = h.engine.Resume(ctx, run.ID, "approved", nil)
	require.ErrorIs(t, err, ErrUndeclaredPort)
	assert.True(t, IsIntegrityError(err))
	assert.Equal(t, models.RunStatusWaiting, h.run(t, run.ID).Status)
}

func TestResume_NotWaitingIsNoop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := testutil.CreateTestWorkflow(testutil.LogNode("only", "hello"))
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCompleted, run.Status)

	outcome, err := h.engine.Resume(ctx, run.ID, "timeout", nil)
	require.NoError(t, err)
	assert.False(t, outcome.Resumed)
	assert.Equal(t, models.RunStatusCompleted, outcome.Run.Status)
}

func TestApproval_ResumeMergesDecisionData(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(
		testutil.ApprovalNode("approve", "alice", nil),
		testutil.LogNode("accepted", "approved by {decided_by}"),
		testutil.LogNode("declined", "rejected"),
	)
	testutil.Connect(wf, "approve", "approved", "accepted")
	testutil.Connect(wf, "approve", "rejected", "declined")
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, models.NewContextBag("", "doc-1"))
	require.NoError(t, err)
	require.Equal(t, models.ResumeKindApproval, run.WaitingOn)

	taskID, ok := run.Context.NodeOutput("approve", "task_id")
	require.True(t, ok)
	assert.NotEmpty(t, taskID)

	outcome, err := h.engine.Resume(ctx, run.ID, "approved", map[string]any{"decided_by": "alice"})
	require.NoError(t, err)
	require.True(t, outcome.Resumed)

	stored := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)

	msg, ok := stored.Context.NodeOutput("accepted", "message")
	require.True(t, ok)
	assert.Equal(t, "approved by alice", msg)

	port, _ := stored.Context.NodeOutput("approve", "port")
	assert.Equal(t, "approved", port)

	_, ran := stored.Context.NodeOutputs["declined"]
	assert.False(t, ran)
}

func TestBranches_FailedSiblingDoesNotStopOthers(t *testing.T) {
	failing := &stubNode{id: "fail", exec: func(*models.ContextBag) models.ExecutionResult {
		return models.Failed("boom")
	}}
	marking := &stubNode{id: "mark", outputs: []string{"done"}, exec: func(bag *models.ContextBag) models.ExecutionResult {
		bag.Set("marked", true)

		return models.Success("done", map[string]any{"marked": true})
	}}

	h := newHarness(t, failing, marking)
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(
		testutil.LogNode("fork", "forking"),
		testutil.CreateTestNode(testutil.WithID("left"), testutil.WithType("fail"), testutil.WithConfig(nil)),
		testutil.CreateTestNode(testutil.WithID("right"), testutil.WithType("mark"), testutil.WithConfig(nil)),
		testutil.LogNode("after", "after right"),
	)
	testutil.Connect(wf, "fork", "success", "left")
	testutil.Connect(wf, "fork", "success", "right")
	testutil.Connect(wf, "right", "done", "after")
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	stored := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.FailedBranches)
	assert.Equal(t, "left", stored.FailedNodeID)
	assert.Equal(t, "boom", stored.Error)
	assert.Equal(t, 4, stored.StepCount)

	logs, err := h.store.ExecutionLogs(ctx, run.ID)
	require.NoError(t, err)

	order := make([]string, 0, len(logs))
	for _, entry := range logs {
		order = append(order, entry.NodeID)
	}

	assert.Equal(t, []string{"fork", "left", "right", "after"}, order)

	_, hooks := h.recorder.snapshot()
	assert.Equal(t, []string{"workflow.failed"}, hooks)
}

func TestBranches_ForkedBagsAreIndependent(t *testing.T) {
	var seen sync.Map

	setter := &stubNode{id: "set", outputs: []string{"ok"}, exec: func(bag *models.ContextBag) models.ExecutionResult {
		bag.Set("owner", "left")

		return models.Success("ok", nil)
	}}
	reader := &stubNode{id: "read", outputs: []string{"ok"}, exec: func(bag *models.ContextBag) models.ExecutionResult {
		v, _ := bag.Get("owner")
		seen.Store("read", v)

		return models.Success("ok", nil)
	}}

	h := newHarness(t, setter, reader)
	wf := testutil.CreateTestWorkflow(
		testutil.LogNode("fork", "forking"),
		testutil.CreateTestNode(testutil.WithID("a"), testutil.WithType("set"), testutil.WithConfig(nil)),
		testutil.CreateTestNode(testutil.WithID("b"), testutil.WithType("read"), testutil.WithConfig(nil)),
	)
	testutil.Connect(wf, "fork", "success", "a")
	testutil.Connect(wf, "fork", "success", "b")
	h.save(t, wf)

	run, err := h.engine.Start(context.Background(), wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	v, _ := seen.Load("read")
	assert.Nil(t, v)
}

func TestTraversal_FollowsDefaultEdge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(
		testutil.CreateTestNode(
			testutil.WithID("check"),
			testutil.WithType(models.NodeTypeConditional),
			testutil.WithConfig(map[string]any{"condition": `{{eq .vars.env "prod"}}`}),
		),
		testutil.LogNode("prod", "production"),
		testutil.LogNode("fallback", "fallback"),
	)
	testutil.Connect(wf, "check", "true", "prod")
	testutil.Connect(wf, "check", models.DefaultPort, "fallback")
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	_, ranFallback := run.Context.NodeOutputs["fallback"]
	_, ranProd := run.Context.NodeOutputs["prod"]
	assert.True(t, ranFallback)
	assert.False(t, ranProd)
}

func TestTraversal_DisabledNodeIsSkipped(t *testing.T) {
	h := newHarness(t)

	skipped := testutil.DelayNode("wait", 1)
	skipped.Enabled = false

	wf := testutil.CreateTestWorkflow(skipped, testutil.LogNode("next", "next"))
	testutil.Connect(wf, "wait", models.DefaultPort, "next")
	h.save(t, wf)

	run, err := h.engine.Start(context.Background(), wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	timers, err := h.store.TimersByExecution(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Empty(t, timers)
}

func TestIntegrity_UndeclaredPortFailsRun(t *testing.T) {
	rogue := &stubNode{id: "rogue", outputs: []string{"ok"}, exec: func(*models.ContextBag) models.ExecutionResult {
		return models.Success("elsewhere", nil)
	}}

	h := newHarness(t, rogue)
	wf := testutil.CreateTestWorkflow(testutil.CreateTestNode(testutil.WithID("r"), testutil.WithType("rogue"), testutil.WithConfig(nil)))
	h.save(t, wf)

	run, err := h.engine.Start(context.Background(), wf.ID, nil)
	require.ErrorIs(t, err, ErrUndeclaredPort)
	require.NotNil(t, run)

	stored := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusFailed, stored.Status)
	assert.Equal(t, "r", stored.FailedNodeID)
	assert.Contains(t, stored.Error, "elsewhere")
}

func TestIntegrity_PanicFailsRun(t *testing.T) {
	panicking := &stubNode{id: "panic", exec: func(*models.ContextBag) models.ExecutionResult {
		panic("nil map")
	}}

	h := newHarness(t, panicking)
	wf := testutil.CreateTestWorkflow(testutil.CreateTestNode(testutil.WithID("p"), testutil.WithType("panic"), testutil.WithConfig(nil)))
	h.save(t, wf)

	run, err := h.engine.Start(context.Background(), wf.ID, nil)
	require.ErrorIs(t, err, ErrNodePanic)

	var integrity *IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, run.ID, integrity.ExecutionID)
	assert.Equal(t, "p", integrity.NodeID)

	assert.Equal(t, models.RunStatusFailed, h.run(t, run.ID).Status)
}

func TestInvalidConfigFailsBranch(t *testing.T) {
	h := newHarness(t)
	wf := testutil.CreateTestWorkflow(testutil.CreateTestNode(testutil.WithID("log"), testutil.WithConfig(map[string]any{"level": "info"})))
	h.save(t, wf)

	run, err := h.engine.Start(context.Background(), wf.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "message")
}

func TestStart_InactiveWorkflow(t *testing.T) {
	h := newHarness(t)
	wf := testutil.CreateTestWorkflow(testutil.LogNode("only", "hello"))
	wf.Status = models.WorkflowStatusInactive
	h.save(t, wf)

	_, err := h.engine.Start(context.Background(), wf.ID, nil)
	assert.ErrorIs(t, err, ErrWorkflowInactive)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(testutil.ApprovalNode("approve", "alice", map[string]any{"timeout_hours": 48}))
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, models.NewContextBag("", "doc-1"))
	require.NoError(t, err)

	cancelled, err := h.engine.Cancel(ctx, run.ID, "document deleted")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, cancelled.Status)
	assert.Equal(t, "document deleted", cancelled.Error)

	tasks, err := h.store.ApprovalTasksByExecution(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.ApprovalStatusCancelled, tasks[0].Status)

	_, err = h.engine.Cancel(ctx, run.ID, "again")
	require.ErrorIs(t, err, ErrRunTerminal)

	outcome, err := h.engine.Resume(ctx, run.ID, "approved", nil)
	require.NoError(t, err)
	assert.False(t, outcome.Resumed)
}

func TestCancel_CancelsWaitingTimer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	_, err = h.engine.Cancel(ctx, run.ID, "")
	require.NoError(t, err)

	timers, err := h.store.TimersByExecution(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, models.TimerStatusCancelled, timers[0].Status)
}

func TestRecover_ContinuesStrandedRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := testutil.CreateTestWorkflow(testutil.LogNode("first", "first"), testutil.LogNode("second", "second"))
	testutil.Connect(wf, "first", "success", "second")
	h.save(t, wf)

	bag := models.NewContextBag("exec-stranded", "")
	require.NoError(t, h.store.CreateRun(ctx, &models.WorkflowRun{
		ID:         "exec-stranded",
		WorkflowID: wf.ID,
		Status:     models.RunStatusRunning,
		Context:    bag,
		Frontier:   []models.Cursor{{NodeID: "second", Context: bag}},
		StepCount:  1,
	}))

	run, err := h.engine.Recover(ctx, "exec-stranded")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 2, run.StepCount)

	again, err := h.engine.Recover(ctx, "exec-stranded")
	require.NoError(t, err)
	assert.Equal(t, 2, again.StepCount)
}

func TestResume_PersistsProgressBeforeNextNode(t *testing.T) {
	var (
		store    *memory.Persistence
		during   *models.WorkflowRun
		executed atomic.Int32
	)

	after := &stubNode{id: "after", outputs: []string{"ok"}, exec: func(bag *models.ContextBag) models.ExecutionResult {
		if executed.Add(1) == 1 {
			run, err := store.RunByID(context.Background(), bag.ExecutionID)
			if err == nil {
				during = run
			}
		}

		return models.Success("ok", nil)
	}}

	h := newHarness(t, after)
	store = h.store
	ctx := context.Background()

	wf := testutil.CreateTestWorkflow(
		testutil.DelayNode("wait", 1),
		testutil.CreateTestNode(testutil.WithID("next"), testutil.WithType("after"), testutil.WithConfig(nil)),
	)
	testutil.Connect(wf, "wait", "timeout", "next")
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	outcome, err := h.engine.Resume(ctx, run.ID, "timeout", map[string]any{"note": "fired"})
	require.NoError(t, err)
	require.True(t, outcome.Resumed)
	require.NotNil(t, during)

	assert.Equal(t, models.RunStatusRunning, during.Status)
	assert.Empty(t, during.CurrentNodeID)
	assert.Empty(t, during.WaitingOn)
	require.Len(t, during.Frontier, 1)
	assert.Equal(t, "next", during.Frontier[0].NodeID)
	assert.Equal(t, "fired", during.Context.Variables["note"])

	// The process stops while "next" executes: the stored row is the one it saw.
	require.NoError(t, h.store.SaveRun(ctx, during))

	recovered, err := h.engine.Recover(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, recovered.Status)
	assert.Equal(t, int32(2), executed.Load())
}

func TestResume_SaveFailureReturnsRunToWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	h.flaky.failSaves.Store(true)

	_, err = h.engine.Resume(ctx, run.ID, "timeout", nil)
	require.Error(t, err)

	stored := h.run(t, run.ID)
	assert.Equal(t, models.RunStatusWaiting, stored.Status)
	assert.Equal(t, "wait", stored.CurrentNodeID)

	h.flaky.failSaves.Store(false)

	outcome, err := h.engine.Resume(ctx, run.ID, "timeout", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Resumed)
	assert.Equal(t, models.RunStatusCompleted, h.run(t, run.ID).Status)
}

func TestRecover_ReturnsHalfResumedRunToWaiting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()
	h.save(t, wf)

	run, err := h.engine.Start(ctx, wf.ID, nil)
	require.NoError(t, err)

	claimed, err := h.store.ClaimRun(ctx, run.ID, []models.RunStatus{models.RunStatusWaiting}, models.RunStatusRunning, "wait")
	require.NoError(t, err)
	require.True(t, claimed)

	recovered, err := h.engine.Recover(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusWaiting, recovered.Status)
	assert.Equal(t, "wait", recovered.CurrentNodeID)

	timers, err := h.store.TimersByExecution(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, models.TimerStatusWaiting, timers[0].Status)

	outcome, err := h.engine.Resume(ctx, run.ID, "timeout", nil)
	require.NoError(t, err)
	assert.True(t, outcome.Resumed)
}

func TestDryRun_PersistsNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := delayThenLog()

	run, err := h.engine.DryRun(ctx, wf, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "no associated execution", run.Error)

	runs, err := h.store.RunsByStatus(ctx, models.RunStatusFailed, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	published, _ := h.recorder.snapshot()
	assert.Empty(t, published)
}

func TestTriggerForEvent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		wf := testutil.CreateTestWorkflow(testutil.LogNode("log", "document {document_id}"))
		wf.ID = id
		wf.TriggerEvent = models.TriggerDocumentAdded
		h.save(t, wf)
	}

	manual := testutil.CreateTestWorkflow(testutil.LogNode("log", "manual"))
	h.save(t, manual)

	bag := models.NewContextBag("", "doc-9")
	bag.Set("title", "Invoice")

	result, err := h.engine.TriggerForEvent(ctx, models.TriggerDocumentAdded, bag)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Triggered)
	assert.Empty(t, result.Errors)

	for _, triggered := range result.Runs {
		run := h.run(t, triggered.ExecutionID)
		assert.Equal(t, "doc-9", run.DocumentID)
		assert.Equal(t, models.RunStatusCompleted, run.Status)

		msg, _ := run.Context.NodeOutput("log", "message")
		assert.Equal(t, "document doc-9", msg)
	}

	assert.Empty(t, bag.ExecutionID)
}
