// Package workflow drives workflow runs through their node graph, suspending
// them on delay and approval nodes and resuming them exactly once.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/eventbus"
	"github.com/dukex/docflow/pkg/events"
	"github.com/dukex/docflow/pkg/lock"
	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/otelhelper"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/webhook"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxSteps = 1000

// Config holds the dependencies of an Engine. Events, Webhooks, Tracer,
// Locker, Logger and Clock are optional.
type Config struct {
	Persistence persistence.Persistence
	Executors   *registry.Executors
	Locker      lock.Locker
	Events      eventbus.EventPublisher
	Webhooks    protocol.WebhookDispatcher
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Clock       func() time.Time
	MaxSteps    int
}

// Engine executes workflow runs. It is safe for concurrent use; work on one
// run is serialized through the Locker.
type Engine struct {
	persistence persistence.Persistence
	executors   *registry.Executors
	locker      lock.Locker
	events      eventbus.EventPublisher
	webhooks    protocol.WebhookDispatcher
	tracer      trace.Tracer
	logger      *slog.Logger
	clock       func() time.Time
	maxSteps    int
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		persistence: cfg.Persistence,
		executors:   cfg.Executors,
		locker:      cfg.Locker,
		events:      cfg.Events,
		webhooks:    cfg.Webhooks,
		tracer:      cfg.Tracer,
		logger:      cfg.Logger,
		clock:       cfg.Clock,
		maxSteps:    cfg.MaxSteps,
	}

	if e.locker == nil {
		e.locker = lock.NewLocalLocker()
	}

	if e.webhooks == nil {
		e.webhooks = webhook.Noop{}
	}

	if e.tracer == nil {
		e.tracer = otelhelper.NoopTracer()
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}

	e.logger = e.logger.With("module", "workflow_engine")

	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}

	if e.maxSteps <= 0 {
		e.maxSteps = defaultMaxSteps
	}

	return e
}

// Executors returns the node executors the engine dispatches to.
func (e *Engine) Executors() *registry.Executors {
	return e.executors
}

// ResumeOutcome reports whether a Resume call won the claim on the run.
type ResumeOutcome struct {
	Resumed bool
	Run     *models.WorkflowRun
}

// TriggeredRun summarizes one run started by TriggerForEvent.
type TriggeredRun struct {
	ExecutionID string           `json:"execution_id"`
	WorkflowID  string           `json:"workflow_id"`
	Status      models.RunStatus `json:"status"`
}

// TriggerResult lists the runs an event started and the workflows that could not start.
type TriggerResult struct {
	Triggered int            `json:"triggered"`
	Runs      []TriggeredRun `json:"runs"`
	Errors    []string       `json:"errors,omitempty"`
}

// Start creates a run of workflowID seeded with bag and drives it until it
// completes, fails or waits. The returned run reflects the persisted state;
// an IntegrityError is returned together with the failed run.
func (e *Engine) Start(ctx context.Context, workflowID string, bag *models.ContextBag) (*models.WorkflowRun, error) {
	wf, err := e.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !wf.IsActive() {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	if _, ok := wf.NodeByID(wf.StartNodeID); !ok {
		return nil, fmt.Errorf("%w: start node %q", ErrUnknownNode, wf.StartNodeID)
	}

	if bag == nil {
		bag = models.NewContextBag("", "")
	}

	bag.ExecutionID = uuid.NewString()
	seedVariables(bag, wf)

	now := e.clock()
	run := &models.WorkflowRun{
		ID:         bag.ExecutionID,
		WorkflowID: wf.ID,
		DocumentID: bag.DocumentID,
		Status:     models.RunStatusRunning,
		Context:    bag,
		Frontier:   []models.Cursor{{NodeID: wf.StartNodeID, Context: bag}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	release, err := e.locker.Acquire(ctx, lock.RunKey(run.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", run.ID, err)
	}
	defer e.release(ctx, release, run.ID)

	err = e.persistence.CreateRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	e.logger.InfoContext(ctx, "Workflow run started", "workflow_id", wf.ID, "execution_id", run.ID, "document_id", run.DocumentID)
	e.publish(ctx, run.ID, &events.WorkflowStarted{
		BaseEvent:    events.NewBaseEvent(events.WorkflowStartedEvent, wf.ID, run.ID),
		DocumentID:   run.DocumentID,
		TriggerEvent: wf.TriggerEvent,
	})

	err = e.drive(ctx, wf, run, false)

	return run, err
}

// TriggerForEvent starts one run of every active workflow listening to event.
// Each run receives its own copy of bag. A workflow that cannot start is
// recorded in the result and does not prevent the others.
func (e *Engine) TriggerForEvent(ctx context.Context, event models.TriggerEvent, bag *models.ContextBag) (TriggerResult, error) {
	result := TriggerResult{Runs: []TriggeredRun{}}

	workflows, err := e.persistence.WorkflowsByTrigger(ctx, event)
	if err != nil {
		return result, fmt.Errorf("failed to find workflows for %s: %w", event, err)
	}

	if bag == nil {
		bag = models.NewContextBag("", "")
	}

	for _, wf := range workflows {
		run, err := e.Start(ctx, wf.ID, bag.Clone())
		if run != nil {
			result.Triggered++
			result.Runs = append(result.Runs, TriggeredRun{ExecutionID: run.ID, WorkflowID: wf.ID, Status: run.Status})
		}

		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to run triggered workflow", "workflow_id", wf.ID, "event", event, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", wf.ID, err))
		}
	}

	return result, nil
}

// Resume continues a waiting run on port of its suspended node. Only one
// concurrent caller wins; the others get Resumed false and no error. data is
// merged into the branch bag and recorded as the node's output.
func (e *Engine) Resume(ctx context.Context, executionID, port string, data map[string]any) (*ResumeOutcome, error) {
	run, err := e.persistence.RunByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusWaiting {
		return &ResumeOutcome{Run: run}, nil
	}

	wf, err := e.persistence.WorkflowByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}

	node, ok := wf.NodeByID(run.CurrentNodeID)
	if !ok {
		return nil, &IntegrityError{ExecutionID: run.ID, NodeID: run.CurrentNodeID, Err: ErrUnknownNode}
	}

	if !e.executors.DeclaresPort(node.Type, port) {
		return nil, &IntegrityError{ExecutionID: run.ID, NodeID: node.ID, Err: ErrUndeclaredPort, Detail: port}
	}

	release, err := e.locker.Acquire(ctx, lock.RunKey(executionID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", executionID, err)
	}
	defer e.release(ctx, release, executionID)

	claimed, err := e.persistence.ClaimRun(ctx, executionID, []models.RunStatus{models.RunStatusWaiting}, models.RunStatusRunning, node.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim run %s: %w", executionID, err)
	}

	run, err = e.persistence.RunByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !claimed {
		e.logger.DebugContext(ctx, "Resume lost the claim", "execution_id", executionID, "node_id", node.ID, "port", port)

		return &ResumeOutcome{Run: run}, nil
	}

	bag := run.Context
	if bag == nil {
		bag = models.NewContextBag(run.ID, run.DocumentID)
	}

	output := make(map[string]any, len(data)+1)
	for k, v := range bag.NodeOutputs[node.ID] {
		output[k] = v
	}

	for k, v := range data {
		output[k] = v
	}

	output["port"] = port

	bag.Merge(data)
	bag.SetNodeOutput(node.ID, output)

	run.Status = models.RunStatusRunning
	run.CurrentNodeID = ""
	run.WaitingOn = ""
	run.Context = bag

	advance(run, wf, node.ID, port, bag)

	now := e.clock()
	run.UpdatedAt = now

	err = e.persistence.SaveRun(ctx, run)
	if err != nil {
		e.unclaim(ctx, run.ID, node.ID)

		return nil, fmt.Errorf("failed to persist resumed run %s: %w", executionID, err)
	}

	e.appendLog(ctx, &models.NodeExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: run.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Status:      models.NodeStatusSuccess,
		Port:        port,
		Message:     "resumed",
		Output:      data,
		StartedAt:   now,
		FinishedAt:  now,
	})

	e.logger.InfoContext(ctx, "Workflow run resumed", "execution_id", run.ID, "node_id", node.ID, "port", port)
	e.publish(ctx, run.ID, &events.WorkflowResumed{
		BaseEvent: events.NewBaseEvent(events.WorkflowResumedEvent, wf.ID, run.ID),
		NodeID:    node.ID,
		Port:      port,
	})

	err = e.drive(ctx, wf, run, false)

	return &ResumeOutcome{Resumed: true, Run: run}, err
}

// unclaim returns a claimed run to waiting on nodeID after its resume could
// not be persisted. The stored row still carries the waiting state.
func (e *Engine) unclaim(ctx context.Context, executionID, nodeID string) {
	ok, err := e.persistence.ClaimRun(ctx, executionID, []models.RunStatus{models.RunStatusRunning}, models.RunStatusWaiting, nodeID)
	if err != nil || !ok {
		e.logger.ErrorContext(ctx, "Failed to return run to waiting", "execution_id", executionID, "node_id", nodeID, "error", err)
	}
}

// Cancel moves a running or waiting run to cancelled and closes its pending
// timers and approval tasks. Cancelling a finished run returns ErrRunTerminal.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string) (*models.WorkflowRun, error) {
	release, err := e.locker.Acquire(ctx, lock.RunKey(executionID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", executionID, err)
	}
	defer e.release(ctx, release, executionID)

	claimed, err := e.persistence.ClaimRun(ctx, executionID,
		[]models.RunStatus{models.RunStatusRunning, models.RunStatusWaiting}, models.RunStatusCancelled, "")
	if err != nil {
		return nil, fmt.Errorf("failed to cancel run %s: %w", executionID, err)
	}

	run, err := e.persistence.RunByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if !claimed {
		return run, fmt.Errorf("%w: %s is %s", ErrRunTerminal, executionID, run.Status)
	}

	now := e.clock()
	run.Status = models.RunStatusCancelled
	run.Error = reason
	run.CompletedAt = &now
	run.UpdatedAt = now

	err = e.persistence.SaveRun(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to save cancelled run %s: %w", executionID, err)
	}

	e.cancelSuspensions(ctx, run.ID, "", reason)

	e.logger.InfoContext(ctx, "Workflow run cancelled", "execution_id", run.ID, "reason", reason)
	e.publish(ctx, run.ID, &events.WorkflowCancelled{
		BaseEvent: events.NewBaseEvent(events.WorkflowCancelledEvent, run.WorkflowID, run.ID),
		Reason:    reason,
	})

	return run, nil
}

// Recover continues a run left in running by a process that stopped while
// driving it. The head of the frontier is executed again, so suspensions it
// may already have created are cancelled first. Runs in any other status are
// returned untouched.
func (e *Engine) Recover(ctx context.Context, executionID string) (*models.WorkflowRun, error) {
	release, err := e.locker.Acquire(ctx, lock.RunKey(executionID))
	if err != nil {
		return nil, fmt.Errorf("failed to lock run %s: %w", executionID, err)
	}
	defer e.release(ctx, release, executionID)

	run, err := e.persistence.RunByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if run.Status != models.RunStatusRunning {
		return run, nil
	}

	// Claimed by a resume that died before persisting its progress.
	if run.WaitingOn != "" && run.CurrentNodeID != "" {
		e.logger.WarnContext(ctx, "Returning half-resumed run to waiting", "execution_id", run.ID, "node_id", run.CurrentNodeID)

		_, err := e.persistence.ClaimRun(ctx, run.ID, []models.RunStatus{models.RunStatusRunning}, models.RunStatusWaiting, run.CurrentNodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to return run %s to waiting: %w", run.ID, err)
		}

		return e.persistence.RunByID(ctx, run.ID)
	}

	wf, err := e.persistence.WorkflowByID(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}

	if len(run.Frontier) > 0 {
		e.cancelSuspensions(ctx, run.ID, run.Frontier[0].NodeID, "recovered")
	}

	e.logger.WarnContext(ctx, "Recovering stranded run", "execution_id", run.ID, "frontier", len(run.Frontier))

	err = e.drive(ctx, wf, run, false)

	return run, err
}

// DryRun walks workflow with bag without persisting anything. Suspending
// nodes fail with "no associated execution" in a dry run.
func (e *Engine) DryRun(ctx context.Context, wf *models.Workflow, bag *models.ContextBag) (*models.WorkflowRun, error) {
	err := e.executors.ValidateWorkflow(wf)
	if err != nil {
		return nil, err
	}

	if bag == nil {
		bag = models.NewContextBag("", "")
	}

	bag.ExecutionID = ""
	seedVariables(bag, wf)

	now := e.clock()
	run := &models.WorkflowRun{
		WorkflowID: wf.ID,
		DocumentID: bag.DocumentID,
		Status:     models.RunStatusRunning,
		Context:    bag,
		Frontier:   []models.Cursor{{NodeID: wf.StartNodeID, Context: bag}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = e.drive(ctx, wf, run, true)

	return run, err
}

// cancelSuspensions closes the waiting timers and open approval tasks of a
// run, restricted to nodeID when it is not empty.
func (e *Engine) cancelSuspensions(ctx context.Context, executionID, nodeID, reason string) {
	now := e.clock()

	timers, err := e.persistence.TimersByExecution(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to list timers", "execution_id", executionID, "error", err)
	}

	for _, timer := range timers {
		if timer.Status != models.TimerStatusWaiting || (nodeID != "" && timer.NodeID != nodeID) {
			continue
		}

		_, err := e.persistence.TransitionTimer(ctx, timer.ID, models.TimerStatusWaiting, models.TimerStatusCancelled, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to cancel timer", "timer_id", timer.ID, "error", err)
		}
	}

	tasks, err := e.persistence.ApprovalTasksByExecution(ctx, executionID)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to list approval tasks", "execution_id", executionID, "error", err)
	}

	for _, task := range tasks {
		if !task.Status.IsOpen() || (nodeID != "" && task.NodeID != nodeID) {
			continue
		}

		ok, err := e.persistence.ResolveApprovalTask(ctx, task.ID, models.ApprovalStatusCancelled, "", reason, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to cancel approval task", "task_id", task.ID, "error", err)

			continue
		}

		if ok {
			err = e.persistence.AddApprovalDecision(ctx, &models.ApprovalDecision{
				ID:        uuid.NewString(),
				TaskID:    task.ID,
				Action:    models.ApprovalStatusCancelled,
				Comment:   reason,
				CreatedAt: now,
			})
			if err != nil {
				e.logger.WarnContext(ctx, "Failed to record approval cancellation", "task_id", task.ID, "error", err)
			}
		}
	}
}

func (e *Engine) release(ctx context.Context, release lock.Release, executionID string) {
	err := release(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to release run lock", "execution_id", executionID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if e.events == nil {
		return
	}

	err := e.events.Publish(ctx, key, event)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

func seedVariables(bag *models.ContextBag, wf *models.Workflow) {
	for k, v := range wf.Variables {
		if _, exists := bag.Get(k); !exists {
			bag.Set(k, v)
		}
	}
}

// runAttrs are the span attributes identifying a run.
func runAttrs(run *models.WorkflowRun) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, run.ID),
	}
}
