package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/docflow/pkg/events"
	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/otelhelper"
	"github.com/dukex/docflow/pkg/webhook"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// drive executes the frontier of run head first until it is empty or a node
// suspends. Branches run one after another on the calling goroutine; a failed
// branch is counted and the remaining branches continue. Every step is
// persisted unless dry is set.
func (e *Engine) drive(ctx context.Context, wf *models.Workflow, run *models.WorkflowRun, dry bool) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.drive", runAttrs(run)...)
	defer span.End()

	if run.Status != models.RunStatusRunning {
		err := &IntegrityError{ExecutionID: run.ID, Err: ErrUnexpectedStatus, Detail: string(run.Status)}
		e.logger.ErrorContext(ctx, "Refusing to drive run", "execution_id", run.ID, "error", err)

		return err
	}

	for len(run.Frontier) > 0 {
		if run.StepCount >= e.maxSteps {
			return e.abort(ctx, wf, run, "", &IntegrityError{
				ExecutionID: run.ID, Err: ErrStepLimit, Detail: fmt.Sprintf("%d steps", run.StepCount),
			}, dry)
		}

		cursor := run.Frontier[0]
		run.Frontier = run.Frontier[1:]

		node, ok := wf.NodeByID(cursor.NodeID)
		if !ok {
			return e.abort(ctx, wf, run, cursor.NodeID, &IntegrityError{
				ExecutionID: run.ID, NodeID: cursor.NodeID, Err: ErrUnknownNode,
			}, dry)
		}

		bag := cursor.Context
		if bag == nil {
			bag = run.Context.Clone()
		}

		run.StepCount++
		run.Context = bag

		if !node.Enabled {
			advance(run, wf, node.ID, models.DefaultPort, bag)
			e.save(ctx, run, dry)

			continue
		}

		started := e.clock()

		result, err := e.executeNode(ctx, node, bag)
		if err != nil {
			var integrity *IntegrityError
			if errors.As(err, &integrity) {
				integrity.ExecutionID = run.ID
			}

			e.logStep(ctx, run, node, models.Failed(err.Error()), started, dry)

			return e.abort(ctx, wf, run, node.ID, err, dry)
		}

		e.logStep(ctx, run, node, result, started, dry)

		switch {
		case result.IsSuccess():
			if !e.executors.DeclaresPort(node.Type, result.Port) {
				return e.abort(ctx, wf, run, node.ID, &IntegrityError{
					ExecutionID: run.ID, NodeID: node.ID, Err: ErrUndeclaredPort, Detail: result.Port,
				}, dry)
			}

			bag.Merge(result.Data)
			bag.SetNodeOutput(node.ID, result.Data)
			advance(run, wf, node.ID, result.Port, bag)

		case result.IsWaiting():
			return e.suspend(ctx, wf, run, node, result, dry)

		default:
			run.RecordFailure(node.ID, result.Message)
			e.logger.WarnContext(ctx, "Branch failed",
				"execution_id", run.ID, "node_id", node.ID, "error", result.Message, "failed_branches", run.FailedBranches)
		}

		e.save(ctx, run, dry)
	}

	return e.finish(ctx, wf, run, dry)
}

// executeNode validates the node configuration and calls its executor. A
// panic in the executor is returned as an IntegrityError; every other problem
// is a Failed result.
func (e *Engine) executeNode(ctx context.Context, node *models.WorkflowNode, bag *models.ContextBag) (result models.ExecutionResult, err error) {
	executor, ok := e.executors.Get(node.Type)
	if !ok {
		return models.Failedf("unknown node type %q", node.Type), nil
	}

	err = e.executors.ValidateConfig(node)
	if err != nil {
		return models.Failed(err.Error()), nil
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.node",
		attribute.String(otelhelper.ExecutionIDKey, bag.ExecutionID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = &IntegrityError{NodeID: node.ID, Err: ErrNodePanic, Detail: fmt.Sprint(r)}
			otelhelper.SetError(span, err)
		}
	}()

	result = executor.Execute(ctx, bag, node)

	switch {
	case result.IsFailed():
		otelhelper.SetFailure(span, result.Message)
	case result.IsSuccess():
		span.SetAttributes(attribute.String(otelhelper.PortKey, result.Port))
	}

	return result, nil
}

// advance pushes the successors of nodeID on port to the front of the
// frontier. The first successor keeps bag; every other one gets a clone.
func advance(run *models.WorkflowRun, wf *models.Workflow, nodeID, port string, bag *models.ContextBag) {
	next := wf.NextNodes(nodeID, port)
	if len(next) == 0 {
		return
	}

	cursors := make([]models.Cursor, len(next), len(next)+len(run.Frontier))
	for i, target := range next {
		branch := bag
		if i > 0 {
			branch = bag.Clone()
		}

		cursors[i] = models.Cursor{NodeID: target, Context: branch}
	}

	run.Frontier = append(cursors, run.Frontier...)
}

// suspend persists the waiting state of run before returning, so that a
// resume can never observe a run that is not yet waiting.
func (e *Engine) suspend(ctx context.Context, wf *models.Workflow, run *models.WorkflowRun, node *models.WorkflowNode, result models.ExecutionResult, dry bool) error {
	run.Status = models.RunStatusWaiting
	run.CurrentNodeID = node.ID
	run.WaitingOn = result.ResumeKind
	run.Context.SetNodeOutput(node.ID, result.Data)

	if dry {
		return nil
	}

	run.UpdatedAt = e.clock()

	err := e.persistence.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist waiting run %s: %w", run.ID, err)
	}

	e.logger.InfoContext(ctx, "Workflow run waiting",
		"execution_id", run.ID, "node_id", node.ID, "waiting_on", result.ResumeKind)

	e.publish(ctx, run.ID, &events.WorkflowWaiting{
		BaseEvent: events.NewBaseEvent(events.WorkflowWaitingEvent, wf.ID, run.ID),
		NodeID:    node.ID,
		WaitingOn: result.ResumeKind,
		Data:      result.Data,
	})

	data := runPayload(run)
	data["node_id"] = node.ID
	data["waiting_on"] = string(result.ResumeKind)

	for k, v := range result.Data {
		data[k] = v
	}

	e.webhooks.Trigger(ctx, webhook.EventWorkflowWaiting, data)

	return nil
}

// finish closes a run whose frontier is empty: failed when any branch
// failed, completed otherwise.
func (e *Engine) finish(ctx context.Context, wf *models.Workflow, run *models.WorkflowRun, dry bool) error {
	now := e.clock()
	run.CurrentNodeID = ""
	run.WaitingOn = ""
	run.CompletedAt = &now

	if run.FailedBranches > 0 {
		run.Status = models.RunStatusFailed
	} else {
		run.Status = models.RunStatusCompleted
	}

	if dry {
		return nil
	}

	run.UpdatedAt = now

	err := e.persistence.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to persist finished run %s: %w", run.ID, err)
	}

	if run.Status == models.RunStatusFailed {
		e.notifyFailed(ctx, wf, run)

		return nil
	}

	e.logger.InfoContext(ctx, "Workflow run completed", "execution_id", run.ID, "steps", run.StepCount)
	e.publish(ctx, run.ID, &events.WorkflowCompleted{
		BaseEvent:  events.NewBaseEvent(events.WorkflowCompletedEvent, wf.ID, run.ID),
		DocumentID: run.DocumentID,
		Steps:      run.StepCount,
	})

	data := runPayload(run)
	data["steps"] = run.StepCount
	e.webhooks.Trigger(ctx, webhook.EventWorkflowCompleted, data)

	return nil
}

// abort fails run because of an integrity defect and returns cause.
func (e *Engine) abort(ctx context.Context, wf *models.Workflow, run *models.WorkflowRun, nodeID string, cause error, dry bool) error {
	now := e.clock()
	run.Status = models.RunStatusFailed
	run.Error = cause.Error()
	run.FailedNodeID = nodeID
	run.CurrentNodeID = ""
	run.WaitingOn = ""
	run.CompletedAt = &now

	e.logger.ErrorContext(ctx, "Workflow integrity violation",
		"workflow_id", wf.ID, "execution_id", run.ID, "node_id", nodeID, "error", cause)

	if dry {
		return cause
	}

	run.UpdatedAt = now

	err := e.persistence.SaveRun(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist aborted run", "execution_id", run.ID, "error", err)
	}

	e.notifyFailed(ctx, wf, run)

	return cause
}

func (e *Engine) notifyFailed(ctx context.Context, wf *models.Workflow, run *models.WorkflowRun) {
	e.logger.WarnContext(ctx, "Workflow run failed",
		"execution_id", run.ID, "node_id", run.FailedNodeID, "error", run.Error, "failed_branches", run.FailedBranches)

	e.publish(ctx, run.ID, &events.WorkflowFailed{
		BaseEvent:      events.NewBaseEvent(events.WorkflowFailedEvent, wf.ID, run.ID),
		NodeID:         run.FailedNodeID,
		Error:          run.Error,
		FailedBranches: run.FailedBranches,
	})

	data := runPayload(run)
	data["node_id"] = run.FailedNodeID
	data["error"] = run.Error
	e.webhooks.Trigger(ctx, webhook.EventWorkflowFailed, data)
}

func (e *Engine) save(ctx context.Context, run *models.WorkflowRun, dry bool) {
	if dry {
		return
	}

	run.UpdatedAt = e.clock()

	err := e.persistence.SaveRun(ctx, run)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to persist run step", "execution_id", run.ID, "error", err)
	}
}

func (e *Engine) logStep(ctx context.Context, run *models.WorkflowRun, node *models.WorkflowNode, result models.ExecutionResult, started time.Time, dry bool) {
	if dry {
		return
	}

	finished := e.clock()
	entry := &models.NodeExecutionLog{
		ID:          uuid.NewString(),
		ExecutionID: run.ID,
		NodeID:      node.ID,
		NodeType:    node.Type,
		Port:        result.Port,
		Message:     result.Message,
		Output:      result.Data,
		DurationMs:  finished.Sub(started).Milliseconds(),
		StartedAt:   started,
		FinishedAt:  finished,
	}

	switch result.Kind {
	case models.ResultSuccess:
		entry.Status = models.NodeStatusSuccess
	case models.ResultWaiting:
		entry.Status = models.NodeStatusWaiting
	default:
		entry.Status = models.NodeStatusFailed
	}

	e.appendLog(ctx, entry)
}

func (e *Engine) appendLog(ctx context.Context, entry *models.NodeExecutionLog) {
	err := e.persistence.AppendExecutionLog(ctx, entry)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append execution log", "execution_id", entry.ExecutionID, "node_id", entry.NodeID, "error", err)
	}
}

func runPayload(run *models.WorkflowRun) map[string]any {
	return map[string]any{
		"execution_id": run.ID,
		"workflow_id":  run.WorkflowID,
		"document_id":  run.DocumentID,
		"status":       string(run.Status),
	}
}
