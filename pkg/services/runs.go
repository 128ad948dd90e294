package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultRunListLimit = 50
	MaxRunListLimit     = 500
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Engine is the part of the workflow engine the services drive.
type Engine interface {
	Start(ctx context.Context, workflowID string, bag *models.ContextBag) (*models.WorkflowRun, error)
	Resume(ctx context.Context, executionID, port string, data map[string]any) (*workflow.ResumeOutcome, error)
	Cancel(ctx context.Context, executionID, reason string) (*models.WorkflowRun, error)
	DryRun(ctx context.Context, wf *models.Workflow, bag *models.ContextBag) (*models.WorkflowRun, error)
}

// Runs starts, inspects, resumes and cancels workflow runs.
type Runs struct {
	persistence persistence.Persistence
	engine      Engine
	logger      *slog.Logger
}

func NewRuns(persistence persistence.Persistence, engine Engine, logger *slog.Logger) *Runs {
	return &Runs{
		persistence: persistence,
		engine:      engine,
		logger:      logger.With("module", "run_service"),
	}
}

// StartRunRequest starts a manual run.
type StartRunRequest struct {
	WorkflowID string         `json:"workflow_id" validate:"required"`
	DocumentID string         `json:"document_id"`
	Variables  map[string]any `json:"variables"`
}

// Start runs a workflow until it completes, fails or waits. A run aborted by
// an integrity violation is returned as a failed run, not as an error.
func (r *Runs) Start(ctx context.Context, req StartRunRequest) (*models.WorkflowRun, error) {
	err := validate.Struct(req)
	if err != nil {
		return nil, NewValidationError("Start", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	bag := models.NewContextBag("", req.DocumentID)
	bag.Merge(req.Variables)

	run, err := r.engine.Start(ctx, req.WorkflowID, bag)
	if err != nil {
		if run != nil && workflow.IsIntegrityError(err) {
			return run, nil
		}

		if persistence.IsWorkflowNotFound(err) {
			return nil, err
		}

		if run == nil {
			return nil, &ServiceError{Op: "Start", Code: "WORKFLOW_UNABLE", Err: fmt.Errorf("%w: %w", ErrWorkflowUnable, err)}
		}

		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	return run, nil
}

// RunDetail is a run with its audit trail and suspensions.
type RunDetail struct {
	Run       *models.WorkflowRun        `json:"run"`
	Logs      []*models.NodeExecutionLog `json:"logs"`
	Timers    []*models.Timer            `json:"timers"`
	Approvals []*models.ApprovalTask     `json:"approvals"`
}

func (r *Runs) Get(ctx context.Context, executionID string) (*RunDetail, error) {
	run, err := r.persistence.RunByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	logs, err := r.persistence.ExecutionLogs(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution logs: %w", err)
	}

	timers, err := r.persistence.TimersByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timers: %w", err)
	}

	approvals, err := r.persistence.ApprovalTasksByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval tasks: %w", err)
	}

	return &RunDetail{Run: run, Logs: logs, Timers: timers, Approvals: approvals}, nil
}

// List returns runs in status, oldest update first.
func (r *Runs) List(ctx context.Context, status string, limit int) ([]*models.WorkflowRun, error) {
	allowed := []models.RunStatus{
		models.RunStatusRunning,
		models.RunStatusWaiting,
		models.RunStatusCompleted,
		models.RunStatusFailed,
		models.RunStatusCancelled,
	}

	if !slices.Contains(allowed, models.RunStatus(status)) {
		return nil, NewValidationError("List", "INVALID_STATUS", fmt.Sprintf("invalid status '%s'", status), ErrInvalidStatus)
	}

	if limit <= 0 {
		limit = DefaultRunListLimit
	}

	if limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}

	runs, err := r.persistence.RunsByStatus(ctx, models.RunStatus(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return runs, nil
}

// ResumeRequest continues a waiting run on a port of its waiting node.
type ResumeRequest struct {
	Port string         `json:"port" validate:"required"`
	Data map[string]any `json:"data"`
}

// Resume reports Resumed false when another caller won the run or it was no
// longer waiting. An undeclared port is a validation error and leaves the run
// untouched.
func (r *Runs) Resume(ctx context.Context, executionID string, req ResumeRequest) (*workflow.ResumeOutcome, error) {
	if req.Port == "" {
		return nil, NewValidationError("Resume", "PORT_REQUIRED", "port is required", ErrPortRequired)
	}

	outcome, err := r.engine.Resume(ctx, executionID, req.Port, req.Data)
	if err != nil {
		if outcome != nil && outcome.Resumed && workflow.IsIntegrityError(err) {
			return outcome, nil
		}

		return nil, err
	}

	return outcome, nil
}

// Cancel stops a running or waiting run.
func (r *Runs) Cancel(ctx context.Context, executionID, reason string) (*models.WorkflowRun, error) {
	if reason == "" {
		reason = "cancelled by user"
	}

	run, err := r.engine.Cancel(ctx, executionID, reason)
	if err != nil {
		return run, err
	}

	r.logger.InfoContext(ctx, "Run cancelled", "execution_id", executionID, "reason", reason)

	return run, nil
}
