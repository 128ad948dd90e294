package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/google/uuid"
)

// Resumer continues a waiting run.
type Resumer interface {
	Resume(ctx context.Context, executionID, port string, data map[string]any) (*workflow.ResumeOutcome, error)
}

// ApprovalStore is the storage Approvals reads tasks and runs from.
type ApprovalStore interface {
	persistence.ApprovalRepository
	RunByID(ctx context.Context, executionID string) (*models.WorkflowRun, error)
}

// Approvals lets users see and decide the approval tasks assigned to them.
type Approvals struct {
	persistence ApprovalStore
	resumer     Resumer
	clock       func() time.Time
	logger      *slog.Logger
}

func NewApprovals(persistence ApprovalStore, resumer Resumer, logger *slog.Logger, clock func() time.Time) *Approvals {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return &Approvals{
		persistence: persistence,
		resumer:     resumer,
		clock:       clock,
		logger:      logger.With("module", "approval_service"),
	}
}

// ListForUser returns the tasks assigned to userID, only open ones when openOnly.
func (a *Approvals) ListForUser(ctx context.Context, userID string, openOnly bool) ([]*models.ApprovalTask, error) {
	if userID == "" {
		return nil, NewValidationError("ListForUser", "USER_ID_REQUIRED", "user id is required", ErrUserIDRequired)
	}

	tasks, err := a.persistence.ApprovalTasksByUser(ctx, userID, openOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval tasks: %w", err)
	}

	return tasks, nil
}

// TaskDetail is an approval task with its decision history.
type TaskDetail struct {
	Task      *models.ApprovalTask       `json:"task"`
	Decisions []*models.ApprovalDecision `json:"decisions"`
}

func (a *Approvals) Get(ctx context.Context, taskID string) (*TaskDetail, error) {
	task, err := a.persistence.ApprovalTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	decisions, err := a.persistence.ApprovalDecisions(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}

	return &TaskDetail{Task: task, Decisions: decisions}, nil
}

// DecideRequest approves or rejects a task.
type DecideRequest struct {
	UserID   string                `json:"user_id"  validate:"required"`
	Decision models.ApprovalStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string                `json:"comment"`
}

// DecideResult is the resolved task and the run it resumed.
type DecideResult struct {
	Task    *models.ApprovalTask `json:"task"`
	Resumed bool                 `json:"resumed"`
	Run     *models.WorkflowRun  `json:"run,omitempty"`
}

// Decide resolves an open task assigned to req.UserID and resumes its run on
// the matching port. Of two concurrent decisions only the first is applied;
// the second gets ErrTaskClosed. When the resume fails the resolved task is
// returned with Resumed unset and the run is left to the sweeper.
func (a *Approvals) Decide(ctx context.Context, taskID string, req DecideRequest) (*DecideResult, error) {
	err := validate.Struct(req)
	if err != nil {
		if req.Decision != "" && req.UserID != "" {
			return nil, NewValidationError("Decide", "INVALID_DECISION", err.Error(), ErrInvalidDecision)
		}

		return nil, NewValidationError("Decide", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	task, err := a.persistence.ApprovalTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if !task.Status.IsOpen() {
		return nil, &ServiceError{Op: "Decide", Code: "TASK_CLOSED", Message: fmt.Sprintf("task is %s", task.Status), Err: ErrTaskClosed}
	}

	if task.AssignedUserID != req.UserID {
		return nil, &ServiceError{Op: "Decide", Code: "NOT_ASSIGNEE", Err: ErrNotAssignee}
	}

	now := a.clock()

	resolved, err := a.persistence.ResolveApprovalTask(ctx, task.ID, req.Decision, req.UserID, req.Comment, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approval task: %w", err)
	}

	if !resolved {
		return nil, &ServiceError{Op: "Decide", Code: "TASK_CLOSED", Err: ErrTaskClosed}
	}

	err = a.persistence.AddApprovalDecision(ctx, &models.ApprovalDecision{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		UserID:    req.UserID,
		Action:    req.Decision,
		Comment:   req.Comment,
		CreatedAt: now,
	})
	if err != nil {
		a.logger.WarnContext(ctx, "Failed to record approval decision", "task_id", task.ID, "error", err)
	}

	task, err = a.persistence.ApprovalTaskByID(ctx, task.ID)
	if err != nil {
		return nil, err
	}

	port, _ := models.PortForApprovalStatus(req.Decision)

	outcome, err := a.resumer.Resume(ctx, task.ExecutionID, port, map[string]any{
		"task_id":    task.ID,
		"decision":   string(req.Decision),
		"decided_by": req.UserID,
		"comment":    req.Comment,
	})
	if err != nil && (outcome == nil || !workflow.IsIntegrityError(err)) {
		// The decision stands; the sweeper resumes runs whose task is resolved.
		a.logger.ErrorContext(ctx, "Failed to resume run after decision",
			"task_id", task.ID, "execution_id", task.ExecutionID, "error", err)

		run, lookupErr := a.persistence.RunByID(ctx, task.ExecutionID)
		if lookupErr != nil {
			run = nil
		}

		return &DecideResult{Task: task, Run: run}, nil
	}

	a.logger.InfoContext(ctx, "Approval task decided",
		"task_id", task.ID, "execution_id", task.ExecutionID, "decision", req.Decision, "user_id", req.UserID, "resumed", outcome.Resumed)

	return &DecideResult{Task: task, Resumed: outcome.Resumed, Run: outcome.Run}, nil
}
