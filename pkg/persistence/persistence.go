// Package persistence provides the data storage abstraction of the workflow engine.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/docflow/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	WorkflowsByTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
}

// RunRepository stores workflow runs. The run row is the single source of
// truth for where an execution is.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.WorkflowRun) error
	SaveRun(ctx context.Context, run *models.WorkflowRun) error
	RunByID(ctx context.Context, executionID string) (*models.WorkflowRun, error)
	RunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.WorkflowRun, error)

	// SettledRuns returns waiting runs whose timer has fired or whose approval
	// task is resolved, least recently updated first. These runs missed the
	// resume that should have followed.
	SettledRuns(ctx context.Context, limit int) ([]*models.WorkflowRun, error)

	// ClaimRun atomically moves a run from one of the from statuses to status
	// to. When nodeID is not empty the run must also be positioned on that
	// node. It reports whether this caller won the transition.
	ClaimRun(ctx context.Context, executionID string, from []models.RunStatus, to models.RunStatus, nodeID string) (bool, error)
}

// TimerRepository stores delay timers.
type TimerRepository interface {
	CreateTimer(ctx context.Context, timer *models.Timer) error
	TimerByID(ctx context.Context, id string) (*models.Timer, error)
	DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.Timer, error)
	TimersByExecution(ctx context.Context, executionID string) ([]*models.Timer, error)

	// TransitionTimer moves a timer out of status from. It reports whether the
	// timer was still in from.
	TransitionTimer(ctx context.Context, id string, from, to models.TimerStatus, at time.Time) (bool, error)
}

// ApprovalRepository stores approval tasks and their decision history.
type ApprovalRepository interface {
	CreateApprovalTask(ctx context.Context, task *models.ApprovalTask) error
	ApprovalTaskByID(ctx context.Context, id string) (*models.ApprovalTask, error)
	ApprovalTasksByExecution(ctx context.Context, executionID string) ([]*models.ApprovalTask, error)
	ApprovalTasksByUser(ctx context.Context, userID string, openOnly bool) ([]*models.ApprovalTask, error)
	ExpiredApprovalTasks(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalTask, error)

	// ResolveApprovalTask closes an open task with status. It reports whether
	// the task was still open.
	ResolveApprovalTask(ctx context.Context, id string, status models.ApprovalStatus, decidedBy, comment string, at time.Time) (bool, error)

	// EscalateApprovalTask reassigns an open task still assigned to fromUser.
	EscalateApprovalTask(ctx context.Context, id, fromUser, toUser string, expiresAt *time.Time) (bool, error)

	AddApprovalDecision(ctx context.Context, decision *models.ApprovalDecision) error
	ApprovalDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error)
}

// ExecutionLogRepository stores the per-node audit trail of runs.
type ExecutionLogRepository interface {
	AppendExecutionLog(ctx context.Context, entry *models.NodeExecutionLog) error
	ExecutionLogs(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error)
}

// DocumentRepository stores documents processed by the pipeline.
type DocumentRepository interface {
	DocumentByID(ctx context.Context, id string) (*models.Document, error)
	SaveDocument(ctx context.Context, document *models.Document) error
	PendingDocuments(ctx context.Context, limit int) ([]*models.Document, error)
}

// MatchRuleRepository stores classification rules used by the matcher.
type MatchRuleRepository interface {
	MatchRules(ctx context.Context) ([]*models.MatchRule, error)
	SaveMatchRule(ctx context.Context, rule *models.MatchRule) error
}

// Persistence groups every repository behind one handle.
type Persistence interface {
	WorkflowRepository
	RunRepository
	TimerRepository
	ApprovalRepository
	ExecutionLogRepository
	DocumentRepository
	MatchRuleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
