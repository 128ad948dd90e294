package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

// ApprovalRepository handles approval tasks and their decision history.
type ApprovalRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewApprovalRepository creates a new approval repository.
func NewApprovalRepository(db *sql.DB, logger *slog.Logger) *ApprovalRepository {
	return &ApprovalRepository{db: db, logger: logger}
}

const approvalColumns = `
			id
		  , execution_id
		  , node_id
		  , document_id
		  , assigned_user_id
		  , expires_at
		  , timeout_hours
		  , escalate_to_user_id
		  , escalate_after_hours
		  , escalation_chain
		  , escalation_count
		  , status
		  , decided_by
		  , comment
		  , created_at
		  , decided_at`

func (r *ApprovalRepository) CreateApprovalTask(ctx context.Context, task *models.ApprovalTask) error {
	chainJSON, err := json.Marshal(task.EscalationChain)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation chain: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_approval_tasks (`+approvalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		task.ID,
		task.ExecutionID,
		task.NodeID,
		task.DocumentID,
		task.AssignedUserID,
		task.ExpiresAt,
		nullInt(task.TimeoutHours),
		nullString(task.EscalateToUserID),
		nullInt(task.EscalateAfterHours),
		chainJSON,
		task.EscalationCount,
		task.Status,
		nullString(task.DecidedBy),
		nullString(task.Comment),
		task.CreatedAt,
		task.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval task: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) ApprovalTaskByID(ctx context.Context, id string) (*models.ApprovalTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM workflow_approval_tasks WHERE id = $1`, id)

	task, err := scanApprovalTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewApprovalError("get", id, persistence.ErrApprovalTaskNotFound)
		}

		return nil, fmt.Errorf("failed to scan approval task: %w", err)
	}

	return task, nil
}

func (r *ApprovalRepository) ApprovalTasksByExecution(ctx context.Context, executionID string) ([]*models.ApprovalTask, error) {
	return r.queryTasks(ctx,
		`SELECT `+approvalColumns+` FROM workflow_approval_tasks WHERE execution_id = $1 ORDER BY created_at`,
		executionID,
	)
}

func (r *ApprovalRepository) ApprovalTasksByUser(ctx context.Context, userID string, openOnly bool) ([]*models.ApprovalTask, error) {
	return r.queryTasks(ctx, `
		SELECT `+approvalColumns+` FROM workflow_approval_tasks
		WHERE assigned_user_id = $1
		  AND (NOT $2 OR status IN ('pending', 'escalated'))
		ORDER BY created_at
	`, userID, openOnly)
}

// ExpiredApprovalTasks returns open tasks whose expiry is at or before now.
func (r *ApprovalRepository) ExpiredApprovalTasks(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalTask, error) {
	if limit <= 0 {
		limit = 100
	}

	return r.queryTasks(ctx, `
		SELECT `+approvalColumns+` FROM workflow_approval_tasks
		WHERE status IN ('pending', 'escalated')
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
}

// ResolveApprovalTask closes an open task. Concurrent resolutions of the same
// task see exactly one true.
func (r *ApprovalRepository) ResolveApprovalTask(ctx context.Context, id string, status models.ApprovalStatus, decidedBy, comment string, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_approval_tasks
		SET status = $1, decided_by = $2, comment = $3, decided_at = $4
		WHERE id = $5 AND status IN ('pending', 'escalated')
	`, status, nullString(decidedBy), nullString(comment), at, id)
	if err != nil {
		return false, fmt.Errorf("failed to resolve approval task %s: %w", id, err)
	}

	return r.affectedOrMissing(ctx, result, id)
}

func (r *ApprovalRepository) EscalateApprovalTask(ctx context.Context, id, fromUser, toUser string, expiresAt *time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_approval_tasks
		SET assigned_user_id = $1,
			expires_at = $2,
			escalation_count = escalation_count + 1,
			status = 'escalated'
		WHERE id = $3 AND assigned_user_id = $4 AND status IN ('pending', 'escalated')
	`, toUser, expiresAt, id, fromUser)
	if err != nil {
		return false, fmt.Errorf("failed to escalate approval task %s: %w", id, err)
	}

	return r.affectedOrMissing(ctx, result, id)
}

func (r *ApprovalRepository) affectedOrMissing(ctx context.Context, result sql.Result, id string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		_, err := r.ApprovalTaskByID(ctx, id)
		if err != nil {
			return false, err
		}
	}

	return affected == 1, nil
}

func (r *ApprovalRepository) AddApprovalDecision(ctx context.Context, decision *models.ApprovalDecision) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_approval_decisions (id, task_id, user_id, action, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		decision.ID,
		decision.TaskID,
		nullString(decision.UserID),
		decision.Action,
		nullString(decision.Comment),
		decision.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval decision: %w", err)
	}

	return nil
}

func (r *ApprovalRepository) ApprovalDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, user_id, action, comment, created_at
		FROM workflow_approval_decisions
		WHERE task_id = $1
		ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval decisions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	decisions := make([]*models.ApprovalDecision, 0)

	for rows.Next() {
		var (
			decision        models.ApprovalDecision
			userID, comment sql.NullString
		)

		err := rows.Scan(&decision.ID, &decision.TaskID, &userID, &decision.Action, &comment, &decision.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval decision: %w", err)
		}

		decision.UserID = userID.String
		decision.Comment = comment.String

		decisions = append(decisions, &decision)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval decisions: %w", err)
	}

	return decisions, nil
}

func (r *ApprovalRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.ApprovalTask, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approval tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.ApprovalTask, 0)

	for rows.Next() {
		task, err := scanApprovalTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval task: %w", err)
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approval tasks: %w", err)
	}

	return tasks, nil
}

func scanApprovalTask(row scanner) (*models.ApprovalTask, error) {
	var (
		task                             models.ApprovalTask
		expiresAt, decidedAt             sql.NullTime
		timeoutHours, escalateAfterHours sql.NullInt64
		escalateTo, decidedBy, comment   sql.NullString
		chainJSON                        []byte
	)

	err := row.Scan(
		&task.ID,
		&task.ExecutionID,
		&task.NodeID,
		&task.DocumentID,
		&task.AssignedUserID,
		&expiresAt,
		&timeoutHours,
		&escalateTo,
		&escalateAfterHours,
		&chainJSON,
		&task.EscalationCount,
		&task.Status,
		&decidedBy,
		&comment,
		&task.CreatedAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}

	task.ExpiresAt = timePtr(expiresAt)
	task.TimeoutHours = intPtr(timeoutHours)
	task.EscalateToUserID = escalateTo.String
	task.EscalateAfterHours = intPtr(escalateAfterHours)
	task.DecidedBy = decidedBy.String
	task.Comment = comment.String
	task.DecidedAt = timePtr(decidedAt)

	if chainJSON != nil {
		err := json.Unmarshal(chainJSON, &task.EscalationChain)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal escalation chain: %w", err)
		}
	}

	return &task, nil
}
