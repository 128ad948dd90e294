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
	"github.com/lib/pq"
)

// RunRepository handles workflow run rows. Status changes that decide who
// drives a run go through ClaimRun, a conditional UPDATE.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `
			id
		  , workflow_id
		  , document_id
		  , status
		  , current_node_id
		  , waiting_on
		  , context
		  , frontier
		  , failed_branches
		  , failed_node_id
		  , error
		  , step_count
		  , created_at
		  , updated_at
		  , completed_at`

// CreateRun inserts a new run and fails when the execution ID is taken.
func (r *RunRepository) CreateRun(ctx context.Context, run *models.WorkflowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return persistence.NewRunError("create", run.ID, persistence.ErrRunAlreadyExists)
		}

		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// SaveRun upserts the full run state.
func (r *RunRepository) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	args, err := runArgs(run)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			waiting_on = EXCLUDED.waiting_on,
			context = EXCLUDED.context,
			frontier = EXCLUDED.frontier,
			failed_branches = EXCLUDED.failed_branches,
			failed_node_id = EXCLUDED.failed_node_id,
			error = EXCLUDED.error,
			step_count = EXCLUDED.step_count,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	return nil
}

// RunByID returns the run with the given execution ID.
func (r *RunRepository) RunByID(ctx context.Context, executionID string) (*models.WorkflowRun, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, executionID)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("get", executionID, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	return run, nil
}

// RunsByStatus returns runs in status, least recently updated first.
func (r *RunRepository) RunsByStatus(ctx context.Context, status models.RunStatus, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE status = $1 ORDER BY updated_at LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SettledRuns joins waiting runs to the timer or approval task named in the
// output of their current node.
func (r *RunRepository) SettledRuns(ctx context.Context, limit int) ([]*models.WorkflowRun, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM workflow_runs r
		WHERE r.status = 'waiting'
		  AND (
		    (r.waiting_on = 'timer' AND EXISTS (
		      SELECT 1 FROM workflow_timers t
		      WHERE t.id = r.context->'node_outputs'->r.current_node_id->>'timer_id'
		        AND t.status = 'fired'))
		    OR (r.waiting_on = 'approval' AND EXISTS (
		      SELECT 1 FROM workflow_approval_tasks a
		      WHERE a.id = r.context->'node_outputs'->r.current_node_id->>'task_id'
		        AND a.status IN ('approved', 'rejected', 'expired')))
		  )
		ORDER BY r.updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settled runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ClaimRun is a compare-and-set on the run status. Exactly one concurrent
// caller observes true for the same from state.
func (r *RunRepository) ClaimRun(ctx context.Context, executionID string, from []models.RunStatus, to models.RunStatus, nodeID string) (bool, error) {
	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = $1, updated_at = $2
		WHERE id = $3
		  AND status = ANY($4)
		  AND ($5 = '' OR current_node_id = $5)
	`, to, time.Now().UTC(), executionID, pq.Array(statuses), nodeID)
	if err != nil {
		return false, fmt.Errorf("failed to claim run %s: %w", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		_, err := r.RunByID(ctx, executionID)
		if err != nil {
			return false, err
		}
	}

	return affected == 1, nil
}

func runArgs(run *models.WorkflowRun) ([]any, error) {
	contextJSON, err := json.Marshal(run.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run context: %w", err)
	}

	frontierJSON, err := json.Marshal(run.Frontier)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run frontier: %w", err)
	}

	return []any{
		run.ID,
		run.WorkflowID,
		nullString(run.DocumentID),
		run.Status,
		nullString(run.CurrentNodeID),
		nullString(string(run.WaitingOn)),
		contextJSON,
		frontierJSON,
		run.FailedBranches,
		nullString(run.FailedNodeID),
		nullString(run.Error),
		run.StepCount,
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
	}, nil
}

func scanRun(row scanner) (*models.WorkflowRun, error) {
	var (
		run                                                   models.WorkflowRun
		documentID, currentNodeID, waitingOn, failedNodeID, e sql.NullString
		contextJSON, frontierJSON                             []byte
		completedAt                                           sql.NullTime
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&documentID,
		&run.Status,
		&currentNodeID,
		&waitingOn,
		&contextJSON,
		&frontierJSON,
		&run.FailedBranches,
		&failedNodeID,
		&e,
		&run.StepCount,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.DocumentID = documentID.String
	run.CurrentNodeID = currentNodeID.String
	run.WaitingOn = models.ResumeKind(waitingOn.String)
	run.FailedNodeID = failedNodeID.String
	run.Error = e.String
	run.CompletedAt = timePtr(completedAt)

	if contextJSON != nil {
		err := json.Unmarshal(contextJSON, &run.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal run context: %w", err)
		}
	}

	if frontierJSON != nil {
		err := json.Unmarshal(frontierJSON, &run.Frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal run frontier: %w", err)
		}
	}

	return &run, nil
}
