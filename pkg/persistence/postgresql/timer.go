package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

// TimerRepository handles the workflow_timers table.
type TimerRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTimerRepository creates a new timer repository.
func NewTimerRepository(db *sql.DB, logger *slog.Logger) *TimerRepository {
	return &TimerRepository{db: db, logger: logger}
}

const timerColumns = `id, execution_id, node_id, timer_type, fire_at, status, created_at, fired_at`

func (r *TimerRepository) CreateTimer(ctx context.Context, timer *models.Timer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_timers (`+timerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		timer.ID,
		timer.ExecutionID,
		timer.NodeID,
		timer.TimerType,
		timer.FireAt,
		timer.Status,
		timer.CreatedAt,
		timer.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert timer: %w", err)
	}

	return nil
}

func (r *TimerRepository) TimerByID(ctx context.Context, id string) (*models.Timer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+timerColumns+` FROM workflow_timers WHERE id = $1`, id)

	timer, err := scanTimer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewTimerError("get", id, persistence.ErrTimerNotFound)
		}

		return nil, fmt.Errorf("failed to scan timer: %w", err)
	}

	return timer, nil
}

// DueTimers returns waiting timers whose fire time is at or before now, oldest first.
func (r *TimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.Timer, error) {
	if limit <= 0 {
		limit = 100
	}

	return r.queryTimers(ctx, `
		SELECT `+timerColumns+` FROM workflow_timers
		WHERE status = 'waiting' AND fire_at <= $1
		ORDER BY fire_at
		LIMIT $2
	`, now, limit)
}

func (r *TimerRepository) TimersByExecution(ctx context.Context, executionID string) ([]*models.Timer, error) {
	return r.queryTimers(ctx,
		`SELECT `+timerColumns+` FROM workflow_timers WHERE execution_id = $1 ORDER BY created_at`,
		executionID,
	)
}

// TransitionTimer is a compare-and-set on the timer status.
func (r *TimerRepository) TransitionTimer(ctx context.Context, id string, from, to models.TimerStatus, at time.Time) (bool, error) {
	var firedAt *time.Time
	if to == models.TimerStatusFired {
		firedAt = &at
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE workflow_timers
		SET status = $1, fired_at = COALESCE($2, fired_at)
		WHERE id = $3 AND status = $4
	`, to, firedAt, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition timer %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected == 1, nil
}

func (r *TimerRepository) queryTimers(ctx context.Context, query string, args ...any) ([]*models.Timer, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	timers := make([]*models.Timer, 0)

	for rows.Next() {
		timer, err := scanTimer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timer: %w", err)
		}

		timers = append(timers, timer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating timers: %w", err)
	}

	return timers, nil
}

func scanTimer(row scanner) (*models.Timer, error) {
	var (
		timer   models.Timer
		firedAt sql.NullTime
	)

	err := row.Scan(
		&timer.ID,
		&timer.ExecutionID,
		&timer.NodeID,
		&timer.TimerType,
		&timer.FireAt,
		&timer.Status,
		&timer.CreatedAt,
		&firedAt,
	)
	if err != nil {
		return nil, err
	}

	timer.FireAt = timer.FireAt.UTC()
	timer.FiredAt = timePtr(firedAt)

	return &timer, nil
}
