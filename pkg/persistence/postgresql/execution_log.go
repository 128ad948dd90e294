package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/models"
)

// ExecutionLogRepository handles the workflow_execution_logs audit table.
type ExecutionLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionLogRepository creates a new execution log repository.
func NewExecutionLogRepository(db *sql.DB, logger *slog.Logger) *ExecutionLogRepository {
	return &ExecutionLogRepository{db: db, logger: logger}
}

func (r *ExecutionLogRepository) AppendExecutionLog(ctx context.Context, entry *models.NodeExecutionLog) error {
	outputJSON, err := json.Marshal(entry.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal node output: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflow_execution_logs (id, execution_id, node_id, node_type, status, port,
			message, output, duration_ms, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.NodeType,
		entry.Status,
		nullString(entry.Port),
		nullString(entry.Message),
		outputJSON,
		entry.DurationMs,
		entry.StartedAt,
		entry.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution log: %w", err)
	}

	return nil
}

func (r *ExecutionLogRepository) ExecutionLogs(ctx context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, node_type, status, port, message, output,
			duration_ms, started_at, finished_at
		FROM workflow_execution_logs
		WHERE execution_id = $1
		ORDER BY started_at, id
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	entries := make([]*models.NodeExecutionLog, 0)

	for rows.Next() {
		var (
			entry         models.NodeExecutionLog
			port, message sql.NullString
			outputJSON    []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.NodeType,
			&entry.Status,
			&port,
			&message,
			&outputJSON,
			&entry.DurationMs,
			&entry.StartedAt,
			&entry.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		entry.Port = port.String
		entry.Message = message.String

		if outputJSON != nil {
			err := json.Unmarshal(outputJSON, &entry.Output)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal node output: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}
