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
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
			id
		  , name
		  , description
		  , status
		  , trigger_event
		  , start_node_id
		  , variables
		  , max_escalation_hops
		  , created_at
		  , updated_at`

// Workflows returns all workflows from the database.
func (r *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	return r.queryWorkflows(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY created_at DESC`)
}

// WorkflowsByTrigger returns the active workflows started by event.
func (r *WorkflowRepository) WorkflowsByTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.Workflow, error) {
	return r.queryWorkflows(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE trigger_event = $1 AND status = 'active' ORDER BY created_at`,
		event,
	)
}

// WorkflowByID returns a workflow with its nodes and connections.
func (r *WorkflowRepository) WorkflowByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = $1`, id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("get", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	err = r.loadGraph(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow graph: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) queryWorkflows(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	for _, workflow := range workflows {
		err := r.loadGraph(ctx, workflow)
		if err != nil {
			return nil, fmt.Errorf("failed to load workflow graph: %w", err)
		}
	}

	return workflows, nil
}

// SaveWorkflow upserts a workflow and replaces its nodes and connections.
func (r *WorkflowRepository) SaveWorkflow(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if workflow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate workflow ID: %w", err)
		}

		workflow.ID = id.String()
	}

	variablesJSON, err := json.Marshal(workflow.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, status, trigger_event, start_node_id,
			variables, max_escalation_hops, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			trigger_event = EXCLUDED.trigger_event,
			start_node_id = EXCLUDED.start_node_id,
			variables = EXCLUDED.variables,
			max_escalation_hops = EXCLUDED.max_escalation_hops,
			updated_at = EXCLUDED.updated_at
	`,
		workflow.ID,
		workflow.Name,
		workflow.Description,
		workflow.Status,
		workflow.TriggerEvent,
		workflow.StartNodeID,
		variablesJSON,
		workflow.MaxEscalationHops,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_connections WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing connections: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM workflow_nodes WHERE workflow_id = $1", workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	err = r.saveNodes(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = r.saveConnections(ctx, tx, workflow)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow      models.Workflow
		variablesJSON []byte
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.Name,
		&workflow.Description,
		&workflow.Status,
		&workflow.TriggerEvent,
		&workflow.StartNodeID,
		&variablesJSON,
		&workflow.MaxEscalationHops,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if variablesJSON != nil {
		err := json.Unmarshal(variablesJSON, &workflow.Variables)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
		}
	}

	return &workflow, nil
}

func (r *WorkflowRepository) loadGraph(ctx context.Context, workflow *models.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, config, enabled
		FROM workflow_nodes
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]*models.WorkflowNode, 0)

	for rows.Next() {
		var (
			node       models.WorkflowNode
			configJSON []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Name, &configJSON, &node.Enabled)
		if err != nil {
			return fmt.Errorf("failed to scan node: %w", err)
		}

		if configJSON != nil {
			err := json.Unmarshal(configJSON, &node.Config)
			if err != nil {
				return fmt.Errorf("failed to unmarshal node configuration: %w", err)
			}
		}

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating nodes: %w", err)
	}

	workflow.Nodes = nodes

	connRows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, source_port, target_node_id, target_port
		FROM workflow_connections
		WHERE workflow_id = $1
		ORDER BY position
	`, workflow.ID)
	if err != nil {
		return fmt.Errorf("failed to query workflow connections: %w", err)
	}

	defer closeRows(ctx, r.logger, connRows)

	connections := make([]*models.Connection, 0)

	for connRows.Next() {
		var (
			connection                                         models.Connection
			sourceNodeID, sourcePort, targetNodeID, targetPort string
		)

		err := connRows.Scan(&connection.ID, &sourceNodeID, &sourcePort, &targetNodeID, &targetPort)
		if err != nil {
			return fmt.Errorf("failed to scan connection: %w", err)
		}

		connection.SourcePort = models.MakePortID(sourceNodeID, sourcePort)
		connection.TargetPort = models.MakePortID(targetNodeID, targetPort)

		connections = append(connections, &connection)
	}

	if err := connRows.Err(); err != nil {
		return fmt.Errorf("error iterating connections: %w", err)
	}

	workflow.Connections = connections

	return nil
}

func (r *WorkflowRepository) saveNodes(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, node := range workflow.Nodes {
		configJSON, err := json.Marshal(node.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal node configuration: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO workflow_nodes (workflow_id, id, position, node_type, name, config, enabled)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			workflow.ID,
			node.ID,
			position,
			node.Type,
			node.Name,
			configJSON,
			node.Enabled,
		)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", node.ID, err)
		}
	}

	return nil
}

func (r *WorkflowRepository) saveConnections(ctx context.Context, tx *sql.Tx, workflow *models.Workflow) error {
	for position, connection := range workflow.Connections {
		sourceNodeID, sourcePort, ok := models.ParsePortID(connection.SourcePort)
		if !ok {
			return fmt.Errorf("invalid source port ID format: %s", connection.SourcePort)
		}

		targetNodeID, targetPort, ok := models.ParsePortID(connection.TargetPort)
		if !ok {
			return fmt.Errorf("invalid target port ID format: %s", connection.TargetPort)
		}

		id := connection.ID
		if id == "" {
			id = fmt.Sprintf("%s-%d", workflow.ID, position)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO workflow_connections (workflow_id, id, position, source_node_id, source_port, target_node_id, target_port)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			workflow.ID,
			id,
			position,
			sourceNodeID,
			sourcePort,
			targetNodeID,
			targetPort,
		)
		if err != nil {
			return fmt.Errorf("failed to save connection %s: %w", id, err)
		}
	}

	return nil
}
