package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

// Workflow manages workflow definitions.
type Workflow struct {
	persistence persistence.Persistence
	executors   *registry.Executors
	engine      Engine
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, executors *registry.Executors, engine Engine) *Workflow {
	return &Workflow{
		persistence: persistence,
		executors:   executors,
		engine:      engine,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every workflow definition.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowByID(ctx, id)
}

// Create validates a new definition and stores it.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusActive
	}

	return w.save(ctx, "Create", workflow)
}

// Update replaces the definition of an existing workflow.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	return w.save(ctx, "Update", workflow)
}

// DryRunRequest seeds a dry run.
type DryRunRequest struct {
	DocumentID string         `json:"document_id"`
	Variables  map[string]any `json:"variables"`
}

// DryRun traverses a stored workflow without persisting anything. Delay and
// approval nodes fail their branch since there is no execution to attach to.
func (w *Workflow) DryRun(ctx context.Context, workflowID string, req DryRunRequest) (*models.WorkflowRun, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	bag := models.NewContextBag("", req.DocumentID)
	bag.Merge(req.Variables)

	run, err := w.engine.DryRun(ctx, workflow, bag)
	if err != nil && run == nil {
		return nil, err
	}

	return run, nil
}

func (w *Workflow) save(ctx context.Context, op string, workflow *models.Workflow) (*models.Workflow, error) {
	err := w.executors.ValidateWorkflow(workflow)
	if err != nil {
		return nil, NewValidationError(op, "INVALID_WORKFLOW", err.Error(), err)
	}

	err = w.persistence.SaveWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	return workflow, nil
}
