// Package file loads and stores workflow definitions as JSON files in a directory.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

var _ persistence.WorkflowRepository = (*WorkflowRepository)(nil)

// WorkflowRepository reads {root}/{id}.json files. The file name is the
// workflow ID when the document does not carry one.
type WorkflowRepository struct {
	root string
}

// NewWorkflowRepository creates a repository rooted at root. A "file://"
// prefix is accepted.
func NewWorkflowRepository(root string) *WorkflowRepository {
	return &WorkflowRepository{root: strings.TrimPrefix(root, "file://")}
}

// Workflows returns every definition in the directory, sorted by ID.
func (wr *WorkflowRepository) Workflows(ctx context.Context) ([]*models.Workflow, error) {
	jsonFiles, err := fs.Glob(os.DirFS(wr.root), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow files: %w", err)
	}

	workflows := make([]*models.Workflow, 0, len(jsonFiles))

	for _, name := range jsonFiles {
		workflow, err := wr.WorkflowByID(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool { return workflows[i].ID < workflows[j].ID })

	return workflows, nil
}

func (wr *WorkflowRepository) WorkflowsByTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.Workflow, error) {
	all, err := wr.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	matching := make([]*models.Workflow, 0, len(all))
	for _, workflow := range all {
		if workflow.IsActive() && workflow.TriggerEvent == event {
			matching = append(matching, workflow)
		}
	}

	return matching, nil
}

// WorkflowByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) WorkflowByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	body, err := os.ReadFile(wr.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewWorkflowError("get", workflowID, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to fetch workflow %s: %w", workflowID, err)
	}

	var workflow models.Workflow

	err = json.Unmarshal(body, &workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", workflowID, err)
	}

	if workflow.ID == "" {
		workflow.ID = workflowID
	}

	return &workflow, nil
}

// SaveWorkflow writes the workflow as indented JSON.
func (wr *WorkflowRepository) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	err := os.MkdirAll(wr.root, 0750)
	if err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	data, err := json.MarshalIndent(workflow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", workflow.ID, err)
	}

	return os.WriteFile(wr.path(workflow.ID), data, 0600)
}

func (wr *WorkflowRepository) path(workflowID string) string {
	return filepath.Join(wr.root, filepath.Base(filepath.Clean(workflowID))+".json")
}

// Import copies every definition from src into dst after validate accepts it.
// It returns the number of imported workflows.
func Import(ctx context.Context, src, dst persistence.WorkflowRepository, validate func(*models.Workflow) error) (int, error) {
	workflows, err := src.Workflows(ctx)
	if err != nil {
		return 0, err
	}

	for _, workflow := range workflows {
		if validate != nil {
			err := validate(workflow)
			if err != nil {
				return 0, fmt.Errorf("workflow %s: %w", workflow.ID, err)
			}
		}

		err := dst.SaveWorkflow(ctx, workflow)
		if err != nil {
			return 0, fmt.Errorf("failed to import workflow %s: %w", workflow.ID, err)
		}
	}

	return len(workflows), nil
}
