package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceWorkflow = `{
  "name": "Invoice approval",
  "status": "active",
  "trigger_event": "document_added",
  "start_node_id": "approve",
  "nodes": [
    {"id": "approve", "type": "approval", "name": "Approve", "config": {"assign_to_user_id": "alice"}, "enabled": true}
  ],
  "connections": []
}`

func TestWorkflowRepository_LoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.json"), []byte(invoiceWorkflow), 0600))

	repo := NewWorkflowRepository("file://" + dir)
	ctx := context.Background()

	workflows, err := repo.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "invoice", workflows[0].ID)
	assert.Equal(t, models.TriggerDocumentAdded, workflows[0].TriggerEvent)

	triggered, err := repo.WorkflowsByTrigger(ctx, models.TriggerManual)
	require.NoError(t, err)
	assert.Empty(t, triggered)

	_, err = repo.WorkflowByID(ctx, "missing")
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestWorkflowRepository_SaveRoundTrip(t *testing.T) {
	repo := NewWorkflowRepository(filepath.Join(t.TempDir(), "workflows"))
	ctx := context.Background()

	require.NoError(t, repo.SaveWorkflow(ctx, &models.Workflow{ID: "w1", Name: "First", Status: models.WorkflowStatusInactive}))

	loaded, err := repo.WorkflowByID(ctx, "w1")
	require.NoError(t, err)
	assert.Equal(t, "First", loaded.Name)
	assert.False(t, loaded.CreatedAt.IsZero())
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "invoice.json"), []byte(invoiceWorkflow), 0600))

	ctx := context.Background()
	dst := memory.NewPersistence()

	count, err := Import(ctx, NewWorkflowRepository(dir), dst, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = dst.WorkflowByID(ctx, "invoice")
	require.NoError(t, err)

	rejected := errors.New("rejected")
	_, err = Import(ctx, NewWorkflowRepository(dir), dst, func(*models.Workflow) error { return rejected })
	assert.ErrorIs(t, err, rejected)
}
