// Package protocol defines the interfaces and contracts for pluggable nodes and
// the external collaborators of the document pipeline.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

// NodeExecutor is the capability every node type implements.
//
// Execute never panics and never returns an error: configuration, persistence
// and business failures are all reported as a Failed result. The engine
// validates node.Config against ConfigSchema before calling Execute.
type NodeExecutor interface {
	Execute(ctx context.Context, bag *models.ContextBag, node *models.WorkflowNode) models.ExecutionResult

	// Outputs returns the exhaustive set of ports a Success result may report.
	Outputs() []string

	// ConfigSchema describes the configuration fields of the node type.
	ConfigSchema() models.ConfigSchema
}

// DefinitionValidator is implemented by node types that check their
// configuration against the whole workflow at definition time.
type DefinitionValidator interface {
	ValidateDefinition(workflow *models.Workflow, node *models.WorkflowNode) error
}

// NodeFactory creates node executors and provides metadata about the node type.
type NodeFactory interface {
	// Create builds the executor for this node type with the shared dependencies
	Create(deps Dependencies) (NodeExecutor, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string
}

// Dependencies are injected into every executor created by a factory.
type Dependencies struct {
	Logger    *slog.Logger
	Timers    persistence.TimerRepository
	Approvals persistence.ApprovalRepository
	Clock     func() time.Time
}

// Now returns the current time from the injected clock.
func (d Dependencies) Now() time.Time {
	if d.Clock == nil {
		return time.Now().UTC()
	}

	return d.Clock()
}
