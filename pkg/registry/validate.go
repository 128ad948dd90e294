package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrUnknownNodeType is returned for a node whose type has no executor.
	ErrUnknownNodeType = errors.New("unknown node type")
	// ErrInvalidConfig is returned when a node configuration violates its schema.
	ErrInvalidConfig = errors.New("invalid node configuration")
	// ErrInvalidWorkflow is returned when a workflow definition cannot run.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks node.Config against the schema of its type.
func (e *Executors) ValidateConfig(node *models.WorkflowNode) error {
	en, ok := e.entries[node.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNodeType, node.Type)
	}

	config := node.Config
	if config == nil {
		config = map[string]any{}
	}

	result, err := en.schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// ValidateWorkflow checks a definition before it is stored or run: struct
// tags, graph references, declared ports, node configs, and node-specific
// definition rules such as the escalation hop cap.
func (e *Executors) ValidateWorkflow(workflow *models.Workflow) error {
	err := validate.Struct(workflow)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	var problems []error

	seen := make(map[string]*models.WorkflowNode, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if _, dup := seen[node.ID]; dup {
			problems = append(problems, fmt.Errorf("duplicate node id %q", node.ID))

			continue
		}

		seen[node.ID] = node

		executor, ok := e.Get(node.Type)
		if !ok {
			problems = append(problems, fmt.Errorf("node %q: %w: %s", node.ID, ErrUnknownNodeType, node.Type))

			continue
		}

		err := e.ValidateConfig(node)
		if err != nil {
			problems = append(problems, fmt.Errorf("node %q: %w", node.ID, err))
		}

		if dv, ok := executor.(protocol.DefinitionValidator); ok {
			err := dv.ValidateDefinition(workflow, node)
			if err != nil {
				problems = append(problems, fmt.Errorf("node %q: %w", node.ID, err))
			}
		}
	}

	if _, ok := seen[workflow.StartNodeID]; !ok {
		problems = append(problems, fmt.Errorf("start node %q does not exist", workflow.StartNodeID))
	}

	for _, conn := range workflow.Connections {
		source, sourceOK := seen[conn.SourceNodeID()]
		if !sourceOK {
			problems = append(problems, fmt.Errorf("connection %q: unknown source %q", conn.ID, conn.SourcePort))

			continue
		}

		if _, ok := seen[conn.TargetNodeID()]; !ok {
			problems = append(problems, fmt.Errorf("connection %q: unknown target %q", conn.ID, conn.TargetPort))
		}

		port := conn.SourcePortName()
		if port != models.DefaultPort && !e.DeclaresPort(source.Type, port) {
			problems = append(problems, fmt.Errorf("connection %q: node %q does not declare port %q", conn.ID, source.ID, port))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, errors.Join(problems...))
	}

	return nil
}
