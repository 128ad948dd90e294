// Package registry holds the node types known to the engine.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Registry maps node type IDs to their factories.
type Registry struct {
	logger    *slog.Logger
	factories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode adds a factory, replacing any factory with the same ID.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.factories[factory.ID()] = factory
}

// GetAvailableNodes returns the registered factories sorted by ID.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	slices.SortFunc(factories, func(a, b protocol.NodeFactory) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return factories
}

// Build creates one executor per registered node type, sharing deps.
func (r *Registry) Build(deps protocol.Dependencies) (*Executors, error) {
	if deps.Logger == nil {
		deps.Logger = r.logger
	}

	executors := &Executors{
		entries: make(map[string]*entry, len(r.factories)),
	}

	for _, factory := range r.GetAvailableNodes() {
		executor, err := factory.Create(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s executor: %w", factory.ID(), err)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(executor.ConfigSchema().JSONSchema()))
		if err != nil {
			return nil, fmt.Errorf("invalid config schema for %s: %w", factory.ID(), err)
		}

		executors.entries[factory.ID()] = &entry{
			factory:  factory,
			executor: executor,
			schema:   schema,
		}

		r.logger.Debug("Registered node executor", "type", factory.ID(), "outputs", executor.Outputs())
	}

	return executors, nil
}

type entry struct {
	factory  protocol.NodeFactory
	executor protocol.NodeExecutor
	schema   *gojsonschema.Schema
}

// Executors is the immutable set of executors the engine dispatches to.
type Executors struct {
	entries map[string]*entry
}

// Get returns the executor for a node type.
func (e *Executors) Get(nodeType string) (protocol.NodeExecutor, bool) {
	en, ok := e.entries[nodeType]
	if !ok {
		return nil, false
	}

	return en.executor, true
}

// DeclaresPort reports whether the executor of nodeType may report port.
func (e *Executors) DeclaresPort(nodeType, port string) bool {
	executor, ok := e.Get(nodeType)
	if !ok {
		return false
	}

	return slices.Contains(executor.Outputs(), port)
}

// Components describes every node type for API consumers.
func (e *Executors) Components() []models.RegisteredComponent {
	components := make([]models.RegisteredComponent, 0, len(e.entries))

	for id, en := range e.entries {
		components = append(components, models.RegisteredComponent{
			Type:        id,
			Name:        en.factory.Name(),
			Description: en.factory.Description(),
			Outputs:     en.executor.Outputs(),
			Schema:      en.executor.ConfigSchema(),
		})
	}

	slices.SortFunc(components, func(a, b models.RegisteredComponent) int {
		return strings.Compare(a.Type, b.Type)
	})

	return components
}
