// Package conditional provides conditional branching node factory for registry integration.
package conditional

import (
	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode instances.
type ConditionalNodeFactory struct{}

// Create creates a new ConditionalNode instance.
func (f *ConditionalNodeFactory) Create(deps protocol.Dependencies) (protocol.NodeExecutor, error) {
	return NewConditionalNode(deps), nil
}

// ID returns the factory ID.
func (f *ConditionalNodeFactory) ID() string {
	return models.NodeTypeConditional
}

// Name returns the factory name.
func (f *ConditionalNodeFactory) Name() string {
	return "Conditional"
}

// Description returns the factory description.
func (f *ConditionalNodeFactory) Description() string {
	return "Routes the run to the true or false port depending on a templated condition"
}

// NewConditionalNodeFactory creates a new factory instance.
func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}
