package registry

import (
	"github.com/dukex/docflow/pkg/nodes/approval"
	"github.com/dukex/docflow/pkg/nodes/conditional"
	"github.com/dukex/docflow/pkg/nodes/delay"
	"github.com/dukex/docflow/pkg/nodes/log"
)

// RegisterDefaultNodes registers all built-in node factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.RegisterNode(delay.NewDelayNodeFactory())
	r.RegisterNode(approval.NewApprovalNodeFactory())
	r.RegisterNode(log.NewLogNodeFactory())
	r.RegisterNode(conditional.NewConditionalNodeFactory())
}
