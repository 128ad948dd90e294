// Package conditional provides the branching node that routes a run on a
// templated condition.
package conditional

import (
	"context"
	"strconv"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/template"
)

const (
	OutputPortTrue  = "true"
	OutputPortFalse = "false"
)

// ConditionalNode evaluates a condition against the context bag and reports
// the true or false port.
type ConditionalNode struct{}

func NewConditionalNode(protocol.Dependencies) *ConditionalNode {
	return &ConditionalNode{}
}

// Execute evaluates the condition and routes to true/false output ports.
func (n *ConditionalNode) Execute(_ context.Context, bag *models.ContextBag, node *models.WorkflowNode) models.ExecutionResult {
	condition, _ := node.Config["condition"].(string)

	result, err := template.RenderBag(condition, bag)
	if err != nil {
		return models.Failedf("condition evaluation failed: %v", err)
	}

	port := OutputPortFalse
	if truthy(result) {
		port = OutputPortTrue
	}

	return models.Success(port, map[string]any{
		"condition_result": port == OutputPortTrue,
		"evaluated_value":  result,
	})
}

// truthy converts various types to boolean.
func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}

		return v != ""
	case int, int64, int32:
		return v != 0
	case float64:
		return v != 0.0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return false
	}
}

func (n *ConditionalNode) Outputs() []string {
	return []string{OutputPortTrue, OutputPortFalse}
}

func (n *ConditionalNode) ConfigSchema() models.ConfigSchema {
	return models.ConfigSchema{
		"condition": {Type: models.FieldString, Required: true, Description: "Template expression evaluated against the context bag, e.g. {{gt .vars.amount 1000.0}}"},
	}
}
