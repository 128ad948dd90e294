// Package log provides the node that writes a templated message to the engine log.
package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/template"
)

const OutputPortSuccess = "success"

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogNode logs a message rendered from the context bag.
type LogNode struct {
	logger *slog.Logger
}

var _ protocol.DefinitionValidator = (*LogNode)(nil)

func NewLogNode(deps protocol.Dependencies) *LogNode {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &LogNode{logger: logger.With("node_type", models.NodeTypeLog)}
}

// Execute performs the logging operation.
func (n *LogNode) Execute(ctx context.Context, bag *models.ContextBag, node *models.WorkflowNode) models.ExecutionResult {
	raw, _ := node.Config["message"].(string)

	message := bag.Interpolate(raw)

	if template.NeedsTemplating(raw) {
		rendered, err := template.RenderBag(raw, bag)
		if err != nil {
			return models.Failedf("failed to render log message template: %v", err)
		}

		message = fmt.Sprint(rendered)
	}

	levelName, _ := node.Config["level"].(string)

	level, ok := levels[levelName]
	if !ok {
		levelName = "info"
		level = slog.LevelInfo
	}

	n.logger.Log(ctx, level, message, "execution_id", bag.ExecutionID, "node_id", node.ID)

	return models.Success(OutputPortSuccess, map[string]any{
		"message": message,
		"level":   levelName,
		"logged":  true,
	})
}

// ValidateDefinition rejects unknown log levels.
func (n *LogNode) ValidateDefinition(_ *models.Workflow, node *models.WorkflowNode) error {
	level, ok := node.Config["level"].(string)
	if !ok {
		return nil
	}

	if _, known := levels[level]; !known {
		return fmt.Errorf("invalid log level '%s' (must be debug, info, warn, or error)", level)
	}

	return nil
}

func (n *LogNode) Outputs() []string {
	return []string{OutputPortSuccess}
}

func (n *LogNode) ConfigSchema() models.ConfigSchema {
	return models.ConfigSchema{
		"message": {Type: models.FieldString, Required: true, Description: "Message to log. Supports {placeholders} and templating with the context bag"},
		"level":   {Type: models.FieldString, Description: "Log level: debug, info, warn or error"},
	}
}
