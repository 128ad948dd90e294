// Package delay provides the timer node that suspends a run for a fixed duration.
package delay

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/google/uuid"
)

// OutputPortTimeout is the only port a delay node resumes on.
const OutputPortTimeout = "timeout"

var units = []struct {
	field   string
	seconds int
}{
	{"delay_seconds", 1},
	{"delay_minutes", 60},
	{"delay_hours", 3600},
	{"delay_days", 86400},
}

// DelayNode persists a timer and suspends the run until the sweeper fires it.
type DelayNode struct {
	timers persistence.TimerRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewDelayNode(deps protocol.Dependencies) *DelayNode {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DelayNode{
		timers: deps.Timers,
		logger: logger.With("node_type", models.NodeTypeDelay),
		now:    deps.Now,
	}
}

// TotalSeconds sums the configured delay units, each coerced to an int.
func TotalSeconds(config map[string]any) int {
	total := 0

	for _, unit := range units {
		if n, ok := models.IntValue(config[unit.field]); ok {
			total += n * unit.seconds
		}
	}

	return total
}

func (n *DelayNode) Execute(ctx context.Context, bag *models.ContextBag, node *models.WorkflowNode) models.ExecutionResult {
	if bag.IsDryRun() {
		return models.Failed("no associated execution")
	}

	total := TotalSeconds(node.Config)
	if total <= 0 {
		return models.Failed("invalid or unspecified delay")
	}

	now := n.now()
	timer := &models.Timer{
		ID:          uuid.NewString(),
		ExecutionID: bag.ExecutionID,
		NodeID:      node.ID,
		TimerType:   models.TimerTypeDelay,
		FireAt:      now.Add(time.Duration(total) * time.Second),
		Status:      models.TimerStatusWaiting,
		CreatedAt:   now,
	}

	err := n.timers.CreateTimer(ctx, timer)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to persist timer", "execution_id", bag.ExecutionID, "node_id", node.ID, "error", err)

		return models.Failedf("failed to create timer: %v", err)
	}

	return models.Waiting(models.ResumeKindTimer, map[string]any{
		"timer_id":      timer.ID,
		"fire_at":       timer.FireAt.Format(time.RFC3339),
		"delay_seconds": total,
	})
}

func (n *DelayNode) Outputs() []string {
	return []string{OutputPortTimeout}
}

func (n *DelayNode) ConfigSchema() models.ConfigSchema {
	return models.ConfigSchema{
		"delay_seconds": {Type: models.FieldNumeric, Description: "Delay in seconds"},
		"delay_minutes": {Type: models.FieldNumeric, Description: "Delay in minutes"},
		"delay_hours":   {Type: models.FieldNumeric, Description: "Delay in hours"},
		"delay_days":    {Type: models.FieldNumeric, Description: "Delay in days"},
	}
}
