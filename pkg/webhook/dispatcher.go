// Package webhook publishes webhook notifications on the event bus and
// delivers them to the configured HTTP endpoints.
package webhook

import (
	"context"
	"log/slog"

	"github.com/dukex/docflow/pkg/eventbus"
	"github.com/dukex/docflow/pkg/events"
	"github.com/dukex/docflow/pkg/protocol"
)

// Webhook event names.
const (
	EventWorkflowWaiting   = "workflow.waiting"
	EventWorkflowCompleted = "workflow.completed"
	EventWorkflowFailed    = "workflow.failed"
	EventDocumentProcessed = "document.processed"
)

var (
	_ protocol.WebhookDispatcher = (*BusDispatcher)(nil)
	_ protocol.WebhookDispatcher = Noop{}
)

// BusDispatcher hands webhook notifications to the event bus so delivery never
// blocks the caller.
type BusDispatcher struct {
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewBusDispatcher(publisher eventbus.EventPublisher, logger *slog.Logger) *BusDispatcher {
	return &BusDispatcher{
		publisher: publisher,
		logger:    logger.With("module", "webhook_dispatcher"),
	}
}

// Trigger publishes the notification. Failures are logged, never returned.
func (d *BusDispatcher) Trigger(ctx context.Context, event string, data map[string]any) {
	executionID, _ := data["execution_id"].(string)
	workflowID, _ := data["workflow_id"].(string)

	err := d.publisher.Publish(ctx, event, &events.WebhookRequested{
		BaseEvent: events.NewBaseEvent(events.WebhookRequestedEvent, workflowID, executionID),
		Event:     event,
		Data:      data,
	})
	if err != nil {
		d.logger.ErrorContext(ctx, "Failed to publish webhook", "event", event, "error", err)
	}
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Trigger(context.Context, string, map[string]any) {}
