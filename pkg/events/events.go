// Package events defines the event types published on the bus during the
// lifecycle of workflow runs and documents.
package events

import (
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every docflow event.
const Topic = "docflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Workflow run lifecycle events.
	WorkflowStartedEvent   EventType = "workflow.started"
	WorkflowWaitingEvent   EventType = "workflow.waiting"
	WorkflowResumedEvent   EventType = "workflow.resumed"
	WorkflowCompletedEvent EventType = "workflow.completed"
	WorkflowFailedEvent    EventType = "workflow.failed"
	WorkflowCancelledEvent EventType = "workflow.cancelled"

	// WebhookRequestedEvent asks the deliverer to notify webhook subscribers.
	WebhookRequestedEvent EventType = "webhook.requested"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent creates a base event with a fresh ID and timestamp.
func NewBaseEvent(eventType EventType, workflowID, executionID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  workflowID,
		ExecutionID: executionID,
	}
}

type WorkflowStarted struct {
	BaseEvent

	DocumentID   string              `json:"document_id,omitempty"`
	TriggerEvent models.TriggerEvent `json:"trigger_event,omitempty"`
}

func (w WorkflowStarted) GetType() EventType {
	return WorkflowStartedEvent
}

// WorkflowWaiting is published once the suspension of a run is durable.
type WorkflowWaiting struct {
	BaseEvent

	NodeID    string            `json:"node_id"`
	WaitingOn models.ResumeKind `json:"waiting_on"`
	Data      map[string]any    `json:"data,omitempty"`
}

func (w WorkflowWaiting) GetType() EventType {
	return WorkflowWaitingEvent
}

type WorkflowResumed struct {
	BaseEvent

	NodeID string `json:"node_id"`
	Port   string `json:"port"`
}

func (w WorkflowResumed) GetType() EventType {
	return WorkflowResumedEvent
}

type WorkflowCompleted struct {
	BaseEvent

	DocumentID string `json:"document_id,omitempty"`
	Steps      int    `json:"steps"`
}

func (w WorkflowCompleted) GetType() EventType {
	return WorkflowCompletedEvent
}

type WorkflowFailed struct {
	BaseEvent

	NodeID         string `json:"node_id,omitempty"`
	Error          string `json:"error"`
	FailedBranches int    `json:"failed_branches"`
}

func (w WorkflowFailed) GetType() EventType {
	return WorkflowFailedEvent
}

type WorkflowCancelled struct {
	BaseEvent

	Reason string `json:"reason,omitempty"`
}

func (w WorkflowCancelled) GetType() EventType {
	return WorkflowCancelledEvent
}

// WebhookRequested carries one outbound webhook notification.
type WebhookRequested struct {
	BaseEvent

	Event string         `json:"event"`
	Data  map[string]any `json:"data,omitempty"`
}

func (w WebhookRequested) GetType() EventType {
	return WebhookRequestedEvent
}
