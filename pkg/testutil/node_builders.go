// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"sync"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) *models.WorkflowNode {
	node := &models.WorkflowNode{
		ID:      uuid.New().String(),
		Type:    models.NodeTypeLog,
		Name:    "Test Node",
		Config:  map[string]any{"message": "test", "level": "info"},
		Enabled: true,
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Name = name
	}
}

// WithEnabled sets the node enabled status.
func WithEnabled(enabled bool) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Enabled = enabled
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// DelayNode builds a delay node waiting the given number of hours.
func DelayNode(id string, hours int) *models.WorkflowNode {
	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeDelay),
		WithName("Wait"),
		WithConfig(map[string]any{"delay_hours": hours}),
	)
}

// ApprovalNode builds an approval node assigned to userID.
func ApprovalNode(id, userID string, config map[string]any) *models.WorkflowNode {
	merged := map[string]any{"assign_to_user_id": userID}
	for k, v := range config {
		merged[k] = v
	}

	return CreateTestNode(
		WithID(id),
		WithType(models.NodeTypeApproval),
		WithName("Approve"),
		WithConfig(merged),
	)
}

// LogNode builds a log node writing message.
func LogNode(id, message string) *models.WorkflowNode {
	return CreateTestNode(
		WithID(id),
		WithName("Log "+id),
		WithConfig(map[string]any{"message": message}),
	)
}

// CreateTestWorkflow creates an active manual workflow starting at the first node.
func CreateTestWorkflow(nodes ...*models.WorkflowNode) *models.Workflow {
	workflow := &models.Workflow{
		ID:           uuid.New().String(),
		Name:         "Test Workflow",
		Description:  "A workflow for testing",
		Status:       models.WorkflowStatusActive,
		TriggerEvent: models.TriggerManual,
		Variables:    map[string]any{"env": "test"},
		Nodes:        nodes,
		Connections:  []*models.Connection{},
	}

	if len(nodes) > 0 {
		workflow.StartNodeID = nodes[0].ID
	}

	return workflow
}

// Connect appends a connection from sourceNodeID on port to targetNodeID.
func Connect(workflow *models.Workflow, sourceNodeID, port, targetNodeID string) *models.Workflow {
	workflow.Connections = append(workflow.Connections, CreateTestConnection(sourceNodeID, port, targetNodeID))

	return workflow
}

// CreateTestConnection creates a test connection between two nodes.
func CreateTestConnection(sourceNodeID, port, targetNodeID string) *models.Connection {
	return &models.Connection{
		ID:         uuid.New().String(),
		SourcePort: models.MakePortID(sourceNodeID, port),
		TargetPort: models.MakePortID(targetNodeID, models.MainInputPort),
	}
}

// Clock is a settable time source for tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}
