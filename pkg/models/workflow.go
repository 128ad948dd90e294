package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "active"
	WorkflowStatusInactive WorkflowStatus = "inactive"
)

// TriggerEvent names the event that starts runs of a workflow.
type TriggerEvent string

const (
	TriggerDocumentAdded TriggerEvent = "document_added"
	TriggerManual        TriggerEvent = "manual"
)

const (
	DefaultEscalationHops = 3
	MaxEscalationHops     = 10
)

// Workflow is a directed graph of nodes whose edges are labeled by output port.
type Workflow struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"                          validate:"required,min=3"`
	Description       string          `json:"description"`
	Status            WorkflowStatus  `json:"status"                        validate:"required,oneof=active inactive"`
	TriggerEvent      TriggerEvent    `json:"trigger_event"                 validate:"required,oneof=document_added manual"`
	StartNodeID       string          `json:"start_node_id"                 validate:"required"`
	Nodes             []*WorkflowNode `json:"nodes"                         validate:"required,min=1,dive"`
	Connections       []*Connection   `json:"connections"                   validate:"dive"`
	Variables         map[string]any  `json:"variables,omitempty"`
	MaxEscalationHops int             `json:"max_escalation_hops,omitempty" validate:"min=0,max=10"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NodeByID returns the node with the given ID.
func (w *Workflow) NodeByID(id string) (*WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// NextNodes returns the targets of the connections leaving nodeID on port,
// falling back to the node's default connections when none match.
func (w *Workflow) NextNodes(nodeID, port string) []string {
	next := w.targets(nodeID, port)
	if len(next) == 0 && port != DefaultPort {
		next = w.targets(nodeID, DefaultPort)
	}

	return next
}

func (w *Workflow) targets(nodeID, port string) []string {
	source := MakePortID(nodeID, port)

	var next []string

	for _, conn := range w.Connections {
		if conn.SourcePort == source {
			next = append(next, conn.TargetNodeID())
		}
	}

	return next
}

// EscalationHopLimit is the maximum number of reassignments an approval node may chain.
func (w *Workflow) EscalationHopLimit() int {
	if w.MaxEscalationHops <= 0 {
		return DefaultEscalationHops
	}

	return w.MaxEscalationHops
}

// IsActive reports whether the workflow can be triggered.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}
