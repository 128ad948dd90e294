// Package models defines the core domain models of the document workflow engine.
package models

import (
	"time"
)

// Built-in node types.
const (
	NodeTypeDelay       = "delay"
	NodeTypeApproval    = "approval"
	NodeTypeLog         = "log"
	NodeTypeConditional = "conditional"
)

// Connection connects an output port of one node to the input of another.
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // "{node_id}:{port_name}"
}

// SourceNodeID returns the node the connection leaves from.
func (c *Connection) SourceNodeID() string {
	nodeID, _, _ := ParsePortID(c.SourcePort)

	return nodeID
}

// SourcePortName returns the output port name the connection is labeled with.
func (c *Connection) SourcePortName() string {
	_, port, _ := ParsePortID(c.SourcePort)

	return port
}

// TargetNodeID returns the node the connection enters.
func (c *Connection) TargetNodeID() string {
	nodeID, _, _ := ParsePortID(c.TargetPort)

	return nodeID
}

// WorkflowNode represents a node instance in a workflow.
type WorkflowNode struct {
	ID      string         `json:"id"      validate:"required"`
	Type    string         `json:"type"    validate:"required"`
	Name    string         `json:"name"    validate:"required,min=1"`
	Config  map[string]any `json:"config"`
	Enabled bool           `json:"enabled"`
}

// NodeStatus defines the possible states of a node execution.
type NodeStatus string

const (
	NodeStatusRunning NodeStatus = "running"
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusFailed  NodeStatus = "failed"
	NodeStatusWaiting NodeStatus = "waiting"
)

// NodeExecutionLog is the audit row written for every node execution.
type NodeExecutionLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	Status      NodeStatus     `json:"status"`
	Port        string         `json:"port,omitempty"`
	Message     string         `json:"message,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}
