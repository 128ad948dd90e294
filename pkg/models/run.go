package models

import "time"

// RunStatus is the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is possible from s.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// Cursor is a pending position in the graph: the node to execute next and the
// bag of the branch that reaches it.
type Cursor struct {
	NodeID  string      `json:"node_id"`
	Context *ContextBag `json:"context"`
}

// WorkflowRun is the persisted, resumable state of one execution.
//
// While waiting, CurrentNodeID is the suspended node and Context its branch
// snapshot. Frontier holds the branches still to execute, head first.
type WorkflowRun struct {
	ID             string      `json:"id"`
	WorkflowID     string      `json:"workflow_id"`
	DocumentID     string      `json:"document_id,omitempty"`
	Status         RunStatus   `json:"status"`
	CurrentNodeID  string      `json:"current_node_id,omitempty"`
	WaitingOn      ResumeKind  `json:"waiting_on,omitempty"`
	Context        *ContextBag `json:"context"`
	Frontier       []Cursor    `json:"frontier,omitempty"`
	FailedBranches int         `json:"failed_branches,omitempty"`
	FailedNodeID   string      `json:"failed_node_id,omitempty"`
	Error          string      `json:"error,omitempty"`
	StepCount      int         `json:"step_count"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
}

// RecordFailure counts a failed branch and keeps the first failure message.
func (r *WorkflowRun) RecordFailure(nodeID, message string) {
	r.FailedBranches++

	if r.Error == "" {
		r.Error = message
		r.FailedNodeID = nodeID
	}
}

// Node output keys naming the record a waiting node suspended on.
const (
	SuspensionTimerKey = "timer_id"
	SuspensionTaskKey  = "task_id"
)

// SuspensionID returns the ID of the timer or approval task the run waits on,
// as recorded in the output of its current node.
func (r *WorkflowRun) SuspensionID() string {
	if r.Status != RunStatusWaiting || r.Context == nil {
		return ""
	}

	output := r.Context.NodeOutputs[r.CurrentNodeID]

	var key string

	switch r.WaitingOn {
	case ResumeKindTimer:
		key = SuspensionTimerKey
	case ResumeKindApproval:
		key = SuspensionTaskKey
	default:
		return ""
	}

	id, _ := output[key].(string)

	return id
}
