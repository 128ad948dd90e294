package models

import "time"

// ApprovalStatus is the status of an approval task.
type ApprovalStatus string

const (
	ApprovalStatusPending   ApprovalStatus = "pending"
	ApprovalStatusEscalated ApprovalStatus = "escalated"
	ApprovalStatusApproved  ApprovalStatus = "approved"
	ApprovalStatusRejected  ApprovalStatus = "rejected"
	ApprovalStatusExpired   ApprovalStatus = "expired"
	ApprovalStatusCancelled ApprovalStatus = "cancelled"
)

// IsOpen reports whether the task still awaits a decision.
func (s ApprovalStatus) IsOpen() bool {
	return s == ApprovalStatusPending || s == ApprovalStatusEscalated
}

// Approval node output ports.
const (
	ApprovalPortApproved = "approved"
	ApprovalPortRejected = "rejected"
	ApprovalPortTimeout  = "timeout"
)

// PortForApprovalStatus maps a resolved status to the output port the run resumes on.
func PortForApprovalStatus(status ApprovalStatus) (string, bool) {
	switch status {
	case ApprovalStatusApproved:
		return ApprovalPortApproved, true
	case ApprovalStatusRejected:
		return ApprovalPortRejected, true
	case ApprovalStatusExpired:
		return ApprovalPortTimeout, true
	default:
		return "", false
	}
}

// ApprovalTask is a pending human decision created by an approval node.
type ApprovalTask struct {
	ID                 string         `json:"id"`
	ExecutionID        string         `json:"execution_id"`
	NodeID             string         `json:"node_id"`
	DocumentID         string         `json:"document_id"`
	AssignedUserID     string         `json:"assigned_user_id"`
	ExpiresAt          *time.Time     `json:"expires_at,omitempty"`
	TimeoutHours       *int           `json:"timeout_hours,omitempty"`
	EscalateToUserID   string         `json:"escalate_to_user_id,omitempty"`
	EscalateAfterHours *int           `json:"escalate_after_hours,omitempty"`
	EscalationChain    []string       `json:"escalation_chain,omitempty"`
	EscalationCount    int            `json:"escalation_count"`
	Status             ApprovalStatus `json:"status"`
	DecidedBy          string         `json:"decided_by,omitempty"`
	Comment            string         `json:"comment,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	DecidedAt          *time.Time     `json:"decided_at,omitempty"`
}

// IsExpired reports whether an open task has passed its expiry at now.
func (t *ApprovalTask) IsExpired(now time.Time) bool {
	return t.Status.IsOpen() && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// NextEscalationTarget returns the user the task escalates to next, if any remain.
func (t *ApprovalTask) NextEscalationTarget() (string, bool) {
	if t.EscalationCount >= len(t.EscalationChain) {
		return "", false
	}

	return t.EscalationChain[t.EscalationCount], true
}

// EscalationWindow is the number of hours a reassigned task stays open.
func (t *ApprovalTask) EscalationWindow() (int, bool) {
	if t.EscalateAfterHours != nil && *t.EscalateAfterHours > 0 {
		return *t.EscalateAfterHours, true
	}

	if t.TimeoutHours != nil && *t.TimeoutHours > 0 {
		return *t.TimeoutHours, true
	}

	return 0, false
}

// ApprovalDecision is a history row for every transition of an approval task.
type ApprovalDecision struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	UserID    string         `json:"user_id,omitempty"`
	Action    ApprovalStatus `json:"action"`
	Comment   string         `json:"comment,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
