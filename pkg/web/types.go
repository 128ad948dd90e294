// Package web provides the HTTP handlers of the document workflow API.
package web

import (
	"github.com/dukex/docflow/pkg/models"
)

// WorkflowRequest is the body used to create or replace a workflow definition.
type WorkflowRequest struct {
	Name              string                 `json:"name"                          validate:"required,min=3"`
	Description       string                 `json:"description"`
	Status            models.WorkflowStatus  `json:"status"                        validate:"omitempty,oneof=active inactive"`
	TriggerEvent      models.TriggerEvent    `json:"trigger_event"                 validate:"required,oneof=document_added manual"`
	StartNodeID       string                 `json:"start_node_id"                 validate:"required"`
	Nodes             []*models.WorkflowNode `json:"nodes"                         validate:"required,min=1"`
	Connections       []*models.Connection   `json:"connections"`
	Variables         map[string]any         `json:"variables,omitempty"`
	MaxEscalationHops int                    `json:"max_escalation_hops,omitempty" validate:"min=0,max=10"`
}

// ToModel converts the request into a workflow definition.
func (r WorkflowRequest) ToModel() *models.Workflow {
	connections := r.Connections
	if connections == nil {
		connections = []*models.Connection{}
	}

	return &models.Workflow{
		Name:              r.Name,
		Description:       r.Description,
		Status:            r.Status,
		TriggerEvent:      r.TriggerEvent,
		StartNodeID:       r.StartNodeID,
		Nodes:             r.Nodes,
		Connections:       connections,
		Variables:         r.Variables,
		MaxEscalationHops: r.MaxEscalationHops,
	}
}

// StartRunRequest is the body of a manual run start.
type StartRunRequest struct {
	DocumentID string         `json:"document_id"`
	Variables  map[string]any `json:"variables"`
}

// ResumeRunRequest is the body of an explicit resume.
type ResumeRunRequest struct {
	Port string         `json:"port" validate:"required"`
	Data map[string]any `json:"data"`
}

// CancelRunRequest is the optional body of a cancel call.
type CancelRunRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// DecisionRequest is the body of an approval decision.
type DecisionRequest struct {
	UserID   string                `json:"user_id"  validate:"required"`
	Decision models.ApprovalStatus `json:"decision" validate:"required,oneof=approved rejected"`
	Comment  string                `json:"comment"  validate:"max=2000"`
}

// ResumeResponse reports whether a resume call won the run.
type ResumeResponse struct {
	Resumed bool                `json:"resumed"`
	Run     *models.WorkflowRun `json:"run"`
}
