// Package approval provides the node that suspends a run until a user decides
// on the document, escalating along a bounded chain when the task expires.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/google/uuid"
)

// ApprovalNode persists an approval task and waits for its resolution.
type ApprovalNode struct {
	approvals persistence.ApprovalRepository
	logger    *slog.Logger
	now       func() time.Time
}

var _ protocol.DefinitionValidator = (*ApprovalNode)(nil)

func NewApprovalNode(deps protocol.Dependencies) *ApprovalNode {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ApprovalNode{
		approvals: deps.Approvals,
		logger:    logger.With("node_type", models.NodeTypeApproval),
		now:       deps.Now,
	}
}

func (n *ApprovalNode) Execute(ctx context.Context, bag *models.ContextBag, node *models.WorkflowNode) models.ExecutionResult {
	if bag.DocumentID == "" {
		return models.Failed("no associated document")
	}

	userID, ok := models.IDValue(node.Config["assign_to_user_id"])
	if !ok {
		return models.Failed("user id required for approval")
	}

	if bag.IsDryRun() {
		return models.Failed("no associated execution")
	}

	now := n.now()
	task := &models.ApprovalTask{
		ID:              uuid.NewString(),
		ExecutionID:     bag.ExecutionID,
		NodeID:          node.ID,
		DocumentID:      bag.DocumentID,
		AssignedUserID:  userID,
		EscalationChain: EscalationChain(node.Config),
		Status:          models.ApprovalStatusPending,
		CreatedAt:       now,
	}

	if hours, ok := positiveInt(node.Config["timeout_hours"]); ok {
		expiresAt := now.Add(time.Duration(hours) * time.Hour)
		task.ExpiresAt = &expiresAt
		task.TimeoutHours = &hours
	}

	if hours, ok := positiveInt(node.Config["escalate_after_hours"]); ok {
		task.EscalateAfterHours = &hours
	}

	if len(task.EscalationChain) > 0 {
		task.EscalateToUserID = task.EscalationChain[0]
	}

	err := n.approvals.CreateApprovalTask(ctx, task)
	if err != nil {
		n.logger.ErrorContext(ctx, "Failed to persist approval task", "execution_id", bag.ExecutionID, "node_id", node.ID, "error", err)

		return models.Failedf("failed to create approval task: %v", err)
	}

	err = n.approvals.AddApprovalDecision(ctx, &models.ApprovalDecision{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		UserID:    userID,
		Action:    models.ApprovalStatusPending,
		CreatedAt: now,
	})
	if err != nil {
		n.logger.WarnContext(ctx, "Failed to record approval history", "task_id", task.ID, "error", err)
	}

	data := map[string]any{
		"task_id":          task.ID,
		"assigned_user_id": userID,
		"expires_at":       nil,
	}
	if task.ExpiresAt != nil {
		data["expires_at"] = task.ExpiresAt.Format(time.RFC3339)
	}

	return models.Waiting(models.ResumeKindApproval, data)
}

// ValidateDefinition bounds the escalation chain by the workflow hop limit.
func (n *ApprovalNode) ValidateDefinition(workflow *models.Workflow, node *models.WorkflowNode) error {
	limit := workflow.EscalationHopLimit()

	if maxHops, ok := models.IntValue(node.Config["max_escalations"]); ok && maxHops > limit {
		return fmt.Errorf("max_escalations %d exceeds the workflow limit of %d hops", maxHops, limit)
	}

	chain := EscalationChain(node.Config)
	if len(chain) > limit {
		return fmt.Errorf("escalation chain of %d users exceeds the workflow limit of %d hops", len(chain), limit)
	}

	if _, ok := positiveInt(node.Config["timeout_hours"]); len(chain) > 0 && !ok {
		return errors.New("escalation requires timeout_hours")
	}

	return nil
}

func (n *ApprovalNode) Outputs() []string {
	return []string{models.ApprovalPortApproved, models.ApprovalPortRejected, models.ApprovalPortTimeout}
}

func (n *ApprovalNode) ConfigSchema() models.ConfigSchema {
	return models.ConfigSchema{
		"assign_to_user_id":    {Type: models.FieldIdentifier, Description: "User who must decide"},
		"timeout_hours":        {Type: models.FieldNumeric, Description: "Hours before the task expires"},
		"escalate_to_user_id":  {Type: models.FieldIdentifierList, Description: "User or ordered list of users the task escalates to on expiry"},
		"escalate_after_hours": {Type: models.FieldNumeric, Description: "Hours an escalated task stays open, defaults to timeout_hours"},
		"max_escalations":      {Type: models.FieldNumeric, Description: "Maximum number of reassignments"},
	}
}

// EscalationChain returns the users an expired task is reassigned to, in
// order, truncated to max_escalations when set.
func EscalationChain(config map[string]any) []string {
	chain := models.IDList(config["escalate_to_user_id"])

	if maxHops, ok := models.IntValue(config["max_escalations"]); ok && maxHops >= 0 && maxHops < len(chain) {
		chain = chain[:maxHops]
	}

	if len(chain) == 0 {
		return nil
	}

	return chain
}

func positiveInt(v any) (int, bool) {
	n, ok := models.IntValue(v)

	return n, ok && n > 0
}
