package approval

import (
	"errors"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
)

// ApprovalNodeFactory creates ApprovalNode instances.
type ApprovalNodeFactory struct{}

func (f *ApprovalNodeFactory) Create(deps protocol.Dependencies) (protocol.NodeExecutor, error) {
	if deps.Approvals == nil {
		return nil, errors.New("approval node requires an approval repository")
	}

	return NewApprovalNode(deps), nil
}

func (f *ApprovalNodeFactory) ID() string {
	return models.NodeTypeApproval
}

func (f *ApprovalNodeFactory) Name() string {
	return "Approval"
}

func (f *ApprovalNodeFactory) Description() string {
	return "Assigns the document to a user and waits until it is approved, rejected or times out"
}

// NewApprovalNodeFactory creates a new factory instance.
func NewApprovalNodeFactory() protocol.NodeFactory {
	return &ApprovalNodeFactory{}
}
