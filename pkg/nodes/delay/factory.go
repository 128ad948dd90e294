package delay

import (
	"errors"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/protocol"
)

// DelayNodeFactory creates DelayNode instances.
type DelayNodeFactory struct{}

// Create creates a new DelayNode bound to the timer repository.
func (f *DelayNodeFactory) Create(deps protocol.Dependencies) (protocol.NodeExecutor, error) {
	if deps.Timers == nil {
		return nil, errors.New("delay node requires a timer repository")
	}

	return NewDelayNode(deps), nil
}

func (f *DelayNodeFactory) ID() string {
	return models.NodeTypeDelay
}

func (f *DelayNodeFactory) Name() string {
	return "Delay"
}

func (f *DelayNodeFactory) Description() string {
	return "Suspends the run and resumes it on the timeout port once the configured delay has elapsed"
}

// NewDelayNodeFactory creates a new factory instance.
func NewDelayNodeFactory() protocol.NodeFactory {
	return &DelayNodeFactory{}
}
