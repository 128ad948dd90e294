package cmd

import (
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/registry"
)

// NewExecutors registers the native node types and builds their executors
// against store.
func NewExecutors(logger *slog.Logger, store persistence.Persistence, clock func() time.Time) (*registry.Executors, error) {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	return reg.Build(protocol.Dependencies{
		Logger:    logger,
		Timers:    store,
		Approvals: store,
		Clock:     clock,
	})
}
