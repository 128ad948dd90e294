package services

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/docflow/pkg/lock"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/testutil"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store     *memory.Persistence
	engine    *workflow.Engine
	executors *registry.Executors
	clock     *testutil.Clock
	logger    *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.NewPersistence()
	clock := testutil.NewClock(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC))

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	executors, err := reg.Build(protocol.Dependencies{Logger: logger, Timers: store, Approvals: store, Clock: clock.Now})
	require.NoError(t, err)

	engine := workflow.NewEngine(workflow.Config{
		Persistence: store,
		Executors:   executors,
		Locker:      lock.NewLocalLocker(),
		Logger:      logger,
		Clock:       clock.Now,
	})

	return &fixture{store: store, engine: engine, executors: executors, clock: clock, logger: logger}
}
