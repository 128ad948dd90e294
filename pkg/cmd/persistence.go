// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/persistence/file"
	"github.com/dukex/docflow/pkg/persistence/memory"
	"github.com/dukex/docflow/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL. postgres:// and
// postgresql:// URLs select PostgreSQL; "memory" or an empty URL keeps
// everything in process.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return store, nil
	case "memory":
		logger.WarnContext(ctx, "Using in-memory persistence; state is lost on restart")

		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database url %q", databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	if databaseURL == "" || databaseURL == "memory" {
		return "memory"
	}

	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return ""
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "memory":
		return "memory"
	default:
		return scheme
	}
}

// ImportWorkflows loads the JSON workflow definitions found in dir into dst.
// Every definition is checked by validate first; one invalid file aborts the
// import.
func ImportWorkflows(ctx context.Context, logger *slog.Logger, dir string, dst persistence.WorkflowRepository, validate func(*models.Workflow) error) error {
	if dir == "" {
		return nil
	}

	count, err := file.Import(ctx, file.NewWorkflowRepository(dir), dst, validate)
	if err != nil {
		return fmt.Errorf("failed to import workflows from %s: %w", dir, err)
	}

	logger.InfoContext(ctx, "Imported workflow definitions", "dir", dir, "count", count)

	return nil
}
