package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/ai"
	"github.com/dukex/docflow/pkg/ai/anthropic"
	"github.com/dukex/docflow/pkg/ai/openai"
	"github.com/dukex/docflow/pkg/protocol"
	"github.com/dukex/docflow/pkg/storage"
)

// AIConfig selects the language model used for summaries.
type AIConfig struct {
	Provider string
	APIKey   string
	Model    string
}

// NewAI returns the configured model client, or ai.Noop when no provider or
// key is set.
//
// nolint:ireturn // callers only need the protocol
func NewAI(cfg AIConfig, logger *slog.Logger) (protocol.AI, error) {
	if cfg.Provider == "" || cfg.APIKey == "" {
		return ai.Noop{}, nil
	}

	switch cfg.Provider {
	case "anthropic":
		opts := []anthropic.ClientOption{anthropic.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}

		return anthropic.New(cfg.APIKey, opts...), nil
	case "openai":
		opts := []openai.ClientOption{openai.WithLogger(logger)}
		if cfg.Model != "" {
			opts = append(opts, openai.WithModel(cfg.Model))
		}

		return openai.New(cfg.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}

// StorageConfig selects where documents referenced by storage key live.
type StorageConfig struct {
	AzureConnectionString string
	AzureContainer        string
	LocalRoot             string
}

// NewFetcher returns an Azure Blob fetcher when a connection string is set,
// a local directory fetcher when a root is set, and nil otherwise.
//
// nolint:ireturn // callers only need the protocol
func NewFetcher(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (protocol.FileFetcher, error) {
	switch {
	case cfg.AzureConnectionString != "":
		fetcher, err := storage.NewBlobFetcher(cfg.AzureConnectionString, cfg.AzureContainer, logger)
		if err != nil {
			return nil, err
		}

		err = fetcher.EnsureContainer(ctx)
		if err != nil {
			return nil, err
		}

		return fetcher, nil
	case cfg.LocalRoot != "":
		return storage.NewLocalFetcher(cfg.LocalRoot), nil
	default:
		return nil, nil
	}
}
