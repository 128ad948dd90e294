package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/docflow/pkg/lock"
)

// NewLocker returns a Redis lock when redisURL is set, so several processes
// can share runs, and an in-process lock otherwise. The returned close func
// is never nil.
func NewLocker(ctx context.Context, redisURL string, logger *slog.Logger) (lock.Locker, func() error, error) {
	if redisURL == "" {
		return lock.NewLocalLocker(), func() error { return nil }, nil
	}

	client, err := lock.Connect(ctx, redisURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return lock.NewRedisLocker(client, logger), client.Close, nil
}
