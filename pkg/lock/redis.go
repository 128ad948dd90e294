package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL       = 30 * time.Second
	defaultRetry     = 50 * time.Millisecond
	defaultMaxWait   = 10 * time.Second
	maxRetryInterval = time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker is a Locker shared by every process connected to the same Redis.
// A lock expires after TTL so a crashed holder cannot block a run forever.
type RedisLocker struct {
	client  redis.UniversalClient
	logger  *slog.Logger
	ttl     time.Duration
	retry   time.Duration
	maxWait time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithTTL sets the expiry of a held lock.
func WithTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.ttl = ttl
	}
}

// WithMaxWait bounds how long Acquire polls for a busy lock.
func WithMaxWait(wait time.Duration) RedisOption {
	return func(l *RedisLocker) {
		l.maxWait = wait
	}
}

func NewRedisLocker(client redis.UniversalClient, logger *slog.Logger, opts ...RedisOption) *RedisLocker {
	l := &RedisLocker{
		client:  client,
		logger:  logger.With("module", "redis_locker"),
		ttl:     defaultTTL,
		retry:   defaultRetry,
		maxWait: defaultMaxWait,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Connect opens a Redis client from a redis:// URL and checks it answers.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	interval := l.retry

	for {
		ok, err := l.client.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}

		if ok {
			return l.release(key, token), nil
		}

		select {
		case <-waitCtx.Done():
			return nil, errors.Join(ErrNotAcquired, waitCtx.Err())
		case <-time.After(interval):
		}

		interval = min(interval*2, maxRetryInterval)
	}
}

func (l *RedisLocker) release(key, token string) Release {
	var (
		once sync.Once
		err  error
	)

	return func(ctx context.Context) error {
		once.Do(func() {
			err = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			if err != nil {
				l.logger.ErrorContext(ctx, "Failed to release lock", "key", key, "error", err)
			}
		})

		return err
	}
}
