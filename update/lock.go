package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrUpdateInProgress is returned when another update holds the advisory
// lock. Concurrent updates against one graph are never queued, they fail
// fast.
var ErrUpdateInProgress = errors.New("another graph update is in progress")

const (
	lockKey = "packgraph:update:lock"
	lockTTL = 30 * time.Minute
)

// Locker serializes update invocations against one logical graph.
type Locker interface {
	// Acquire takes the lock or fails fast with ErrUpdateInProgress.
	Acquire(ctx context.Context) error

	// Release frees the lock if still held by this locker.
	Release(ctx context.Context) error
}

// RedisLock is an advisory lock on a Redis key. The token guards against
// releasing a lock that expired and was re-acquired by someone else.
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// RedisLockOptions configures a RedisLock.
type RedisLockOptions struct {
	// URL is the Redis connection string (e.g. "redis://localhost:6379").
	URL string

	// Key overrides the lock key.
	Key string

	// TTL bounds how long a crashed updater can hold the lock.
	TTL time.Duration
}

// NewRedisLock connects to Redis and returns an unheld lock.
func NewRedisLock(opts RedisLockOptions) (*RedisLock, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.Key == "" {
		opts.Key = lockKey
	}
	if opts.TTL == 0 {
		opts.TTL = lockTTL
	}
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisLock{
		client: redis.NewClient(redisOpts),
		key:    opts.Key,
		ttl:    opts.TTL,
	}, nil
}

// NewRedisLockWithClient wraps an existing client, used by tests.
func NewRedisLockWithClient(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = lockKey
	}
	if ttl == 0 {
		ttl = lockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) error {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire update lock: %w", err)
	}
	if !ok {
		return ErrUpdateInProgress
	}
	l.token = token
	return nil
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	l.token = ""
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release update lock: %w", err)
	}
	return nil
}

// NoopLock satisfies Locker without any coordination, for single-process
// embedded runs.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) error { return nil }
func (NoopLock) Release(context.Context) error { return nil }
