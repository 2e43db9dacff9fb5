package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"liquidator/internal/adapters/config"
	"liquidator/pkg/errors"
)

const lockPrefix = "lock:"

// Deletes the lock only if it still holds our token
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// Client wraps Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}

	return &Client{rdb: rdb}, nil
}

// Wrap uses an existing go-redis client (redismock in tests)
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Lock is a held distributed lock
type Lock struct {
	key   string
	token string
}

// AcquireLock tries once to take the lock. It returns errors.ErrLockNotAcquired
// when another holder has it.
func (c *Client) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: lockPrefix + key, token: uuid.NewString()}

	ok, err := c.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "acquire %s", lock.key)
	}
	if !ok {
		return nil, errors.Wrapf(errors.ErrLockNotAcquired, "%s", lock.key)
	}
	return lock, nil
}

// ReleaseLock releases the lock if we still own it; an expired or stolen lock is left alone
func (c *Client) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}
	if err := c.rdb.Eval(ctx, releaseScript, []string{lock.key}, lock.token).Err(); err != nil {
		return errors.Wrapf(err, "release %s", lock.key)
	}
	return nil
}

// TryLock is AcquireLock returning a release func, for callers that should not
// depend on this package's types
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	lock, err := c.AcquireLock(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return c.ReleaseLock(ctx, lock)
	}, nil
}
