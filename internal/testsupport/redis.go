package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	redisclient "liquidator/internal/adapters/redis"
)

// NewTestRedis returns the lock client over a flushed database. The raw
// go-redis handle is returned too so tests can inspect keys and TTLs.
func NewTestRedis(t *testing.T) (*redisclient.Client, *redis.Client) {
	t.Helper()
	cfg := RedisConfigFromEnv(t)

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	if err := rdb.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = rdb.FlushDB(context.Background()).Err()
		_ = rdb.Close()
	})

	return redisclient.Wrap(rdb), rdb
}
