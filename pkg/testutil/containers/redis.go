//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// RedisContainer backs trust configuration cache tests.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts Redis and returns a connected client.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redis connection string: %v", err)
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to parse redis URL %q: %v", url, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping redis: %v", err)
	}
	return &RedisContainer{Container: container, URL: url, Client: client}
}

// FlushAll clears every key; call it between tests.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
