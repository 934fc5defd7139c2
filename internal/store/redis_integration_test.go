//go:build integration

package store

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startRedis runs a throwaway Redis container and returns its URL.
func startRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	return url
}

func TestRedisStore_Contract(t *testing.T) {
	s, err := DialRedis(context.Background(), startRedis(t), testLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	runStoreContract(t, s)
}

func TestRedisStore_BorrowedClientStaysOpen(t *testing.T) {
	ctx := context.Background()

	opts, err := redis.ParseURL(startRedis(t))
	require.NoError(t, err)

	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, testLogger(t))
	require.NoError(t, s.Close())

	require.NoError(t, client.Ping(ctx).Err(), "Close must not close a borrowed client")
}
