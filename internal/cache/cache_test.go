package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты Redis-кэша (testcontainers-go, redis:7-alpine).
// Запуск: GO_TEST_INTEGRATION=1 go test ./internal/cache -v -count=1

func startRedis(t *testing.T) BlacklistCache {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	bc, err := NewRedisCache(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bc.Close() })

	return bc
}

func TestNewRedisCache_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache(context.Background(), "://bad", "")
	require.Error(t, err)
}

func TestIntegration_MarkRevoked_And_IsRevoked(t *testing.T) {
	bc := startRedis(t)
	ctx := context.Background()

	revoked, err := bc.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	require.False(t, revoked)

	require.NoError(t, bc.MarkRevoked(ctx, "h1", time.Minute))

	revoked, err = bc.IsRevoked(ctx, "h1")
	require.NoError(t, err)
	require.True(t, revoked)

	require.NoError(t, bc.Ping(ctx))
}

func TestIntegration_MarkRevoked_TTL(t *testing.T) {
	bc := startRedis(t)
	ctx := context.Background()

	require.NoError(t, bc.MarkRevoked(ctx, "short", time.Second))
	require.NoError(t, bc.MarkRevoked(ctx, "expired", -time.Second))

	revoked, err := bc.IsRevoked(ctx, "expired")
	require.NoError(t, err)
	require.False(t, revoked)

	require.Eventually(t, func() bool {
		r, err := bc.IsRevoked(ctx, "short")
		return err == nil && !r
	}, 5*time.Second, 100*time.Millisecond)
}
