package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/drivers/redis"
	"github.com/zwj1kor/Agentic-sso/internal/sso/store/storetest"
)

// TestStoreAgainstRedisContainer runs the store contract against a real
// Redis server. GETDEL semantics and SCAN paging differ subtly between
// miniredis and Redis, so this is worth the container start.
func TestStoreAgainstRedisContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	addr := fmt.Sprintf("%s:%s", host, port.Port())

	n := 0
	storetest.Run(t, func(t *testing.T) store.Store {
		// A fresh prefix per test keeps them isolated on the shared server.
		n++
		s := redis.NewStore(redis.Config{Addr: addr, KeyPrefix: fmt.Sprintf("it%d:", n)})
		require.NoError(t, s.Ping(ctx))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
