package lock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedis(t *testing.T) *Redis {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("redis://%s/0", endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, "experiments:test:", time.Minute)
}

func TestRedis_Exclusive(t *testing.T) {
	locker := setupRedis(t)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, InstanceKey("i1"))
	require.NoError(t, err)

	_, err = locker.TryAcquire(ctx, InstanceKey("i1"))
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))

	again, err := locker.TryAcquire(ctx, InstanceKey("i1"))
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestRedis_StaleLeaseKeepsNewHolder(t *testing.T) {
	locker := setupRedis(t)
	ctx := context.Background()

	stale := &redisLease{client: locker.client, key: locker.prefix + "k", token: "old-token"}

	current, err := locker.TryAcquire(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, stale.Release(ctx))

	_, err = locker.TryAcquire(ctx, "k")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, current.Release(ctx))
}

func TestRedis_ExtendKeepsLease(t *testing.T) {
	shared := setupRedis(t)
	locker := NewRedis(shared.client, shared.prefix, 500*time.Millisecond)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, InstanceKey("i1"))
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, lease.TTL())

	for range 4 {
		time.Sleep(250 * time.Millisecond)
		require.NoError(t, lease.Extend(ctx))
	}

	_, err = locker.TryAcquire(ctx, InstanceKey("i1"))
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, lease.Release(ctx))
}

func TestRedis_ExtendAfterExpiry(t *testing.T) {
	shared := setupRedis(t)
	locker := NewRedis(shared.client, shared.prefix, 200*time.Millisecond)
	ctx := context.Background()

	lease, err := locker.TryAcquire(ctx, InstanceKey("i1"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		next, err := locker.TryAcquire(ctx, InstanceKey("i1"))
		if err != nil {
			return false
		}
		t.Cleanup(func() { _ = next.Release(ctx) })

		return true
	}, 5*time.Second, 50*time.Millisecond)

	require.ErrorIs(t, lease.Extend(ctx), ErrLost)
}
