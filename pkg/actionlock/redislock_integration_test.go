package actionlock

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func newRedisClient(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start redis container")
	t.Cleanup(func() {
		if termErr := container.Terminate(context.Background()); termErr != nil {
			t.Logf("failed to terminate container: %v", termErr)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	return goredis.NewClient(opts)
}

func TestRedisLock_SecondAcquireIsBusy(t *testing.T) {
	ctx := context.Background()
	lock := NewRedisLock(newRedisClient(t), "test:action-lock", 30*time.Second)

	release, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, release(ctx))
	release2, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release2(ctx))
}

// A holder that outlives the TTL must not be able to release the permit of
// whoever acquired after the expiry: each release is bound to its own
// acquisition token.
func TestRedisLock_StaleReleaseKeepsNewHolderLocked(t *testing.T) {
	ctx := context.Background()
	lock := NewRedisLock(newRedisClient(t), "test:action-lock", 100*time.Millisecond)

	staleRelease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// Let the first holder's key expire, then hand the permit to a new holder
	time.Sleep(200 * time.Millisecond)

	liveRelease, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	// The stale holder releasing must be a no-op on the live permit
	require.NoError(t, staleRelease(ctx))

	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, liveRelease(ctx))
	release, err := lock.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
