package actionlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"
)

// ErrBusy signals that another lifecycle-changing operation is in flight.
// Callers may retry once the current operation completes; it is not an
// application error.
var ErrBusy = fmt.Errorf("another lifecycle action is in flight")

// ReleaseFunc returns the permit taken by the TryAcquire call that produced
// it. It must be called exactly once, and only for that acquisition: a
// release is scoped to its own acquisition, never to whoever currently
// holds the permit.
type ReleaseFunc func(ctx context.Context) error

// Lock serializes lifecycle-changing operations. The default scope is
// system-wide: one permit shared across all SKUs, matching the dashboard
// behavior of disabling every action while any one is pending. A per-SKU
// implementation can be swapped in without touching the callers.
type Lock interface {
	// TryAcquire takes the permit or returns ErrBusy without blocking
	TryAcquire(ctx context.Context) (ReleaseFunc, error)
}

// SemaphoreLock is the in-process implementation, a single-permit
// weighted semaphore.
type SemaphoreLock struct {
	sem *semaphore.Weighted
}

// NewSemaphoreLock creates a single-permit in-process lock
func NewSemaphoreLock() *SemaphoreLock {
	return &SemaphoreLock{sem: semaphore.NewWeighted(1)}
}

func (l *SemaphoreLock) TryAcquire(_ context.Context) (ReleaseFunc, error) {
	if !l.sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	return func(_ context.Context) error {
		l.sem.Release(1)
		return nil
	}, nil
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock re-acquired by another holder is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLock is the multi-instance implementation, backed by SET NX with a
// TTL so a crashed holder cannot wedge the system.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisLock creates a distributed single-permit lock on the given key
func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (l *RedisLock) TryAcquire(ctx context.Context) (ReleaseFunc, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire action lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	// The token is captured here, not stored on the lock: a stale holder
	// releasing after TTL expiry must not delete the next holder's permit.
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("failed to release action lock: %w", err)
		}
		return nil
	}, nil
}
