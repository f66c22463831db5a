package actionlock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemaphoreLock_SecondAcquireIsBusy(t *testing.T) {
	ctx := context.Background()
	lock := NewSemaphoreLock()

	release, err := lock.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = lock.TryAcquire(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	require.NoError(t, release(ctx))
	_, err = lock.TryAcquire(ctx)
	assert.NoError(t, err)
}

// Two concurrent acquirers must resolve to exactly one holder and one
// ErrBusy, regardless of scheduling.
func TestSemaphoreLock_ConcurrentExclusivity(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		lock := NewSemaphoreLock()

		var wg sync.WaitGroup
		results := make(chan error, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := lock.TryAcquire(ctx)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var acquired, busy int
		for err := range results {
			switch err {
			case nil:
				acquired++
			case ErrBusy:
				busy++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, acquired)
		assert.Equal(t, 1, busy)
	}
}
