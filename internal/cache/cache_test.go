package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableCache returns a Cache whose Redis client points at a closed
// port, exercising the always-miss degraded mode.
func unreachableCache() *Cache {
	return New(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}))
}

func TestGetWithSetCallbackDegradedMode(t *testing.T) {
	c := unreachableCache()

	var got int
	err := c.GetWithSetCallback(context.Background(), "k", time.Hour, &got,
		func(ctx context.Context) (any, error) {
			return 42, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestGetWithSetCallbackStampedeGuard(t *testing.T) {
	c := unreachableCache()

	var computes int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]int, 8)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			err := c.GetWithSetCallback(context.Background(), "counts", time.Hour, &results[i],
				func(ctx context.Context) (any, error) {
					atomic.AddInt64(&computes, 1)
					time.Sleep(150 * time.Millisecond)
					return 7, nil
				})
			assert.NoError(t, err)
		}(i)
	}

	close(start)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&computes), int64(2),
		"concurrent callers must share in-flight recomputes")
	for _, r := range results {
		assert.Equal(t, 7, r)
	}
}

func TestGetWithSetCallbackPropagatesComputeError(t *testing.T) {
	c := unreachableCache()

	var got int
	err := c.GetWithSetCallback(context.Background(), "k", time.Hour, &got,
		func(ctx context.Context) (any, error) {
			return nil, assert.AnError
		})

	assert.ErrorIs(t, err, assert.AnError)
}
