package budget

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newRedisStore requires a running Redis at REDIS_ADDR (default
// localhost:6379). The test is skipped if it cannot connect.
func newRedisStore(t *testing.T) *RedisUsageStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Skipping Redis integration test: redis not available")
	}

	store := NewRedisUsageStoreWithClient(client, fmt.Sprintf("deedchain:test:%d:", time.Now().UnixNano()))
	t.Cleanup(func() {
		_ = store.ResetAll(context.Background())
		_ = store.Close()
	})
	return store
}

func TestRedisUsageStore_Integration(t *testing.T) {
	store := newRedisStore(t)
	k := newKernel(t, simplePolicy(), WithStore(store))
	ctx := context.Background()

	const workers, perWorker = 8, 20
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := k.CheckAndCommit(ctx, "shared", "r", Envelope{DimKWh: 0.25})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	usage, err := k.Usage(ctx, "shared")
	require.NoError(t, err)
	assert.InDelta(t, workers*perWorker*0.25, usage[DimKWh], 1e-9)

	_, err = k.CheckAndCommit(ctx, "shared", "r", Envelope{DimPower: 900})
	assert.ErrorIs(t, err, ErrCeilingExceeded)

	require.NoError(t, k.ResetWindow(ctx, "shared"))
	usage, err = k.Usage(ctx, "shared")
	require.NoError(t, err)
	assert.Empty(t, usage)
}

func TestRedisUsageStore_RejectionLeavesUsage(t *testing.T) {
	store := newRedisStore(t)
	ctx := context.Background()

	_, err := store.Apply(ctx, "s", Envelope{DimKWh: 1}, nil)
	require.NoError(t, err)

	sentinel := &Error{Kind: ViabilityRejected}
	_, err = store.Apply(ctx, "s", Envelope{DimKWh: 5}, func(Envelope) error { return sentinel })
	assert.Same(t, sentinel, err)

	usage, err := store.Usage(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 1.0, usage[DimKWh])
}
