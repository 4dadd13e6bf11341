package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"otp-gateway/pkg/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore() (*MemoryStore, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	return NewMemoryStore(clk), clk
}

func TestMemoryStore_GetSetExpiry(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetEX(ctx, "k", "v", 10*time.Second))

	val, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	clk.Advance(9 * time.Second)
	_, err = store.Get(ctx, "k")
	assert.NoError(t, err)

	clk.Advance(time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetEXRejectsNonPositiveTTL(t *testing.T) {
	store, _ := newTestMemoryStore()

	assert.Error(t, store.SetEX(context.Background(), "k", "v", 0))
	assert.Error(t, store.SetEX(context.Background(), "k", "v", -time.Second))
}

func TestMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()

	ttl, err := store.TTL(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, TTLNoKey, ttl)

	_, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	ttl, err = store.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, TTLNoExpiry, ttl)

	require.NoError(t, store.SetEX(ctx, "k", "v", time.Minute))
	clk.Advance(15 * time.Second)
	ttl, err = store.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, ttl)
}

func TestMemoryStore_IncrKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	store, clk := newTestMemoryStore()

	n, err := store.Incr(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, store.Expire(ctx, "c", 30*time.Second))

	clk.Advance(10 * time.Second)
	n, err = store.Incr(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	ttl, err := store.TTL(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, ttl)

	clk.Advance(20 * time.Second)
	n, err = store.Incr(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts once the window expired")
}

func TestMemoryStore_IncrNonInteger(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()

	require.NoError(t, store.SetEX(ctx, "k", "not-a-number", time.Minute))
	_, err := store.Incr(ctx, "k")
	assert.Error(t, err)
}

func TestMemoryStore_ExpireAndDel(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()

	assert.NoError(t, store.Expire(ctx, "missing", time.Second))

	require.NoError(t, store.SetEX(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Expire(ctx, "k", 0))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.SetEX(ctx, "k", "v", time.Minute))
	require.NoError(t, store.Del(ctx, "k"))
	assert.Equal(t, 0, store.Len())
	assert.NoError(t, store.Del(ctx, "k"))
}

func TestMemoryStore_ConcurrentIncr(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestMemoryStore()

	const workers = 50
	var wg sync.WaitGroup
	seen := make([]int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := store.Incr(ctx, "c")
			assert.NoError(t, err)
			seen[i] = n
		}(i)
	}
	wg.Wait()

	unique := make(map[int64]struct{})
	for _, n := range seen {
		unique[n] = struct{}{}
	}
	assert.Len(t, unique, workers, "every INCR must observe a distinct value")
}
