package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newCachedRepo(t *testing.T, opts ...Option) (*Repository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRepository(newTestDB(t), rdb, zaptest.NewLogger(t).Sugar(), opts...), mr
}

func TestBalanceCache_RoundTrip(t *testing.T) {
	r, mr := newCachedRepo(t, WithCacheTTL(time.Minute))
	ctx := context.Background()
	id := uuid.New()

	_, err := r.GetCachedBalance(ctx, id)
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, r.CacheBalance(ctx, id, decimal.RequireFromString("42.50"), 1))
	got, err := r.GetCachedBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("42.5")))
	assert.Equal(t, time.Minute, mr.TTL(balanceKey(id)))

	mr.FastForward(2 * time.Minute)
	_, err = r.GetCachedBalance(ctx, id)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestBalanceCache_Disabled(t *testing.T) {
	r := newTestRepo(t)
	err := r.CacheBalance(context.Background(), uuid.New(), decimal.NewFromInt(1), 1)
	assert.ErrorIs(t, err, ErrCacheDisabled)
	_, err = r.GetCachedBalance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrCacheDisabled)
}

func TestBalanceCache_OlderVersionDropped(t *testing.T) {
	r, mr := newCachedRepo(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, r.CacheBalance(ctx, id, decimal.NewFromInt(60), 3))
	require.NoError(t, r.CacheBalance(ctx, id, decimal.NewFromInt(100), 2))
	require.NoError(t, r.CacheBalance(ctx, id, decimal.NewFromInt(70), 3))

	got, err := r.GetCachedBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(60)), got.String())
	assert.Equal(t, "3", mr.HGet(balanceKey(id), "v"))

	require.NoError(t, r.CacheBalance(ctx, id, decimal.NewFromInt(55), 4))
	got, err = r.GetCachedBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(55)))
}

func TestBalanceCache_ConcurrentWritersKeepNewest(t *testing.T) {
	r, _ := newCachedRepo(t)
	ctx := context.Background()
	id := uuid.New()

	var wg sync.WaitGroup
	for v := uint64(1); v <= 50; v++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			assert.NoError(t, r.CacheBalance(ctx, id, decimal.NewFromInt(int64(v)), v))
		}(v)
	}
	wg.Wait()

	got, err := r.GetCachedBalance(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(50)), got.String())
}
