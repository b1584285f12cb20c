package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheGetSetExpire(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	require.NoError(t, mc.Connect(ctx))
	defer mc.Close()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "forecast:bitcoin:1:2025010100", []byte(`{"a":1}`), time.Minute))
	got, err := mc.Get(ctx, "forecast:bitcoin:1:2025010100")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	now = now.Add(2 * time.Minute)
	_, err = mc.Get(ctx, "forecast:bitcoin:1:2025010100")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "a", []byte("1"), time.Hour))
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "b", []byte("2"), time.Hour))
	now = now.Add(time.Second)
	_, err := mc.Get(ctx, "a")
	require.NoError(t, err)
	now = now.Add(time.Second)
	require.NoError(t, mc.Set(ctx, "c", []byte("3"), time.Hour))

	_, err = mc.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 2, mc.Len())
}

func TestMemoryCacheDeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	for v := 1; v <= 3; v++ {
		require.NoError(t, mc.Set(ctx, fmt.Sprintf("forecast:bitcoin:%d:x", v), []byte("v"), time.Hour))
	}
	require.NoError(t, mc.Set(ctx, "forecast:ethereum:1:x", []byte("v"), time.Hour))

	require.NoError(t, mc.DeleteByPrefix(ctx, "forecast:bitcoin:"))
	assert.Equal(t, 1, mc.Len())
}

func TestMemoryCacheTryLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	ok, err := mc.TryLock(ctx, "train_sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "train_sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "train_sweep"))
	ok, err = mc.TryLock(ctx, "train_sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheLockOutlivesValueChurn(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	ok, err := mc.TryLock(ctx, "train_sweep", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < 4; i++ {
		now = now.Add(time.Second)
		require.NoError(t, mc.Set(ctx, fmt.Sprintf("forecast:bitcoin:%d:x", i), []byte("v"), time.Hour))
	}
	assert.Equal(t, 2, mc.Len())

	ok, err = mc.TryLock(ctx, "train_sweep", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "eviction must not release a held lock")

	require.NoError(t, mc.DeleteByPrefix(ctx, ""))
	require.NoError(t, mc.Delete(ctx, "train_sweep"))
	ok, err = mc.TryLock(ctx, "train_sweep", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "deletes must not release a held lock")

	now = now.Add(2 * time.Hour)
	ok, err = mc.TryLock(ctx, "train_sweep", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lock can be taken again")
}

func TestMemoryCacheClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	require.NoError(t, mc.Connect(ctx))
	require.NoError(t, mc.Close())
	assert.ErrorIs(t, mc.Set(ctx, "k", []byte("v"), time.Minute), ErrClosed)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "forecast:bitcoin:3:2025010112", Key("forecast", "bitcoin", "3", "2025010112"))
}
