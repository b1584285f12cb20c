package cache

import (
	"context"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: Redis).
type LayeredCache struct {
	mem    *MemoryCache
	redis  *RedisCache
	hotTTL time.Duration
}

// NewLayeredCache creates a layered cache with memory and Redis.
func NewLayeredCache(redisCache *RedisCache, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{
		MemoryMaxSize: 1000,
		HotTTL:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		redis:  redisCache,
		hotTTL: cfg.HotTTL,
	}
}

func (lc *LayeredCache) Connect(ctx context.Context) error {
	if err := lc.mem.Connect(ctx); err != nil {
		return err
	}
	return lc.redis.Connect(ctx)
}

func (lc *LayeredCache) hot(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > lc.hotTTL {
		return lc.hotTTL
	}
	return ttl
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Write-through: Redis first, then memory
	if err := lc.redis.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	_ = lc.mem.Set(ctx, key, value, lc.hot(ttl))
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := lc.mem.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := lc.redis.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = lc.mem.Set(ctx, key, v, lc.hotTTL)
	return v, nil
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.redis.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	_ = lc.mem.DeleteByPrefix(ctx, prefix)
	return lc.redis.DeleteByPrefix(ctx, prefix)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.redis.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.redis.Unlock(ctx, key)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.redis.Close()
}
