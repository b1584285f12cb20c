package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time
	access   time.Time
}

func (m *memoryItem) expired(now time.Time) bool {
	return now.After(m.expireAt)
}

// MemoryCache implements Store in process memory with LRU eviction.
// Locks live in their own table and are never evicted or prefix-deleted.
type MemoryCache struct {
	cfg    *MemoryConfig
	mu     sync.Mutex
	data   map[string]*memoryItem
	locks  map[string]time.Time
	stop   chan struct{}
	once   sync.Once
	closed bool
	now    func() time.Time
}

// NewMemoryCache creates an in-memory cache. The janitor goroutine starts on Connect.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		DefaultTTL:      time.Hour,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &MemoryCache{
		cfg:  cfg,
		data:  make(map[string]*memoryItem),
		locks: make(map[string]time.Time),
		stop:  make(chan struct{}),
		now:   time.Now,
	}
}

func (mc *MemoryCache) Connect(_ context.Context) error {
	mc.once.Do(func() {
		go mc.cleanupExpired()
	})
	return nil
}

func (mc *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return ErrClosed
	}

	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.cfg.MaxSize {
		mc.evictLRU()
	}
	if ttl <= 0 {
		ttl = mc.cfg.DefaultTTL
	}
	now := mc.now()
	buf := make([]byte, len(value))
	copy(buf, value)
	mc.data[key] = &memoryItem{value: buf, expireAt: now.Add(ttl), access: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return nil, ErrClosed
	}

	now := mc.now()
	item, exists := mc.data[key]
	if !exists || item.expired(now) {
		if exists {
			delete(mc.data, key)
		}
		return nil, ErrCacheMiss
	}
	item.access = now
	out := make([]byte, len(item.value))
	copy(out, item.value)
	return out, nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

func (mc *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for key := range mc.data {
		if strings.HasPrefix(key, prefix) {
			delete(mc.data, key)
		}
	}
	return nil
}

func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.closed {
		return false, ErrClosed
	}

	now := mc.now()
	if until, ok := mc.locks[key]; ok && now.Before(until) {
		return false, nil
	}
	mc.locks[key] = now.Add(ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(_ context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.locks, key)
	return nil
}

// Len reports the number of stored entries, expired ones included. Locks
// are not counted.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldest) {
			oldestKey, oldest = key, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(mc.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if item.expired(now) {
					delete(mc.data, key)
				}
			}
			for key, until := range mc.locks {
				if !now.Before(until) {
					delete(mc.locks, key)
				}
			}
			mc.mu.Unlock()
		case <-mc.stop:
			return
		}
	}
}

// Close stops the janitor and rejects further writes.
func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if !mc.closed {
		mc.closed = true
		close(mc.stop)
	}
	return nil
}
