package cache

import (
	"context"
	"errors"
	"time"
)

const lockNamespace = "lock:"

var (
	ErrCacheMiss = errors.New("cache: key not found")
	ErrClosed    = errors.New("cache: store closed")
)

// Store is a byte-oriented key/value cache with an explicit lifecycle.
// Connect must be called before use; Close releases the backend.
// Locks taken with TryLock do not share the value keyspace: Delete,
// DeleteByPrefix and eviction never release them.
type Store interface {
	Connect(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Close() error
}

// Key joins parts with ':' the way every cache key in the service is built.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, ':')
		}
		b = append(b, p...)
	}
	return string(b)
}
