package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	domrepo "FinCast/internal/domain/repository"
	pkgcache "FinCast/pkg/cache"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"

	"golang.org/x/sync/singleflight"
)

// ComputeFunc produces the serialized response for a cache miss.
type ComputeFunc func(ctx context.Context) ([]byte, error)

// ForecastCache memoizes derived read results. The backend is advisory: its
// errors are logged and the value is computed instead. A nil backend only
// deduplicates concurrent computations.
type ForecastCache struct {
	store       pkgcache.Store
	metrics     domrepo.Metrics
	logger      *logger.Logger
	group       singleflight.Group
	fillTimeout time.Duration
	now         func() time.Time
}

// DefaultFillTimeout bounds one shared computation.
const DefaultFillTimeout = 30 * time.Second

func New(store pkgcache.Store, metrics domrepo.Metrics, lgr *logger.Logger) *ForecastCache {
	return &ForecastCache{store: store, metrics: metrics, logger: lgr, fillTimeout: DefaultFillTimeout, now: time.Now}
}

// Key builds {kind}:{asset}:{version}:{YYYYMMDDHH} for the current UTC hour.
func (c *ForecastCache) Key(kind, asset string, version int) string {
	return pkgcache.Key(kind, asset, strconv.Itoa(version), util.HourBucket(c.now()))
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers of one key share a single computation,
// which runs detached from any one caller's cancellation and is bounded by
// the fill timeout. A caller whose ctx ends stops waiting without failing
// the others. Compute errors are returned and never cached.
func (c *ForecastCache) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute ComputeFunc) ([]byte, error) {
	kind := kindOf(key)
	if b, ok := c.lookup(ctx, kind, key); ok {
		c.metrics.RecordCache(kind, "hit")
		return b, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fillTimeout)
		defer cancel()
		if b, ok := c.lookup(fillCtx, kind, key); ok {
			return b, nil
		}
		start := time.Now()
		b, err := compute(fillCtx)
		if err != nil {
			return nil, err
		}
		c.metrics.RecordLatency("compute_"+kind, time.Since(start).Seconds())
		c.save(fillCtx, kind, key, b, ttl)
		return b, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.metrics.RecordCache(kind, "shared")
		} else {
			c.metrics.RecordCache(kind, "miss")
		}
		return res.Val.([]byte), nil
	}
}

// InvalidateVersion drops every bucket of kind cached for one model version.
func (c *ForecastCache) InvalidateVersion(ctx context.Context, kind, asset string, version int) error {
	if c.store == nil {
		return nil
	}
	return c.store.DeleteByPrefix(ctx, pkgcache.Key(kind, asset, strconv.Itoa(version))+":")
}

// InvalidateAsset drops every cached entry of asset.
func (c *ForecastCache) InvalidateAsset(ctx context.Context, asset string) error {
	return c.deleteKinds(ctx, func(kind string) string { return pkgcache.Key(kind, asset) + ":" })
}

// Clear drops every cached read. Only keys of the known kinds are touched,
// so other users of the backend keep theirs.
func (c *ForecastCache) Clear(ctx context.Context) error {
	return c.deleteKinds(ctx, func(kind string) string { return kind + ":" })
}

func (c *ForecastCache) deleteKinds(ctx context.Context, prefix func(kind string) string) error {
	if c.store == nil {
		return nil
	}
	var errs []error
	for _, kind := range Kinds {
		if err := c.store.DeleteByPrefix(ctx, prefix(kind)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *ForecastCache) lookup(ctx context.Context, kind, key string) ([]byte, bool) {
	if c.store == nil {
		return nil, false
	}
	b, err := c.store.Get(ctx, key)
	if err == nil {
		return b, true
	}
	if !errors.Is(err, pkgcache.ErrCacheMiss) {
		c.metrics.RecordCache(kind, "error")
		c.logger.Warn("cache read failed", logger.String("key", key), logger.Error(err))
	}
	return nil, false
}

func (c *ForecastCache) save(ctx context.Context, kind, key string, b []byte, ttl time.Duration) {
	if c.store == nil {
		return
	}
	if err := c.store.Set(ctx, key, b, ttl); err != nil {
		c.metrics.RecordCache(kind, "error")
		c.logger.Warn("cache write failed", logger.String("key", key), logger.Error(err))
	}
}

func kindOf(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}
