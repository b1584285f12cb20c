package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"FinCast/internal/domain/models"
	"FinCast/internal/service/cache"
	pkgcache "FinCast/pkg/cache"
	"FinCast/pkg/logger"
	"FinCast/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelEventsHandlerDropsSupersededVersion(t *testing.T) {
	ctx := context.Background()
	store := pkgcache.NewMemoryCache()
	require.NoError(t, store.Connect(ctx))
	t.Cleanup(func() { _ = store.Close() })
	fc := cache.New(store, metrics.Nop{}, logger.Nop())

	old := fc.Key(cache.KindForecast, "ethereum", 3)
	current := fc.Key(cache.KindForecast, "ethereum", 4)
	other := fc.Key(cache.KindForecast, "solana", 3)
	for _, k := range []string{old, current, other} {
		require.NoError(t, store.Set(ctx, k, []byte(`{}`), cache.ForecastTTL))
	}

	h := NewModelEventsHandler("fincast.models", fc, metrics.Nop{}, logger.Nop())
	assert.Equal(t, "fincast.models", h.Topic())

	b, err := json.Marshal(models.ModelPublished{ExternalID: "ethereum", Version: 4, PreviousVersion: 3})
	require.NoError(t, err)
	require.NoError(t, h.Handle(ctx, b))

	_, err = store.Get(ctx, old)
	assert.ErrorIs(t, err, pkgcache.ErrCacheMiss)
	_, err = store.Get(ctx, current)
	assert.NoError(t, err)
	_, err = store.Get(ctx, other)
	assert.NoError(t, err)
}

func TestModelEventsHandlerRejectsGarbage(t *testing.T) {
	h := NewModelEventsHandler("fincast.models", cache.New(nil, metrics.Nop{}, logger.Nop()), metrics.Nop{}, logger.Nop())
	assert.Error(t, h.Handle(context.Background(), []byte("not json")))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"version":1}`)))
	assert.NoError(t, h.Handle(context.Background(), []byte(`{"external_id":"bitcoin","version":1}`)))
}
