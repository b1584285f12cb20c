package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveDrainsAndRefills(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := New()
	l.now = func() time.Time { return now }

	assert.Zero(t, l.reserve("k", 2, 1))
	assert.Zero(t, l.reserve("k", 2, 1))
	assert.Equal(t, time.Second, l.reserve("k", 2, 1))
	assert.Zero(t, l.reserve("other", 2, 1), "buckets are per key")

	now = now.Add(time.Second)
	assert.Zero(t, l.reserve("k", 2, 1))
	assert.Equal(t, time.Second, l.reserve("k", 2, 4), "refill rate is fixed on first use")

	assert.Zero(t, l.reserve("frozen", 1, 0))
	assert.Equal(t, time.Second, l.reserve("frozen", 1, 0))
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 0.001))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "k", 1, 0.001)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	l := New()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 50))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "k", 1, 50))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestPerMinute(t *testing.T) {
	assert.InDelta(t, 0.5, PerMinute(30), 1e-9)
}
