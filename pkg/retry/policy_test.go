package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errThrottled = errors.New("throttled")
	errBroken    = errors.New("broken")
)

func TestDoSucceedsAfterRetries(t *testing.T) {
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}
	v, err := Do(context.Background(), p, func(_ context.Context, attempt int) (int, error) {
		if attempt < 3 {
			return 0, errThrottled
		}
		return attempt, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestDoStopsAtBudgetAndKeepsLastError(t *testing.T) {
	calls := 0
	p := Policy{MaxAttempts: 3, Delay: time.Millisecond}
	_, err := Do(context.Background(), p, func(context.Context, int) (struct{}, error) {
		calls++
		return struct{}{}, errThrottled
	})
	assert.ErrorIs(t, err, errThrottled)
	assert.Equal(t, 3, calls)
}

func TestDoPerErrorBudget(t *testing.T) {
	var retries []int
	p := Policy{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
		Budget: func(err error) int {
			if errors.Is(err, errThrottled) {
				return 3
			}
			return 0
		},
		OnRetry: func(_ error, attempt int, _ time.Duration) { retries = append(retries, attempt) },
	}

	calls := 0
	_, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errBroken
	})
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, 2, calls)

	calls = 0
	retries = nil
	_, err = Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errThrottled
	})
	assert.ErrorIs(t, err, errThrottled)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoFinalStopsImmediately(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, Delay: time.Millisecond}, func(context.Context, int) (int, error) {
		calls++
		return 0, Final(errBroken)
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, errBroken, err)
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{MaxAttempts: 10, Delay: time.Hour}, func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 0, errThrottled
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
