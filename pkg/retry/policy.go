// Package retry applies bounded, fixed-delay retry budgets to operations that
// report failures through plain error returns.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds how often and how quickly an operation is retried.
type Policy struct {
	// MaxAttempts is the default attempt budget, first try included.
	MaxAttempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// Budget optionally overrides MaxAttempts per error. Returning 0 falls
	// back to MaxAttempts; returning 1 makes the error final.
	Budget func(err error) int
	// OnRetry is called before each pause.
	OnRetry func(err error, attempt int, wait time.Duration)
}

func (p Policy) budget(err error) int {
	if p.Budget != nil {
		if n := p.Budget(err); n > 0 {
			return n
		}
	}
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Do runs op until it succeeds, its error exhausts the budget for that error,
// or ctx is done. The returned error is the last error op produced.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attempt := 0

	operation := func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return v, err
		}
		if attempt >= p.budget(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxElapsedTime(0),
	}
	if p.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			p.OnRetry(err, attempt, wait)
		}))
	}

	v, err := backoff.Retry(ctx, operation, opts...)
	if err == nil {
		return v, nil
	}
	var perm *backoff.PermanentError
	for errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}

// Final marks err so that Do stops immediately and returns it.
func Final(err error) error {
	return backoff.Permanent(err)
}
