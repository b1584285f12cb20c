package usecase

import (
	"context"
	"sync"

	"FinCast/internal/domain/models"
)

// Completion is the outcome of a training run that may still be in
// progress. Dependents wait on the reference asset's Completion rather than
// on a fixed delay.
type Completion struct {
	once   sync.Once
	done   chan struct{}
	result models.RunResult
}

func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Completed returns a Completion that is already resolved with r.
func Completed(r models.RunResult) *Completion {
	c := NewCompletion()
	c.Resolve(r)
	return c
}

// Resolve records the result and wakes every waiter. Later calls are ignored.
func (c *Completion) Resolve(r models.RunResult) {
	c.once.Do(func() {
		c.result = r
		close(c.done)
	})
}

// Done is closed once the result is available.
func (c *Completion) Done() <-chan struct{} { return c.done }

// Wait blocks until the run finishes or ctx is done.
func (c *Completion) Wait(ctx context.Context) (models.RunResult, error) {
	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return models.RunResult{}, ctx.Err()
	}
}
