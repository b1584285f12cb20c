package scheduler

import (
	"context"
	"fmt"
	"time"

	"FinCast/pkg/logger"

	"github.com/robfig/cron/v3"
)

// Runner runs named jobs on cron specs with a seconds field, in UTC.
type Runner struct {
	cron    *cron.Cron
	logger  *logger.Logger
	baseCtx context.Context
}

func New(lgr *logger.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  lgr,
		baseCtx: baseCtx,
	}
}

// Add registers job under spec. Overlapping runs of the same entry are skipped.
func (r *Runner) Add(name, spec string, job func(context.Context)) (cron.EntryID, error) {
	id, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		r.logger.Info("scheduled job started", logger.String("job", name))
		job(r.baseCtx)
		r.logger.Info("scheduled job finished",
			logger.String("job", name),
			logger.Duration("elapsed_ms", time.Since(start)))
	})
	if err != nil {
		return 0, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return id, nil
}

// Next reports when the entry fires next.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

// Len reports the number of registered entries.
func (r *Runner) Len() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("cron started", logger.Int("entries", r.Len()))
	r.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (r *Runner) Stop(ctx context.Context) error {
	done := r.cron.Stop()
	select {
	case <-done.Done():
		r.logger.Info("cron stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron stop: %w", ctx.Err())
	}
}
