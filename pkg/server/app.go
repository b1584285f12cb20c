package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FinCast/internal/usecase"
	"FinCast/pkg/config"
	xhttp "FinCast/pkg/http"
	pkgkafka "FinCast/pkg/kafka"
	"FinCast/pkg/logger"
	"FinCast/pkg/queue"
	"FinCast/pkg/scheduler"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	httpServer *xhttp.Server
	queue      queue.Queue
	jobs       *usecase.JobsUseCase
	onboarding *usecase.OnboardingUseCase
	consumer   *pkgkafka.Consumer
	cron       *scheduler.Runner
}

// New creates a new App instance with all dependencies. consumer may be nil.
func New(
	cfg *config.Config,
	lgr *logger.Logger,
	httpServer *xhttp.Server,
	q queue.Queue,
	jobs *usecase.JobsUseCase,
	onboarding *usecase.OnboardingUseCase,
	consumer *pkgkafka.Consumer,
) *App {
	return &App{
		cfg:        cfg,
		logger:     lgr,
		httpServer: httpServer,
		queue:      q,
		jobs:       jobs,
		onboarding: onboarding,
		consumer:   consumer,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.jobs.Register()
	if err := a.queue.Start(); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}

	if err := a.bootstrap(ctx); err != nil {
		a.logger.Error("default assets not onboarded", logger.Error(err))
	}

	if a.cfg.Schedule.Enabled {
		a.cron = scheduler.New(a.logger, ctx)
		if err := a.schedule(a.cron); err != nil {
			_ = a.queue.Stop(context.Background())
			return err
		}
		a.cron.Start()
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start error", logger.Error(err))
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", logger.Error(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// bootstrap registers missing default assets and queues their onboarding.
func (a *App) bootstrap(ctx context.Context) error {
	created, err := a.onboarding.EnsureDefaults(ctx)
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	for _, asset := range created {
		if err := a.queue.Enqueue(ctx, usecase.JobOnboardAsset, usecase.AssetJob{AssetID: asset.ID}); err != nil {
			errs = append(errs, fmt.Errorf("queue onboarding for %s: %w", asset.ExternalID, err))
			continue
		}
		a.logger.Info("default asset registered", logger.Asset(asset.ExternalID))
	}
	return errors.Join(errs...)
}

// schedule adds the daily fetch and training sweeps and the extra fetch
// sweep. Entries only enqueue; queue workers do the work.
func (a *App) schedule(r *scheduler.Runner) error {
	distributed := a.cfg.Queue.Mode == "redis"
	entries := []struct {
		name, spec, msgType string
		payload             interface{}
	}{
		{"fetch_sweep", a.cfg.Schedule.Fetch, usecase.JobFetchSweep, struct{}{}},
		{"train_sweep", a.cfg.Schedule.Train, usecase.JobTrainSweep, usecase.SweepJob{Distributed: distributed}},
		{"extra_fetch_sweep", a.cfg.Schedule.ExtraFetch, usecase.JobFetchSweep, struct{}{}},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		_, err := r.Add(e.name, e.spec, func(ctx context.Context) {
			if err := a.queue.Enqueue(ctx, e.msgType, e.payload); err != nil {
				a.logger.Error("scheduled enqueue failed", logger.String("job", e.name), logger.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.cron != nil {
		if err := a.cron.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.queue.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("queue stop: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown finished with errors", logger.Error(err))
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
