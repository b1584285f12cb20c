package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// Queue message types.
const (
	JobFetchAsset   = "fetch_asset"
	JobTrainAsset   = "train_asset"
	JobOnboardAsset = "onboard_asset"
	JobFetchSweep   = "fetch_sweep"
	JobTrainSweep   = "train_sweep"
)

// AssetJob is the payload of single-asset jobs. ContinueDependents is set on
// the reference asset's train job: when it finishes, every dependent asset
// gets its own train job.
type AssetJob struct {
	AssetID            int64 `json:"asset_id"`
	Days               int   `json:"days,omitempty"`
	ContinueDependents bool  `json:"continue_dependents,omitempty"`
}

// SweepJob is the payload of train_sweep. Distributed sweeps queue one train
// job per asset; otherwise the sweep runs inside the worker.
type SweepJob struct {
	Distributed bool `json:"distributed,omitempty"`
}

// JobsUseCase adapts the pipeline use cases to queue jobs.
type JobsUseCase struct {
	assets       domrepo.AssetRepository
	fetcher      *FetchUseCase
	trainer      Trainer
	orchestrator *OrchestratorUseCase
	onboarding   *OnboardingUseCase
	queue        queue.Queue
	logger       *logger.Logger
}

func NewJobsUseCase(
	assets domrepo.AssetRepository,
	fetcher *FetchUseCase,
	trainer Trainer,
	orchestrator *OrchestratorUseCase,
	onboarding *OnboardingUseCase,
	q queue.Queue,
	lgr *logger.Logger,
) *JobsUseCase {
	return &JobsUseCase{
		assets:       assets,
		fetcher:      fetcher,
		trainer:      trainer,
		orchestrator: orchestrator,
		onboarding:   onboarding,
		queue:        q,
		logger:       lgr,
	}
}

// Register installs every pipeline job on the queue.
func (uc *JobsUseCase) Register() {
	uc.queue.RegisterJob(queue.JobFunc{MsgType: JobFetchAsset, Fn: uc.handleFetchAsset})
	uc.queue.RegisterJob(queue.JobFunc{MsgType: JobTrainAsset, Fn: uc.handleTrainAsset})
	uc.queue.RegisterJob(queue.JobFunc{MsgType: JobOnboardAsset, Fn: uc.handleOnboardAsset})
	uc.queue.RegisterJob(queue.JobFunc{MsgType: JobFetchSweep, Fn: uc.handleFetchSweep})
	uc.queue.RegisterJob(queue.JobFunc{MsgType: JobTrainSweep, Fn: uc.handleTrainSweep})
}

// EnqueueTrainSweep queues the reference asset's train job with the
// continuation flag, so dependents are queued only after it finished.
// Without a reference asset every asset is queued directly.
func (uc *JobsUseCase) EnqueueTrainSweep(ctx context.Context) error {
	assets, err := uc.assets.List(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}
	for _, a := range assets {
		if uc.trainer.IsReference(a) {
			return uc.queue.Enqueue(ctx, JobTrainAsset, AssetJob{AssetID: a.ID, ContinueDependents: true})
		}
	}
	uc.logger.Warn("reference asset not registered, queueing every asset")
	return uc.enqueueDependents(ctx, assets)
}

func (uc *JobsUseCase) handleFetchAsset(ctx context.Context, payload json.RawMessage) error {
	job, err := queue.ParsePayload[AssetJob](payload)
	if err != nil {
		return err
	}
	// FetchAsset has retried already.
	if _, err := uc.fetcher.FetchAsset(ctx, job.AssetID, job.Days); err != nil {
		return queue.Permanent(err)
	}
	return nil
}

func (uc *JobsUseCase) handleTrainAsset(ctx context.Context, payload json.RawMessage) error {
	job, err := queue.ParsePayload[AssetJob](payload)
	if err != nil {
		return err
	}
	asset, err := uc.assets.GetByID(ctx, job.AssetID)
	if err != nil {
		return permanentIfMissing(err)
	}

	res := uc.trainer.Train(ctx, *asset)
	if job.ContinueDependents {
		assets, err := uc.assets.List(ctx)
		if err != nil {
			return fmt.Errorf("list assets: %w", err)
		}
		if err := uc.enqueueDependents(ctx, assets); err != nil {
			return err
		}
	}

	// The reference lookup already spent its retry budget, and a retried
	// reference job would queue its dependents twice.
	if res.Status == models.RunFailed && !errors.Is(res.Err, domrepo.ErrMissingDependency) && !job.ContinueDependents {
		return res.Err
	}
	return nil
}

func (uc *JobsUseCase) handleOnboardAsset(ctx context.Context, payload json.RawMessage) error {
	job, err := queue.ParsePayload[AssetJob](payload)
	if err != nil {
		return err
	}
	if err := uc.onboarding.OnboardQueued(ctx, job.AssetID); err != nil {
		return queue.Permanent(err)
	}
	return nil
}

func (uc *JobsUseCase) handleFetchSweep(ctx context.Context, _ json.RawMessage) error {
	_, err := uc.fetcher.FetchAll(ctx)
	return err
}

func (uc *JobsUseCase) handleTrainSweep(ctx context.Context, payload json.RawMessage) error {
	job, err := queue.ParsePayload[SweepJob](payload)
	if err != nil {
		return err
	}
	if job.Distributed {
		return uc.EnqueueTrainSweep(ctx)
	}
	_, err = uc.orchestrator.TrainAll(ctx)
	if errors.Is(err, ErrSweepRunning) {
		uc.logger.Warn("training sweep skipped", logger.Error(err))
		return nil
	}
	return err
}

func (uc *JobsUseCase) enqueueDependents(ctx context.Context, assets []models.Asset) error {
	var errs []error
	for _, a := range assets {
		if uc.trainer.IsReference(a) {
			continue
		}
		if err := uc.queue.Enqueue(ctx, JobTrainAsset, AssetJob{AssetID: a.ID}); err != nil {
			errs = append(errs, fmt.Errorf("queue training for %s: %w", a.ExternalID, err))
		}
	}
	return errors.Join(errs...)
}

func permanentIfMissing(err error) error {
	if errors.Is(err, domrepo.ErrNotFound) {
		return queue.Permanent(err)
	}
	return err
}
