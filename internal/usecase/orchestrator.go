package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// ErrSweepRunning is returned when another training sweep holds the lock.
var ErrSweepRunning = errors.New("training sweep already running")

const sweepLockKey = "train_sweep"

// Locker guards a sweep across processes. Nil disables locking.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Trainer trains a single asset.
type Trainer interface {
	Train(ctx context.Context, asset models.Asset) models.RunResult
	IsReference(asset models.Asset) bool
}

// OrchestratorUseCase trains the reference asset first and every dependent
// asset once the reference run has finished, succeeded or not.
type OrchestratorUseCase struct {
	assets      domrepo.AssetRepository
	trainer     Trainer
	locker      Locker
	lockTTL     time.Duration
	concurrency int
	logger      *logger.Logger
}

func NewOrchestratorUseCase(assets domrepo.AssetRepository, trainer Trainer, locker Locker, concurrency int, lgr *logger.Logger) *OrchestratorUseCase {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &OrchestratorUseCase{
		assets:      assets,
		trainer:     trainer,
		locker:      locker,
		lockTTL:     2 * time.Hour,
		concurrency: concurrency,
		logger:      lgr,
	}
}

// TrainAll trains every registered asset.
func (uc *OrchestratorUseCase) TrainAll(ctx context.Context) (*models.SweepReport, error) {
	return uc.RetrainAssets(ctx, nil)
}

// RetrainAssets trains the assets with the given external ids, or all assets
// when ids is empty. Unknown ids fail the call before anything is trained.
func (uc *OrchestratorUseCase) RetrainAssets(ctx context.Context, ids []string) (*models.SweepReport, error) {
	selected, err := uc.selectAssets(ctx, ids)
	if err != nil {
		return nil, err
	}

	if uc.locker != nil {
		ok, err := uc.locker.TryLock(ctx, sweepLockKey, uc.lockTTL)
		if err != nil {
			uc.logger.Warn("sweep lock unavailable, continuing unlocked", logger.Error(err))
		} else if !ok {
			return nil, ErrSweepRunning
		} else {
			defer func() {
				if err := uc.locker.Unlock(context.Background(), sweepLockKey); err != nil {
					uc.logger.Warn("release sweep lock failed", logger.Error(err))
				}
			}()
		}
	}

	var ref *models.Asset
	dependents := make([]models.Asset, 0, len(selected))
	for i := range selected {
		if uc.trainer.IsReference(selected[i]) {
			ref = &selected[i]
			continue
		}
		dependents = append(dependents, selected[i])
	}

	report := &models.SweepReport{}
	refDone := Completed(models.RunResult{})
	if ref != nil {
		refDone = uc.StartReference(ctx, *ref)
	}
	report.Dependents = uc.RunDependents(ctx, refDone, dependents)
	if ref != nil {
		r, _ := refDone.Wait(context.Background())
		report.Reference = &r
	}

	uc.logger.Info("training sweep finished",
		logger.Int("assets", len(selected)),
		logger.Int("succeeded", report.Count(models.RunSucceeded)),
		logger.Int("skipped", report.Count(models.RunSkipped)),
		logger.Int("failed", report.Count(models.RunFailed)),
	)
	return report, nil
}

// StartReference trains asset in the background and returns its Completion.
func (uc *OrchestratorUseCase) StartReference(ctx context.Context, asset models.Asset) *Completion {
	c := NewCompletion()
	go func() {
		c.Resolve(uc.trainer.Train(ctx, asset))
	}()
	return c
}

// RunDependents waits for ref and then trains assets with bounded
// parallelism. One asset's failure never stops the others.
func (uc *OrchestratorUseCase) RunDependents(ctx context.Context, ref *Completion, assets []models.Asset) []models.RunResult {
	results := make([]models.RunResult, len(assets))

	refResult, err := ref.Wait(ctx)
	if err != nil {
		for i, a := range assets {
			results[i] = cancelledRun(a.ExternalID, err)
		}
		return results
	}
	if refResult.Status == models.RunFailed {
		uc.logger.Warn("reference training failed, dependents continue",
			logger.Asset(refResult.Asset), logger.String("error", refResult.Error))
	}

	g := new(errgroup.Group)
	g.SetLimit(uc.concurrency)
	for i, a := range assets {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = cancelledRun(a.ExternalID, err)
				return nil
			}
			results[i] = uc.trainer.Train(ctx, a)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (uc *OrchestratorUseCase) selectAssets(ctx context.Context, ids []string) ([]models.Asset, error) {
	all, err := uc.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[string]models.Asset, len(all))
	for _, a := range all {
		byID[a.ExternalID] = a
	}
	out := make([]models.Asset, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("asset %q: %w", id, domrepo.ErrNotFound)
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, a)
		}
	}
	return out, nil
}

func cancelledRun(asset string, err error) models.RunResult {
	return models.RunResult{Asset: asset, Status: models.RunFailed, Err: err, Error: err.Error()}
}
