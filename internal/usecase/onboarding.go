package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// OnboardResult reports both steps of an onboarding run. Train is nil when
// the fetch failed and the chain stopped.
type OnboardResult struct {
	Asset string             `json:"asset"`
	Fetch models.FetchResult `json:"fetch"`
	Train *models.RunResult  `json:"train,omitempty"`
}

// OnboardingUseCase registers assets and brings them to a first model:
// fetch history, pause, train.
type OnboardingUseCase struct {
	assets  domrepo.AssetRepository
	fetcher *FetchUseCase
	trainer Trainer
	queue   queue.Queue
	delay   time.Duration
	logger  *logger.Logger
}

func NewOnboardingUseCase(
	assets domrepo.AssetRepository,
	fetcher *FetchUseCase,
	trainer Trainer,
	q queue.Queue,
	delay time.Duration,
	lgr *logger.Logger,
) *OnboardingUseCase {
	return &OnboardingUseCase{
		assets:  assets,
		fetcher: fetcher,
		trainer: trainer,
		queue:   q,
		delay:   delay,
		logger:  lgr,
	}
}

// Register stores a new asset and queues its onboarding.
func (uc *OnboardingUseCase) Register(ctx context.Context, req models.RegisterAssetRequest) (*models.Asset, error) {
	asset := &models.Asset{
		ExternalID: req.ExternalID,
		Symbol:     req.Symbol,
		Name:       req.Name,
	}
	if err := uc.assets.Create(ctx, asset); err != nil {
		return nil, fmt.Errorf("create asset %s: %w", req.ExternalID, err)
	}
	uc.logger.Info("asset registered", logger.Asset(asset.ExternalID), logger.Int64("asset_id", asset.ID))

	if err := uc.queue.Enqueue(ctx, JobOnboardAsset, AssetJob{AssetID: asset.ID}); err != nil {
		return asset, fmt.Errorf("queue onboarding for %s: %w", asset.ExternalID, err)
	}
	return asset, nil
}

// EnsureDefaults registers every default asset that does not exist yet and
// returns the newly created ones.
func (uc *OnboardingUseCase) EnsureDefaults(ctx context.Context) ([]models.Asset, error) {
	var created []models.Asset
	for _, def := range models.DefaultAssets {
		a := def
		err := uc.assets.Create(ctx, &a)
		if errors.Is(err, domrepo.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create asset %s: %w", def.ExternalID, err)
		}
		created = append(created, a)
	}
	return created, nil
}

// Onboard runs the whole chain in the caller's goroutine. A fetch failure
// stops the chain; a training failure is reported but keeps the history.
func (uc *OnboardingUseCase) Onboard(ctx context.Context, assetID int64) (*OnboardResult, error) {
	asset, err := uc.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", assetID, err)
	}
	out := &OnboardResult{Asset: asset.ExternalID}

	fetched, err := uc.fetcher.FetchAsset(ctx, asset.ID, 0)
	if fetched != nil {
		out.Fetch = *fetched
	}
	if err != nil {
		return out, err
	}

	select {
	case <-time.After(uc.delay):
	case <-ctx.Done():
		return out, ctx.Err()
	}

	res := uc.trainer.Train(ctx, *asset)
	out.Train = &res
	return out, nil
}

// OnboardQueued fetches history and schedules training after the onboarding
// delay, so no worker sits idle during the pause.
func (uc *OnboardingUseCase) OnboardQueued(ctx context.Context, assetID int64) error {
	if _, err := uc.fetcher.FetchAsset(ctx, assetID, 0); err != nil {
		return err
	}
	if err := uc.queue.EnqueueIn(ctx, uc.delay, JobTrainAsset, AssetJob{AssetID: assetID}); err != nil {
		return fmt.Errorf("schedule training: %w", err)
	}
	return nil
}
