package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/service/forecast"
	"FinCast/pkg/logger"
	"FinCast/pkg/retry"
)

// TrainConfig holds the training pipeline parameters.
type TrainConfig struct {
	ReferenceAsset    string
	MinSamples        int
	Horizon           int
	RegressorFallback float64
	ReferenceTries    int
	ReferenceDelay    time.Duration
	KeepVersions      int
}

// TrainUseCase fits, publishes and announces a model for one asset.
type TrainUseCase struct {
	assets     domrepo.AssetRepository
	history    domrepo.HistoryStore
	models     domrepo.ModelStore
	artifacts  domrepo.ArtifactStore
	forecaster service.Forecaster
	events     service.EventPublisher
	metrics    domrepo.Metrics
	logger     *logger.Logger
	cfg        TrainConfig
	now        func() time.Time
}

func NewTrainUseCase(
	assets domrepo.AssetRepository,
	history domrepo.HistoryStore,
	modelStore domrepo.ModelStore,
	artifacts domrepo.ArtifactStore,
	forecaster service.Forecaster,
	events service.EventPublisher,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
	cfg TrainConfig,
) *TrainUseCase {
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 50
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = 3
	}
	if cfg.ReferenceTries <= 0 {
		cfg.ReferenceTries = 3
	}
	if cfg.RegressorFallback == 0 {
		cfg.RegressorFallback = 50000
	}
	return &TrainUseCase{
		assets:     assets,
		history:    history,
		models:     modelStore,
		artifacts:  artifacts,
		forecaster: forecaster,
		events:     events,
		metrics:    metrics,
		logger:     lgr,
		cfg:        cfg,
		now:        time.Now,
	}
}

// IsReference reports whether asset is the one every other asset depends on.
func (uc *TrainUseCase) IsReference(asset models.Asset) bool {
	return asset.ExternalID == uc.cfg.ReferenceAsset
}

// Train runs the whole pipeline for one asset and never panics on bad input.
// The returned result's Status tells succeeded, skipped (not enough data)
// and failed apart; Err carries the cause.
func (uc *TrainUseCase) Train(ctx context.Context, asset models.Asset) models.RunResult {
	start := time.Now()
	log := uc.logger.With(logger.Asset(asset.ExternalID))

	version, err := uc.train(ctx, asset, log)
	res := models.RunResult{Asset: asset.ExternalID, Version: version, Duration: time.Since(start)}
	switch {
	case err == nil:
		res.Status = models.RunSucceeded
		log.Info("model trained", logger.Int("version", version), logger.Duration("took", res.Duration))
	case errors.Is(err, domrepo.ErrInsufficientData):
		res.Status, res.Err, res.Error = models.RunSkipped, err, err.Error()
		log.Warn("training skipped", logger.Error(err))
	default:
		res.Status, res.Err, res.Error = models.RunFailed, err, err.Error()
		uc.metrics.RecordError("train")
		log.Error("training failed", logger.Error(err))
	}
	uc.metrics.RecordTraining(asset.ExternalID, string(res.Status), res.Duration.Seconds())
	return res
}

func (uc *TrainUseCase) train(ctx context.Context, asset models.Asset, log *logger.Logger) (int, error) {
	history, err := uc.history.ListHistory(ctx, asset.ID, time.Time{}, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("load history: %w", err)
	}
	if len(history) < uc.cfg.MinSamples {
		return 0, fmt.Errorf("%w: %d samples, need %d", domrepo.ErrInsufficientData, len(history), uc.cfg.MinSamples)
	}

	frame := univariateFrame(history)
	var ref *models.Asset
	var refHistory []models.HistoryPoint
	if !uc.IsReference(asset) {
		ref, refHistory = uc.referenceHistory(ctx, log)
		if len(refHistory) > 0 {
			joined := joinReference(history, refHistory)
			if joined.Len() >= uc.cfg.MinSamples {
				frame = joined
			} else {
				log.Warn("reference overlap too small, training univariate",
					logger.Int("joined", joined.Len()),
					logger.Int("min_samples", uc.cfg.MinSamples),
				)
			}
		}
	}

	model, err := uc.forecaster.Fit(ctx, frame)
	if err != nil {
		return 0, fmt.Errorf("fit: %w", err)
	}

	future := models.Frame{Dates: futureDates(frame.Dates, uc.cfg.Horizon)}
	if model.UsesRegressor() {
		refForecast, err := uc.referenceForecast(ctx, ref, log)
		if err != nil {
			return 0, err
		}
		last := refHistory[len(refHistory)-1].Close
		future.Regressor = fillRegressor(future.Dates, refForecast, &last, uc.cfg.RegressorFallback)
	}

	preds, err := model.Predict(future)
	if err != nil {
		return 0, fmt.Errorf("predict: %w", err)
	}
	inSample, err := model.Predict(frame)
	if err != nil {
		return 0, fmt.Errorf("predict fit range: %w", err)
	}
	fitMetrics, err := json.Marshal(forecast.Score(frame.Y, inSample, model.UsesRegressor(), uc.cfg.Horizon))
	if err != nil {
		return 0, fmt.Errorf("encode metrics: %w", err)
	}
	artifact, err := model.Marshal()
	if err != nil {
		return 0, fmt.Errorf("encode model: %w", err)
	}

	publishStart := time.Now()
	pub, err := uc.models.Publish(ctx, domrepo.PublishRequest{
		Asset:                  asset,
		Artifact:               artifact,
		UsesAuxiliaryRegressor: model.UsesRegressor(),
		Metrics:                fitMetrics,
		Points:                 preds,
		TrainedAt:              uc.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("publish: %w", err)
	}
	uc.metrics.RecordPublish(asset.ExternalID, pub.Version.Version, time.Since(publishStart).Seconds())

	ev := models.ModelPublished{
		AssetID:                asset.ID,
		ExternalID:             asset.ExternalID,
		Version:                pub.Version.Version,
		PreviousVersion:        pub.PreviousVersion,
		UsesAuxiliaryRegressor: model.UsesRegressor(),
		Points:                 len(preds),
		PublishedAt:            uc.now().UTC(),
	}
	if err := uc.events.PublishModel(ctx, ev); err != nil {
		uc.metrics.RecordError("model_event")
		log.Error("announce model failed", logger.Int("version", ev.Version), logger.Error(err))
	}

	uc.prune(ctx, asset, log)
	return pub.Version.Version, nil
}

// referenceHistory returns the reference asset and its history. A missing
// reference yields nil; the caller then trains univariate.
func (uc *TrainUseCase) referenceHistory(ctx context.Context, log *logger.Logger) (*models.Asset, []models.HistoryPoint) {
	ref, err := uc.assets.GetByExternalID(ctx, uc.cfg.ReferenceAsset)
	if err != nil {
		log.Warn("reference asset unavailable, training univariate",
			logger.String("reference", uc.cfg.ReferenceAsset), logger.Error(err))
		return nil, nil
	}
	points, err := uc.history.ListHistory(ctx, ref.ID, time.Time{}, time.Time{})
	if err != nil {
		log.Warn("reference history unavailable, training univariate",
			logger.String("reference", uc.cfg.ReferenceAsset), logger.Error(err))
		return ref, nil
	}
	return ref, points
}

// referenceForecast loads every point of the reference asset's active model,
// waiting for it to be published for a bounded number of attempts.
func (uc *TrainUseCase) referenceForecast(ctx context.Context, ref *models.Asset, log *logger.Logger) ([]models.ForecastPoint, error) {
	policy := retry.Policy{
		MaxAttempts: uc.cfg.ReferenceTries,
		Delay:       uc.cfg.ReferenceDelay,
		OnRetry: func(err error, attempt int, wait time.Duration) {
			log.Warn("reference forecast not ready, waiting",
				logger.String("reference", ref.ExternalID),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err),
			)
		},
	}
	points, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) ([]models.ForecastPoint, error) {
		_, points, err := uc.models.GetForecast(ctx, ref.ID, models.HorizonFull, uc.now())
		if err != nil {
			return nil, err
		}
		if len(points) == 0 {
			return nil, domrepo.ErrNotFound
		}
		return points, nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: forecast of %s: %v", domrepo.ErrMissingDependency, ref.ExternalID, err)
	}
	return points, nil
}

// prune removes artifact files beyond the newest KeepVersions. Version rows
// stay. Failures are logged only.
func (uc *TrainUseCase) prune(ctx context.Context, asset models.Asset, log *logger.Logger) {
	if uc.cfg.KeepVersions <= 0 || uc.artifacts == nil {
		return
	}
	versions, err := uc.models.ListVersions(ctx, asset.ID)
	if err != nil {
		log.Warn("list versions for retention failed", logger.Error(err))
		return
	}
	for i, v := range versions {
		if i < uc.cfg.KeepVersions || v.Active || v.ArtifactPath == "" {
			continue
		}
		if err := uc.artifacts.Remove(ctx, v.ArtifactPath); err != nil {
			log.Warn("remove old artifact failed", logger.Int("version", v.Version), logger.Error(err))
		}
	}
}
