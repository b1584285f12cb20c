package usecase

import (
	"context"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/service/coingecko"
	"FinCast/pkg/logger"
	"FinCast/pkg/retry"
)

// FetchConfig bounds provider retries. Rate-limited calls and other failures
// have separate attempt budgets but share the pause between attempts.
type FetchConfig struct {
	LookbackDays   int
	RetryDelay     time.Duration
	RateLimitTries int
	TransientTries int
}

// FetchUseCase pulls daily history from the price provider into the history store.
type FetchUseCase struct {
	assets   domrepo.AssetRepository
	history  domrepo.HistoryStore
	provider service.PriceProvider
	metrics  domrepo.Metrics
	logger   *logger.Logger
	cfg      FetchConfig
}

func NewFetchUseCase(
	assets domrepo.AssetRepository,
	history domrepo.HistoryStore,
	provider service.PriceProvider,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
	cfg FetchConfig,
) *FetchUseCase {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 30
	}
	if cfg.RateLimitTries <= 0 {
		cfg.RateLimitTries = 3
	}
	if cfg.TransientTries <= 0 {
		cfg.TransientTries = 2
	}
	return &FetchUseCase{
		assets:   assets,
		history:  history,
		provider: provider,
		metrics:  metrics,
		logger:   lgr,
		cfg:      cfg,
	}
}

// FetchAsset downloads and stores the history of one asset. days <= 0 uses
// the configured lookback. The returned result is always non-nil once the
// asset exists, and carries the final error of a failed fetch.
func (uc *FetchUseCase) FetchAsset(ctx context.Context, assetID int64, days int) (*models.FetchResult, error) {
	asset, err := uc.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("get asset %d: %w", assetID, err)
	}
	return uc.fetch(ctx, *asset, days)
}

// FetchAll fetches every registered asset one after another. A failing asset
// is reported in its result and never stops the sweep.
func (uc *FetchUseCase) FetchAll(ctx context.Context) ([]models.FetchResult, error) {
	assets, err := uc.assets.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	results := make([]models.FetchResult, 0, len(assets))
	failed := 0
	for _, a := range assets {
		if ctx.Err() != nil {
			results = append(results, failedFetch(a.ExternalID, 0, ctx.Err()))
			failed++
			continue
		}
		res, err := uc.fetch(ctx, a, 0)
		if err != nil {
			failed++
		}
		results = append(results, *res)
	}

	uc.logger.Info("fetch sweep finished",
		logger.Int("assets", len(assets)),
		logger.Int("failed", failed),
	)
	return results, nil
}

func (uc *FetchUseCase) fetch(ctx context.Context, asset models.Asset, days int) (*models.FetchResult, error) {
	if days <= 0 {
		days = uc.cfg.LookbackDays
	}
	log := uc.logger.With(logger.Asset(asset.ExternalID))

	attempts := 0
	policy := retry.Policy{
		MaxAttempts: uc.cfg.TransientTries,
		Delay:       uc.cfg.RetryDelay,
		Budget: func(err error) int {
			if coingecko.IsRateLimited(err) {
				return uc.cfg.RateLimitTries
			}
			return uc.cfg.TransientTries
		},
		OnRetry: func(err error, attempt int, wait time.Duration) {
			log.Warn("fetch failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err),
			)
		},
	}

	series, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (*models.PriceSeries, error) {
		attempts = attempt
		return uc.provider.MarketChart(ctx, asset.ExternalID, days)
	})
	if err != nil {
		uc.metrics.RecordFetch(asset.ExternalID, "failed", attempts)
		log.Error("fetch failed", logger.Int("attempts", attempts), logger.Error(err))
		res := failedFetch(asset.ExternalID, attempts, err)
		return &res, fmt.Errorf("fetch %s: %w", asset.ExternalID, err)
	}

	points := toHistory(asset.ID, series)
	if err := uc.history.UpsertHistory(ctx, points); err != nil {
		uc.metrics.RecordFetch(asset.ExternalID, "store_failed", attempts)
		log.Error("store history failed", logger.Error(err))
		res := failedFetch(asset.ExternalID, attempts, err)
		return &res, fmt.Errorf("store history for %s: %w", asset.ExternalID, err)
	}

	uc.metrics.RecordFetch(asset.ExternalID, "ok", attempts)
	log.Info("history fetched", logger.Int("points", len(points)), logger.Int("attempts", attempts))
	return &models.FetchResult{Asset: asset.ExternalID, Points: len(points), Attempts: attempts}, nil
}

// toHistory binds provider points to an asset. The provider reports one
// price per day, so every OHLC field carries it.
func toHistory(assetID int64, series *models.PriceSeries) []models.HistoryPoint {
	out := make([]models.HistoryPoint, 0, len(series.Points))
	for _, p := range series.Points {
		out = append(out, models.HistoryPoint{
			AssetID:   assetID,
			Timestamp: p.Timestamp,
			Open:      p.Price,
			High:      p.Price,
			Low:       p.Price,
			Close:     p.Price,
			Volume:    p.Volume,
		})
	}
	return out
}

func failedFetch(asset string, attempts int, err error) models.FetchResult {
	return models.FetchResult{Asset: asset, Attempts: attempts, Error: err.Error(), Err: err}
}
