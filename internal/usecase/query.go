package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/domain/service"
	"FinCast/internal/service/cache"
	"FinCast/pkg/util"
)

// MinComponentHistory is the least history a component breakdown needs.
const MinComponentHistory = 30

// QueryUseCase serves the read API. Derived results go through the
// forecast cache keyed by model version, so a new version is visible on the
// next request.
type QueryUseCase struct {
	assets     domrepo.AssetRepository
	history    domrepo.HistoryStore
	models     domrepo.ModelStore
	forecaster service.Forecaster
	market     service.MarketDataProvider
	cache      *cache.ForecastCache
	reference  string
	now        func() time.Time
}

func NewQueryUseCase(
	assets domrepo.AssetRepository,
	history domrepo.HistoryStore,
	modelStore domrepo.ModelStore,
	forecaster service.Forecaster,
	market service.MarketDataProvider,
	fc *cache.ForecastCache,
	referenceAsset string,
) *QueryUseCase {
	return &QueryUseCase{
		assets:     assets,
		history:    history,
		models:     modelStore,
		forecaster: forecaster,
		market:     market,
		cache:      fc,
		reference:  referenceAsset,
		now:        time.Now,
	}
}

func (uc *QueryUseCase) ListAssets(ctx context.Context) ([]models.Asset, error) {
	return uc.assets.List(ctx)
}

// MarketData returns raw history rows [ms, open, close, low, high, volume].
// Dates are inclusive UTC days.
func (uc *QueryUseCase) MarketData(ctx context.Context, req models.MarketDataRequest) ([][]float64, error) {
	asset, err := uc.assets.GetByID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}

	var from, to time.Time
	if req.StartDate != "" {
		if from, err = util.ParseDate(req.StartDate); err != nil {
			return nil, fmt.Errorf("start_date: %w", err)
		}
	}
	if req.EndDate != "" {
		end, err := util.ParseDate(req.EndDate)
		if err != nil {
			return nil, fmt.Errorf("end_date: %w", err)
		}
		to = util.EndOfDay(end)
	}

	points, err := uc.history.ListHistory(ctx, asset.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	rows := make([][]float64, 0, len(points))
	for _, p := range points {
		rows = append(rows, []float64{
			float64(p.Timestamp.UnixMilli()), p.Open, p.Close, p.Low, p.High, p.Volume,
		})
	}
	return rows, nil
}

// Metrics returns the provider's live snapshot of an asset as JSON.
func (uc *QueryUseCase) Metrics(ctx context.Context, assetID int64) ([]byte, error) {
	asset, err := uc.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	key := uc.cache.Key(cache.KindMetrics, asset.ExternalID, 0)
	return uc.cache.GetOrCompute(ctx, key, cache.MetricsTTL, func(ctx context.Context) ([]byte, error) {
		m, err := uc.market.Markets(ctx, asset.ExternalID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(m)
	})
}

// MarketShare returns the top assets by market cap as JSON.
func (uc *QueryUseCase) MarketShare(ctx context.Context, limit int) ([]byte, error) {
	key := uc.cache.Key(cache.KindMarketShare, "top"+strconv.Itoa(limit), 0)
	return uc.cache.GetOrCompute(ctx, key, cache.MarketShareTTL, func(ctx context.Context) ([]byte, error) {
		entries, err := uc.market.TopByMarketCap(ctx, limit)
		if err != nil {
			return nil, err
		}
		return json.Marshal(entries)
	})
}

// Forecast returns the active model's forecast as JSON: future points only,
// or the fitted range as well when includeHistorical is set.
func (uc *QueryUseCase) Forecast(ctx context.Context, req models.ForecastRequest) ([]byte, error) {
	asset, err := uc.assets.GetByID(ctx, req.AssetID)
	if err != nil {
		return nil, err
	}
	active, err := uc.models.GetActive(ctx, asset.ID)
	if err != nil {
		return nil, err
	}

	kind, filter := cache.KindForecast, models.HorizonFuture
	if req.IncludeHistorical {
		kind, filter = cache.KindForecastFull, models.HorizonFull
	}
	key := uc.cache.Key(kind, asset.ExternalID, active.Version)
	return uc.cache.GetOrCompute(ctx, key, cache.ForecastTTL, func(ctx context.Context) ([]byte, error) {
		now := uc.now().UTC()
		mv, points, err := uc.models.GetForecast(ctx, asset.ID, filter, now)
		if err != nil {
			return nil, err
		}
		return json.Marshal(models.ForecastView{
			Asset:    asset.ExternalID,
			Version:  mv.Version,
			Horizon:  filter.String(),
			Points:   points,
			Computed: now.Format(time.RFC3339),
		})
	})
}

// Components decomposes the active model over the asset's history.
func (uc *QueryUseCase) Components(ctx context.Context, assetID int64) ([]byte, error) {
	asset, err := uc.assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	active, err := uc.models.GetActive(ctx, asset.ID)
	if err != nil {
		return nil, err
	}
	n, err := uc.history.CountHistory(ctx, asset.ID)
	if err != nil {
		return nil, fmt.Errorf("count history: %w", err)
	}
	if n < MinComponentHistory {
		return nil, fmt.Errorf("%w: %d points, need %d", domrepo.ErrInsufficientHistory, n, MinComponentHistory)
	}

	key := uc.cache.Key(cache.KindComponents, asset.ExternalID, active.Version)
	return uc.cache.GetOrCompute(ctx, key, cache.ComponentsTTL, func(ctx context.Context) ([]byte, error) {
		return uc.components(ctx, *asset, active)
	})
}

func (uc *QueryUseCase) components(ctx context.Context, asset models.Asset, mv *models.ModelVersion) ([]byte, error) {
	artifact, err := uc.models.LoadArtifact(ctx, mv)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	model, err := uc.forecaster.Unmarshal(artifact)
	if err != nil {
		return nil, err
	}

	history, err := uc.history.ListHistory(ctx, asset.ID, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	frame := univariateFrame(history)
	if model.UsesRegressor() {
		ref, err := uc.assets.GetByExternalID(ctx, uc.reference)
		if err != nil {
			return nil, fmt.Errorf("reference asset: %w", err)
		}
		refHistory, err := uc.history.ListHistory(ctx, ref.ID, time.Time{}, time.Time{})
		if err != nil {
			return nil, fmt.Errorf("list reference history: %w", err)
		}
		frame = joinReference(history, refHistory)
		if frame.Len() == 0 {
			return nil, fmt.Errorf("%w: no history overlaps %s", domrepo.ErrInsufficientHistory, uc.reference)
		}
	}

	comps, err := model.Components(frame)
	if err != nil {
		return nil, fmt.Errorf("components: %w", err)
	}
	return json.Marshal(models.ComponentsView{
		Asset:      asset.ExternalID,
		Version:    mv.Version,
		Components: comps,
	})
}
