package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// Model is a fitted forecaster. It is safe for concurrent reads.
type Model interface {
	UsesRegressor() bool
	Predict(frame models.Frame) ([]models.Prediction, error)
	Components(frame models.Frame) (map[string]models.ComponentSeries, error)
	Marshal() ([]byte, error)
}

// Forecaster fits models and restores them from artifacts.
type Forecaster interface {
	Fit(ctx context.Context, frame models.Frame) (Model, error)
	Unmarshal(data []byte) (Model, error)
}

// PriceProvider returns daily price history for one asset.
type PriceProvider interface {
	MarketChart(ctx context.Context, externalID string, days int) (*models.PriceSeries, error)
}

// MarketDataProvider returns live market snapshots.
type MarketDataProvider interface {
	Markets(ctx context.Context, externalID string) (*models.MarketMetrics, error)
	TopByMarketCap(ctx context.Context, limit int) ([]models.MarketShareEntry, error)
}

// EventPublisher announces published model versions.
type EventPublisher interface {
	PublishModel(ctx context.Context, ev models.ModelPublished) error
}
