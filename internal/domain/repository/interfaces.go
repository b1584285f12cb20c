package repository

import (
	"context"
	"encoding/json"
	"time"

	"FinCast/internal/domain/models"
)

type AssetRepository interface {
	List(ctx context.Context) ([]models.Asset, error)
	GetByID(ctx context.Context, id int64) (*models.Asset, error)
	GetByExternalID(ctx context.Context, externalID string) (*models.Asset, error)
	// Create stores a new asset and fills in its ID. Duplicates yield ErrAlreadyExists.
	Create(ctx context.Context, a *models.Asset) error
}

// HistoryStore holds daily price history. Writes are idempotent per
// (asset, timestamp).
type HistoryStore interface {
	UpsertHistory(ctx context.Context, points []models.HistoryPoint) error
	// ListHistory returns points ordered by time; zero bounds are open.
	ListHistory(ctx context.Context, assetID int64, from, to time.Time) ([]models.HistoryPoint, error)
	CountHistory(ctx context.Context, assetID int64) (int, error)
	DeleteHistory(ctx context.Context, assetID int64) error
}

// PublishRequest carries everything that becomes visible atomically.
type PublishRequest struct {
	Asset                  models.Asset
	Artifact               []byte
	UsesAuxiliaryRegressor bool
	Metrics                json.RawMessage
	Points                 []models.Prediction
	TrainedAt              time.Time
}

// PublishResult is the new active version plus the one it replaced (0 if none).
type PublishResult struct {
	Version         models.ModelVersion
	PreviousVersion int
}

// ModelStore owns model versions and their forecast points. Readers observe
// either the old or the new active version, never a mix.
type ModelStore interface {
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	GetActive(ctx context.Context, assetID int64) (*models.ModelVersion, error)
	GetForecast(ctx context.Context, assetID int64, filter models.HorizonFilter, now time.Time) (*models.ModelVersion, []models.ForecastPoint, error)
	// ListVersions returns every version of the asset, newest first.
	ListVersions(ctx context.Context, assetID int64) ([]models.ModelVersion, error)
	LoadArtifact(ctx context.Context, mv *models.ModelVersion) ([]byte, error)
}

// ArtifactStore persists serialized models. Names are never reused.
type ArtifactStore interface {
	Write(ctx context.Context, externalID string, version int, data []byte) (string, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Remove(ctx context.Context, path string) error
}

// Metrics records pipeline and read-path observations.
type Metrics interface {
	RecordFetch(asset, result string, attempts int)
	RecordTraining(asset, status string, seconds float64)
	RecordPublish(asset string, version int, seconds float64)
	RecordCache(kind, result string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
