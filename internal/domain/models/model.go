package models

import (
	"encoding/json"
	"time"
)

// ModelVersion is a published model artifact. Only Active ever changes after
// creation.
type ModelVersion struct {
	ID                     int64           `json:"id" gorm:"primaryKey"`
	AssetID                int64           `json:"asset_id" gorm:"not null;uniqueIndex:uq_model_versions_asset_version,priority:1"`
	Version                int             `json:"version" gorm:"not null;uniqueIndex:uq_model_versions_asset_version,priority:2"`
	ArtifactPath           string          `json:"artifact_path" gorm:"size:512;not null"`
	TrainedAt              time.Time       `json:"trained_at" gorm:"not null"`
	Active                 bool            `json:"active" gorm:"not null;default:false"`
	UsesAuxiliaryRegressor bool            `json:"uses_auxiliary_regressor" gorm:"not null;default:false"`
	Metrics                json.RawMessage `json:"metrics" gorm:"type:jsonb"`
}

func (ModelVersion) TableName() string { return "model_versions" }

// ForecastPoint is one predicted value of the active model.
type ForecastPoint struct {
	ID             int64     `json:"-" gorm:"primaryKey"`
	AssetID        int64     `json:"asset_id" gorm:"not null;index:idx_forecast_asset_ts,priority:1"`
	ModelVersionID int64     `json:"model_version_id" gorm:"not null;uniqueIndex:uq_forecast_version_ts,priority:1"`
	Timestamp      time.Time `json:"timestamp" gorm:"column:ts;not null;index:idx_forecast_asset_ts,priority:2;uniqueIndex:uq_forecast_version_ts,priority:2"`
	Point          float64   `json:"point"`
	Lower          float64   `json:"lower"`
	Upper          float64   `json:"upper"`
}

func (ForecastPoint) TableName() string { return "forecast_points" }

// HorizonFilter selects which active-version points a forecast query returns.
type HorizonFilter int

const (
	// HorizonFuture returns points strictly after now.
	HorizonFuture HorizonFilter = iota
	// HorizonFull returns the historical fit range plus the future points.
	HorizonFull
)

func (h HorizonFilter) String() string {
	if h == HorizonFull {
		return "full"
	}
	return "future"
}

// FitMetrics is stored as the version's metrics blob.
type FitMetrics struct {
	Samples                int     `json:"samples"`
	MAE                    float64 `json:"mae"`
	RMSE                   float64 `json:"rmse"`
	MAPE                   float64 `json:"mape"`
	UsesAuxiliaryRegressor bool    `json:"uses_auxiliary_regressor"`
	Horizon                int     `json:"horizon"`
}

// ModelPublished is emitted after a version becomes active.
type ModelPublished struct {
	AssetID                int64     `json:"asset_id"`
	ExternalID             string    `json:"external_id"`
	Version                int       `json:"version"`
	PreviousVersion        int       `json:"previous_version"`
	UsesAuxiliaryRegressor bool      `json:"uses_auxiliary_regressor"`
	Points                 int       `json:"points"`
	PublishedAt            time.Time `json:"published_at"`
}
