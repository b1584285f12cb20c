package models

// Requests for the read API. Defined in domain for consistency and reuse.

type AssetRequest struct {
	AssetID int64 `param:"asset_id" query:"asset_id" json:"asset_id" validate:"required,gt=0"`
}

type RegisterAssetRequest struct {
	ExternalID string `json:"external_id" validate:"required,max=64"`
	Symbol     string `json:"symbol" validate:"required,max=16"`
	Name       string `json:"name" validate:"required,max=128"`
}

type MarketDataRequest struct {
	AssetID   int64  `query:"asset_id" json:"asset_id" validate:"required,gt=0"`
	StartDate string `query:"start_date" json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `query:"end_date" json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type ForecastRequest struct {
	AssetID           int64 `query:"asset_id" json:"asset_id" validate:"required,gt=0"`
	IncludeHistorical bool  `query:"include_historical" json:"include_historical" default:"false"`
}

type ComponentsRequest struct {
	AssetID int64 `query:"asset_id" json:"asset_id" validate:"required,gt=0"`
}

type MarketShareRequest struct {
	Limit int `query:"limit" json:"limit" default:"10" validate:"gte=1,lte=50"`
}

// ForecastView is the forecast endpoint's payload.
type ForecastView struct {
	Asset    string          `json:"asset"`
	Version  int             `json:"version"`
	Horizon  string          `json:"horizon"`
	Points   []ForecastPoint `json:"points"`
	Computed string          `json:"computed_at"`
}

// ComponentsView is the components endpoint's payload.
type ComponentsView struct {
	Asset      string                     `json:"asset"`
	Version    int                        `json:"version"`
	Components map[string]ComponentSeries `json:"components"`
}
