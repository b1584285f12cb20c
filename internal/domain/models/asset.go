package models

import "time"

// Asset is a tradable instrument tracked by the pipeline.
type Asset struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ExternalID string    `json:"external_id" gorm:"size:64;uniqueIndex;not null"`
	Symbol     string    `json:"symbol" gorm:"size:16;not null"`
	Name       string    `json:"name" gorm:"size:128;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Asset) TableName() string { return "assets" }

// HistoryPoint is one daily OHLCV observation. (AssetID, Timestamp) is unique.
type HistoryPoint struct {
	AssetID   int64     `json:"asset_id"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PricePoint is a single provider observation before it is bound to an asset.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
	Volume    float64
}

// PriceSeries is the provider's answer for one asset, ordered by time.
type PriceSeries struct {
	ExternalID string
	Points     []PricePoint
}

// DefaultAssets is the seed set installed by init-assets.
var DefaultAssets = []Asset{
	{ExternalID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"},
	{ExternalID: "ethereum", Symbol: "ETH", Name: "Ethereum"},
	{ExternalID: "tether", Symbol: "USDT", Name: "Tether"},
	{ExternalID: "binancecoin", Symbol: "BNB", Name: "BNB"},
	{ExternalID: "solana", Symbol: "SOL", Name: "Solana"},
	{ExternalID: "ripple", Symbol: "XRP", Name: "XRP"},
}
