package models

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// MarketMetrics is the provider's live snapshot for one asset.
type MarketMetrics struct {
	CurrentPrice      decimal.Decimal `json:"current_price"`
	MarketCap         decimal.Decimal `json:"market_cap"`
	Volume24h         decimal.Decimal `json:"volume_24h"`
	High24h           decimal.Decimal `json:"high_24h"`
	Low24h            decimal.Decimal `json:"low_24h"`
	PriceChangePct24h decimal.Decimal `json:"price_change_percentage_24h"`
	LastUpdated       time.Time       `json:"last_updated"`
}

// MarketShareEntry is one slice of the market-cap pie.
type MarketShareEntry struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}
