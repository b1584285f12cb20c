package cache

import "time"

// Query kinds, also the first key segment.
const (
	KindForecast = "forecast"
	// KindForecastFull is the forecast including the historical fit range.
	KindForecastFull = "forecast_full"
	KindComponents   = "components"
	KindMetrics      = "metrics"
	KindMarketShare  = "market_share"
)

// Staleness bounds per kind.
const (
	ForecastTTL    = time.Hour
	ComponentsTTL  = time.Hour
	MetricsTTL     = time.Minute
	MarketShareTTL = 5 * time.Minute
)

// TTL returns the staleness bound of kind.
func TTL(kind string) time.Duration {
	switch kind {
	case KindForecast, KindForecastFull:
		return ForecastTTL
	case KindComponents:
		return ComponentsTTL
	case KindMetrics:
		return MetricsTTL
	case KindMarketShare:
		return MarketShareTTL
	default:
		return time.Minute
	}
}

// Kinds lists every cached query kind.
var Kinds = []string{KindForecast, KindForecastFull, KindComponents, KindMetrics, KindMarketShare}
