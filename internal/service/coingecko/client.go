package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"FinCast/internal/domain/models"
	drepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/ratelimit"
	xhttp "FinCast/pkg/http"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"

	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
	limiterKey     = "coingecko"
	burst          = 5
)

// Option configures Client.
type Option func(*Client)

// Client talks to the CoinGecko REST API. It never retries; callers apply
// their own policy over the returned *FetchError.
type Client struct {
	http    *xhttp.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.Limiter
	refill  float64
	logger  *logger.Logger
}

// New creates a CoinGecko client.
func New(lgr *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		limiter: ratelimit.New(),
		refill:  ratelimit.PerMinute(30),
		logger:  lgr,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = xhttp.NewClient(xhttp.WithTimeout(15 * time.Second))
	}
	return c
}

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithAPIKey sets the demo API key.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *xhttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithRequestsPerMinute paces outgoing calls. Zero disables pacing.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n <= 0 {
			c.limiter = nil
			return
		}
		c.refill = ratelimit.PerMinute(n)
	}
}

type marketChartResponse struct {
	Prices       [][]float64 `json:"prices"`
	TotalVolumes [][]float64 `json:"total_volumes"`
}

type marketRow struct {
	ID                       string          `json:"id"`
	Symbol                   string          `json:"symbol"`
	Name                     string          `json:"name"`
	CurrentPrice             decimal.Decimal `json:"current_price"`
	MarketCap                decimal.Decimal `json:"market_cap"`
	TotalVolume              decimal.Decimal `json:"total_volume"`
	High24h                  decimal.Decimal `json:"high_24h"`
	Low24h                   decimal.Decimal `json:"low_24h"`
	PriceChangePercentage24h decimal.Decimal `json:"price_change_percentage_24h"`
	LastUpdated              time.Time       `json:"last_updated"`
}

// MarketChart returns daily prices and volumes for the last days days.
// Missing volumes become 0.
func (c *Client) MarketChart(ctx context.Context, externalID string, days int) (*models.PriceSeries, error) {
	var resp marketChartResponse
	err := c.get(ctx, externalID, "/coins/"+externalID+"/market_chart", map[string][]string{
		"vs_currency": {"usd"},
		"days":        {strconv.Itoa(days)},
		"interval":    {"daily"},
	}, &resp)
	if err != nil {
		return nil, err
	}

	volumes := make(map[int64]float64, len(resp.TotalVolumes))
	for _, row := range resp.TotalVolumes {
		if len(row) >= 2 {
			volumes[int64(row[0])] = row[1]
		}
	}

	series := &models.PriceSeries{ExternalID: externalID, Points: make([]models.PricePoint, 0, len(resp.Prices))}
	for _, row := range resp.Prices {
		if len(row) < 2 {
			return nil, &FetchError{Kind: KindDecode, Asset: externalID, Err: fmt.Errorf("malformed price row %v", row)}
		}
		ms := int64(row[0])
		series.Points = append(series.Points, models.PricePoint{
			Timestamp: util.FromUnixMilli(ms),
			Price:     row[1],
			Volume:    volumes[ms],
		})
	}
	sort.Slice(series.Points, func(i, j int) bool {
		return series.Points[i].Timestamp.Before(series.Points[j].Timestamp)
	})
	return series, nil
}

// Markets returns the live snapshot of one asset, or ErrNotFound when the
// provider does not know it.
func (c *Client) Markets(ctx context.Context, externalID string) (*models.MarketMetrics, error) {
	var rows []marketRow
	err := c.get(ctx, externalID, "/coins/markets", map[string][]string{
		"vs_currency": {"usd"},
		"ids":         {externalID},
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("market data for %q: %w", externalID, drepo.ErrNotFound)
	}
	r := rows[0]
	return &models.MarketMetrics{
		CurrentPrice:      r.CurrentPrice,
		MarketCap:         r.MarketCap,
		Volume24h:         r.TotalVolume,
		High24h:           r.High24h,
		Low24h:            r.Low24h,
		PriceChangePct24h: r.PriceChangePercentage24h,
		LastUpdated:       r.LastUpdated.UTC(),
	}, nil
}

// TopByMarketCap returns the largest assets by market capitalisation.
func (c *Client) TopByMarketCap(ctx context.Context, limit int) ([]models.MarketShareEntry, error) {
	var rows []marketRow
	err := c.get(ctx, "", "/coins/markets", map[string][]string{
		"vs_currency": {"usd"},
		"order":       {"market_cap_desc"},
		"per_page":    {strconv.Itoa(limit)},
		"page":        {"1"},
	}, &rows)
	if err != nil {
		return nil, err
	}
	out := make([]models.MarketShareEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.MarketShareEntry{Name: r.Name, Value: r.MarketCap})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, asset, path string, query map[string][]string, dest interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey, burst, c.refill); err != nil {
			return &FetchError{Kind: KindTransport, Asset: asset, Err: err}
		}
	}
	if c.apiKey != "" {
		query["x_cg_demo_api_key"] = []string{c.apiKey}
	}

	start := time.Now()
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + path,
		QueryParams: query,
	}, dest)
	if err != nil {
		fe := classify(asset, err)
		c.logger.Debug("coingecko request failed",
			logger.String("path", path),
			logger.String("kind", string(fe.Kind)),
			logger.Int("status", fe.Status),
			logger.Duration("elapsed_ms", time.Since(start)),
		)
		return fe
	}
	return nil
}

func classify(asset string, err error) *FetchError {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		kind := KindHTTP
		if se.Code == http.StatusTooManyRequests {
			kind = KindRateLimited
		}
		return &FetchError{Kind: kind, Asset: asset, Status: se.Code, Err: err}
	}
	var te *xhttp.TransportError
	if errors.As(err, &te) {
		return &FetchError{Kind: KindTransport, Asset: asset, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: KindTransport, Asset: asset, Err: err}
	}
	return &FetchError{Kind: KindDecode, Asset: asset, Err: err}
}
