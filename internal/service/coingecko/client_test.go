package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	drepo "FinCast/internal/domain/repository"
	"FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(logger.Nop(), WithBaseURL(srv.URL), WithRequestsPerMinute(0), WithAPIKey("demo"))
}

func TestMarketChartMergesVolumes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "30", r.URL.Query().Get("days"))
		assert.Equal(t, "daily", r.URL.Query().Get("interval"))
		assert.Equal(t, "demo", r.URL.Query().Get("x_cg_demo_api_key"))
		_, _ = w.Write([]byte(`{
			"prices": [[1709337600000, 62000.5], [1709251200000, 61000]],
			"total_volumes": [[1709251200000, 1234.5]]
		}`))
	})

	series, err := c.MarketChart(context.Background(), "bitcoin", 30)
	require.NoError(t, err)
	require.Len(t, series.Points, 2)

	first := series.Points[0]
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, 61000.0, first.Price)
	assert.Equal(t, 1234.5, first.Volume)

	second := series.Points[1]
	assert.Equal(t, 62000.5, second.Price)
	assert.Zero(t, second.Volume, "missing volume defaults to zero")
}

func TestMarketChartClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"slow down"}`, KindRateLimited},
		{"server error", http.StatusBadGateway, `oops`, KindHTTP},
		{"bad payload", http.StatusOK, `{"prices": "nope"}`, KindDecode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := c.MarketChart(context.Background(), "solana", 30)
			require.Error(t, err)
			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.kind, fe.Kind)
			assert.Equal(t, "solana", fe.Asset)
			assert.Equal(t, tc.kind == KindRateLimited, IsRateLimited(err))
		})
	}
}

func TestMarketChartTransportError(t *testing.T) {
	c := New(logger.Nop(), WithBaseURL("http://127.0.0.1:1"), WithRequestsPerMinute(0))
	_, err := c.MarketChart(context.Background(), "bitcoin", 30)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTransport, fe.Kind)
}

func TestMarkets(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		if r.URL.Query().Get("ids") == "unknown" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_, _ = w.Write([]byte(`[{
			"id": "bitcoin", "name": "Bitcoin",
			"current_price": 64000.12, "market_cap": 1250000000000,
			"total_volume": 31000000000, "high_24h": 65000, "low_24h": 63000,
			"price_change_percentage_24h": -1.25,
			"last_updated": "2024-03-01T12:00:00.000Z"
		}]`))
	})

	m, err := c.Markets(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "64000.12", m.CurrentPrice.String())
	assert.Equal(t, "-1.25", m.PriceChangePct24h.String())
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), m.LastUpdated)

	_, err = c.Markets(context.Background(), "unknown")
	assert.ErrorIs(t, err, drepo.ErrNotFound)
}

func TestTopByMarketCap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "market_cap_desc", r.URL.Query().Get("order"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		_, _ = w.Write([]byte(`[{"name":"Bitcoin","market_cap":100},{"name":"Ethereum","market_cap":40}]`))
	})

	top, err := c.TopByMarketCap(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Ethereum", top[1].Name)
	assert.Equal(t, "40", top[1].Value.String())
}
