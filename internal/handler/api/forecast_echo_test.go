package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/coingecko"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuery struct {
	lastMarket   models.MarketDataRequest
	lastForecast models.ForecastRequest
	lastLimit    int
	err          error
}

func (q *fakeQuery) ListAssets(context.Context) ([]models.Asset, error) {
	return []models.Asset{{ID: 1, ExternalID: "bitcoin", Symbol: "BTC", Name: "Bitcoin"}}, q.err
}

func (q *fakeQuery) MarketData(_ context.Context, req models.MarketDataRequest) ([][]float64, error) {
	q.lastMarket = req
	if q.err != nil {
		return nil, q.err
	}
	return [][]float64{{1704067200000, 1, 2, 0.5, 3, 10}}, nil
}

func (q *fakeQuery) Metrics(_ context.Context, assetID int64) ([]byte, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []byte(fmt.Sprintf(`{"asset_id":%d}`, assetID)), nil
}

func (q *fakeQuery) MarketShare(_ context.Context, limit int) ([]byte, error) {
	q.lastLimit = limit
	if q.err != nil {
		return nil, q.err
	}
	return []byte(`[{"name":"Bitcoin","value":1}]`), nil
}

func (q *fakeQuery) Forecast(_ context.Context, req models.ForecastRequest) ([]byte, error) {
	q.lastForecast = req
	if q.err != nil {
		return nil, q.err
	}
	return []byte(`{"version":3}`), nil
}

func (q *fakeQuery) Components(context.Context, int64) ([]byte, error) {
	if q.err != nil {
		return nil, q.err
	}
	return []byte(`{"components":{}}`), nil
}

type fakeRegistrar struct{ err error }

func (r fakeRegistrar) Register(_ context.Context, req models.RegisterAssetRequest) (*models.Asset, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &models.Asset{ID: 9, ExternalID: req.ExternalID, Symbol: req.Symbol, Name: req.Name}, nil
}

func serve(t *testing.T, q Query, r Registrar, method, target, body string) (int, xhttp.APIResponse) {
	t.Helper()
	srv := xhttp.NewServer(xlogger.Nop(), []xhttp.Handler{NewForecastEchoHandler(xlogger.Nop(), q, r)})

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	var resp xhttp.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestListAssets(t *testing.T) {
	code, resp := serve(t, &fakeQuery{}, fakeRegistrar{}, http.MethodGet, "/api/assets", "")
	assert.Equal(t, http.StatusOK, code)
	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 1, data["total"])
}

func TestRegisterAsset(t *testing.T) {
	code, resp := serve(t, &fakeQuery{}, fakeRegistrar{}, http.MethodPost, "/api/assets",
		`{"external_id":"cardano","symbol":"ADA","name":"Cardano"}`)
	assert.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "cardano", resp.Data.(map[string]interface{})["external_id"])

	code, _ = serve(t, &fakeQuery{}, fakeRegistrar{}, http.MethodPost, "/api/assets", `{"symbol":"ADA"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(t, &fakeQuery{}, fakeRegistrar{err: fmt.Errorf("create: %w", domrepo.ErrAlreadyExists)},
		http.MethodPost, "/api/assets", `{"external_id":"bitcoin","symbol":"BTC","name":"Bitcoin"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestMarketDataValidation(t *testing.T) {
	q := &fakeQuery{}
	code, _ := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-data", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-data?asset_id=1&start_date=01-02-2024", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, resp := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-data?asset_id=1&start_date=2024-01-01&end_date=2024-01-31", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2024-01-01", q.lastMarket.StartDate)
	rows := resp.Data.([]interface{})
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], 6)
}

func TestMarketDataUnknownAsset(t *testing.T) {
	q := &fakeQuery{err: fmt.Errorf("asset 5: %w", domrepo.ErrNotFound)}
	code, resp := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-data?asset_id=5", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, http.StatusNotFound, resp.Status)
}

func TestMetricsPathParam(t *testing.T) {
	code, resp := serve(t, &fakeQuery{}, fakeRegistrar{}, http.MethodGet, "/api/metrics/7", "")
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 7, resp.Data.(map[string]interface{})["asset_id"])
}

func TestProviderFailureIsBadGateway(t *testing.T) {
	q := &fakeQuery{err: &coingecko.FetchError{Kind: coingecko.KindRateLimited, Status: 429, Err: errors.New("slow down")}}
	code, _ := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/metrics/7", "")
	assert.Equal(t, http.StatusBadGateway, code)

	code, _ = serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-share", "")
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestMarketShareDefaultsToTen(t *testing.T) {
	q := &fakeQuery{}
	code, _ := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/market-share", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, q.lastLimit)
}

func TestForecast(t *testing.T) {
	q := &fakeQuery{}
	code, resp := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/forecast?asset_id=1&include_historical=true", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, q.lastForecast.IncludeHistorical)
	assert.EqualValues(t, 3, resp.Data.(map[string]interface{})["version"])

	q = &fakeQuery{err: domrepo.ErrNotFound}
	code, _ = serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/forecast?asset_id=1", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestComponentsInsufficientHistory(t *testing.T) {
	q := &fakeQuery{err: fmt.Errorf("%w: 12 points", domrepo.ErrInsufficientHistory)}
	code, _ := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/forecast/components?asset_id=1", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	q := &fakeQuery{err: errors.New("disk on fire")}
	code, resp := serve(t, q, fakeRegistrar{}, http.MethodGet, "/api/forecast/components?asset_id=1", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotContains(t, fmt.Sprint(resp.Data), "disk on fire")
}
