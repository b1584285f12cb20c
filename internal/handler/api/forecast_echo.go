package api

import (
	"context"
	"net/http"

	"FinCast/internal/domain/models"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Query is the read side the handler serves.
type Query interface {
	ListAssets(ctx context.Context) ([]models.Asset, error)
	MarketData(ctx context.Context, req models.MarketDataRequest) ([][]float64, error)
	Metrics(ctx context.Context, assetID int64) ([]byte, error)
	MarketShare(ctx context.Context, limit int) ([]byte, error)
	Forecast(ctx context.Context, req models.ForecastRequest) ([]byte, error)
	Components(ctx context.Context, assetID int64) ([]byte, error)
}

// Registrar adds assets and starts their onboarding.
type Registrar interface {
	Register(ctx context.Context, req models.RegisterAssetRequest) (*models.Asset, error)
}

// ForecastEchoHandler serves assets, market data and forecasts over Echo.
type ForecastEchoHandler struct {
	logger    *xlogger.Logger
	query     Query
	registrar Registrar
}

func NewForecastEchoHandler(logger *xlogger.Logger, query Query, registrar Registrar) *ForecastEchoHandler {
	return &ForecastEchoHandler{logger: logger, query: query, registrar: registrar}
}

func (h *ForecastEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/assets", h.ListAssets)
	g.POST("/assets", h.RegisterAsset)
	g.GET("/market-data", h.MarketData)
	g.GET("/metrics/:asset_id", h.Metrics)
	g.GET("/market-share", h.MarketShare)
	g.GET("/forecast", h.Forecast)
	g.GET("/forecast/components", h.Components)
}

func (h *ForecastEchoHandler) ListAssets(c echo.Context) error {
	assets, err := h.query.ListAssets(c.Request().Context())
	if err != nil {
		return h.fail(c, "list assets", err)
	}
	return xhttp.ListResponse(c, assets, int64(len(assets)))
}

func (h *ForecastEchoHandler) RegisterAsset(c echo.Context) error {
	req := &models.RegisterAssetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	asset, err := h.registrar.Register(c.Request().Context(), *req)
	if err != nil && asset == nil {
		return h.fail(c, "register asset", err)
	}
	if err != nil {
		// the asset exists; only queueing its onboarding failed
		h.logger.Error("onboarding not queued", xlogger.Asset(asset.ExternalID), xlogger.Error(err))
	}
	return xhttp.CreatedResponse(c, asset)
}

func (h *ForecastEchoHandler) MarketData(c echo.Context) error {
	req := &models.MarketDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows, err := h.query.MarketData(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "market data", err)
	}
	return xhttp.SuccessResponse(c, rows)
}

func (h *ForecastEchoHandler) Metrics(c echo.Context) error {
	req := &models.AssetRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.query.Metrics(c.Request().Context(), req.AssetID)
	if err != nil {
		return h.fail(c, "metrics", err)
	}
	return xhttp.RawDataResponse(c, http.StatusOK, b)
}

func (h *ForecastEchoHandler) MarketShare(c echo.Context) error {
	req := &models.MarketShareRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.query.MarketShare(c.Request().Context(), req.Limit)
	if err != nil {
		return h.fail(c, "market share", err)
	}
	return xhttp.RawDataResponse(c, http.StatusOK, b)
}

func (h *ForecastEchoHandler) Forecast(c echo.Context) error {
	req := &models.ForecastRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.query.Forecast(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=300")
	return xhttp.RawDataResponse(c, http.StatusOK, b)
}

func (h *ForecastEchoHandler) Components(c echo.Context) error {
	req := &models.ComponentsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	b, err := h.query.Components(c.Request().Context(), req.AssetID)
	if err != nil {
		return h.fail(c, "components", err)
	}
	return xhttp.RawDataResponse(c, http.StatusOK, b)
}

func (h *ForecastEchoHandler) fail(c echo.Context, op string, err error) error {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

var _ xhttp.Handler = (*ForecastEchoHandler)(nil)
