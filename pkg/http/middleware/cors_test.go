package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func corsServer(origins ...string) *echo.Echo {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderContentType},
		MaxAge:       600,
	}))
	e.GET("/api/assets", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	return e
}

func do(e *echo.Echo, method, origin string, preflight bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/api/assets", nil)
	if origin != "" {
		req.Header.Set(echo.HeaderOrigin, origin)
	}
	if preflight {
		req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowedOrigin(t *testing.T) {
	e := corsServer("http://localhost:5173/")

	rec := do(e, http.MethodGet, "http://localhost:5173", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods))

	rec = do(e, http.MethodOptions, "http://localhost:5173", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Equal(t, "600", rec.Header().Get(echo.HeaderAccessControlMaxAge))
}

func TestCORSOtherOriginGetsNoHeaders(t *testing.T) {
	e := corsServer("http://localhost:5173")

	rec := do(e, http.MethodGet, "http://evil.example", false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))

	rec = do(e, http.MethodOptions, "http://evil.example", true)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods))

	rec = do(e, http.MethodGet, "", false)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, echo.HeaderOrigin, rec.Header().Get(echo.HeaderVary))
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	rec := do(corsServer("*"), http.MethodGet, "http://127.0.0.1:8080", false)
	assert.Equal(t, "http://127.0.0.1:8080", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
