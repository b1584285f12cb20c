package middleware

import (
	"time"

	"FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every HTTP request at debug level and client or
// server errors at warn level.
func RequestLogging(lgr *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			if status >= 400 {
				lgr.Warn("http request", fields...)
			} else {
				lgr.Debug("http request", fields...)
			}
			return nil
		}
	}
}
