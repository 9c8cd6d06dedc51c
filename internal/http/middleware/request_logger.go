package middleware

import (
	"time"

	"asset-pipeline/internal/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogger writes one structured line per request through the
// service logger. Query strings are left out; they carry upload signatures.
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is final.
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			kv := []interface{}{
				"request_id", GetRequestID(c),
				"method", req.Method,
				"path", req.URL.Path,
				"route", c.Path(),
				"status", status,
				"latency_ms", time.Since(start).Milliseconds(),
				"bytes_out", c.Response().Size,
				"remote_ip", c.RealIP(),
			}

			switch {
			case status >= 500:
				log.Error("request", kv...)
			case status >= 400:
				log.Warn("request", kv...)
			default:
				log.Info("request", kv...)
			}
			return nil
		}
	}
}
