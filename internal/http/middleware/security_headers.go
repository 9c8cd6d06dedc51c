package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	// The API serves JSON and raw files, never pages.
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	// Delivered documents may be opened inline by a browser viewer.
	downloadContentSecurityPolicy = "default-src 'none'; object-src 'self'; frame-ancestors 'none'"

	downloadPathSuffix = "/download"
	healthPath         = "/health"
	metricsPath        = "/metrics"
)

// SecurityHeaders sets response headers for an API that hands out signed
// URLs and per-recipient documents. Capability signatures live in query
// strings, so referrers are never sent and responses are never cached by
// shared intermediaries.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			h := c.Response().Header()

			switch {
			case strings.HasSuffix(path, downloadPathSuffix):
				// Watermarked per recipient.
				h.Set("Content-Security-Policy", downloadContentSecurityPolicy)
				h.Set("Cache-Control", "private, no-store")
			case path == healthPath, path == metricsPath:
				h.Set("Content-Security-Policy", apiContentSecurityPolicy)
				h.Set("Cache-Control", "no-cache")
			default:
				h.Set("Content-Security-Policy", apiContentSecurityPolicy)
				h.Set("Cache-Control", "no-store")
			}

			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cross-Origin-Resource-Policy", "same-site")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()")

			h.Del("Server")
			h.Del("X-Powered-By")

			return next(c)
		}
	}
}
