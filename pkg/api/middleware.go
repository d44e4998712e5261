package api

import (
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/obsmetrics"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// metricsMiddleware records every request's ambient Prometheus metrics.
// metricsOf is called per-request rather than once at installation time
// because SetMetrics may be wired onto the Server after setupRoutes
// already installed this middleware; a nil *obsmetrics.Metrics makes
// RecordHTTPRequest a no-op, so this is always safe to install regardless
// of whether metrics end up enabled.
func metricsMiddleware(metricsOf func() *obsmetrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			err := next(c)
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			metricsOf().RecordHTTPRequest(c.Request().Method, route, c.Response().Status, time.Since(start))
			return err
		}
	}
}
