package ratelimit

import (
	"net/http"

	apimetrics "PolyEdge/internal/service/metrics"
	xhttp "PolyEdge/pkg/http"

	"github.com/labstack/echo/v4"
)

// Config controls the per-client request budget.
type Config struct {
	Enabled  bool    `yaml:"enabled" default:"true"`
	Capacity float64 `yaml:"capacity" default:"20"`
	Refill   float64 `yaml:"refill_per_sec" default:"5"`
}

// KeyFunc derives the bucket key of a request.
type KeyFunc func(c echo.Context) string

// ClientRouteKey buckets by client IP and route template.
func ClientRouteKey(c echo.Context) string {
	return c.RealIP() + "|" + c.Request().Method + " " + c.Path()
}

// Middleware rejects requests over budget with a 429 body.
func Middleware(l *Limiter, cfg Config, key KeyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = ClientRouteKey
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Enabled || l == nil {
				return next(c)
			}
			if l.Allow(key(c), cfg.Capacity, cfg.Refill) {
				return next(c)
			}
			apimetrics.RateLimited.WithLabelValues(c.Path()).Inc()
			c.Response().Header().Set("Retry-After", "1")
			return c.JSON(http.StatusTooManyRequests, xhttp.APIResponse{
				Status:  http.StatusTooManyRequests,
				Message: http.StatusText(http.StatusTooManyRequests),
			})
		}
	}
}
