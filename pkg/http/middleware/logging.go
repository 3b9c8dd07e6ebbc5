package middleware

import (
	"time"

	applogger "PolyEdge/pkg/logger"
	"PolyEdge/pkg/tracing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestLogging tags each request with an X-Request-ID (kept when the
// client sends one) and logs it at debug level once served.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			id := c.Request().Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			err := next(c)

			req := c.Request()
			fields := []applogger.Field{
				applogger.String("request_id", id),
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency_ms", time.Since(start)),
			}
			if traceID, _, ok := tracing.TraceFields(req.Context()); ok {
				fields = append(fields, applogger.String("trace_id", traceID))
			}
			l.Debug("http request", fields...)
			return err
		}
	}
}
