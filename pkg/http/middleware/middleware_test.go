package middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	applogger "PolyEdge/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTracingAndLogging(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())

	var buf bytes.Buffer
	l, err := applogger.NewWithWriter(&applogger.Config{Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	e := echo.New()
	e.Use(RequestLogging(l), Tracing(tp.Tracer("test")))
	e.GET("/api/trades/:id", func(c echo.Context) error {
		return c.String(http.StatusInternalServerError, "store down")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/trades/4", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	if got := w.Header().Get(echo.HeaderXRequestID); got != "req-1" {
		t.Errorf("request id = %q", got)
	}
	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != "GET /api/trades/:id" {
		t.Fatalf("spans = %v", spans)
	}
	if spans[0].Status().Description != "Internal Server Error" {
		t.Errorf("status = %+v", spans[0].Status())
	}
	out := buf.String()
	traceID := spans[0].SpanContext().TraceID().String()
	if !strings.Contains(out, `"request_id":"req-1"`) || !strings.Contains(out, traceID) {
		t.Errorf("log missing request or trace id: %s", out)
	}
}

func TestRequestIDGenerated(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogging(applogger.NewNop()))
	e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if len(w.Header().Get(echo.HeaderXRequestID)) != 36 {
		t.Fatalf("expected uuid request id, got %q", w.Header().Get(echo.HeaderXRequestID))
	}
}

func TestRecoverReturnsError(t *testing.T) {
	var buf bytes.Buffer
	l, err := applogger.NewWithWriter(&applogger.Config{Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	var handled error
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		handled = err
		_ = c.NoContent(http.StatusInternalServerError)
	}
	e.Use(Recover(l), RequestLogging(applogger.NewNop()))
	e.POST("/api/markets/:id/resolve", func(echo.Context) error { panic("nil resolver") })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/markets/m1/resolve", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}
	if handled == nil || !strings.Contains(handled.Error(), "nil resolver") {
		t.Fatalf("error handler got %v", handled)
	}
	out := buf.String()
	if !strings.Contains(out, "http: handler panic") || !strings.Contains(out, "/api/markets/:id/resolve") {
		t.Errorf("panic not logged: %s", out)
	}
}

func TestCORS(t *testing.T) {
	e := echo.New()
	e.Use(CORS(CORSConfig{
		AllowOrigins: []string{"https://dash.polyedge.local"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
	}))
	e.GET("/api/summary", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/summary", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dash.polyedge.local")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight code = %d", w.Code)
	}
	if w.Header().Get(echo.HeaderAccessControlAllowOrigin) != "https://dash.polyedge.local" {
		t.Errorf("allow origin = %q", w.Header().Get(echo.HeaderAccessControlAllowOrigin))
	}
	if w.Header().Get(echo.HeaderAccessControlMaxAge) != "600" {
		t.Errorf("max age = %q", w.Header().Get(echo.HeaderAccessControlMaxAge))
	}

	req = httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	req.Header.Set(echo.HeaderOrigin, "https://elsewhere.example")
	w = httptest.NewRecorder()
	e.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Header().Get(echo.HeaderAccessControlAllowOrigin) != "" {
		t.Fatalf("foreign origin got cors headers: %d %v", w.Code, w.Header())
	}
}

func TestMetricsCountsByRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg)

	e := echo.New()
	e.Use(metricsWith(m, nil, 0))
	e.GET("/api/markets/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	for _, id := range []string{"m1", "m2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/markets/"+id, nil))
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/markets/:id", http.MethodGet, "200")); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("in flight = %v after requests finished", got)
	}
}

func TestStatusClass(t *testing.T) {
	for code, want := range map[int]string{200: "2xx", 204: "2xx", 301: "3xx", 404: "4xx", 503: "5xx", 0: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %s, want %s", code, got, want)
		}
	}
}
