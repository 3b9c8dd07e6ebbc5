package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"PolyEdge/pkg/http/middleware"
	applogger "PolyEdge/pkg/logger"
)

type ServerOption func(*ServerConfig)

// ServerConfig is loaded straight from the server section of the YAML config.
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"500ms"`
	CORS            bool          `yaml:"cors" default:"true"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

func (c ServerConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server owns the echo router and its listener.
type Server struct {
	echo   *echo.Echo
	cfg    ServerConfig
	logger *applogger.Logger
	ln     net.Listener
}

// NewServer builds the router: recovery, request logging and metrics run
// first, then CORS when enabled, then whatever is added through Use.
func NewServer(handler Handler, l *applogger.Logger, opts ...ServerOption) *Server {
	cfg := ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowThreshold:   500 * time.Millisecond,
		CORS:            true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if l == nil {
		l = applogger.NewNop()
	}

	e := echo.New()
	e.HideBanner, e.HidePort = true, true
	e.HTTPErrorHandler = ErrorHandler
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(
		middleware.Recover(l),
		middleware.RequestLogging(l),
		middleware.Metrics(l, cfg.SlowThreshold),
	)
	if cfg.CORS {
		allow := cfg.AllowOrigins
		if len(allow) == 0 {
			allow = []string{"*"}
		}
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: allow,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderXRequestID},
		}))
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if handler != nil {
		handler.RegisterRoutes(e)
	}
	return &Server{echo: e, cfg: cfg, logger: l}
}

func (s *Server) Use(m ...echo.MiddlewareFunc) { s.echo.Use(m...) }

func (s *Server) Echo() *echo.Echo { return s.echo }

// Start binds the listener before returning so a taken port fails startup;
// serving continues in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.addr())
	if err != nil {
		return fmt.Errorf("http listen %s: %w", s.cfg.addr(), err)
	}
	s.ln = ln
	s.echo.Listener = ln

	go func() {
		s.logger.Info("http server listening", applogger.String("addr", ln.Addr().String()))
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

// Addr is the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop drains in-flight requests, bounded by ShutdownTimeout.
func (s *Server) Stop(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

func WithCORS(enabled bool) ServerOption {
	return func(c *ServerConfig) { c.CORS = enabled }
}

// WithListenAddr overrides host and port; port 0 picks a free one.
func WithListenAddr(host string, port int) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
		c.Port = port
	}
}

// WithConfig replaces the whole configuration.
func WithConfig(cfg ServerConfig) ServerOption {
	return func(c *ServerConfig) { *c = cfg }
}
