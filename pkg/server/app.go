package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	xhttp "PolyEdge/pkg/http"
	applogger "PolyEdge/pkg/logger"
)

// Service is a long-running component owned by the App.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Func adapts plain functions to Service. Nil functions are no-ops.
type Func struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

func (f Func) Name() string { return f.ServiceName }

func (f Func) Start(ctx context.Context) error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop(ctx)
}

// Loop runs fn in its own goroutine until Stop cancels it.
func Loop(name string, fn func(ctx context.Context) error, l *applogger.Logger) Service {
	if l == nil {
		l = applogger.NewNop()
	}
	return &loop{name: name, fn: fn, logger: l}
}

type loop struct {
	name   string
	fn     func(ctx context.Context) error
	logger *applogger.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *loop) Name() string { return s.name }

func (s *loop) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("service stopped with error", applogger.String("service", s.name), applogger.Error(err))
		}
	}()
	return nil
}

func (s *loop) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTP adapts the echo server.
func HTTP(srv *xhttp.Server) Service {
	return Func{
		ServiceName: "http",
		OnStart:     func(context.Context) error { return srv.Start() },
		OnStop:      srv.Stop,
	}
}

// App starts services in registration order and stops them in reverse once
// the run context ends. Closers run after every service has stopped.
type App struct {
	logger          *applogger.Logger
	shutdownTimeout time.Duration

	mu       sync.Mutex
	services []Service
	closers  []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

type Option func(*App)

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

func New(l *applogger.Logger, opts ...Option) *App {
	if l == nil {
		l = applogger.NewNop()
	}
	a := &App{logger: l, shutdownTimeout: 15 * time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add registers services; nil entries are skipped.
func (a *App) Add(services ...Service) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range services {
		if s != nil {
			a.services = append(a.services, s)
		}
	}
}

// OnClose registers a resource released during shutdown.
func (a *App) OnClose(name string, fn func() error) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, namedCloser{name: name, fn: fn})
}

// Run blocks until ctx is done. A service failing to start stops the ones
// already running and is returned.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	services := append([]Service(nil), a.services...)
	a.mu.Unlock()

	started := make([]Service, 0, len(services))
	for _, s := range services {
		if err := s.Start(ctx); err != nil {
			a.logger.Error("service start failed", applogger.String("service", s.Name()), applogger.Error(err))
			a.shutdown(started)
			return fmt.Errorf("start %s: %w", s.Name(), err)
		}
		a.logger.Info("service started", applogger.String("service", s.Name()))
		started = append(started, s)
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown(started)
}

func (a *App) shutdown(started []Service) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(started) - 1; i >= 0; i-- {
		s := started[i]
		if err := s.Stop(ctx); err != nil {
			a.logger.Warn("service stop error", applogger.String("service", s.Name()), applogger.Error(err))
			errs = append(errs, fmt.Errorf("stop %s: %w", s.Name(), err))
		}
	}

	a.mu.Lock()
	closers := append([]namedCloser(nil), a.closers...)
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(); err != nil {
			a.logger.Warn("close error", applogger.String("resource", closers[i].name), applogger.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", closers[i].name, err))
		}
	}

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
