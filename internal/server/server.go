// Package server exposes Verona over HTTP:
//
//   - /healthz       liveness probe; always 200.
//   - /readyz        readiness probe; 200 only when every [Checker] passes.
//   - /metrics       Prometheus scrape endpoint.
//   - /feed          WebSocket stream of scene lines.
//   - /feed/history  recent scene lines as JSON.
//
// Probe responses are JSON objects with a "status" field ("ok" or "fail")
// and a "checks" map with the result of each named checker.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/verona/internal/feed"
	"github.com/MrWong99/verona/internal/observe"
)

const shutdownTimeout = 5 * time.Second

// Server serves the probe, metrics, and feed endpoints.
type Server struct {
	addr     string
	checkers []Checker
	hub      *feed.Hub
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer
	handler  http.Handler
}

// Option configures a [Server].
type Option func(*Server)

// WithCheckers adds readiness checks evaluated on every /readyz request.
func WithCheckers(checkers ...Checker) Option {
	return func(s *Server) { s.checkers = append(s.checkers, checkers...) }
}

// WithFeed mounts hub under /feed.
func WithFeed(hub *feed.Hub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithMetrics wraps every route in [observe.Middleware].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer sets the registry served on /metrics. Default:
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// New builds a server listening on addr once [Server.Run] is called.
func New(addr string, opts ...Option) *Server {
	s := &Server{addr: addr, gatherer: prometheus.DefaultGatherer}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /readyz", readyz(s.checkers))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.hub != nil {
		mux.Handle("GET /feed", s.hub)
		mux.HandleFunc("GET /feed/history", s.hub.HistoryHandler)
	}

	s.handler = mux
	if s.metrics != nil {
		s.handler = observe.Middleware(s.metrics, nil)(mux)
	}
	return s
}

// Handler returns the root handler. Useful with httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. It returns nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is [Server.Run] on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
