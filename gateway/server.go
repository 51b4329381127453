// Package gateway exposes the running engine over HTTP: graph and
// configuration management, analytics introspection and streaming,
// health and Prometheus metrics.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sctg-development/rust-photoacoustic-sub001/analytics"
	"github.com/sctg-development/rust-photoacoustic-sub001/config"
	"github.com/sctg-development/rust-photoacoustic-sub001/engine"
	"github.com/sctg-development/rust-photoacoustic-sub001/metric"
	"github.com/sctg-development/rust-photoacoustic-sub001/reload"
)

const (
	defaultStreamInterval = time.Second
	maxRequestSize        = 1 << 20
)

// Server is the HTTP gateway.
type Server struct {
	addr       string
	store      *config.Store
	dispatcher *reload.Dispatcher
	consumer   *engine.Consumer
	analytics  *analytics.State
	metrics    *metric.Registry
	logger     *slog.Logger

	streamInterval time.Duration
	upgrader       websocket.Upgrader
	httpServer     *http.Server

	startTime      time.Time
	requestsTotal  atomic.Uint64
	requestsFailed atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithStreamInterval sets the websocket analytics push cadence.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger.With("component", "gateway")
		}
	}
}

// NewServer creates a gateway serving the given engine parts.
func NewServer(addr string, store *config.Store, dispatcher *reload.Dispatcher, consumer *engine.Consumer, state *analytics.State, metrics *metric.Registry, opts ...Option) *Server {
	s := &Server{
		addr:           addr,
		store:          store,
		dispatcher:     dispatcher,
		consumer:       consumer,
		analytics:      state,
		metrics:        metrics,
		logger:         slog.Default().With("component", "gateway"),
		streamInterval: defaultStreamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The gateway is an internal control surface; origin policy is
			// left to the deployment's reverse proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler, also used directly by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/graph", s.handleGraphGet)
	mux.HandleFunc("PUT /api/graph", s.handleGraphPut)
	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/config", s.handleConfigPut)
	mux.HandleFunc("GET /api/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /ws/analytics", s.handleAnalyticsStream)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.withRequestID(mux)
}

// Start begins serving. Returns once the listener is up; serve errors
// other than graceful shutdown are logged.
func (s *Server) Start() {
	s.startTime = time.Now()
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway serve failed", "error", err)
		}
	}()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.startTime = time.Now()
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", "addr", s.addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// withRequestID tags every request with an id for tracing, honoring an
// incoming X-Request-ID header.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		s.requestsTotal.Add(1)
		next.ServeHTTP(w, r)
	})
}
