// Package api exposes the upload and query endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"txn-ingest/pkg/ingest"
	"txn-ingest/pkg/logging"
	"txn-ingest/pkg/metrics/memory"
	"txn-ingest/pkg/record"
	"txn-ingest/pkg/status"
)

// Ingester runs one upload through the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, filename string, body io.ReadCloser) (ingest.Result, error)
}

// Querier answers the read-side filters.
type Querier interface {
	ByCurrency(ctx context.Context, currencyCode string) ([]record.Transaction, error)
	ByDateRange(ctx context.Context, start, end time.Time) ([]record.Transaction, error)
	ByStatus(ctx context.Context, code status.Code) ([]record.Transaction, error)
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Snapshotter exposes collected metrics as JSON.
type Snapshotter interface {
	Snapshot() memory.Snapshot
}

// Deps are the collaborators behind the endpoints. Ingester and Querier are
// required.
type Deps struct {
	Ingester Ingester
	Querier  Querier

	// Health is pinged by /health; nil always reports healthy
	Health Pinger

	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer

	// Registerer receives the HTTP request metrics; nil skips them
	Registerer prometheus.Registerer

	// Snapshot backs /metrics/json; nil disables the endpoint
	Snapshot Snapshotter

	Logger *logging.Logger
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxUploadBytes caps an upload request body (default: 10 MiB)
	MaxUploadBytes int64

	// HealthTimeout bounds the backend ping made by /health
	HealthTimeout time.Duration

	// MetricsNamespace prefixes the HTTP request metrics
	MetricsNamespace string
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:          ":8080",
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     30 * time.Second,
		IdleTimeout:      60 * time.Second,
		MaxUploadBytes:   10 << 20,
		HealthTimeout:    2 * time.Second,
		MetricsNamespace: "txn_ingest",
	}
}

// Server routes HTTP requests to the ingestion and query services.
type Server struct {
	deps    Deps
	config  ServerConfig
	router  *mux.Router
	server  *http.Server
	logger  *logging.Logger
	started time.Time
}

// NewServer creates the API server and its routes.
func NewServer(deps Deps, config ServerConfig) (*Server, error) {
	if deps.Ingester == nil || deps.Querier == nil {
		return nil, errors.New("api: ingester and querier are required")
	}
	defaults := DefaultServerConfig()
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = defaults.MaxUploadBytes
	}
	if config.HealthTimeout <= 0 {
		config.HealthTimeout = defaults.HealthTimeout
	}

	s := &Server{
		deps:    deps,
		config:  config,
		router:  mux.NewRouter(),
		logger:  logging.OrNop(deps.Logger).Component("api"),
		started: time.Now(),
	}

	if deps.Registerer != nil {
		hm := newHTTPMetrics(config.MetricsNamespace)
		if err := hm.register(deps.Registerer); err != nil {
			return nil, err
		}
		s.router.Use(hm.middleware)
	}
	s.router.Use(s.accessLog)

	s.router.HandleFunc("/transactions/file-upload", s.handleUpload).Methods(http.MethodPost)
	s.router.HandleFunc("/transactions/currency/{currency}", s.handleByCurrency).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions/date-range", s.handleByDateRange).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions/status/{status}", s.handleByStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if deps.Snapshot != nil {
		s.router.HandleFunc("/metrics/json", s.handleMetricsJSON).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves in a goroutine. Serve errors other than a clean shutdown are
// sent on the returned channel.
func (s *Server) Start() <-chan error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.config.Address))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	return errc
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleHealth pings the backend.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.HealthTimeout)
		defer cancel()

		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":    "unhealthy",
				"timestamp": time.Now().Unix(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

// handleStatus returns process information.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "running",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleMetricsJSON returns the in-memory metrics snapshot.
func (s *Server) handleMetricsJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Snapshot.Snapshot())
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
