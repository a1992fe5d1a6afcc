package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/traderscan/service/config"
	"github.com/brojonat/traderscan/service/db"
	"github.com/brojonat/traderscan/service/metrics"
	"github.com/brojonat/traderscan/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the read side of the scan database used by the HTTP API.
type Store interface {
	ListRuns(ctx context.Context, limit, offset int) ([]*db.RunSummary, error)
	GetRun(ctx context.Context, id string) (*db.RunSummary, error)
	ListRunWallets(ctx context.Context, runID string, topOnly bool) ([]*db.WalletRecord, error)
	GetLatestWalletInfo(ctx context.Context, address string) (*db.WalletRecord, error)
}

var _ Store = (*db.Store)(nil)

// Server represents the HTTP server for the scan service.
type Server struct {
	addr      string
	cfg       *config.Config
	store     Store
	scheduler temporal.Scheduler
	events    *SSEPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The scheduler is optional - if nil, POST /api/v1/scans responds 503.
// The events publisher is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, store Store, scheduler temporal.Scheduler, events *SSEPublisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		store:     store,
		scheduler: scheduler,
		events:    events,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the routed handler with CORS and request metrics applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Scan history
	mux.Handle("GET /api/v1/runs", handleListRuns(s.store, s.logger))
	mux.Handle("GET /api/v1/runs/{id}", handleGetRun(s.store, s.logger))
	mux.Handle("GET /api/v1/runs/{id}/wallets", handleListRunWallets(s.store, s.logger))
	mux.Handle("GET /api/v1/wallets/{address}", handleGetWallet(s.store, s.logger))

	// On-demand scans
	mux.Handle("POST /api/v1/scans", handleStartScan(s.scheduler, s.cfg, s.logger))

	// SSE streaming endpoints (if an event source is configured)
	if s.events != nil {
		mux.Handle("GET /api/v1/stream/wallets/{address}", handleStreamWallets(s.events, s.logger))
		mux.Handle("GET /api/v1/stream/wallets", handleStreamWallets(s.events, s.logger))
		mux.Handle("GET /api/v1/stream/runs", handleStreamRuns(s.events, s.logger))
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("event source not configured, streaming endpoints disabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(metrics.HTTPMetricsMiddleware(s.metrics)(mux))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE responses stay open for the life of the client.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// Close the event source first (disconnects all stream clients)
	if s.events != nil {
		s.events.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
