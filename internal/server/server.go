// Package server provides HTTP server for the S3-compatible API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kumasuke/fakes3/internal/api"
	"github.com/kumasuke/fakes3/internal/config"
	"github.com/kumasuke/fakes3/internal/metrics"
	"github.com/kumasuke/fakes3/internal/storage"
)

// Server represents the FakeS3 HTTP server.
type Server struct {
	httpServer *http.Server
	storage    *storage.FileSystem
	config     *config.Config
}

// New creates a new Server instance.
func New(cfg *config.Config) (*Server, error) {
	handler, store, err := NewHandler(cfg)
	if err != nil {
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		storage:    store,
		config:     cfg,
	}, nil
}

// NewHandler builds the storage engine and the full HTTP handler chain for cfg.
// When metrics are enabled the exposition endpoint is mounted at cfg.Metrics.Path,
// shadowing any bucket of the same name.
func NewHandler(cfg *config.Config) (http.Handler, *storage.FileSystem, error) {
	opts := []storage.Option{
		storage.WithMergeChunkSize(cfg.Storage.MergeChunkSize),
		storage.WithReadChunkSize(cfg.Storage.ReadChunkSize),
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opts = append(opts, storage.WithObserver(metrics.NewStorageMetrics(m.Registry())))
	}

	store, err := storage.NewFileSystem(cfg.Storage.DataDir, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	apiHandler := api.NewHandler(store, api.WithMaxBodySize(cfg.Server.MaxBodySize))

	var handler http.Handler = NewRouter(apiHandler)
	if m != nil {
		handler = withMetricsEndpoint(cfg.Metrics.Path, m.Handler(), m.Middleware(handler))
	}

	return handler, store, nil
}

// withMetricsEndpoint serves exposition on exactly path and everything else through next.
// Object keys must reach the router uncleaned, so no mux sits in front of it.
func withMetricsEndpoint(path string, exposition, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == path && r.Method == http.MethodGet {
			exposition.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting HTTP server")
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Storage returns the storage backend (for testing).
func (s *Server) Storage() *storage.FileSystem {
	return s.storage
}
