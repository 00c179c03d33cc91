// Package server exposes indexing and search over HTTP.
//
//	GET  /health                   backend and store probes
//	GET  /status                   latest indexing run per content type
//	GET  /metrics                  search traffic counters
//	POST /index?type=              run an indexing job (GET also accepted)
//	GET  /search?q=&type=&limit=&score_threshold=
//
// Errors are returned as {"error": {...}} with the status chosen by
// errors.HTTPStatus.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/embed"
	"github.com/Aman-CERP/storyvec/internal/index"
	"github.com/Aman-CERP/storyvec/internal/search"
	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// Dependencies contains the injected dependencies for Server.
type Dependencies struct {
	Config   *config.Config
	Indexer  *index.Indexer
	Searcher *search.Executor
	Embedder embed.Embedder
	Store    vectorstore.VectorStore
	Logger   *slog.Logger
}

// Server is the HTTP API.
type Server struct {
	cfg      *config.Config
	indexer  *index.Indexer
	searcher *search.Executor
	embedder embed.Embedder
	store    vectorstore.VectorStore
	logger   *slog.Logger
	handler  http.Handler
	started  time.Time
}

// New creates a Server. Every dependency except Logger is required.
func New(deps Dependencies) (*Server, error) {
	switch {
	case deps.Config == nil:
		return nil, fmt.Errorf("config is required")
	case deps.Indexer == nil:
		return nil, fmt.Errorf("indexer is required")
	case deps.Searcher == nil:
		return nil, fmt.Errorf("searcher is required")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("vector store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      deps.Config,
		indexer:  deps.Indexer,
		searcher: deps.Searcher,
		embedder: deps.Embedder,
		store:    deps.Store,
		logger:   logger,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /index", s.handleIndex)
	mux.HandleFunc("GET /index", s.handleIndex)
	mux.HandleFunc("GET /search", s.handleSearch)
	s.handler = s.logRequests(mux)

	return s, nil
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on cfg.Server.Addr until ctx is cancelled, then
// shuts down gracefully within cfg.Server.ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_listening", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server_shutting_down", slog.Duration("timeout", s.cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-errCh
	return nil
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http_request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
