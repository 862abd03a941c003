// Package api exposes the question-answering pipeline over HTTP.
//
// Endpoints:
//
//	POST /api/ask/stream  →  streamed answer (SSE)
//	POST /api/search      →  raw chunk retrieval
//	GET  /health          →  liveness probe
//	GET  /ready           →  readiness probe
//	GET  /api/sessions    →  list sessions
//	POST /api/sessions    →  create session
//	DELETE /api/sessions/{id}
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/session"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to keep slow clients from
	// pinning connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is generous because answers stream over long-lived
	// responses.
	WriteTimeout = 5 * time.Minute

	// IdleTimeout is the keep-alive limit between requests.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP front of the pipeline.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health   *HealthHandler
	sessions *SessionHandler
	ask      *AskHandler
	search   *SearchHandler
}

// NewServer wires all routes. pool may be nil when the in-memory index
// is configured; readiness then only checks the process itself.
func NewServer(svc *answer.Service, retriever answer.Retriever, store *session.Store, pool *pgxpool.Pool, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:      mux,
		logger:   logger,
		health:   NewHealthHandler(pool, logger),
		sessions: NewSessionHandler(store, logger),
		ask:      NewAskHandler(svc, store, logger),
		search:   NewSearchHandler(retriever, logger),
	}

	s.health.RegisterRoutes(mux)
	s.sessions.RegisterRoutes(mux)
	s.ask.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
