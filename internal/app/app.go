// Package app wires the pipeline together: config in, a ready App out.
// Every entry point (serve, ingest, ask) goes through Setup so they all
// share the same construction order and cleanup.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/chunker"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/embedding"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/retrieve"
	"github.com/medkb/medkb/internal/session"
)

// App is the assembled application.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Pool is nil when the in-memory index is configured.
	Pool      *pgxpool.Pool
	Index     index.Index
	Chunker   *chunker.Chunker
	Embedder  embedding.Embedder
	Retriever *retrieve.Retriever
	Generator answer.Generator
	Service   *answer.Service
	Sessions  *session.Store

	otelShutdown func(context.Context) error
}

// Close releases everything Setup acquired, in reverse order.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("shutting down tracer provider", "error", err)
		}
	}
	return nil
}
