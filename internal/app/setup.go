package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"github.com/medkb/medkb/db"
	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/chunker"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/embedding"
	"github.com/medkb/medkb/internal/gemini"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/observability"
	"github.com/medkb/medkb/internal/prompt"
	"github.com/medkb/medkb/internal/retrieve"
	"github.com/medkb/medkb/internal/session"
)

// embedRate caps outgoing embedding calls; ingest over a large corpus
// would otherwise burn through the API quota.
const (
	embedRateLimit = rate.Limit(10) // calls per second
	embedRateBurst = 10
)

// Setup builds the application from validated config. On failure it
// releases whatever was already acquired; on success the caller owns
// Close.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = otelShutdown

	client, err := gemini.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	a.Generator = client.NewGenerator()
	a.Embedder = embedding.WithRetry(client.NewEmbedder(), embedding.DefaultRetryConfig(),
		rate.NewLimiter(embedRateLimit, embedRateBurst), logger)

	if err := provideIndex(ctx, a); err != nil {
		return nil, err
	}

	a.Chunker, err = chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("creating chunker: %w", err)
	}

	a.Retriever, err = retrieve.New(a.Embedder, a.Index, logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	asm, err := prompt.NewAssembler(cfg.MaxContextChars)
	if err != nil {
		return nil, fmt.Errorf("creating prompt assembler: %w", err)
	}

	a.Service, err = answer.NewService(a.Retriever, asm, a.Generator,
		cfg.TopK, cfg.NoContextPolicy, cfg.RefusalMessage, logger)
	if err != nil {
		return nil, fmt.Errorf("creating answer service: %w", err)
	}

	a.Sessions = session.NewStore()

	logger.Info("application ready",
		"store", cfg.Store,
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"dimension", cfg.Dimension,
	)
	return a, nil
}

// provideIndex opens the configured index backend.
func provideIndex(ctx context.Context, a *App) error {
	cfg := a.Config

	if cfg.Store == config.StoreMemory {
		mem, err := index.NewMemory(cfg.Dimension)
		if err != nil {
			return fmt.Errorf("creating in-memory index: %w", err)
		}
		a.Index = mem
		return nil
	}

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	a.Pool = pool

	idx, err := index.NewPostgres(ctx, pool, cfg.Dimension, a.Logger)
	if err != nil {
		return fmt.Errorf("opening postgres index: %w", err)
	}
	a.Index = idx
	return nil
}

// provideDBPool runs migrations and opens a connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
