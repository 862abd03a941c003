package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/medkb/medkb/internal/log"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// writeLockKey serializes index mutations across processes.
// pg_advisory_xact_lock releases automatically at commit/rollback.
const writeLockKey = "medkb_chunks_write"

// Postgres is the durable Index backed by PostgreSQL + pgvector.
//
// Reads go straight to the pool and never wait on the advisory lock;
// mutations run in a transaction holding the lock, so concurrent
// searches see each Upsert batch atomically.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger log.Logger
}

// NewPostgres opens the index over an existing pool and verifies that the
// chunks table's vector column matches the declared dimension. A missing
// table or a width disagreement is reported as ErrCorrupt: the persisted
// index cannot serve this configuration and must not be silently rebuilt.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, dim int, logger log.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	// For pgvector columns atttypmod carries the declared dimension.
	var tableDim int
	err := pool.QueryRow(ctx,
		`SELECT atttypmod
		 FROM pg_attribute
		 WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'`,
	).Scan(&tableDim)
	if err != nil {
		return nil, fmt.Errorf("%w: inspecting chunks schema: %v", ErrCorrupt, err)
	}
	if tableDim != dim {
		return nil, fmt.Errorf("%w: table embedding dimension %d, configured %d",
			ErrCorrupt, tableDim, dim)
	}

	return &Postgres{pool: pool, dim: dim, logger: logger}, nil
}

func (p *Postgres) Dimension() int { return p.dim }

// Upsert writes the batch in one transaction. Entries with ids already
// present are replaced.
func (p *Postgres) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Vector) != p.dim {
			return fmt.Errorf("%w: entry %s has %d dimensions, index has %d",
				ErrDimensionMismatch, e.ID, len(e.Vector), p.dim)
		}
	}

	return p.mutate(ctx, func(tx pgx.Tx) error {
		for _, e := range entries {
			_, err := tx.Exec(ctx,
				`INSERT INTO chunks (id, source, content, embedding)
				 VALUES ($1, $2, $3, $4)
				 ON CONFLICT (id) DO UPDATE
				 SET source = EXCLUDED.source,
				     content = EXCLUDED.content,
				     embedding = EXCLUDED.embedding,
				     updated_at = now()`,
				e.ID, e.Source, e.Text, pgvector.NewVector(e.Vector),
			)
			if err != nil {
				return fmt.Errorf("upserting chunk %s: %w", e.ID, err)
			}
		}
		return bumpVersion(ctx, tx)
	})
}

// DeleteBySource removes all chunks of one document. A source with no
// chunks is a no-op and does not bump the version.
func (p *Postgres) DeleteBySource(ctx context.Context, source string) error {
	return p.mutate(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM chunks WHERE source = $1`, source)
		if err != nil {
			return fmt.Errorf("deleting chunks for %s: %w", source, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return bumpVersion(ctx, tx)
	})
}

// mutate runs fn in a transaction holding the index write lock.
func (p *Postgres) mutate(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			p.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, writeLockKey); err != nil {
		return fmt.Errorf("acquiring advisory lock: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing index transaction: %w", err)
	}
	return nil
}

// bumpVersion advances the singleton version row inside the caller's
// transaction, so the version moves atomically with the mutation.
func bumpVersion(ctx context.Context, q querier) error {
	if _, err := q.Exec(ctx,
		`UPDATE index_version SET version = version + 1, updated_at = now()`,
	); err != nil {
		return fmt.Errorf("bumping index version: %w", err)
	}
	return nil
}

// Search returns the k nearest chunks by cosine similarity. Ordering by
// the <=> distance operator ascending yields similarity descending; ties
// break on id ascending.
func (p *Postgres) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadK, k)
	}
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(vector), p.dim)
	}

	vec := pgvector.NewVector(vector)
	rows, err := p.pool.Query(ctx,
		`SELECT id, source, content, 1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 ORDER BY embedding <=> $1, id ASC
		 LIMIT $2`,
		vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var similarity float64
		if err := rows.Scan(&r.ID, &r.Source, &r.Text, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		r.Score = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Version reads the singleton version counter.
func (p *Postgres) Version(ctx context.Context) (int64, error) {
	var v int64
	if err := p.pool.QueryRow(ctx, `SELECT version FROM index_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("%w: reading index version: %v", ErrCorrupt, err)
	}
	return v, nil
}
