// Package index stores chunk embeddings and serves cosine-similarity
// search. Two implementations share the Index interface: a durable
// PostgreSQL/pgvector store and an in-memory brute-force store for
// development and tests.
package index

import (
	"context"
	"errors"
)

var (
	// ErrBadK indicates a non-positive search depth.
	ErrBadK = errors.New("k must be positive")

	// ErrDimensionMismatch indicates a vector whose length differs from
	// the index's declared dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCorrupt indicates the persisted index is unreadable or its
	// schema disagrees with the declared dimension. Fatal; never
	// silently rebuilt.
	ErrCorrupt = errors.New("index corrupt")
)

// Entry is one indexed chunk: a stable id (source path plus start
// offset), the chunk text, its source document, and its embedding.
type Entry struct {
	ID     string
	Source string
	Text   string
	Vector []float32
}

// Result is a search hit. Score is cosine similarity in [-1, 1],
// higher is closer.
type Result struct {
	ID     string
	Source string
	Text   string
	Score  float32
}

// Index is the retrieval store. Implementations must be safe for
// concurrent use; Search never blocks behind mutations for correctness
// (readers may briefly wait on an in-process lock in the memory store).
//
// Search returns at most k results ordered by score descending, ties
// broken by id ascending, never containing duplicate ids. Upsert is
// atomic per call: concurrent readers see all of the batch or none of
// it. Version increases with every effective mutation so callers can
// invalidate caches.
type Index interface {
	Upsert(ctx context.Context, entries []Entry) error
	DeleteBySource(ctx context.Context, source string) error
	Search(ctx context.Context, vector []float32, k int) ([]Result, error)
	Version(ctx context.Context) (int64, error)
	Dimension() int
}
