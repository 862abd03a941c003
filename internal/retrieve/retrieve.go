// Package retrieve answers "which chunks are relevant to this query" by
// embedding the query and searching the index. Results are cached per
// query until the index version moves.
package retrieve

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medkb/medkb/internal/embedding"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
)

// maxCacheEntries bounds the result cache; the cache resets rather than
// evicting, which is fine for a working set of repeated questions.
const maxCacheEntries = 256

// Retriever embeds queries and searches the index. Safe for concurrent
// use by all sessions.
type Retriever struct {
	embedder embedding.Embedder
	idx      index.Index
	logger   log.Logger

	mu           sync.Mutex
	cacheVersion int64
	cache        map[string][]index.Result
}

// New creates a Retriever.
func New(embedder embedding.Embedder, idx index.Index, logger log.Logger) (*Retriever, error) {
	if embedder == nil || idx == nil {
		return nil, fmt.Errorf("embedder and index are required")
	}
	if embedder.Dimension() != idx.Dimension() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			index.ErrDimensionMismatch, embedder.Dimension(), idx.Dimension())
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		idx:      idx,
		logger:   logger,
		cache:    make(map[string][]index.Result),
	}, nil
}

// Retrieve returns up to k chunks relevant to query, most similar first.
// Cached results are served only while the index version is unchanged,
// so a re-ingest is visible to the next query.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]index.Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", index.ErrBadK, k)
	}

	ctx, span := otel.Tracer("medkb/retrieve").Start(ctx, "retrieve.search")
	defer span.End()
	span.SetAttributes(attribute.Int("retrieve.k", k))

	version, verErr := r.idx.Version(ctx)
	key := fmt.Sprintf("%d|%s", k, query)

	if verErr == nil {
		if cached, ok := r.cached(version, key); ok {
			return cached, nil
		}
	} else {
		// Serve the search anyway; only the cache is unavailable.
		r.logger.Warn("index version unavailable, bypassing cache", "error", verErr)
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.idx.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	if verErr == nil {
		r.store(version, key, results)
	}
	return results, nil
}

func (r *Retriever) cached(version int64, key string) ([]index.Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if version != r.cacheVersion {
		r.cache = make(map[string][]index.Result)
		r.cacheVersion = version
		return nil, false
	}
	results, ok := r.cache[key]
	if !ok {
		return nil, false
	}
	return append([]index.Result(nil), results...), true
}

func (r *Retriever) store(version int64, key string, results []index.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if version != r.cacheVersion || len(r.cache) >= maxCacheEntries {
		r.cache = make(map[string][]index.Result)
		r.cacheVersion = version
	}
	r.cache[key] = append([]index.Result(nil), results...)
}
