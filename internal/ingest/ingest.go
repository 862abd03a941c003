// Package ingest rebuilds the chunk index from a corpus directory: for
// each document, delete stale chunks, split, embed, upsert. Document
// failures are isolated; one bad file never aborts the run.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/medkb/medkb/internal/chunker"
	"github.com/medkb/medkb/internal/embedding"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
)

// lockFileName guards against concurrent ingest runs over the same
// corpus, including from other processes.
const lockFileName = ".medkb-ingest.lock"

// DocumentFailure records why one document could not be indexed.
type DocumentFailure struct {
	Source string
	Err    error
}

// PartialFailure aggregates per-document failures from a run that
// otherwise completed. It is reported, not fatal.
type PartialFailure struct {
	Failures []DocumentFailure
}

func (e *PartialFailure) Error() string {
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = f.Source
	}
	return fmt.Sprintf("%d document(s) failed to ingest: %s",
		len(e.Failures), strings.Join(names, ", "))
}

// Report summarizes one ingestion run.
type Report struct {
	Indexed int // documents fully indexed
	Chunks  int // chunks written
	Failed  []DocumentFailure
}

// Err returns a *PartialFailure when any document failed, else nil.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialFailure{Failures: r.Failed}
}

// Pipeline runs full-corpus ingestion. Re-running over an unchanged
// corpus is idempotent: chunk ids are derived from source and offset,
// and each document's stale chunks are deleted before upsert.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	idx      index.Index
	logger   log.Logger
}

// New creates a Pipeline.
func New(ch *chunker.Chunker, embedder embedding.Embedder, idx index.Index, logger log.Logger) (*Pipeline, error) {
	if ch == nil || embedder == nil || idx == nil {
		return nil, fmt.Errorf("chunker, embedder and index are required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Pipeline{chunker: ch, embedder: embedder, idx: idx, logger: logger}, nil
}

// Run ingests every *.txt file in dir (flat, no recursion). An
// unreadable directory is a total failure; everything else is recorded
// per document in the report and the run continues.
func (p *Pipeline) Run(ctx context.Context, dir string) (*Report, error) {
	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another ingestion is already running for %s", dir)
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			p.logger.Warn("releasing ingest lock", "error", unlockErr)
		}
	}()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory: %w", err)
	}

	report := &Report{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ingestion interrupted: %w", err)
		}

		source := entry.Name()
		n, err := p.ingestDocument(ctx, dir, source)
		if err != nil {
			p.logger.Warn("document failed", "source", source, "error", err)
			report.Failed = append(report.Failed, DocumentFailure{Source: source, Err: err})
			continue
		}

		report.Indexed++
		report.Chunks += n
		p.logger.Debug("document indexed", "source", source, "chunks", n)
	}

	p.logger.Info("ingestion finished",
		"indexed", report.Indexed,
		"chunks", report.Chunks,
		"failed", len(report.Failed),
	)
	return report, nil
}

// ingestDocument replaces all index entries for one document.
func (p *Pipeline) ingestDocument(ctx context.Context, dir, source string) (int, error) {
	raw, err := os.ReadFile(filepath.Join(dir, source))
	if err != nil {
		return 0, fmt.Errorf("reading document: %w", err)
	}

	// Stale chunks go first so a shrunk document leaves no orphans.
	if err := p.idx.DeleteBySource(ctx, source); err != nil {
		return 0, fmt.Errorf("clearing previous chunks: %w", err)
	}

	spans := p.chunker.Split(string(raw))
	if len(spans) == 0 {
		return 0, nil
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(spans), err)
	}
	if len(vectors) != len(spans) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(spans))
	}

	batch := make([]index.Entry, len(spans))
	for i, s := range spans {
		batch[i] = index.Entry{
			ID:     ChunkID(source, s.Start),
			Source: source,
			Text:   s.Text,
			Vector: vectors[i],
		}
	}

	if err := p.idx.Upsert(ctx, batch); err != nil {
		return 0, fmt.Errorf("upserting chunks: %w", err)
	}
	return len(batch), nil
}

// ChunkID derives the stable chunk identity from source and start
// offset. Unchanged text always maps to the same ids.
func ChunkID(source string, start int) string {
	return source + ":" + strconv.Itoa(start)
}
