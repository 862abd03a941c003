// Package embedding defines the embedding capability the pipeline depends
// on. The interface is consumer-side: backends (Gemini, test stubs) live
// elsewhere and nothing above this package sees a vendor type.
package embedding

import "context"

// Embedder converts text into fixed-dimension vectors. Implementations
// must be deterministic for identical input within a process lifetime,
// and EmbedBatch must preserve input order and agree element-wise with
// Embed on the same text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// ServiceError wraps a failure from the embedding backend. Callers detect
// it with errors.As; the wrapped error is preserved for diagnostics.
type ServiceError struct {
	Op  string // "embed" or "embed_batch"
	Err error
}

func (e *ServiceError) Error() string {
	return "embedding service " + e.Op + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error { return e.Err }
