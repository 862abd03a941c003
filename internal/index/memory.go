package index

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Memory is a brute-force in-memory Index. It backs the "memory" store
// mode and unit tests; durability is explicitly out of its scope.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	version int64
	dim     int
}

// NewMemory creates an empty in-memory index with the given dimension.
func NewMemory(dim int) (*Memory, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	return &Memory{entries: make(map[string]Entry), dim: dim}, nil
}

func (m *Memory) Dimension() int { return m.dim }

// Upsert inserts or replaces entries under a single lock acquisition,
// so readers observe the whole batch or none of it.
func (m *Memory) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if len(e.Vector) != m.dim {
			return fmt.Errorf("%w: entry %s has %d dimensions, index has %d",
				ErrDimensionMismatch, e.ID, len(e.Vector), m.dim)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		// Copy the vector so callers can reuse their slice.
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ID] = e
	}
	m.version++
	return nil
}

// DeleteBySource removes every entry for the given source document.
// Deleting a source with no entries is a no-op.
func (m *Memory) DeleteBySource(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := false
	for id, e := range m.entries {
		if e.Source == source {
			delete(m.entries, id)
			deleted = true
		}
	}
	if deleted {
		m.version++
	}
	return nil
}

// Search scans all entries and returns the top k by cosine similarity.
func (m *Memory) Search(ctx context.Context, vector []float32, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrBadK, k)
	}
	if len(vector) != m.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			ErrDimensionMismatch, len(vector), m.dim)
	}

	m.mu.RLock()
	results := make([]Result, 0, len(m.entries))
	for _, e := range m.entries {
		results = append(results, Result{
			ID:     e.ID,
			Source: e.Source,
			Text:   e.Text,
			Score:  cosine(vector, e.Vector),
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(results, func(a, b Result) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Version returns the mutation counter.
func (m *Memory) Version(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

// Len reports the number of indexed entries. Test helper.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// cosine computes cosine similarity; zero-norm vectors score 0.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
