// Package testutil provides shared test infrastructure: a deterministic
// stub embedder, a scripted generator, an SSE parser, and a PostgreSQL
// test container helper.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"
)

// StubEmbedder is a deterministic in-process embedder for tests. By
// default it derives a normalized vector from the SHA-256 of the text,
// so identical input always embeds identically. Explicit vectors can be
// registered for exact cosine-similarity control, and failures can be
// scripted per substring to exercise error paths.
//
// Safe for concurrent use.
type StubEmbedder struct {
	mu      sync.Mutex
	dim     int
	vectors map[string][]float32
	failOn  map[string]error
	calls   int
}

// NewStubEmbedder creates a stub with the given vector dimension.
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{
		dim:     dim,
		vectors: make(map[string][]float32),
		failOn:  make(map[string]error),
	}
}

// SetVector registers an explicit vector for a text. Use it when a test
// needs exact similarity relationships between inputs.
func (e *StubEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// FailOn makes any Embed or EmbedBatch call whose input contains substr
// return err.
func (e *StubEmbedder) FailOn(substr string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOn[substr] = err
}

// Calls reports how many embed operations ran.
func (e *StubEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *StubEmbedder) Dimension() int { return e.dim }

func (e *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *StubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	for _, text := range texts {
		for substr, err := range e.failOn {
			if strings.Contains(text, substr) {
				return nil, err
			}
		}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := e.vectors[text]; ok {
			out[i] = v
			continue
		}
		out[i] = deterministicVector(text, e.dim)
	}
	return out, nil
}

// deterministicVector generates a unit vector from the SHA-256 of the
// text. The same text always produces the same vector.
func deterministicVector(text string, dim int) []float32 {
	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)

	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32],
			hash[(idx+1)%32],
			hash[(idx+2)%32],
			hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}
