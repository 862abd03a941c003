// Package chunker splits document text into fixed-size overlapping spans.
//
// Sizes are measured in characters (runes), not bytes, so multi-byte
// scripts chunk by the same budget as ASCII. Splitting is deterministic:
// the same text always yields the same spans.
package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSize indicates a non-positive chunk size.
	ErrInvalidSize = errors.New("chunk size must be positive")

	// ErrInvalidOverlap indicates an overlap outside [0, size).
	ErrInvalidOverlap = errors.New("overlap must satisfy 0 <= overlap < size")
)

// Span is one chunk of a document: the text plus its rune offsets into
// the original. Offsets are half-open [Start, End).
type Span struct {
	Start int
	End   int
	Text  string
}

// Chunker produces overlapping spans of at most Size runes, with
// consecutive spans sharing Overlap runes.
type Chunker struct {
	size    int
	overlap int
}

// New validates the parameters and returns a Chunker.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: got overlap %d for size %d", ErrInvalidOverlap, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured chunk size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into spans. Text shorter than the chunk size yields a
// single span; a trailing partial chunk is kept. Empty text yields no
// spans.
func (c *Chunker) Split(text string) []Span {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var spans []Span
	for start := 0; start < len(runes); start += step {
		end := min(start+c.size, len(runes))
		spans = append(spans, Span{
			Start: start,
			End:   end,
			Text:  string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}
	return spans
}
