package testutil

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/medkb/medkb/internal/answer"
)

// ScriptedGenerator yields a fixed fragment sequence, optionally failing
// partway through. It records every request so tests can assert on the
// assembled prompt.
//
// Safe for concurrent use.
type ScriptedGenerator struct {
	mu        sync.Mutex
	fragments []string
	err       error
	errAfter  int // fragments yielded before err; -1 = after all
	delay     time.Duration
	requests  []answer.Request
}

// NewScriptedGenerator creates a generator that streams the given
// fragments and then completes.
func NewScriptedGenerator(fragments ...string) *ScriptedGenerator {
	return &ScriptedGenerator{fragments: fragments, errAfter: -1}
}

// FailAfter makes the stream yield err after n fragments.
func (g *ScriptedGenerator) FailAfter(n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errAfter = n
	g.err = err
}

// SetDelay inserts a pause before each fragment, for cancellation tests.
func (g *ScriptedGenerator) SetDelay(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.delay = d
}

// Requests returns a copy of all recorded requests.
func (g *ScriptedGenerator) Requests() []answer.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]answer.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastRequest returns the most recent request, or a zero Request.
func (g *ScriptedGenerator) LastRequest() answer.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return answer.Request{}
	}
	return g.requests[len(g.requests)-1]
}

func (g *ScriptedGenerator) GenerateStream(ctx context.Context, req answer.Request) iter.Seq2[string, error] {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	fragments := g.fragments
	err := g.err
	errAfter := g.errAfter
	delay := g.delay
	g.mu.Unlock()

	return func(yield func(string, error) bool) {
		for i, f := range fragments {
			if err != nil && errAfter >= 0 && i == errAfter {
				yield("", err)
				return
			}

			if delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(delay):
				}
			} else if ctx.Err() != nil {
				yield("", ctx.Err())
				return
			}

			if !yield(f, nil) {
				return
			}
		}
		if err != nil && (errAfter < 0 || errAfter >= len(fragments)) {
			yield("", err)
		}
	}
}
