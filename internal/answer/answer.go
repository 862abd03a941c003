// Package answer turns a question into a streamed, cited answer. The
// Streamer owns the request lifecycle state machine; the Service wires
// retrieval, prompt assembly, and generation together.
package answer

import (
	"context"
	"errors"
	"iter"

	"github.com/medkb/medkb/internal/session"
)

// State is the lifecycle of one answer request.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted indicates a Streamer was used twice; each request
// needs its own.
var ErrAlreadyStarted = errors.New("streamer already started")

// GenerationError wraps a terminal failure from the generation backend.
// Already-forwarded fragments are never retracted and no canned text is
// substituted; the caller decides how to surface the failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Request is the vendor-neutral generation input.
type Request struct {
	System  string
	History []session.Turn
	Query   string
}

// Generator is the generation capability. The iterator yields text
// fragments in order; a non-nil error terminates the stream. Pulling the
// iterator lazily is what gives the pipeline backpressure, so
// implementations must not buffer the whole response.
type Generator interface {
	GenerateStream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// StreamCallback receives each fragment as soon as it arrives. It runs
// synchronously on the streaming goroutine; returning an error stops the
// stream (used for client disconnects).
type StreamCallback func(ctx context.Context, fragment string) error

// Answer is the completed result: the full text as streamed, plus the
// cited source documents in first-appearance order.
type Answer struct {
	Text    string
	Sources []string
}
