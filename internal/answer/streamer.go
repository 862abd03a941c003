package answer

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/medkb/medkb/internal/log"
)

// Streamer drives a single generation request through its state machine:
//
//	IDLE -> SENDING -> STREAMING -> DONE
//	          \            \
//	           +-> ERRORED <+
//
// A Streamer is one-shot; create a new one per request. State() is safe
// to read from other goroutines.
type Streamer struct {
	gen    Generator
	logger log.Logger
	state  atomic.Int32
}

// NewStreamer creates a Streamer in StateIdle.
func NewStreamer(gen Generator, logger log.Logger) *Streamer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Streamer{gen: gen, logger: logger}
}

// State returns the current lifecycle state.
func (s *Streamer) State() State {
	return State(s.state.Load())
}

// Stream runs the request, forwarding each fragment through cb before
// pulling the next one. On upstream failure it returns the fragments
// already forwarded in Answer.Text alongside a *GenerationError; it
// never retries and never invents replacement text. Canceling ctx stops
// the upstream call promptly.
func (s *Streamer) Stream(ctx context.Context, req Request, sources []string, cb StreamCallback) (Answer, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSending)) {
		return Answer{}, ErrAlreadyStarted
	}

	var text strings.Builder
	partial := func() Answer { return Answer{Text: text.String()} }

	if err := ctx.Err(); err != nil {
		s.state.Store(int32(StateErrored))
		return partial(), fmt.Errorf("before sending: %w", err)
	}

	for fragment, err := range s.gen.GenerateStream(ctx, req) {
		if err != nil {
			s.state.Store(int32(StateErrored))
			s.logger.Warn("generation stream failed",
				"state", s.State().String(),
				"streamed_chars", text.Len(),
				"error", err,
			)
			return partial(), &GenerationError{Err: err}
		}

		s.state.Store(int32(StateStreaming))
		text.WriteString(fragment)

		if cb != nil {
			if cbErr := cb(ctx, fragment); cbErr != nil {
				s.state.Store(int32(StateErrored))
				return partial(), fmt.Errorf("forwarding fragment: %w", cbErr)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		s.state.Store(int32(StateErrored))
		return partial(), fmt.Errorf("stream interrupted: %w", err)
	}

	s.state.Store(int32(StateDone))
	return Answer{Text: text.String(), Sources: sources}, nil
}
