package answer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/prompt"
	"github.com/medkb/medkb/internal/session"
)

// Retriever is the retrieval capability the service consumes.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]index.Result, error)
}

const notFoundMessage = "No relevant information was found in the knowledge base for this question."

// Service answers questions: retrieve, assemble, stream. One Service
// serves all sessions concurrently; each call gets its own Streamer.
type Service struct {
	retriever Retriever
	assembler *prompt.Assembler
	gen       Generator
	topK      int
	policy    string
	refusal   string
	logger    log.Logger
}

// NewService wires the answer pipeline. policy is one of the
// config.Policy* values; refusal is the message used by PolicyRefuse.
func NewService(ret Retriever, asm *prompt.Assembler, gen Generator,
	topK int, policy, refusal string, logger log.Logger) (*Service, error) {
	if ret == nil || asm == nil || gen == nil {
		return nil, fmt.Errorf("retriever, assembler and generator are required")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", index.ErrBadK, topK)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Service{
		retriever: ret,
		assembler: asm,
		gen:       gen,
		topK:      topK,
		policy:    policy,
		refusal:   refusal,
		logger:    logger,
	}, nil
}

// Answer runs one question through the pipeline. history is the prior
// conversation (not including query); fragments stream through cb. A
// retrieval or generation failure aborts only this answer — the session
// and the index are untouched.
func (s *Service) Answer(ctx context.Context, history []session.Turn, query string, cb StreamCallback) (Answer, error) {
	ctx, span := otel.Tracer("medkb/answer").Start(ctx, "answer.query",
		trace.WithAttributes(attribute.Int("answer.top_k", s.topK)))
	defer span.End()

	results, err := s.retriever.Retrieve(ctx, query, s.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving context: %w", err)
	}

	asm := s.assembler.Build(history, results)

	// Empty retrieval is not an error; the configured policy decides
	// what happens next.
	if len(asm.Included) == 0 && s.policy != config.PolicyGeneral {
		msg := s.refusal
		if s.policy == config.PolicyNotFound {
			msg = notFoundMessage
		}
		if cb != nil {
			if cbErr := cb(ctx, msg); cbErr != nil {
				return Answer{}, fmt.Errorf("forwarding refusal: %w", cbErr)
			}
		}
		return Answer{Text: msg}, nil
	}

	span.SetAttributes(
		attribute.Int("answer.retrieved", len(results)),
		attribute.Int("answer.included", len(asm.Included)),
	)
	s.logger.Debug("answering",
		"retrieved", len(results),
		"included", len(asm.Included),
		"sources", len(asm.Sources),
	)

	streamer := NewStreamer(s.gen, s.logger)
	req := Request{System: asm.System, History: asm.History, Query: query}
	return streamer.Stream(ctx, req, asm.Sources, cb)
}
