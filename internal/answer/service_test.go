package answer_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/log"
	"github.com/medkb/medkb/internal/prompt"
	"github.com/medkb/medkb/internal/session"
	"github.com/medkb/medkb/internal/testutil"
)

// fixedRetriever returns canned results or a canned error.
type fixedRetriever struct {
	results []index.Result
	err     error
}

func (f *fixedRetriever) Retrieve(ctx context.Context, query string, k int) ([]index.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) > k {
		return f.results[:k], nil
	}
	return f.results, nil
}

func newService(t *testing.T, ret answer.Retriever, gen answer.Generator, policy, refusal string) *answer.Service {
	t.Helper()
	asm, err := prompt.NewAssembler(6000)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := answer.NewService(ret, asm, gen, 3, policy, refusal, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestService_GroundedAnswerWithCitations(t *testing.T) {
	ret := &fixedRetriever{results: []index.Result{
		{ID: "aspirin.txt:0", Source: "aspirin.txt", Text: "aspirin relieves headache and mild pain", Score: 0.92},
		{ID: "dosage.txt:0", Source: "dosage.txt", Text: "typical adult dose is 300-600mg", Score: 0.85},
	}}
	gen := testutil.NewScriptedGenerator("Aspirin helps ", "with headaches.")
	svc := newService(t, ret, gen, config.PolicyGeneral, "")

	var streamed strings.Builder
	ans, err := svc.Answer(context.Background(), nil, "what helps a headache?",
		func(ctx context.Context, fragment string) error {
			streamed.WriteString(fragment)
			return nil
		})
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}

	if ans.Text != "Aspirin helps with headaches." {
		t.Errorf("text = %q", ans.Text)
	}
	if streamed.String() != ans.Text {
		t.Error("streamed fragments disagree with final text")
	}
	if len(ans.Sources) != 2 || ans.Sources[0] != "aspirin.txt" || ans.Sources[1] != "dosage.txt" {
		t.Errorf("sources = %v", ans.Sources)
	}

	req := gen.LastRequest()
	if !strings.Contains(req.System, "[Document 1: aspirin.txt]") {
		t.Errorf("prompt missing context block:\n%s", req.System)
	}
	if req.Query != "what helps a headache?" {
		t.Errorf("query = %q", req.Query)
	}
}

func TestService_HistoryPassedUnmutated(t *testing.T) {
	ret := &fixedRetriever{}
	gen := testutil.NewScriptedGenerator("ok")
	svc := newService(t, ret, gen, config.PolicyGeneral, "")

	history := []session.Turn{
		{Role: session.RoleUser, Content: "is aspirin safe?"},
		{Role: session.RoleAssistant, Content: "generally, yes"},
	}

	if _, err := svc.Answer(context.Background(), history, "and for children?", nil); err != nil {
		t.Fatalf("Answer() = %v", err)
	}

	req := gen.LastRequest()
	if len(req.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(req.History))
	}
	if req.History[0].Content != "is aspirin safe?" {
		t.Errorf("history[0] = %q", req.History[0].Content)
	}
	if history[1].Content != "generally, yes" {
		t.Error("caller's history was mutated")
	}
}

func TestService_EmptyRetrievalGeneralPolicy(t *testing.T) {
	ret := &fixedRetriever{} // nothing in the knowledge base
	gen := testutil.NewScriptedGenerator("From general knowledge: rest and fluids.")
	svc := newService(t, ret, gen, config.PolicyGeneral, "")

	ans, err := svc.Answer(context.Background(), nil, "how to treat a cold?", nil)
	if err != nil {
		t.Fatalf("empty retrieval must still complete: %v", err)
	}
	if ans.Text == "" {
		t.Error("expected a streamed answer")
	}
	if len(ans.Sources) != 0 {
		t.Errorf("sources = %v, want none", ans.Sources)
	}
	if len(gen.Requests()) != 1 {
		t.Error("general policy must still call the model")
	}
	if !strings.Contains(gen.LastRequest().System, "general knowledge") {
		t.Error("fallback prompt missing general-knowledge instruction")
	}
}

func TestService_EmptyRetrievalRefusePolicy(t *testing.T) {
	ret := &fixedRetriever{}
	gen := testutil.NewScriptedGenerator("should never run")
	refusal := "I can only answer from the knowledge base."
	svc := newService(t, ret, gen, config.PolicyRefuse, refusal)

	var streamed string
	ans, err := svc.Answer(context.Background(), nil, "anything", func(ctx context.Context, f string) error {
		streamed += f
		return nil
	})
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if ans.Text != refusal || streamed != refusal {
		t.Errorf("text = %q, streamed = %q, want refusal message", ans.Text, streamed)
	}
	if len(gen.Requests()) != 0 {
		t.Error("refuse policy must not call the model")
	}
}

func TestService_EmptyRetrievalNotFoundPolicy(t *testing.T) {
	ret := &fixedRetriever{}
	gen := testutil.NewScriptedGenerator("should never run")
	svc := newService(t, ret, gen, config.PolicyNotFound, "ignored")

	ans, err := svc.Answer(context.Background(), nil, "anything", nil)
	if err != nil {
		t.Fatalf("Answer() = %v", err)
	}
	if !strings.Contains(ans.Text, "knowledge base") {
		t.Errorf("text = %q, want explicit not-found message", ans.Text)
	}
	if len(gen.Requests()) != 0 {
		t.Error("notfound policy must not call the model")
	}
}

func TestService_RetrievalFailureAbortsStream(t *testing.T) {
	boom := errors.New("embedding service down")
	ret := &fixedRetriever{err: boom}
	gen := testutil.NewScriptedGenerator("never")
	svc := newService(t, ret, gen, config.PolicyGeneral, "")

	if _, err := svc.Answer(context.Background(), nil, "q", nil); !errors.Is(err, boom) {
		t.Errorf("Answer() = %v, want wrapped retrieval error", err)
	}
	if len(gen.Requests()) != 0 {
		t.Error("model must not be called when retrieval fails")
	}
}

func TestService_GenerationFailureWrapped(t *testing.T) {
	ret := &fixedRetriever{results: []index.Result{
		{ID: "a.txt:0", Source: "a.txt", Text: "chunk", Score: 0.9},
	}}
	gen := testutil.NewScriptedGenerator("partial")
	gen.FailAfter(1, errors.New("model crashed"))
	svc := newService(t, ret, gen, config.PolicyGeneral, "")

	_, err := svc.Answer(context.Background(), nil, "q", nil)
	var genErr *answer.GenerationError
	if !errors.As(err, &genErr) {
		t.Errorf("Answer() = %v, want *GenerationError", err)
	}
}
