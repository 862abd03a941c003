package prompt

import (
	"strings"
	"testing"

	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/session"
)

func result(id, source, text string, score float32) index.Result {
	return index.Result{ID: id, Source: source, Text: text, Score: score}
}

func TestBuild_NumberedContextBlocks(t *testing.T) {
	a, _ := NewAssembler(1000)

	asm := a.Build(nil, []index.Result{
		result("aspirin.txt:0", "aspirin.txt", "aspirin relieves headache", 0.9),
		result("ibuprofen.txt:0", "ibuprofen.txt", "ibuprofen reduces fever", 0.8),
	})

	if !strings.Contains(asm.System, "[Document 1: aspirin.txt]") {
		t.Errorf("missing first document block:\n%s", asm.System)
	}
	if !strings.Contains(asm.System, "[Document 2: ibuprofen.txt]") {
		t.Errorf("missing second document block:\n%s", asm.System)
	}
	if !strings.Contains(asm.System, "aspirin relieves headache") {
		t.Error("chunk text missing from context block")
	}

	i1 := strings.Index(asm.System, "[Document 1")
	i2 := strings.Index(asm.System, "[Document 2")
	if i1 > i2 {
		t.Error("document blocks out of retrieval order")
	}
}

func TestBuild_EmptyRetrievalUsesFallback(t *testing.T) {
	a, _ := NewAssembler(1000)

	asm := a.Build(nil, nil)

	if asm.System == "" {
		t.Fatal("empty retrieval must still yield a valid prompt")
	}
	if strings.Contains(asm.System, "Reference documents") {
		t.Error("fallback prompt should not advertise reference documents")
	}
	if len(asm.Sources) != 0 {
		t.Errorf("fallback assembly has %d sources, want 0", len(asm.Sources))
	}
}

func TestBuild_TruncatesWholeChunksFromLowestScore(t *testing.T) {
	a, _ := NewAssembler(25)

	asm := a.Build(nil, []index.Result{
		result("a.txt:0", "a.txt", strings.Repeat("x", 10), 0.9),
		result("b.txt:0", "b.txt", strings.Repeat("y", 10), 0.8),
		result("c.txt:0", "c.txt", strings.Repeat("z", 10), 0.7),
	})

	if len(asm.Included) != 2 {
		t.Fatalf("included %d chunks, want 2", len(asm.Included))
	}
	if asm.Included[0].ID != "a.txt:0" || asm.Included[1].ID != "b.txt:0" {
		t.Error("truncation must drop from the lowest-scoring end")
	}
	if strings.Contains(asm.System, "c.txt") {
		t.Error("dropped chunk leaked into the prompt")
	}
	for _, r := range asm.Included {
		if len(r.Text) != 10 {
			t.Error("chunks must never be split")
		}
	}
}

func TestBuild_BudgetCountsRunes(t *testing.T) {
	// 10 CJK runes fit a 10-rune budget even though they are 30 bytes.
	a, _ := NewAssembler(10)

	asm := a.Build(nil, []index.Result{
		result("a.txt:0", "a.txt", strings.Repeat("药", 10), 0.9),
	})

	if len(asm.Included) != 1 {
		t.Errorf("included %d chunks, want 1 (budget is runes, not bytes)", len(asm.Included))
	}
}

func TestBuild_SourcesDedupFirstAppearance(t *testing.T) {
	a, _ := NewAssembler(1000)

	asm := a.Build(nil, []index.Result{
		result("b.txt:0", "b.txt", "one", 0.9),
		result("a.txt:0", "a.txt", "two", 0.8),
		result("b.txt:450", "b.txt", "three", 0.7),
	})

	want := []string{"b.txt", "a.txt"}
	if len(asm.Sources) != len(want) {
		t.Fatalf("sources = %v, want %v", asm.Sources, want)
	}
	for i := range want {
		if asm.Sources[i] != want[i] {
			t.Errorf("sources = %v, want %v", asm.Sources, want)
			break
		}
	}
}

func TestBuild_SourcesOnlyFromIncluded(t *testing.T) {
	a, _ := NewAssembler(5)

	asm := a.Build(nil, []index.Result{
		result("a.txt:0", "a.txt", "12345", 0.9),
		result("b.txt:0", "b.txt", "12345", 0.8),
	})

	if len(asm.Sources) != 1 || asm.Sources[0] != "a.txt" {
		t.Errorf("sources = %v, want [a.txt] (dropped chunks must not be cited)", asm.Sources)
	}
}

func TestBuild_DoesNotMutateHistory(t *testing.T) {
	a, _ := NewAssembler(1000)

	history := []session.Turn{
		{Role: session.RoleUser, Content: "first question"},
		{Role: session.RoleAssistant, Content: "first answer"},
	}

	asm := a.Build(history, nil)
	asm.History[0].Content = "mutated"

	if history[0].Content != "first question" {
		t.Error("Build leaked a reference to the caller's history")
	}
	if len(asm.History) != 2 {
		t.Errorf("history length = %d, want 2", len(asm.History))
	}
}

func TestNewAssembler_Validation(t *testing.T) {
	if _, err := NewAssembler(0); err == nil {
		t.Error("expected error for zero budget")
	}
	if _, err := NewAssembler(-5); err == nil {
		t.Error("expected error for negative budget")
	}
}
