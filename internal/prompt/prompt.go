// Package prompt assembles the model prompt from retrieved chunks and
// conversation history. Assembly is pure: it never mutates the inputs
// and never talks to the network.
package prompt

import (
	"fmt"
	"strings"

	"github.com/medkb/medkb/internal/index"
	"github.com/medkb/medkb/internal/session"
)

const groundedInstructions = `You are a medical knowledge assistant. Answer the user's question using the reference documents below. Prefer facts from the documents over your own knowledge, and say so plainly when the documents do not cover the question. Do not invent citations.`

const fallbackInstructions = `You are a medical knowledge assistant. No reference documents matched the user's question. Answer from your general knowledge, and state clearly that the answer does not come from the knowledge base.`

// Assembly is the model-ready prompt.
type Assembly struct {
	// System carries the instructions plus the numbered context block.
	System string

	// History is a copy of the conversation as given, oldest first.
	History []session.Turn

	// Included are the chunks that survived the budget, in retrieval
	// order. Citations must come from these, not from everything
	// retrieved.
	Included []index.Result

	// Sources are the source documents of Included, deduplicated in
	// first-appearance order.
	Sources []string
}

// Assembler builds prompts under a character budget for the context
// block.
type Assembler struct {
	maxContextChars int
}

// NewAssembler validates the budget and returns an Assembler.
func NewAssembler(maxContextChars int) (*Assembler, error) {
	if maxContextChars <= 0 {
		return nil, fmt.Errorf("max context chars must be positive, got %d", maxContextChars)
	}
	return &Assembler{maxContextChars: maxContextChars}, nil
}

// Build assembles the prompt. Results are expected in retrieval order
// (score descending); when the context block exceeds the budget, whole
// chunks are dropped from the lowest-scoring end until it fits. Chunks
// are never split.
func (a *Assembler) Build(history []session.Turn, results []index.Result) Assembly {
	included := a.fit(results)

	asm := Assembly{
		History:  append([]session.Turn(nil), history...),
		Included: included,
		Sources:  sources(included),
	}

	if len(included) == 0 {
		asm.System = fallbackInstructions
		return asm
	}

	var b strings.Builder
	b.WriteString(groundedInstructions)
	b.WriteString("\n\nReference documents:\n")
	for i, r := range included {
		fmt.Fprintf(&b, "\n[Document %d: %s]\n%s\n", i+1, r.Source, r.Text)
	}
	asm.System = b.String()
	return asm
}

// fit drops whole chunks from the tail (lowest score) until the summed
// chunk text fits the budget.
func (a *Assembler) fit(results []index.Result) []index.Result {
	if len(results) == 0 {
		return nil
	}

	total := 0
	lens := make([]int, len(results))
	for i, r := range results {
		lens[i] = len([]rune(r.Text))
		total += lens[i]
	}

	n := len(results)
	for n > 0 && total > a.maxContextChars {
		n--
		total -= lens[n]
	}
	return append([]index.Result(nil), results[:n]...)
}

// sources deduplicates source documents preserving first appearance.
func sources(included []index.Result) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range included {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}
