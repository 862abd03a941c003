package gemini

import (
	"context"
	"iter"

	"google.golang.org/genai"

	"github.com/medkb/medkb/internal/answer"
	"github.com/medkb/medkb/internal/session"
)

// Generator streams model responses for assembled prompts.
type Generator struct {
	client      *Client
	model       string
	temperature float32
}

var _ answer.Generator = (*Generator)(nil)

// NewGenerator creates a Generator from a connected Client.
func (c *Client) NewGenerator() *Generator {
	return &Generator{
		client:      c,
		model:       c.cfg.ModelName,
		temperature: float32(c.cfg.Temperature),
	}
}

// GenerateStream yields response text fragments as the model produces
// them. The first yielded error ends the sequence.
func (g *Generator) GenerateStream(ctx context.Context, req answer.Request) iter.Seq2[string, error] {
	contents := buildContents(req.History, req.Query)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	return func(yield func(string, error) bool) {
		for resp, err := range g.client.genai.Models.GenerateContentStream(ctx, g.model, contents, cfg) {
			if err != nil {
				yield("", err)
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

// buildContents converts prior turns plus the current query into the
// genai conversation format.
func buildContents(history []session.Turn, query string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == session.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(query, genai.RoleUser))
}
