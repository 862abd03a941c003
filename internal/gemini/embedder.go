package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/medkb/medkb/internal/embedding"
)

// Embedder produces dense vectors via the Gemini embedding model, at
// the dimensionality the index was created with.
type Embedder struct {
	client *Client
	model  string
	dim    int
}

var _ embedding.Embedder = (*Embedder)(nil)

// NewEmbedder creates an Embedder from a connected Client.
func (c *Client) NewEmbedder() *Embedder {
	return &Embedder{client: c, model: c.cfg.EmbedderModel, dim: c.cfg.Dimension}
}

// Embed returns the vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one API call, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	dim := int32(e.dim)
	resp, err := e.client.genai.Models.EmbedContent(ctx, e.model, contents,
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, &embedding.ServiceError{Op: "embed", Err: err}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &embedding.ServiceError{
			Op:  "embed",
			Err: fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts)),
		}
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != e.dim {
			return nil, &embedding.ServiceError{
				Op:  "embed",
				Err: fmt.Errorf("embedding %d has wrong dimensionality", i),
			}
		}
		vectors[i] = emb.Values
	}
	return vectors, nil
}

// Dimension reports the configured output dimensionality.
func (e *Embedder) Dimension() int { return e.dim }
