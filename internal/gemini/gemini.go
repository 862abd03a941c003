// Package gemini adapts the Gemini API to the embedding and answer
// interfaces. Nothing outside this package imports the genai SDK.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/medkb/medkb/internal/config"
	"github.com/medkb/medkb/internal/log"
)

// Client bundles the shared genai connection with the model names it
// serves. One Client backs both the embedder and the generator.
type Client struct {
	genai  *genai.Client
	cfg    *config.Config
	logger log.Logger
}

// NewClient connects to the Gemini API using the key from the
// environment.
func NewClient(ctx context.Context, cfg *config.Config, logger log.Logger) (*Client, error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}
	if logger == nil {
		logger = log.NewNop()
	}

	apiKey := cfg.GeminiAPIKey()
	if apiKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	logger.Debug("gemini client ready",
		"model", cfg.ModelName,
		"embedder", cfg.EmbedderModel,
		"dimension", cfg.Dimension,
	)
	return &Client{genai: gc, cfg: cfg, logger: logger}, nil
}
