package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medkb/medkb/internal/log"
)

// RetryConfig configures retry behavior for embedding calls.
type RetryConfig struct {
	MaxRetries      int           // maximum retry attempts after the first try
	InitialInterval time.Duration // initial backoff interval
	MaxInterval     time.Duration // backoff cap
}

// DefaultRetryConfig returns sensible defaults for embedding API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively against err.Error().
//
// NOTE: string matching because the Gemini SDK does not expose typed
// errors for transient failures. Re-evaluate if the SDK adds them.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// Retrying wraps an Embedder with bounded exponential-backoff retry for
// transient failures. Every attempt, including retries, passes through
// the rate limiter. Non-transient errors fail immediately.
type Retrying struct {
	inner   Embedder
	cfg     RetryConfig
	limiter *rate.Limiter
	logger  log.Logger
}

// WithRetry wraps inner. limiter may be nil to disable rate limiting.
func WithRetry(inner Embedder, cfg RetryConfig, limiter *rate.Limiter, logger log.Logger) *Retrying {
	return &Retrying{inner: inner, cfg: cfg, limiter: limiter, logger: logger}
}

func (r *Retrying) Dimension() int { return r.inner.Dimension() }

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := r.execute(ctx, "embed", func(ctx context.Context) error {
		var err error
		vec, err = r.inner.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (r *Retrying) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.execute(ctx, "embed_batch", func(ctx context.Context) error {
		var err error
		vecs, err = r.inner.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (r *Retrying) execute(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	delay := r.cfg.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limit wait: %w", err)
			}
		}

		err := call(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Debug("embedding call recovered",
					"op", op,
					"attempts", attempt+1,
					"elapsed", time.Since(start),
				)
			}
			return nil
		}

		lastErr = err

		if !retryableError(err) {
			return err
		}

		if attempt == r.cfg.MaxRetries {
			break
		}

		r.logger.Debug("retrying embedding call",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.cfg.MaxInterval)
		}
	}

	return fmt.Errorf("%s after %d retries (elapsed: %v): %w",
		op, r.cfg.MaxRetries, time.Since(start), lastErr)
}
