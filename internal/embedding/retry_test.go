package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medkb/medkb/internal/log"
)

// flakyEmbedder fails the first failures calls with err, then succeeds.
type flakyEmbedder struct {
	failures int
	err      error
	calls    int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (f *flakyEmbedder) Dimension() int { return 3 }

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestRetrying_RecoversFromTransientError(t *testing.T) {
	inner := &flakyEmbedder{failures: 2, err: errors.New("503 service unavailable")}
	r := WithRetry(inner, fastRetry(), nil, log.NewNop())

	vec, err := r.Embed(context.Background(), "aspirin")
	if err != nil {
		t.Fatalf("Embed() = %v, want nil", err)
	}
	if len(vec) != 3 {
		t.Errorf("vector length = %d, want 3", len(vec))
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestRetrying_NonRetryableFailsImmediately(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: errors.New("invalid argument: bad model name")}
	r := WithRetry(inner, fastRetry(), nil, log.NewNop())

	if _, err := r.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1 (no retry on permanent error)", inner.calls)
	}
}

func TestRetrying_ExhaustsRetries(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: errors.New("connection reset by peer")}
	r := WithRetry(inner, fastRetry(), nil, log.NewNop())

	if _, err := r.Embed(context.Background(), "x"); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if inner.calls != 4 {
		t.Errorf("inner called %d times, want 4 (1 + 3 retries)", inner.calls)
	}
}

func TestRetrying_ContextCancellation(t *testing.T) {
	inner := &flakyEmbedder{failures: 10, err: errors.New("timeout")}
	cfg := fastRetry()
	cfg.InitialInterval = time.Second

	r := WithRetry(inner, cfg, nil, log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := r.Embed(ctx, "x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want wrapped context.Canceled", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("cancellation did not interrupt the backoff sleep")
	}
}

func TestRetrying_BatchPreservesOrder(t *testing.T) {
	inner := &flakyEmbedder{}
	r := WithRetry(inner, fastRetry(), nil, log.NewNop())

	vecs, err := r.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch() = %v", err)
	}
	if len(vecs) != 3 {
		t.Errorf("got %d vectors, want 3", len(vecs))
	}
}

func TestRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("429 Too Many Requests"), true},
		{errors.New("Rate Limit exceeded"), true},
		{errors.New("502 bad gateway"), true},
		{errors.New("connection reset"), true},
		{errors.New("invalid API key"), false},
		{errors.New("dimension mismatch"), false},
	}
	for _, tt := range tests {
		if got := retryableError(tt.err); got != tt.want {
			t.Errorf("retryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&ServiceError{Op: "embed", Err: cause})

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatal("errors.As failed to find ServiceError")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is failed to find wrapped cause")
	}
}
