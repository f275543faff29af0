package llm

import (
	"context"
	"testing"
	"time"
)

type countingProvider struct {
	completions int
	embeds      int
	resp        *Response
}

func (c *countingProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	c.completions++
	if c.resp != nil {
		return c.resp, nil
	}
	return &Response{Content: "ok"}, nil
}

func (c *countingProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.embeds++
	return make([][]float32, len(texts)), nil
}

func (c *countingProvider) Name() string { return "counting" }

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute <= 0 {
		t.Error("expected positive request limit")
	}
	if cfg.TokensPerMinute <= 0 {
		t.Error("expected positive token limit")
	}
	if cfg.BurstSize <= 0 {
		t.Error("expected positive burst size")
	}
}

func TestRateLimitBurstThenDelay(t *testing.T) {
	inner := &countingProvider{}
	p := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 60, BurstSize: 2})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := p.Complete(ctx, &Prompt{}, nil); err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("burst of 2 should not block, took %v", elapsed)
	}
	if inner.completions != 2 {
		t.Errorf("completions = %d, want 2", inner.completions)
	}
}

func TestRateLimitUnlimited(t *testing.T) {
	inner := &countingProvider{}
	p := NewRateLimitProvider(inner, &RateLimitConfig{})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 50; i++ {
		if _, err := p.Complete(ctx, &Prompt{}, nil); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("unlimited config should not block, took %v", elapsed)
	}
}

func TestRateLimitContextCancelled(t *testing.T) {
	inner := &countingProvider{}
	// Burst 1 at a one-per-minute refill: the second call would have to
	// wait, so it must observe the cancelled context instead.
	p := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := p.Complete(ctx, &Prompt{}, nil); err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	cancel()
	if _, err := p.Complete(ctx, &Prompt{}, nil); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if inner.completions != 1 {
		t.Errorf("completions = %d, want 1", inner.completions)
	}
}

func TestRateLimitChargesTokens(t *testing.T) {
	inner := &countingProvider{resp: &Response{Content: "ok", InputTokens: 100, OutputTokens: 50}}
	p := NewRateLimitProvider(inner, &RateLimitConfig{TokensPerMinute: 10000})

	if _, err := p.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	stats := p.Stats()
	if stats.Requests != 1 {
		t.Errorf("Requests = %d, want 1", stats.Requests)
	}
	if stats.TokensSpent != 150 {
		t.Errorf("TokensSpent = %d, want 150", stats.TokensSpent)
	}
}

func TestRateLimitEmbedCountsAsRequest(t *testing.T) {
	inner := &countingProvider{}
	p := NewRateLimitProvider(inner, &RateLimitConfig{RequestsPerMinute: 600, BurstSize: 5})

	if _, err := p.Embed(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if inner.embeds != 1 {
		t.Errorf("embeds = %d, want 1", inner.embeds)
	}
	if got := p.Stats().Requests; got != 1 {
		t.Errorf("Requests = %d, want 1", got)
	}
}

func TestWithRateLimit(t *testing.T) {
	if p := WithRateLimit(nil, nil); p != nil {
		t.Error("nil provider should pass through as nil")
	}

	inner := &countingProvider{}
	p := WithRateLimit(inner, &RateLimitConfig{RequestsPerMinute: 60})
	if p == nil {
		t.Fatal("expected wrapped provider")
	}
	if p.Name() != "counting" {
		t.Errorf("Name = %q, want inner name", p.Name())
	}
}
