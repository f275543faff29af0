package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// flakyProvider fails a set number of calls before succeeding.
type flakyProvider struct {
	failures int
	err      error
	calls    int
}

func (f *flakyProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &Response{Content: "ok"}, nil
}

func (f *flakyProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return make([][]float32, len(texts)), nil
}

func (f *flakyProvider) Name() string { return "flaky" }

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
	if cfg.Timeout != 2*time.Minute {
		t.Errorf("Timeout = %v, want 2m", cfg.Timeout)
	}
}

func TestRetrySucceedsFirstTry(t *testing.T) {
	inner := &flakyProvider{}
	p := NewRetryProvider(inner, nil)

	resp, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: errors.New("HTTP 503: Service Unavailable")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	if _, err := p.Complete(context.Background(), &Prompt{}, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("HTTP 401: invalid api key")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "non-retryable") {
		t.Errorf("error = %v, want non-retryable", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("HTTP 500: Internal Server Error")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	_, err := p.Complete(context.Background(), &Prompt{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "max retries (2) exceeded") {
		t.Errorf("error = %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("calls = %d, want 3 (initial + 2 retries)", inner.calls)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: errors.New("HTTP 503")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 5,
		RetryDelay: time.Hour,
		MaxDelay:   time.Hour,
		Timeout:    time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := p.Complete(ctx, &Prompt{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d, want 1", inner.calls)
	}
}

func TestRetryEmbed(t *testing.T) {
	inner := &flakyProvider{failures: 1, err: errors.New("HTTP 502: Bad Gateway")}
	p := NewRetryProvider(inner, &RetryConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Timeout:    time.Second,
	})

	vecs, err := p.Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 1 {
		t.Errorf("len(vecs) = %d, want 1", len(vecs))
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}

func TestRetryableClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limited", errors.New("HTTP 429: Too Many Requests"), true},
		{"daily quota", errors.New("HTTP 429: tokens per day limit reached"), false},
		{"daily quota short", errors.New("429 TPD exceeded"), false},
		{"server error", errors.New("HTTP 500: Internal Server Error"), true},
		{"bad gateway", errors.New("HTTP 502: Bad Gateway"), true},
		{"unavailable", errors.New("HTTP 503: Service Unavailable"), true},
		{"gateway timeout", errors.New("HTTP 504: Gateway Timeout"), true},
		{"bad request", errors.New("HTTP 400: invalid body"), false},
		{"unauthorized", errors.New("HTTP 401: bad key"), false},
		{"forbidden", errors.New("HTTP 403: denied"), false},
		{"not found", errors.New("HTTP 404: no such model"), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffGrowth(t *testing.T) {
	p := NewRetryProvider(nil, &RetryConfig{
		RetryDelay: time.Second,
		MaxDelay:   5 * time.Second,
	})

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second} {
		try := i + 1
		if got := p.backoff(try); got != want {
			t.Errorf("backoff(%d) = %v, want %v", try, got, want)
		}
	}
}

func TestWrapWithRetry(t *testing.T) {
	if p := WrapWithRetry(nil, ProviderConfig{}); p != nil {
		t.Error("nil provider should pass through as nil")
	}

	inner := &flakyProvider{}
	p := WrapWithRetry(inner, ProviderConfig{Timeout: 30 * time.Second})
	rp, ok := p.(*RetryProvider)
	if !ok {
		t.Fatalf("WrapWithRetry returned %T, want *RetryProvider", p)
	}
	if rp.cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", rp.cfg.Timeout)
	}
	if rp.cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0 when only timeout set", rp.cfg.MaxRetries)
	}

	p = WrapWithRetry(inner, ProviderConfig{})
	rp = p.(*RetryProvider)
	if rp.cfg.MaxRetries != 1 {
		t.Errorf("default MaxRetries = %d, want 1", rp.cfg.MaxRetries)
	}
	if rp.cfg.Timeout != 2*time.Minute {
		t.Errorf("default Timeout = %v, want 2m", rp.cfg.Timeout)
	}
}
