package llm

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds client-side request and token throughput.
type RateLimitConfig struct {
	// RequestsPerMinute limits API calls per minute (0 = unlimited).
	RequestsPerMinute int
	// TokensPerMinute limits total token spend per minute (0 = unlimited).
	TokensPerMinute int
	// BurstSize is how many requests may fire back to back (default 3).
	BurstSize int
}

// DefaultRateLimitConfig fits free-tier cloud APIs (Groq and similar).
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerMinute: 25,
		TokensPerMinute:   25000,
		BurstSize:         3,
	}
}

// RateLimitProvider spaces calls to the inner provider so API quotas are
// not tripped. Token spend is only known after a response arrives, so it is
// charged retroactively: a heavy response delays the following calls.
type RateLimitProvider struct {
	inner    Provider
	requests *rate.Limiter
	tokens   *rate.Limiter
	burst    int

	mu          sync.Mutex
	requestsOut int
	tokensSpent int
}

// NewRateLimitProvider wraps inner with the limits in config. A nil config
// uses DefaultRateLimitConfig.
func NewRateLimitProvider(inner Provider, config *RateLimitConfig) *RateLimitProvider {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	burst := config.BurstSize
	if burst <= 0 {
		burst = 3
	}

	r := &RateLimitProvider{inner: inner, burst: burst}
	if config.RequestsPerMinute > 0 {
		r.requests = rate.NewLimiter(rate.Limit(config.RequestsPerMinute)/60, burst)
	}
	if config.TokensPerMinute > 0 {
		r.tokens = rate.NewLimiter(rate.Limit(config.TokensPerMinute)/60, config.TokensPerMinute)
	}
	return r
}

func (r *RateLimitProvider) Name() string { return r.inner.Name() }

// Complete blocks until the limits allow another call, then charges the
// response's token usage against the budget.
func (r *RateLimitProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	if err := r.admit(ctx); err != nil {
		return nil, err
	}

	resp, err := r.inner.Complete(ctx, prompt, opts)
	if err == nil && resp != nil {
		r.charge(resp.InputTokens + resp.OutputTokens)
	}
	return resp, err
}

// Embed counts as one request against the limit; embedding token usage is
// not reported by most APIs and is left uncharged.
func (r *RateLimitProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.admit(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, texts)
}

func (r *RateLimitProvider) admit(ctx context.Context) error {
	if r.requests != nil {
		if err := r.requests.Wait(ctx); err != nil {
			return err
		}
	}
	// Block while the token budget is in debt from earlier responses.
	if r.tokens != nil {
		if err := r.tokens.WaitN(ctx, 1); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.requestsOut++
	r.mu.Unlock()
	return nil
}

func (r *RateLimitProvider) charge(tokens int) {
	if tokens <= 0 {
		return
	}
	r.mu.Lock()
	r.tokensSpent += tokens
	r.mu.Unlock()

	if r.tokens != nil {
		n := tokens
		if n > r.tokens.Burst() {
			n = r.tokens.Burst()
		}
		r.tokens.ReserveN(time.Now(), n)
	}
}

// RateLimitStats reports cumulative throughput counters.
type RateLimitStats struct {
	Requests    int
	TokensSpent int
}

func (r *RateLimitProvider) Stats() RateLimitStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RateLimitStats{Requests: r.requestsOut, TokensSpent: r.tokensSpent}
}

// WithRateLimit wraps a provider with rate limiting, passing nil through.
func WithRateLimit(p Provider, config *RateLimitConfig) Provider {
	if p == nil {
		return nil
	}
	return NewRateLimitProvider(p, config)
}
