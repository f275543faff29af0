package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RetryConfig controls the per-attempt timeout and retry schedule.
type RetryConfig struct {
	MaxRetries int           // attempts after the first call (0 disables retries)
	RetryDelay time.Duration // delay before the first retry
	MaxDelay   time.Duration // backoff ceiling
	Timeout    time.Duration // deadline applied to each individual attempt
}

// DefaultRetryConfig gives a flaky call one second chance without letting it
// stall the run for long.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries: 1,
		RetryDelay: 2 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    2 * time.Minute,
	}
}

// RetryProvider adds per-attempt timeouts and exponential backoff around a
// Provider. Errors it classifies as permanent (auth failures, bad requests,
// daily quota exhaustion) surface immediately.
type RetryProvider struct {
	inner Provider
	cfg   *RetryConfig
}

func NewRetryProvider(inner Provider, cfg *RetryConfig) *RetryProvider {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryProvider{inner: inner, cfg: cfg}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error) {
	var resp *Response
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		resp, callErr = r.inner.Complete(attemptCtx, prompt, opts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (r *RetryProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := r.attempt(ctx, func(attemptCtx context.Context) error {
		var callErr error
		vecs, callErr = r.inner.Embed(attemptCtx, texts)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// attempt runs call up to 1+MaxRetries times, giving each run its own
// timeout and sleeping between runs with exponential backoff.
func (r *RetryProvider) attempt(ctx context.Context, call func(context.Context) error) error {
	var lastErr error
	for try := 0; try <= r.cfg.MaxRetries; try++ {
		if try > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff(try)):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		err := call(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryable(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", r.cfg.MaxRetries, lastErr)
}

// backoff doubles the initial delay per extra attempt, capped at MaxDelay.
func (r *RetryProvider) backoff(try int) time.Duration {
	d := r.cfg.RetryDelay
	for i := 1; i < try; i++ {
		d *= 2
		if d > r.cfg.MaxDelay {
			return r.cfg.MaxDelay
		}
	}
	return d
}

// retryable classifies an error as transient or permanent. Providers return
// flat errors with the HTTP status baked into the message, so classification
// is partly string matching.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests") {
		// A per-minute limit clears on its own; a daily quota does not, so
		// retrying would just burn time.
		return !strings.Contains(msg, "tokens per day") && !strings.Contains(msg, "TPD")
	}
	for _, s := range []string{"500", "502", "503", "504",
		"Internal Server Error", "Bad Gateway", "Service Unavailable", "Gateway Timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	for _, s := range []string{"400", "401", "403", "404"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	// Unknown failures get the benefit of the doubt.
	return true
}

// WrapWithRetry builds a RetryProvider from the timeout and retry knobs in a
// ProviderConfig, filling in defaults for whatever was left zero.
func WrapWithRetry(provider Provider, cfg ProviderConfig) Provider {
	if provider == nil {
		return nil
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 && cfg.Timeout == 0 {
		maxRetries = 1
	}
	delay := cfg.RetryDelay
	if delay == 0 {
		delay = time.Second
	}

	return NewRetryProvider(provider, &RetryConfig{
		MaxRetries: maxRetries,
		RetryDelay: delay,
		MaxDelay:   30 * time.Second,
		Timeout:    timeout,
	})
}
