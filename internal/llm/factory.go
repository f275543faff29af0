package llm

import (
	"fmt"
	"sort"
	"time"
)

// ProviderConfig carries everything needed to build a provider, including
// the retry and rate-limit wrappers stacked around it.
type ProviderConfig struct {
	Provider   string
	APIKey     string
	Model      string
	BaseURL    string
	EmbedModel string

	// Timeout bounds one attempt. A timed-out generation call gets
	// MaxRetries more attempts (default 1) before the caller sees the
	// failure.
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// RequestsPerMinute and TokensPerMinute enable client-side rate
	// limiting when positive.
	RequestsPerMinute int
	TokensPerMinute   int
}

// ProviderConstructor builds a bare Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// ProviderFactory maps provider names to constructors.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

func NewFactory() *ProviderFactory {
	return &ProviderFactory{constructors: make(map[string]ProviderConstructor)}
}

// Register adds a constructor under the given name, replacing any previous
// registration.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds the provider named by cfg and stacks the rate-limit and
// retry wrappers around it. An empty or "none" provider yields (nil, nil)
// so the system can run without an LLM.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	// Rate limiter sits closest to the wire so retries also count against it.
	if cfg.RequestsPerMinute > 0 || cfg.TokensPerMinute > 0 {
		provider = NewRateLimitProvider(provider, &RateLimitConfig{
			RequestsPerMinute: cfg.RequestsPerMinute,
			TokensPerMinute:   cfg.TokensPerMinute,
		})
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}
	return provider, nil
}

func (f *ProviderFactory) names() []string {
	out := make([]string, 0, len(f.constructors))
	for k := range f.constructors {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// KnownProviders maps built-in provider presets to their default base URLs.
// Any OpenAI-compatible endpoint works through "custom" with a base_url.
var KnownProviders = map[string]string{
	"anthropic":   "https://api.anthropic.com/v1",
	"openai":      "https://api.openai.com/v1",
	"groq":        "https://api.groq.com/openai/v1",
	"huggingface": "https://api-inference.huggingface.co/v1",
	"ollama":      "http://localhost:11434/v1",
	"together":    "https://api.together.xyz/v1",
	"deepseek":    "https://api.deepseek.com/v1",
}
