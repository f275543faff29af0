package llmutil

import (
	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/llm/anthropic"
	"github.com/weavenn/weave/internal/llm/openai"
)

// openAICompatible builds a constructor for a provider that speaks the
// OpenAI wire format at a preset base URL. An explicit base_url in config
// always wins, which is also how the "custom" preset works.
func openAICompatible(defaultURL string) llm.ProviderConstructor {
	return func(c llm.ProviderConfig) (llm.Provider, error) {
		base := c.BaseURL
		if base == "" {
			base = defaultURL
		}
		return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
	}
}

// RegisterDefaultProviders installs every built-in provider constructor.
// Called by both binaries so the factory wiring lives in one place.
func RegisterDefaultProviders(factory *llm.ProviderFactory) {
	factory.Register("anthropic", func(c llm.ProviderConfig) (llm.Provider, error) {
		return anthropic.New(c.APIKey, c.Model, c.BaseURL), nil
	})
	factory.Register("openai", func(c llm.ProviderConfig) (llm.Provider, error) {
		return openai.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})

	for _, name := range []string{"groq", "huggingface", "ollama", "together", "deepseek"} {
		factory.Register(name, openAICompatible(llm.KnownProviders[name]))
	}
	factory.Register("custom", openAICompatible(""))
}
