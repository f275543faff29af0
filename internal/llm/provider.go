// Package llm defines the text-generation and embedding ports plus the
// wrappers (retry, rate limiting) every backend is composed with.
package llm

import "context"

// Role identifies who authored a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Prompt is the full input to a completion call.
type Prompt struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`
}

// Response is a completion result with token accounting for metrics.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	StopReason   string `json:"stop_reason,omitempty"`
}

// RequestOptions tunes a single completion call. Nil fields fall back to
// provider defaults.
type RequestOptions struct {
	MaxTokens   *int
	Temperature *float64
	TopP        *float64
	StopSeqs    []string
}

// Provider is the port every LLM backend implements. A nil Provider is a
// valid configuration: concept generation is skipped and the rest of the
// pipeline runs without it.
type Provider interface {
	Complete(ctx context.Context, prompt *Prompt, opts *RequestOptions) (*Response, error)
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}
