package llmutil_test

import (
	"testing"

	"github.com/weavenn/weave/internal/llm"
	"github.com/weavenn/weave/internal/llmutil"
)

func TestStripThinkingTags(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no tags", "plain answer", "plain answer"},
		{"single block", "<think>reasoning</think>answer", "answer"},
		{"leading whitespace after block", "<think>hmm</think>\n\nanswer", "answer"},
		{"multiple blocks", "<think>a</think>one<think>b</think>two", "onetwo"},
		{"unterminated block", "before<think>never closed", "before"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llmutil.StripThinkingTags(tt.input)
			if got != tt.want {
				t.Errorf("StripThinkingTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no fences",
			input: "plain text",
			want:  "plain text",
		},
		{
			name:  "json fence",
			input: "```json\n[{\"title\": \"A\"}]\n```",
			want:  "[{\"title\": \"A\"}]",
		},
		{
			name:  "plain fence",
			input: "```\nsome output\n```",
			want:  "some output",
		},
		{
			name:  "fence with thinking tags",
			input: "<think>reasoning</think>\n```markdown\n## Outline\n```",
			want:  "## Outline",
		},
		{
			name:  "multi-line fenced body",
			input: "```\nline one\nline two\n```",
			want:  "line one\nline two",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llmutil.StripMarkdownFences(tt.input)
			if got != tt.want {
				t.Errorf("StripMarkdownFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestRegisterDefaultProviders(t *testing.T) {
	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	for _, name := range []string{"anthropic", "openai", "groq", "huggingface", "ollama", "together", "deepseek", "custom"} {
		p, err := factory.Create(llm.ProviderConfig{Provider: name, APIKey: "k", Model: "m"})
		if err != nil {
			t.Fatalf("Create(%q): %v", name, err)
		}
		if p == nil {
			t.Fatalf("Create(%q) returned nil provider", name)
		}
	}

	if _, err := factory.Create(llm.ProviderConfig{Provider: "unknown"}); err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}
