// Package llmutil provides shared helpers for wiring LLM providers and
// cleaning up model output before parsing.
package llmutil

import "strings"

// StripThinkingTags drops <think>...</think> reasoning blocks some models
// emit before their answer. An unterminated block swallows the rest of the
// input.
func StripThinkingTags(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "<think>")
		if start < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		rest := s[start+len("<think>"):]
		end := strings.Index(rest, "</think>")
		if end < 0 {
			break
		}
		s = rest[end+len("</think>"):]
	}
	return strings.TrimSpace(b.String())
}

// StripMarkdownFences removes the outermost markdown code fence pair
// (``` ... ```) from model output, after stripping thinking tags. Input
// without fences is returned unchanged.
func StripMarkdownFences(s string) string {
	s = StripThinkingTags(s)
	lines := strings.Split(s, "\n")

	first, last := -1, -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || first == last {
		return s
	}
	return strings.Join(lines[first+1:last], "\n")
}
