// internal/llmutil/thinking.go
package llmutil

import (
	"regexp"
	"strings"
)

// Models wrap their chain of thought in a <think> block, but the tag spelling
// drifts between model families and sometimes between turns of the same model
// (<THINK>, <Think>, even the truncated <TINK>). Normalize every variant to a
// canonical lowercase tag before extraction.
var thinkTagRegex = regexp.MustCompile(`(?i)<\s*/?\s*th?ink\s*>`)

// canonical form after normalization
const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// NormalizeThinkTags rewrites all spelling variants of the think markers to
// the canonical <think>...</think> form.
func NormalizeThinkTags(s string) string {
	return thinkTagRegex.ReplaceAllStringFunc(s, func(tag string) string {
		if strings.Contains(tag, "/") {
			return thinkClose
		}
		return thinkOpen
	})
}

// SplitThinking separates a response into its thinking segment and the
// remaining text. Responses without a think block return ("", text). An
// unterminated block swallows the rest of the text as thinking.
func SplitThinking(s string) (thinking, text string) {
	normalized := NormalizeThinkTags(s)
	start := strings.Index(normalized, thinkOpen)
	if start == -1 {
		return "", strings.TrimSpace(normalized)
	}
	rest := normalized[start+len(thinkOpen):]
	end := strings.Index(rest, thinkClose)
	if end == -1 {
		return strings.TrimSpace(rest), strings.TrimSpace(normalized[:start])
	}
	thinking = strings.TrimSpace(rest[:end])
	text = strings.TrimSpace(normalized[:start] + rest[end+len(thinkClose):])
	return thinking, text
}
