package reasoning

import (
	"regexp"
	"strings"
)

var thinkingMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<scratchpad>.*?</scratchpad>`),
	regexp.MustCompile(`(?im)^\s*\[internal reasoning\].*$`),
}

// SanitizeThinking strips hidden chain-of-thought markup that a model may
// have echoed into its visible draft before it is surfaced as a reasoning
// step's ThinkingContent (spec §4.5's "sanitized draft").
func SanitizeThinking(text string) string {
	out := text
	for _, re := range thinkingMarkers {
		out = re.ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
