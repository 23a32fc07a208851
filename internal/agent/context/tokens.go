package context

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/haasonsaas/turnctl/internal/models"
)

// ModelContextWindows is the fallback table consulted when modelID isn't
// in models.DefaultCatalog (aliases the catalog doesn't register, or a
// provider/model the catalog doesn't carry builtin data for yet).
var ModelContextWindows = map[string]int{
	"claude-3-opus":     200000,
	"claude-3-sonnet":   200000,
	"claude-3-haiku":    200000,
	"claude-3-5-sonnet": 200000,
	"claude-3-5-haiku":  200000,
	"claude-opus-4":     200000,

	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"gpt-3.5-turbo":     16385,
	"gpt-3.5-turbo-16k": 16385,
	"o1":                200000,
	"o1-mini":           128000,
	"o1-preview":        128000,
	"o3-mini":           200000,

	"gemini-pro":       32768,
	"gemini-1.5-pro":   2097152,
	"gemini-1.5-flash": 1048576,
	"gemini-2.0-flash": 1048576,
}

// DefaultModelContextWindow is used for unrecognized models.
const DefaultModelContextWindow = 128000

// ContextWindowForModel returns the advertised context window for modelID.
// It checks models.DefaultCatalog (by ID or alias) first, since that's the
// richer, actively-maintained source of per-model capability data; a
// ModelContextWindows prefix match or DefaultModelContextWindow covers
// anything the catalog doesn't know about.
func ContextWindowForModel(modelID string) int {
	if model, ok := models.Get(modelID); ok && model.ContextWindow > 0 {
		return model.ContextWindow
	}
	if tokens, ok := ModelContextWindows[modelID]; ok {
		return tokens
	}
	bestMatch, bestTokens := "", 0
	for prefix, tokens := range ModelContextWindows {
		if strings.HasPrefix(modelID, prefix) && len(prefix) > len(bestMatch) {
			bestMatch, bestTokens = prefix, tokens
		}
	}
	if bestMatch != "" {
		return bestTokens
	}
	return DefaultModelContextWindow
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// cl100k_base is the tokenizer used by GPT-4, GPT-3.5, and (as an
// approximation) every other provider's models: an exact count for
// OpenAI, a close-enough estimate for Anthropic/Google, which is all
// context packing needs this for (budget comparisons, not billing).
func sharedEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// CountTokens returns the token count for text using tiktoken's cl100k_base
// encoding, falling back to a conservative 4-chars-per-token estimate if
// the encoding failed to load.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := sharedEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len([]rune(text)) / 4
}

// ForModel returns PackOptions sized against modelID's context window: a
// history budget of a quarter of the window in characters (reserving the
// rest for the system prompt, tool schemas, and the model's response),
// converted from the tiktoken-derived chars-per-token ratio rather than a
// fixed constant.
func ForModel(modelID string) PackOptions {
	opts := DefaultPackOptions()
	window := ContextWindowForModel(modelID)
	historyTokens := window / 4
	opts.MaxChars = historyTokens * charsPerToken(modelID)
	return opts
}

// charsPerToken estimates the chars-per-token ratio for modelID by
// encoding a representative sample, so MaxChars stays proportional to
// tiktoken's actual counts instead of a hardcoded constant.
func charsPerToken(modelID string) int {
	const sample = "The quick brown fox jumps over the lazy dog. Context packing budgets are derived from this ratio."
	tokens := CountTokens(sample)
	if tokens == 0 {
		return 4
	}
	ratio := len(sample) / tokens
	if ratio < 1 {
		return 1
	}
	return ratio
}
