package chat

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func getEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// countTokens counts tokens with the cl100k_base encoding, falling back to a
// character heuristic when the encoding is unavailable.
func countTokens(text string) int {
	if enc := getEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

// truncateTokens cuts text so it fits the token budget, deterministically
// from the front.
func truncateTokens(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if enc := getEncoding(); enc != nil {
		ids := enc.Encode(text, nil, nil)
		if len(ids) <= budget {
			return text
		}
		return enc.Decode(ids[:budget])
	}
	runes := []rune(text)
	limit := budget * 4
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func estimateTokens(text string) int {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}
	estimate := len([]rune(trimmed)) / 4
	if words := len(strings.Fields(trimmed)); estimate < words {
		estimate = words
	}
	if estimate == 0 {
		estimate = 1
	}
	return estimate
}
