package tokenizer

import (
	"strings"
)

// CountTokens provides a rough token count estimate.
// For production, use tiktoken-go for exact counts.
func CountTokens(text string) int {
	// Rough estimate: ~4/3 tokens per word for English
	words := strings.Fields(text)
	return max(len(words)*4/3, 1)
}

// Words splits text on whitespace, the unit the chunker budgets against.
func Words(text string) []string {
	return strings.Fields(text)
}

// CountFromWords estimates tokens for a word count without re-splitting.
func CountFromWords(n int) int {
	return max(n*4/3, 1)
}
