package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 1, CountTokens(""))
	assert.Equal(t, 1, CountTokens("one"))
	assert.Equal(t, 4, CountTokens("one two three"))
	assert.Equal(t, 8, CountTokens("a b c d e f"))
}

func TestWords(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Words(" a \n b\tc "))
	assert.Empty(t, Words("   "))
}

func TestCountFromWords(t *testing.T) {
	assert.Equal(t, 1, CountFromWords(0))
	assert.Equal(t, 4, CountFromWords(3))
	assert.Equal(t, CountTokens("one two three"), CountFromWords(3))
}
