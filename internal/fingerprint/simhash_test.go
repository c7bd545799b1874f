package fingerprint

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpusWords(n int) []string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("term%d", i)
	}
	return words
}

func TestComputeSimHash_EmptyTextIsZeroSentinel(t *testing.T) {
	assert.Equal(t, ZeroSimHash, ComputeSimHash(""))
	assert.Equal(t, ZeroSimHash, ComputeSimHash("   \n\t  "))
}

func TestComputeSimHash_Deterministic(t *testing.T) {
	text := strings.Join(corpusWords(50), " ")
	assert.Equal(t, ComputeSimHash(text), ComputeSimHash(text))
}

func TestComputeSimHash_CaseAndWhitespaceInsensitive(t *testing.T) {
	a := ComputeSimHash("The Quick Brown Fox")
	b := ComputeSimHash("  the   quick brown fox ")
	assert.Equal(t, a, b)
}

func TestSimHash_SmallEditStaysClose(t *testing.T) {
	words := corpusWords(100)
	base := ComputeSimHash(strings.Join(words, " "))

	// a 2% token change must stay within the fuzzy match threshold
	edited := append([]string(nil), words...)
	edited[10] = "alpha"
	edited[55] = "beta"
	near := ComputeSimHash(strings.Join(edited, " "))

	assert.LessOrEqual(t, base.Hamming(near), 10)
	assert.Greater(t, base.Similarity(near), 0.9)
}

func TestSimHash_UnrelatedTextsAreFar(t *testing.T) {
	words := corpusWords(100)
	base := ComputeSimHash(strings.Join(words, " "))

	other := make([]string, 100)
	for i := range other {
		other[i] = fmt.Sprintf("zebra%d", i)
	}
	far := ComputeSimHash(strings.Join(other, " "))

	assert.Greater(t, base.Hamming(far), 10)
	assert.Less(t, base.Similarity(far), 0.8)
}

func TestSimHash_HammingAndSimilarity(t *testing.T) {
	var a, b SimHash
	assert.Equal(t, 0, a.Hamming(b))
	assert.Equal(t, 1.0, a.Similarity(b))

	b[0] = 0xFF // 8 differing bits
	assert.Equal(t, 8, a.Hamming(b))
	assert.InDelta(t, 1.0-8.0/128.0, a.Similarity(b), 1e-9)
}

func TestSimHash_HexRoundTrip(t *testing.T) {
	h := ComputeSimHash(strings.Join(corpusWords(30), " "))

	hex := h.Hex()
	assert.Len(t, hex, 32)

	parsed, err := ParseSimHash(hex)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestParseSimHash_Invalid(t *testing.T) {
	_, err := ParseSimHash("zz")
	assert.Error(t, err)
	_, err = ParseSimHash("abcd") // too short
	assert.Error(t, err)
}
