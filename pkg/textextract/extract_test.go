package textextract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello \n\t World  "))
	assert.Equal(t, "a b c", Normalize("A\nB\nC"))
	assert.Equal(t, "", Normalize("   "))
	assert.Equal(t, "", Normalize(""))
}

func TestNormalize_StableForHashing(t *testing.T) {
	// two renderings of the same text normalize identically, which is what
	// keeps content hashes layout-independent
	a := Normalize("The   quick\nbrown fox")
	b := Normalize("the quick brown\n\nfox")
	assert.Equal(t, a, b)
}

func TestExtractPDF_RejectsGarbage(t *testing.T) {
	_, err := ExtractPDF([]byte("definitely not a pdf"))
	assert.Error(t, err)
}
