package textextract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/dungle03/rag-pdf/pkg/chunker"
)

// Document is the producer contract toward the retrieval core: ordered
// (page, text) pairs for chunking, plus the raw bytes and a normalized
// full-text string for the fingerprint tracker.
type Document struct {
	Pages          []chunker.Page
	RawBytes       []byte
	NormalizedText string
}

// ExtractPDF reads a PDF into the producer contract. Pages that fail text
// extraction are skipped rather than failing the document.
func ExtractPDF(raw []byte) (*Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	var pages []chunker.Page
	var full strings.Builder
	numPages := reader.NumPage()

	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, chunker.Page{Number: i, Text: text})
		full.WriteString(text)
		full.WriteString("\n")
	}

	return &Document{
		Pages:          pages,
		RawBytes:       raw,
		NormalizedText: Normalize(full.String()),
	}, nil
}

// Normalize collapses whitespace and case-folds, producing the canonical text
// the fingerprint tracker hashes.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
