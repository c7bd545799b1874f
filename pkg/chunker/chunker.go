package chunker

import (
	"strings"

	"github.com/dungle03/rag-pdf/internal/schema"
	"github.com/dungle03/rag-pdf/pkg/tokenizer"
)

// Page is one (page number, text) pair from the extraction stage.
type Page struct {
	Number int
	Text   string
}

// Options control the token budget per chunk.
type Options struct {
	ChunkTokens   int // target chunk size in tokens
	OverlapTokens int // overlap between consecutive chunks
}

func DefaultOptions() Options {
	return Options{ChunkTokens: 400, OverlapTokens: 50}
}

// Provenance is attached to every produced chunk.
type Provenance struct {
	UploadTimestamp float64
	DocumentStatus  string
	DocumentVersion int
}

// ChunkPages splits page texts into token-budgeted chunks, preferring to cut
// at sentence or paragraph boundaries near the budget. Chunk ids are
// sequential across the whole document.
func ChunkPages(pages []Page, docName string, opts Options, prov Provenance) []schema.Chunk {
	if opts.ChunkTokens <= 0 {
		opts = DefaultOptions()
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.ChunkTokens {
		opts.OverlapTokens = opts.ChunkTokens / 4
	}

	// The budget is tracked in words; the token estimate is ~4/3 per word.
	wordBudget := max(opts.ChunkTokens*3/4, 1)
	wordOverlap := opts.OverlapTokens * 3 / 4

	var out []schema.Chunk
	cid := 0
	status := prov.DocumentStatus
	if status == "" {
		status = schema.StatusActive
	}

	for _, page := range pages {
		words := tokenizer.Words(page.Text)
		if len(words) == 0 {
			continue
		}

		for _, text := range splitWords(words, wordBudget, wordOverlap) {
			out = append(out, schema.Chunk{
				DocName: docName,
				Page:    page.Number,
				ChunkID: cid,
				Text:    text,
				NTokens: tokenizer.CountTokens(text),
				Meta: map[string]any{
					"doc":              docName,
					"filename":         docName,
					"page":             page.Number,
					"upload_timestamp": prov.UploadTimestamp,
					"document_status":  status,
					"document_version": prov.DocumentVersion,
				},
				UploadTimestamp: prov.UploadTimestamp,
				DocumentStatus:  status,
				DocumentVersion: prov.DocumentVersion,
			})
			cid++
		}
	}
	return out
}

// splitWords cuts a word sequence into budget-sized windows, looking ahead a
// little past the budget for a sentence end so chunks break cleanly.
func splitWords(words []string, budget, overlap int) []string {
	if len(words) <= budget {
		return []string{strings.Join(words, " ")}
	}

	// give the boundary search the same slack the budget allows
	lookahead := max(budget/8, 8)

	var chunks []string
	start := 0
	for start < len(words) {
		end := min(start+budget, len(words))

		if end < len(words) {
			if cut := findSentenceEnd(words, end, min(end+lookahead, len(words))); cut > start {
				end = cut
			}
		}

		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
		next := end - overlap
		if next <= start { // overlap ate all progress, force forward motion
			next = end
		}
		start = next
	}
	return chunks
}

// findSentenceEnd returns the index just past the first word in [from, to)
// ending a sentence, or 0 if none does.
func findSentenceEnd(words []string, from, to int) int {
	for i := from; i < to; i++ {
		w := words[i]
		if strings.HasSuffix(w, ".") || strings.HasSuffix(w, "!") || strings.HasSuffix(w, "?") {
			return i + 1
		}
	}
	return 0
}
