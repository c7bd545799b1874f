package retrieval

import (
	"math"
	"regexp"
	"strings"
)

// Tokens are letter runs (diacritics and combining marks included) and digit
// runs, case-folded. Queries and documents go through the same tokenizer.
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}]+|\d+`)

func tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// bm25 scores a query against a small corpus using Okapi BM25 with the usual
// k1/b constants. The candidate set itself is the corpus, so document
// frequencies are computed per query.
type bm25 struct {
	docs  [][]string
	df    map[string]int
	avgdl float64
}

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

func newBM25(docs [][]string) *bm25 {
	df := make(map[string]int)
	totalLen := 0
	for _, doc := range docs {
		totalLen += len(doc)
		seen := make(map[string]struct{}, len(doc))
		for _, tok := range doc {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	avgdl := 0.0
	if len(docs) > 0 {
		avgdl = float64(totalLen) / float64(len(docs))
	}
	return &bm25{docs: docs, df: df, avgdl: avgdl}
}

// Scores returns one score per corpus document for the query tokens.
func (b *bm25) Scores(query []string) []float64 {
	out := make([]float64, len(b.docs))
	if b.avgdl == 0 {
		return out
	}

	n := float64(len(b.docs))
	for i, doc := range b.docs {
		tf := make(map[string]int, len(doc))
		for _, tok := range doc {
			tf[tok]++
		}
		dl := float64(len(doc))

		var score float64
		for _, q := range query {
			f := float64(tf[q])
			if f == 0 {
				continue
			}
			idf := math.Log((n-float64(b.df[q])+0.5)/(float64(b.df[q])+0.5) + 1)
			score += idf * f * (bm25K1 + 1) / (f + bm25K1*(1-bm25B+bm25B*dl/b.avgdl))
		}
		out[i] = score
	}
	return out
}

// norm01 min-max normalizes scores into [0,1]. An all-equal input normalizes
// to all zeros instead of dividing by a vanishing range.
func norm01(xs []float64) []float64 {
	out := make([]float64, len(xs))
	if len(xs) == 0 {
		return out
	}

	mn, mx := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < mn {
			mn = x
		}
		if x > mx {
			mx = x
		}
	}
	if mx-mn < 1e-12 {
		return out
	}
	for i, x := range xs {
		out[i] = (x - mn) / (mx - mn)
	}
	return out
}
