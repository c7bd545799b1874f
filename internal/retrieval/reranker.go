package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dungle03/rag-pdf/internal/llm"
	"github.com/dungle03/rag-pdf/internal/schema"
)

// Reranker reorders a shortlist with a pairwise relevance model. Availability
// is probed once, lazily; if the model cannot be reached the reranker becomes
// a pass-through for the rest of the process lifetime and never fails a
// request.
type Reranker struct {
	gateway llm.Gateway
	model   string

	probeOnce sync.Once
	available bool
}

func NewReranker(gw llm.Gateway, model string) *Reranker {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Reranker{gateway: gw, model: model}
}

// Available reports the probed state; false before the first Rerank call only
// means the probe has not run yet.
func (r *Reranker) Available() bool {
	return r.available
}

// Rerank returns at most topK passages ordered by pairwise relevance,
// annotating survivors with a sigmoid-mapped relevance probability. When the
// model is unavailable the first topK inputs come back unchanged.
func (r *Reranker) Rerank(ctx context.Context, query string, passages []schema.Chunk, topK int) []schema.Chunk {
	if len(passages) == 0 {
		return passages
	}
	if topK <= 0 || topK > len(passages) {
		topK = len(passages)
	}

	probeScore := 0.0
	r.probeOnce.Do(func() {
		s, err := r.scorePair(ctx, query, passages[0].Text)
		if err != nil {
			slog.Warn("reranker model unavailable, falling back to pass-through", "error", err)
			return
		}
		r.available = true
		probeScore = s
	})

	if !r.available {
		return passages[:topK]
	}

	type scored struct {
		chunk schema.Chunk
		prob  float64
		ok    bool
	}
	out := make([]scored, len(passages))
	for i, p := range passages {
		var raw float64
		var err error
		if i == 0 && probeScore != 0 {
			raw = probeScore
		} else {
			raw, err = r.scorePair(ctx, query, p.Text)
		}
		if err != nil {
			// Keep the passage with its retrieval score; one failed pair
			// must not fail the request.
			out[i] = scored{chunk: p, prob: p.Score}
			continue
		}

		prob := sigmoid(raw - 5.0) // model scores 0..10, centered at 5
		c := p.WithMeta(map[string]any{"rerank_score": prob})
		c.Score = prob
		out[i] = scored{chunk: c, prob: prob, ok: true}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].prob > out[b].prob })

	result := make([]schema.Chunk, 0, topK)
	for _, s := range out[:topK] {
		result = append(result, s.chunk)
	}
	return result
}

func (r *Reranker) scorePair(ctx context.Context, query, passage string) (float64, error) {
	resp, err := r.gateway.Chat(ctx, llm.ChatRequest{
		Model: r.model,
		Messages: []llm.Message{
			{
				Role:    "system",
				Content: "Rate how relevant the document is to the query on a scale from 0 to 10. Reply with ONLY the number.",
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Query: %s\n\nDocument: %s", query, truncate(passage, 1000)),
			},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(resp.Content), 64)
	if err != nil {
		return 0, fmt.Errorf("parse relevance score %q: %w", resp.Content, err)
	}
	return score, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
