package retrieval

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dungle03/rag-pdf/internal/fingerprint"
	"github.com/dungle03/rag-pdf/internal/schema"
	"github.com/dungle03/rag-pdf/internal/vectorstore"
)

// Options control one hybrid retrieval pass.
type Options struct {
	Docs          []string // allow-list of document names; nil means all
	TopK          int
	CandidateMult int     // candidate pool multiplier over TopK
	Alpha         float64 // lexical weight in [0,1]
	MMRLambda     float64
	RecencyWeight float64 // recency weight in [0,1]
	RecencyMode   string
	HalfLifeDays  float64
}

// HybridScorer fuses dense-vector similarity, lexical similarity and recency
// decay into one ranking, then diversifies the top candidates with MMR over
// the dense vectors.
type HybridScorer struct {
	store *vectorstore.FlatStore
}

func NewHybridScorer(store *vectorstore.FlatStore) *HybridScorer {
	return &HybridScorer{store: store}
}

// Retrieve ranks the allowed candidates for the query. The query vector must
// be unit-normalized and match the index dimensionality; a mismatch is a
// caller-visible, non-retriable error meaning the index was built under a
// different embedding configuration. Each returned chunk carries the full
// score breakdown in its metadata.
func (h *HybridScorer) Retrieve(ctx context.Context, queryVec []float32, queryText string, opts Options) ([]schema.Chunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = 8
	}
	if opts.CandidateMult <= 0 {
		opts.CandidateMult = 3
	}

	entries := h.store.Entries()

	var allow map[string]struct{}
	if len(opts.Docs) > 0 {
		allow = make(map[string]struct{}, len(opts.Docs))
		for _, d := range opts.Docs {
			allow[d] = struct{}{}
		}
	}

	var cands []vectorstore.Entry
	for _, e := range entries {
		if allow != nil {
			if _, ok := allow[e.Chunk.DocName]; !ok {
				continue
			}
		}
		cands = append(cands, e)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	if len(queryVec) != len(cands[0].Vec) {
		return nil, fmt.Errorf("%w: query dim %d, store dim %d (re-ingest under the current embedding model)",
			vectorstore.ErrDimensionMismatch, len(queryVec), len(cands[0].Vec))
	}

	// 1) dense cosine, remapped from [-1,1] to [0,1]
	denseRaw := make([]float64, len(cands))
	dense01 := make([]float64, len(cands))
	for i, e := range cands {
		denseRaw[i] = vectorstore.Dot(e.Vec, queryVec)
		dense01[i] = (denseRaw[i] + 1.0) / 2.0
	}

	// 2) lexical scores over the candidate set as corpus
	corpus := make([][]string, len(cands))
	for i, e := range cands {
		corpus[i] = tokenize(e.Chunk.Text)
	}
	lexRaw := newBM25(corpus).Scores(tokenize(queryText))
	lex01 := norm01(lexRaw)

	// 3) fuse dense and lexical
	combo := make([]float64, len(cands))
	for i := range cands {
		combo[i] = (1.0-opts.Alpha)*dense01[i] + opts.Alpha*lex01[i]
	}

	// 4) recency blend
	var recency []float64
	if opts.RecencyWeight > 0 {
		now := float64(time.Now().Unix())
		recency = make([]float64, len(cands))
		for i, e := range cands {
			if ts := e.Chunk.UploadTimestamp; ts > 0 {
				recency[i] = fingerprint.RecencyScoreAt(ts, now, opts.RecencyMode, opts.HalfLifeDays)
			} else {
				recency[i] = 0.5 // schedule midpoint for unknown timestamps
			}
			combo[i] = (1.0-opts.RecencyWeight)*combo[i] + opts.RecencyWeight*recency[i]
		}
	}

	// 5) top candidates by fused score, stable for deterministic ties
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return combo[order[a]] > combo[order[b]] })

	pool := max(opts.TopK*opts.CandidateMult, opts.TopK)
	if pool > len(order) {
		pool = len(order)
	}
	order = order[:pool]

	// 6) MMR over the dense vectors, not the fused score
	vecs := make([][]float32, len(order))
	for i, gid := range order {
		vecs[i] = cands[gid].Vec
	}
	picked := vectorstore.MMR(queryVec, vecs, opts.TopK, opts.MMRLambda)

	out := make([]schema.Chunk, 0, len(picked))
	for _, i := range picked {
		gid := order[i]
		meta := map[string]any{
			"dense_score_raw":   denseRaw[gid],
			"dense_score":       dense01[gid],
			"lexical_score_raw": lexRaw[gid],
			"lexical_score":     lex01[gid],
			"hybrid_score":      combo[gid],
		}
		if recency != nil {
			meta["recency_score"] = recency[gid]
		}

		c := cands[gid].Chunk.WithMeta(meta)
		c.Score = combo[gid]
		if recency != nil {
			c.RecencyScore = recency[gid]
		}
		out = append(out, c)
	}
	return out, nil
}
