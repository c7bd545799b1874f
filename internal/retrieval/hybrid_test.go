package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungle03/rag-pdf/internal/schema"
	"github.com/dungle03/rag-pdf/internal/vectorstore"
)

func newHybridFixture(t *testing.T, vecs [][]float32, chunks []schema.Chunk) *HybridScorer {
	t.Helper()
	store, err := vectorstore.NewFlatStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), vecs, chunks))
	return NewHybridScorer(store)
}

func TestHybridScorer_EmptyStore(t *testing.T) {
	store, err := vectorstore.NewFlatStore(t.TempDir())
	require.NoError(t, err)

	got, err := NewHybridScorer(store).Retrieve(context.Background(), []float32{1, 0}, "q", Options{TopK: 3})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHybridScorer_DenseOnlyRanking(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{1, 0}, {0, 1}},
		[]schema.Chunk{
			{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "aligned with the query vector"},
			{DocName: "a.pdf", Page: 2, ChunkID: 1, Text: "orthogonal content"},
		})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "zzz", Options{TopK: 2, Alpha: 0, MMRLambda: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ChunkID)
	assert.Equal(t, 1, got[1].ChunkID)

	// dense remap: cosine 1 -> 1.0, cosine 0 -> 0.5
	assert.InDelta(t, 1.0, got[0].Meta["dense_score"].(float64), 1e-6)
	assert.InDelta(t, 0.5, got[1].Meta["dense_score"].(float64), 1e-6)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
}

func TestHybridScorer_ScoreBreakdownMetadata(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{1, 0}, {0, 1}},
		[]schema.Chunk{
			{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "neural embeddings for retrieval"},
			{DocName: "a.pdf", Page: 2, ChunkID: 1, Text: "unrelated gardening advice"},
		})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "neural retrieval",
		Options{TopK: 2, Alpha: 0.5, MMRLambda: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, c := range got {
		for _, key := range []string{"dense_score_raw", "dense_score", "lexical_score_raw", "lexical_score", "hybrid_score"} {
			_, ok := c.Meta[key]
			assert.Truef(t, ok, "missing %s", key)
		}
		assert.Equal(t, c.Meta["hybrid_score"].(float64), c.Score)
	}
}

func TestHybridScorer_LexicalWeightDecidesCandidatePool(t *testing.T) {
	// chunk 1 wins on dense similarity, chunk 0 wins on lexical overlap
	vecs := [][]float32{{0, 1}, {1, 0}}
	chunks := []schema.Chunk{
		{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "quantum entanglement experiments"},
		{DocName: "a.pdf", Page: 2, ChunkID: 1, Text: "weekly grocery list"},
	}

	h := newHybridFixture(t, vecs, chunks)
	ctx := context.Background()
	query := []float32{1, 0}

	// with a pool of one, only the fused-score winner survives to MMR
	dense, err := h.Retrieve(ctx, query, "quantum entanglement",
		Options{TopK: 1, CandidateMult: 1, Alpha: 0, MMRLambda: 1})
	require.NoError(t, err)
	require.Len(t, dense, 1)
	assert.Equal(t, 1, dense[0].ChunkID)

	lexical, err := h.Retrieve(ctx, query, "quantum entanglement",
		Options{TopK: 1, CandidateMult: 1, Alpha: 1, MMRLambda: 1})
	require.NoError(t, err)
	require.Len(t, lexical, 1)
	assert.Equal(t, 0, lexical[0].ChunkID)
}

func TestHybridScorer_AlphaShiftsFusedScores(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{0, 1}, {1, 0}},
		[]schema.Chunk{
			{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "quantum entanglement experiments"},
			{DocName: "a.pdf", Page: 2, ChunkID: 1, Text: "weekly grocery list"},
		})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "quantum entanglement",
		Options{TopK: 2, Alpha: 1, MMRLambda: 1})
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := map[int]schema.Chunk{}
	for _, c := range got {
		byID[c.ChunkID] = c
	}
	// with pure lexical weighting the term-matching chunk carries the
	// higher fused score regardless of its dense similarity
	assert.Greater(t, byID[0].Score, byID[1].Score)
	assert.InDelta(t, 1.0, byID[0].Meta["lexical_score"].(float64), 1e-9)
	assert.InDelta(t, 0.0, byID[1].Meta["lexical_score"].(float64), 1e-9)
}

func TestHybridScorer_DocAllowList(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{1, 0}, {0.9, 0.436}, {0, 1}},
		[]schema.Chunk{
			{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "alpha"},
			{DocName: "b.pdf", Page: 1, ChunkID: 0, Text: "bravo"},
			{DocName: "b.pdf", Page: 2, ChunkID: 1, Text: "charlie"},
		})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "q",
		Options{TopK: 3, Alpha: 0, MMRLambda: 1, Docs: []string{"b.pdf"}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, c := range got {
		assert.Equal(t, "b.pdf", c.DocName)
	}
}

func TestHybridScorer_DimensionMismatch(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{1, 0, 0}},
		[]schema.Chunk{{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "x"}})

	_, err := h.Retrieve(context.Background(), []float32{1, 0}, "q", Options{TopK: 1})
	require.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
}

func TestHybridScorer_RecencyBlend(t *testing.T) {
	now := float64(time.Now().Unix())
	h := newHybridFixture(t,
		[][]float32{{1, 0}, {1, 0}},
		[]schema.Chunk{
			{DocName: "old.pdf", Page: 1, ChunkID: 0, Text: "same text", UploadTimestamp: now - 365*86400},
			{DocName: "new.pdf", Page: 1, ChunkID: 0, Text: "same text", UploadTimestamp: now},
		})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "same text", Options{
		TopK:          2,
		Alpha:         0,
		MMRLambda:     1,
		RecencyWeight: 0.5,
		RecencyMode:   "exponential",
		HalfLifeDays:  30,
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// identical content, so the fresher document must rank first
	assert.Equal(t, "new.pdf", got[0].DocName)
	assert.Greater(t, got[0].RecencyScore, got[1].RecencyScore)
	assert.Contains(t, got[0].Meta, "recency_score")
}

func TestHybridScorer_MissingTimestampScoresMidpoint(t *testing.T) {
	h := newHybridFixture(t,
		[][]float32{{1, 0}},
		[]schema.Chunk{{DocName: "a.pdf", Page: 1, ChunkID: 0, Text: "x"}})

	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "x", Options{
		TopK:          1,
		MMRLambda:     1,
		RecencyWeight: 0.3,
		RecencyMode:   "exponential",
		HalfLifeDays:  30,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 0.5, got[0].RecencyScore, 1e-9)
}

func TestHybridScorer_TopKBoundsResults(t *testing.T) {
	vecs := make([][]float32, 10)
	chunks := make([]schema.Chunk, 10)
	for i := range vecs {
		vecs[i] = []float32{1, 0}
		chunks[i] = schema.Chunk{DocName: "a.pdf", Page: 1, ChunkID: i, Text: "repeated text"}
	}

	h := newHybridFixture(t, vecs, chunks)
	got, err := h.Retrieve(context.Background(), []float32{1, 0}, "repeated", Options{TopK: 3, MMRLambda: 0.5})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
