package embedding

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dungle03/rag-pdf/internal/cache"
	"github.com/dungle03/rag-pdf/internal/llm"
)

// fakeGateway embeds each text deterministically from its bytes, tracks call
// counts, and can be scripted to fail specific inputs.
type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	inFlight int
	maxSeen  int
	failOn   map[string]bool
}

func (g *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	g.mu.Lock()
	g.calls++
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	text := req.Input[0]
	fail := g.failOn[text]
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	if fail {
		return nil, llm.ErrUnavailable
	}

	// a distinct, text-dependent direction per input
	vec := []float32{float32(len(text)), float32(text[0]), 1}
	return &llm.EmbeddingResponse{Embeddings: [][]float32{vec}}, nil
}

func (g *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, llm.ErrUnavailable
}

func (g *fakeGateway) Provider(name string) (llm.Provider, error) {
	return nil, errors.New("no providers")
}

func newTestService(t *testing.T, gw llm.Gateway) (*Service, *cache.EmbeddingCache) {
	t.Helper()
	kv, err := cache.NewSQLiteKV(filepath.Join(t.TempDir(), "embed.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	ec := cache.NewEmbeddingCache(kv)
	return NewService(gw, ec, "test-model", 4, time.Second), ec
}

func unitNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestEmbedTexts_EmptyInput(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{})
	got, err := svc.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEmbedTexts_OrderPreservedAndNormalized(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	texts := []string{"alpha", "bee", "ceeee"}
	got, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, vec := range got {
		require.Lenf(t, vec, 3, "vector %d", i)
		assert.InDeltaf(t, 1.0, unitNorm(vec), 1e-5, "vector %d must be unit length", i)
	}

	// first component encodes len(text) before normalization, so ordering is
	// recoverable: len 5, 3, 5 with distinct second components
	assert.NotEqual(t, got[0], got[1])
	assert.NotEqual(t, got[0], got[2])
}

func TestEmbedTexts_CacheReplayIsIdentical(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	first, err := svc.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls)

	second, err := svc.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 2, gw.calls, "cache hits must not reach the gateway")
	assert.Equal(t, first, second)
}

func TestEmbedTexts_PartialHitsOnlyComputeMisses(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	ctx := context.Background()

	_, err := svc.EmbedTexts(ctx, []string{"alpha"})
	require.NoError(t, err)
	require.Equal(t, 1, gw.calls)

	got, err := svc.EmbedTexts(ctx, []string{"beta", "alpha", "gamma"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 3, gw.calls, "only the two misses hit the gateway")
}

func TestEmbedTexts_FailureLeavesNoPartialCacheState(t *testing.T) {
	gw := &fakeGateway{failOn: map[string]bool{"poison": true}}
	svc, ec := newTestService(t, gw)
	ctx := context.Background()

	_, err := svc.EmbedTexts(ctx, []string{"alpha", "poison", "beta"})
	require.ErrorIs(t, err, llm.ErrUnavailable)

	// none of the batch may have been cached, the successes included
	cached, err := ec.FetchMany(ctx, []string{ec.Key("alpha"), ec.Key("poison"), ec.Key("beta")})
	require.NoError(t, err)
	assert.Empty(t, cached)

	// a retry without the poison input succeeds and caches normally
	got, err := svc.EmbedTexts(ctx, []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEmbedTexts_ConcurrencyIsBounded(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	texts := make([]string, 32)
	for i := range texts {
		texts[i] = string(rune('a'+i%26)) + "-input-" + string(rune('a'+i/26))
	}
	_, err := svc.EmbedTexts(context.Background(), texts)
	require.NoError(t, err)

	assert.LessOrEqual(t, gw.maxSeen, 4)
}

func TestEmbedQuery(t *testing.T) {
	svc, _ := newTestService(t, &fakeGateway{})

	vec, err := svc.EmbedQuery(context.Background(), "what is this")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, unitNorm(vec), 1e-5)
}
