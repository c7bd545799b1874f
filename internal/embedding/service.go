package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dungle03/rag-pdf/internal/cache"
	"github.com/dungle03/rag-pdf/internal/llm"
)

// Service produces unit-length embedding vectors, shielding the upstream
// embedding API behind the content-addressed cache. For one batch: keys are
// digested for every input, hits are fetched in one bulk call, misses are
// computed concurrently with bounded parallelism, written back in one bulk
// call, and the output is assembled in the original input order.
type Service struct {
	gateway     llm.Gateway
	cache       *cache.EmbeddingCache
	model       string
	concurrency int
	timeout     time.Duration
}

func NewService(gw llm.Gateway, ec *cache.EmbeddingCache, model string, concurrency int, timeout time.Duration) *Service {
	if model == "" {
		model = "text-embedding-3-small"
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{
		gateway:     gw,
		cache:       ec,
		model:       model,
		concurrency: concurrency,
		timeout:     timeout,
	}
}

// EmbedTexts returns one unit vector per input text, in input order. Empty
// input yields an empty result, not an error. Vectors are normalized before
// they are cached, so a cache hit is bit-identical to the fresh computation
// it replays.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = s.cache.Key(t)
	}

	cached, err := s.cache.FetchMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch embedding cache: %w", err)
	}

	var missIdx []int
	for i, k := range keys {
		if _, ok := cached[k]; !ok {
			missIdx = append(missIdx, i)
		}
	}

	computed := make([][]float32, len(texts))
	if len(missIdx) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)

		for _, i := range missIdx {
			i := i
			g.Go(func() error {
				vec, err := s.embedOne(gctx, texts[i])
				if err != nil {
					return err
				}
				computed[i] = normalize(vec)
				return nil
			})
		}
		// No cache write happens unless every miss succeeded, so a timed-out
		// or failed upstream call cannot leave partial state behind.
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("embed %d cache misses: %w", len(missIdx), err)
		}

		fill := make(map[string][]float32, len(missIdx))
		for _, i := range missIdx {
			fill[keys[i]] = computed[i]
		}
		if err := s.cache.UpsertMany(ctx, fill); err != nil {
			return nil, fmt.Errorf("write embedding cache: %w", err)
		}
		slog.Debug("embedding batch", "total", len(texts), "hits", len(texts)-len(missIdx), "misses", len(missIdx))
	}

	out := make([][]float32, len(texts))
	for i, k := range keys {
		if vec, ok := cached[k]; ok {
			out[i] = vec
		} else {
			out[i] = computed[i]
		}
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (s *Service) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := s.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return vecs[0], nil
}

func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.gateway.Embed(ctx, llm.EmbeddingRequest{
		Model: s.model,
		Input: []string{text},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", llm.ErrUnavailable)
	}
	return resp.Embeddings[0], nil
}

// normalize scales a vector to unit length so inner product equals cosine.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum) + 1e-12
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
