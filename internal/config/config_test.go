package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.CandidateMult)
	assert.Equal(t, 0.6, cfg.Retrieval.HybridAlpha)
	assert.Equal(t, 0.5, cfg.Retrieval.MMRLambda)
	assert.Equal(t, 0.0, cfg.Retrieval.RecencyWeight)
	assert.Equal(t, "exponential", cfg.Retrieval.RecencyMode)

	assert.Equal(t, 10, cfg.Tracker.HammingThreshold)
	assert.Equal(t, 0.95, cfg.Tracker.VersionCutoff)
	assert.Equal(t, 0.80, cfg.Tracker.UpdateCutoff)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 4, cfg.Embedding.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Embedding.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("RAG_TOP_K", "12")
	t.Setenv("RAG_HYBRID_ALPHA", "0.3")
	t.Setenv("RAG_RECENCY_MODE", "step")
	t.Setenv("RAG_RERANK_ENABLED", "true")
	t.Setenv("EMBED_CONCURRENCY", "8")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 0.3, cfg.Retrieval.HybridAlpha)
	assert.Equal(t, "step", cfg.Retrieval.RecencyMode)
	assert.True(t, cfg.Retrieval.RerankEnabled)
	assert.Equal(t, 8, cfg.Embedding.Concurrency)
}

func TestLoad_RejectsOutOfRangeWeights(t *testing.T) {
	t.Setenv("RAG_HYBRID_ALPHA", "1.5")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_HYBRID_ALPHA")
}

func TestLoad_RejectsMalformedInts(t *testing.T) {
	t.Setenv("RAG_TOP_K", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RAG_TOP_K")
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("FLAG", "yes")
	assert.True(t, getEnvBool("FLAG", false))

	t.Setenv("FLAG", "off")
	assert.False(t, getEnvBool("FLAG", true))

	t.Setenv("FLAG", "")
	assert.True(t, getEnvBool("FLAG", true))
}
