package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) KV {
	t.Helper()
	kv, err := NewSQLiteKV(filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestEmbeddingCache_KeyIsStableContentDigest(t *testing.T) {
	c := NewEmbeddingCache(newTestKV(t))

	assert.Equal(t, c.Key("hello"), c.Key("hello"))
	assert.NotEqual(t, c.Key("hello"), c.Key("hello "))
	assert.Len(t, c.Key("hello"), 64)
}

func TestEmbeddingCache_RoundTripIsBitIdentical(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(newTestKV(t))

	vecs := map[string][]float32{
		c.Key("a"): {0.1, -0.2, 0.3},
		c.Key("b"): {1, 0, 0},
	}
	require.NoError(t, c.UpsertMany(ctx, vecs))

	got, err := c.FetchMany(ctx, []string{c.Key("a"), c.Key("b"), c.Key("missing")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, got[c.Key("a")])
	assert.Equal(t, []float32{1, 0, 0}, got[c.Key("b")])
}

func TestEmbeddingCache_OverwritesExistingEntry(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(newTestKV(t))
	k := c.Key("text")

	require.NoError(t, c.UpsertMany(ctx, map[string][]float32{k: {1, 2}}))
	require.NoError(t, c.UpsertMany(ctx, map[string][]float32{k: {3, 4}}))

	got, err := c.FetchMany(ctx, []string{k})
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, got[k])
}

func TestEmbeddingCache_MixedDimensionsRejected(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(newTestKV(t))

	err := c.UpsertMany(ctx, map[string][]float32{
		c.Key("a"): {1, 2, 3},
		c.Key("b"): {1, 2},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed dimensions")

	// mixed dimensions already persisted are rejected on read
	require.NoError(t, c.UpsertMany(ctx, map[string][]float32{c.Key("a"): {1, 2, 3}}))
	require.NoError(t, c.UpsertMany(ctx, map[string][]float32{c.Key("b"): {1, 2}}))
	_, err = c.FetchMany(ctx, []string{c.Key("a"), c.Key("b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mixed dimensions")
}

func TestEmbeddingCache_EmptyBatches(t *testing.T) {
	ctx := context.Background()
	c := NewEmbeddingCache(newTestKV(t))

	require.NoError(t, c.UpsertMany(ctx, nil))
	got, err := c.FetchMany(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3e-7, 0}
	decoded, err := decodeVector(encodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	_, err = decodeVector([]byte{1, 2})
	assert.Error(t, err)
	_, err = decodeVector([]byte{2, 0, 0, 0, 1, 1, 1, 1}) // claims dim 2, holds 1
	assert.Error(t, err)
}
