package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// EmbeddingCache is a content-addressed store mapping a text digest to a dense
// vector. All vectors in one store share a dimension; a mixed-dimension read
// is a hard error rather than something silently tolerated.
type EmbeddingCache struct {
	kv KV
}

func NewEmbeddingCache(kv KV) *EmbeddingCache {
	return &EmbeddingCache{kv: kv}
}

// Key returns the stable cache key for an input text.
func (c *EmbeddingCache) Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// FetchMany returns the cached vectors for the subset of keys present.
func (c *EmbeddingCache) FetchMany(ctx context.Context, keys []string) (map[string][]float32, error) {
	raw, err := c.kv.FetchMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("embedding cache fetch: %w", err)
	}

	out := make(map[string][]float32, len(raw))
	dim := -1
	for k, blob := range raw {
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("embedding cache key %s: %w", k, err)
		}
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("embedding cache: mixed dimensions %d and %d", dim, len(vec))
		}
		out[k] = vec
	}
	return out, nil
}

// UpsertMany writes vectors back, overwriting existing entries.
func (c *EmbeddingCache) UpsertMany(ctx context.Context, items map[string][]float32) error {
	if len(items) == 0 {
		return nil
	}

	dim := -1
	encoded := make(map[string][]byte, len(items))
	for k, vec := range items {
		if dim == -1 {
			dim = len(vec)
		} else if len(vec) != dim {
			return fmt.Errorf("embedding cache: mixed dimensions %d and %d in upsert", dim, len(vec))
		}
		encoded[k] = encodeVector(vec)
	}

	if err := c.kv.UpsertMany(ctx, encoded); err != nil {
		return fmt.Errorf("embedding cache upsert: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) Close() error { return c.kv.Close() }

// Vector blobs are a uint32 length header followed by float32 little-endian
// values, so they round-trip bit-identically.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4+4*len(vec))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("vector blob too short: %d bytes", len(blob))
	}
	n := int(binary.LittleEndian.Uint32(blob[0:4]))
	if len(blob) != 4+4*n {
		return nil, fmt.Errorf("vector blob length %d does not match dimension %d", len(blob), n)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[4+4*i:]))
	}
	return vec, nil
}
