package vectorstore

import (
	"context"
	"errors"

	"github.com/dungle03/rag-pdf/internal/schema"
)

// ErrDimensionMismatch signals that incoming vectors disagree with the
// dimensionality the index was built at. The operation is not retriable: the
// index must be rebuilt (or cleared) under the new embedding configuration.
var ErrDimensionMismatch = errors.New("vectorstore: embedding dimension mismatch")

// ErrCorruptState signals that persisted metadata does not line up with the
// stored vectors. The index refuses to serve search results rather than
// return under-described matches.
var ErrCorruptState = errors.New("vectorstore: corrupt persisted state")

// Entry is a persisted (vector, chunk) pair owned by the index.
type Entry struct {
	Vec   []float32    `json:"-"`
	Chunk schema.Chunk `json:"chunk"`
}

// VectorStore is a persistent collection of (vector, chunk) pairs with exact
// inner-product search and MMR diversification.
type VectorStore interface {
	// Add appends vector/chunk pairs. Vectors must be unit-normalized and
	// share the index dimensionality (fixed by the first batch).
	Add(ctx context.Context, vectors [][]float32, chunks []schema.Chunk) error
	// Search returns at most topK chunks: the max(3·topK, topK) nearest
	// candidates by inner product, diversified with MMR.
	Search(ctx context.Context, queryVec []float32, topK int, mmrLambda float64) ([]schema.Chunk, error)
	Size(ctx context.Context) (int, error)
	ListDocs(ctx context.Context) ([]string, error)
	// RemoveDoc drops every entry belonging to a document and reports the
	// count removed. Previously returned chunk handles for that document
	// become invalid.
	RemoveDoc(ctx context.Context, docName string) (int, error)
}
