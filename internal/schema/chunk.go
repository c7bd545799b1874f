package schema

import "fmt"

// Document lifecycle statuses tracked by the fingerprint subsystem.
const (
	StatusActive     = "active"
	StatusSuperseded = "superseded"
	StatusArchived   = "archived"
)

// Chunk is the atomic retrieval unit: a span of text with page and document
// provenance. Chunks are immutable once created; later pipeline stages may
// attach a Score and scoring metadata but never change text or identity.
// Identity is (DocName, Page, ChunkID) and must be unique within an index.
type Chunk struct {
	DocName string `json:"doc_name"`
	Page    int    `json:"page"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
	NTokens int    `json:"n_tokens"`

	Score float64        `json:"score,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`

	// Provenance carried from the owning document's fingerprint.
	UploadTimestamp float64 `json:"upload_timestamp,omitempty"`
	DocumentStatus  string  `json:"document_status,omitempty"`
	DocumentVersion int     `json:"document_version,omitempty"`
	RecencyScore    float64 `json:"recency_score,omitempty"`
}

// Key returns the chunk's identity as a stable string, used as the chunk id
// list entry in document fingerprints.
func (c Chunk) Key() string {
	return Key(c.DocName, c.Page, c.ChunkID)
}

// MetaValue reads an open metadata field, tolerating a nil map.
func (c Chunk) MetaValue(key string) (any, bool) {
	if c.Meta == nil {
		return nil, false
	}
	v, ok := c.Meta[key]
	return v, ok
}

// WithMeta returns a shallow copy of the chunk with the given metadata fields
// merged in. The receiver is left untouched.
func (c Chunk) WithMeta(fields map[string]any) Chunk {
	merged := make(map[string]any, len(c.Meta)+len(fields))
	for k, v := range c.Meta {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	c.Meta = merged
	return c
}

// Key builds the identity string for a chunk position.
func Key(docName string, page, chunkID int) string {
	return fmt.Sprintf("%s:%d:%d", docName, page, chunkID)
}

// Citation points a generated answer back at a source chunk.
type Citation struct {
	Doc   string  `json:"doc"`
	Page  int     `json:"page"`
	Score float64 `json:"score"`
}
