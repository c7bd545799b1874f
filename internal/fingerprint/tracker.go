package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dungle03/rag-pdf/internal/schema"
)

const fingerprintsFile = "document_fingerprints.json"

// Registration classifications.
const (
	RegisterNew       = "new"
	RegisterDuplicate = "duplicate"
	RegisterUpdated   = "updated"
	RegisterVersion   = "version"
)

// Fingerprint describes one ingested document revision. Once stored, the only
// permitted mutation is marking it superseded when a newer revision arrives.
type Fingerprint struct {
	Filename        string   `json:"filename"`
	FileHash        string   `json:"file_hash"`
	ContentHash     string   `json:"content_hash"`
	SemanticHash    string   `json:"semantic_hash"`
	UploadTimestamp float64  `json:"upload_timestamp"`
	PageCount       int      `json:"page_count"`
	ChunkCount      int      `json:"chunk_count"`
	ChunkIDs        []string `json:"chunk_ids"`
	Status          string   `json:"status"`
	Version         int      `json:"version"`
	Supersedes      []string `json:"supersedes"`
	SupersededBy    string   `json:"superseded_by,omitempty"`
}

// RegisterResult reports how a registration was classified.
type RegisterResult struct {
	Status      string
	Fingerprint *Fingerprint
	Superseded  *Fingerprint
	Similarity  float64
}

// Options carries the tunable classification constants. The cutoffs are
// empirically chosen defaults, not derived values.
type Options struct {
	HammingThreshold int
	VersionCutoff    float64
	UpdateCutoff     float64
}

func DefaultOptions() Options {
	return Options{
		HammingThreshold: 10,
		VersionCutoff:    0.95,
		UpdateCutoff:     0.80,
	}
}

// Tracker maintains per-document version history and classifies each newly
// ingested document as new, exact-duplicate, near-duplicate update, or new
// version. One tracker per session; registrations are serialized.
type Tracker struct {
	mu           sync.Mutex
	path         string
	opts         Options
	fingerprints map[string][]*Fingerprint // doc id -> oldest..newest
}

// NewTracker opens the fingerprint table persisted under dir.
func NewTracker(dir string, opts Options) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tracker directory: %w", err)
	}
	if opts.HammingThreshold <= 0 {
		opts = DefaultOptions()
	}

	t := &Tracker{
		path:         filepath.Join(dir, fingerprintsFile),
		opts:         opts,
		fingerprints: make(map[string][]*Fingerprint),
	}

	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fingerprint table: %w", err)
	}
	if err := json.Unmarshal(data, &t.fingerprints); err != nil {
		return nil, fmt.Errorf("decode fingerprint table %s: %w", t.path, err)
	}
	return t, nil
}

// docID is the filename without its extension.
func docID(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// Register fingerprints a document revision and classifies it.
//
// Exact byte duplicates of an existing revision of the same document return
// duplicate without touching state. Otherwise the new fuzzy hash is compared
// against every stored fingerprint; a close match of the same logical
// document becomes a new version (the old one superseded), a close match
// under a different name is reported as a duplicate without state change, a
// moderate match supersedes regardless of name, and anything else is new.
// The full table is rewritten atomically after every accepted registration.
func (t *Tracker) Register(filename string, raw []byte, normalizedText string, pageCount int, chunkIDs []string) (*RegisterResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fileSum := sha256.Sum256(raw)
	fileHash := hex.EncodeToString(fileSum[:])
	contentSum := sha256.Sum256([]byte(normalizedText))
	contentHash := hex.EncodeToString(contentSum[:])
	semHash := ComputeSimHash(normalizedText)

	id := docID(filename)

	for _, fp := range t.fingerprints[id] {
		if fp.FileHash == fileHash {
			return &RegisterResult{Status: RegisterDuplicate, Fingerprint: fp, Similarity: 1.0}, nil
		}
	}

	match, similarity := t.findSimilarLocked(semHash)

	newFP := &Fingerprint{
		Filename:        filename,
		FileHash:        fileHash,
		ContentHash:     contentHash,
		SemanticHash:    semHash.Hex(),
		UploadTimestamp: float64(time.Now().Unix()),
		PageCount:       pageCount,
		ChunkCount:      len(chunkIDs),
		ChunkIDs:        chunkIDs,
		Status:          schema.StatusActive,
		Version:         len(t.fingerprints[id]) + 1,
	}

	result := &RegisterResult{Status: RegisterNew, Fingerprint: newFP, Similarity: similarity}

	switch {
	case match != nil && similarity > t.opts.VersionCutoff:
		if docID(match.Filename) == id {
			result.Status = RegisterVersion
			result.Superseded = match
			t.supersedeLocked(match, newFP, id)
		} else {
			// Same content under a different name: report it, change nothing.
			result.Status = RegisterDuplicate
			result.Fingerprint = match
			return result, nil
		}

	case match != nil && similarity > t.opts.UpdateCutoff:
		result.Status = RegisterUpdated
		result.Superseded = match
		t.supersedeLocked(match, newFP, id)
	}

	t.fingerprints[id] = append(t.fingerprints[id], newFP)

	if err := t.persistLocked(); err != nil {
		return nil, fmt.Errorf("persist fingerprint table: %w", err)
	}
	return result, nil
}

// findSimilarLocked scans every fingerprint across every document (O(n) in
// total fingerprint count) for the minimum Hamming distance match.
func (t *Tracker) findSimilarLocked(h SimHash) (*Fingerprint, float64) {
	var best *Fingerprint
	bestDist := SimHashBits + 1

	for _, versions := range t.fingerprints {
		for _, fp := range versions {
			stored, err := ParseSimHash(fp.SemanticHash)
			if err != nil {
				continue
			}
			if d := h.Hamming(stored); d < bestDist {
				bestDist = d
				best = fp
			}
		}
	}

	if best != nil && bestDist <= t.opts.HammingThreshold {
		return best, 1.0 - float64(bestDist)/float64(SimHashBits)
	}
	return nil, 0.0
}

func (t *Tracker) supersedeLocked(old, replacement *Fingerprint, newDocID string) {
	old.Status = schema.StatusSuperseded
	old.SupersededBy = newDocID
	replacement.Supersedes = []string{old.Filename}
}

// persistLocked rewrites the full table through temp-and-rename, so a
// concurrent reader of the file sees either the old or the new table.
func (t *Tracker) persistLocked() error {
	data, err := json.MarshalIndent(t.fingerprints, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fingerprint table: %w", err)
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fingerprint table: %w", err)
	}
	return os.Rename(tmp, t.path)
}

// Archive marks every active fingerprint of a document archived, for use when
// the document's chunks are removed from the index. Returns how many
// fingerprints changed status; zero means nothing was active and the table is
// left untouched.
func (t *Tracker) Archive(filename string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var n int
	for _, fp := range t.fingerprints[docID(filename)] {
		if fp.Status == schema.StatusActive {
			fp.Status = schema.StatusArchived
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	if err := t.persistLocked(); err != nil {
		return 0, fmt.Errorf("persist fingerprint table: %w", err)
	}
	return n, nil
}

// GetDocumentMetadata returns the newest active fingerprint for a document,
// falling back to the newest of any status.
func (t *Tracker) GetDocumentMetadata(filename string) *Fingerprint {
	t.mu.Lock()
	defer t.mu.Unlock()

	versions := t.fingerprints[docID(filename)]
	if len(versions) == 0 {
		return nil
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if versions[i].Status == schema.StatusActive {
			return versions[i]
		}
	}
	return versions[len(versions)-1]
}

// AllDocuments returns every fingerprint, all versions included.
func (t *Tracker) AllDocuments() []*Fingerprint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Fingerprint
	for _, versions := range t.fingerprints {
		out = append(out, versions...)
	}
	return out
}

// ActiveDocuments returns only fingerprints with status active.
func (t *Tracker) ActiveDocuments() []*Fingerprint {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*Fingerprint
	for _, versions := range t.fingerprints {
		for _, fp := range versions {
			if fp.Status == schema.StatusActive {
				out = append(out, fp)
			}
		}
	}
	return out
}

// Statistics summarizes the tracked documents.
type Statistics struct {
	TotalDocuments      int `json:"total_documents"`
	ActiveDocuments     int `json:"active_documents"`
	SupersededDocuments int `json:"superseded_documents"`
	ArchivedDocuments   int `json:"archived_documents"`
	TotalChunks         int `json:"total_chunks"`
	UniqueFilenames     int `json:"unique_filenames"`
}

func (t *Tracker) Statistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	var stats Statistics
	stats.UniqueFilenames = len(t.fingerprints)
	for _, versions := range t.fingerprints {
		for _, fp := range versions {
			stats.TotalDocuments++
			switch fp.Status {
			case schema.StatusActive:
				stats.ActiveDocuments++
				stats.TotalChunks += fp.ChunkCount
			case schema.StatusSuperseded:
				stats.SupersededDocuments++
			case schema.StatusArchived:
				stats.ArchivedDocuments++
			}
		}
	}
	return stats
}
