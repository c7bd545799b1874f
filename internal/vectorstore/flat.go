package vectorstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dungle03/rag-pdf/internal/schema"
)

const (
	vectorsFile = "vectors.bin"
	entriesFile = "entries.json"

	// file header: magic, format version, dim, count
	vectorsMagic   = uint32(0x52474156) // "RGAV"
	vectorsVersion = uint32(1)
)

// FlatStore is an exact exhaustive inner-product index persisted to a
// directory: vectors in a flat binary file, the chunk ledger as JSON. Every
// mutating call rewrites both files, and a fresh process reconstructs the
// index from them alone. If the two disagree on restart the store comes up
// degraded and refuses to search.
type FlatStore struct {
	mu       sync.RWMutex
	dir      string
	dim      int
	entries  []Entry
	docs     map[string]int // doc name -> entry count
	degraded bool
}

// NewFlatStore opens (or creates) the index persisted under dir.
func NewFlatStore(dir string) (*FlatStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	s := &FlatStore{dir: dir, docs: make(map[string]int)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Degraded reports whether the persisted state failed verification on load.
// A degraded store refuses to search until it is cleared and rebuilt.
func (s *FlatStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// Dim returns the index dimensionality (0 while empty).
func (s *FlatStore) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

func (s *FlatStore) Add(ctx context.Context, vectors [][]float32, chunks []schema.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectorstore: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return fmt.Errorf("%w: refusing to add to a degraded index", ErrCorruptState)
	}

	dim := s.dim
	if len(s.entries) == 0 {
		// Rebuilding an empty index may pick up a new dimensionality.
		dim = len(vectors[0])
	}
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: index dim %d, incoming %d", ErrDimensionMismatch, dim, len(v))
		}
	}

	s.dim = dim
	for i, c := range chunks {
		s.entries = append(s.entries, Entry{Vec: vectors[i], Chunk: c})
		s.docs[c.DocName]++
	}

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist index after add: %w", err)
	}
	return nil
}

func (s *FlatStore) Search(ctx context.Context, queryVec []float32, topK int, mmrLambda float64) ([]schema.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.degraded {
		return nil, fmt.Errorf("%w: index cannot serve searches", ErrCorruptState)
	}
	if len(s.entries) == 0 || topK <= 0 {
		return nil, nil
	}
	if len(queryVec) != s.dim {
		return nil, fmt.Errorf("%w: index dim %d, query %d", ErrDimensionMismatch, s.dim, len(queryVec))
	}

	cands := s.topByDotLocked(queryVec, max(topK*3, topK))
	vecs := make([][]float32, len(cands))
	for i, gid := range cands {
		vecs[i] = s.entries[gid].Vec
	}

	picked := MMR(queryVec, vecs, topK, mmrLambda)

	out := make([]schema.Chunk, 0, len(picked))
	for _, i := range picked {
		e := s.entries[cands[i]]
		c := e.Chunk
		c.Score = Dot(e.Vec, queryVec)
		out = append(out, c)
	}
	return out, nil
}

// topByDotLocked scores every stored vector and returns up to n entry indexes
// ordered by descending inner product, ties kept in insertion order.
func (s *FlatStore) topByDotLocked(queryVec []float32, n int) []int {
	type scored struct {
		gid int
		sim float64
	}
	all := make([]scored, len(s.entries))
	for i, e := range s.entries {
		all[i] = scored{gid: i, sim: Dot(e.Vec, queryVec)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })

	if n > len(all) {
		n = len(all)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].gid
	}
	return out
}

// Entries returns a snapshot of the stored entries for callers that score
// candidates themselves. The snapshot is invalidated by RemoveDoc.
func (s *FlatStore) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *FlatStore) Size(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *FlatStore) ListDocs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]string, 0, len(s.docs))
	for d := range s.docs {
		docs = append(docs, d)
	}
	sort.Strings(docs)
	return docs, nil
}

func (s *FlatStore) RemoveDoc(ctx context.Context, docName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.degraded {
		return 0, fmt.Errorf("%w: refusing to mutate a degraded index", ErrCorruptState)
	}

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Chunk.DocName == docName {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	if removed == 0 {
		return 0, nil
	}

	s.entries = kept
	delete(s.docs, docName)
	if len(s.entries) == 0 {
		s.dim = 0
	}

	if err := s.persistLocked(); err != nil {
		return removed, fmt.Errorf("persist index after remove: %w", err)
	}
	return removed, nil
}

// Clear drops all entries and persisted state, lifting any degraded flag.
func (s *FlatStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.docs = make(map[string]int)
	s.dim = 0
	s.degraded = false

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("persist cleared index: %w", err)
	}
	return nil
}

// persistLocked writes both files through temp-and-rename so a concurrent
// reader of the directory sees either the old pair or the new pair.
func (s *FlatStore) persistLocked() error {
	if err := s.writeVectorsLocked(); err != nil {
		return err
	}
	return s.writeEntriesLocked()
}

func (s *FlatStore) writeVectorsLocked() error {
	path := filepath.Join(s.dir, vectorsFile)
	tmp := path + ".tmp"

	buf := make([]byte, 16+4*s.dim*len(s.entries))
	binary.LittleEndian.PutUint32(buf[0:4], vectorsMagic)
	binary.LittleEndian.PutUint32(buf[4:8], vectorsVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(s.dim))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(s.entries)))

	off := 16
	for _, e := range s.entries {
		for _, v := range e.Vec {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
			off += 4
		}
	}

	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", vectorsFile, err)
	}
	return os.Rename(tmp, path)
}

func (s *FlatStore) writeEntriesLocked() error {
	path := filepath.Join(s.dir, entriesFile)
	tmp := path + ".tmp"

	chunks := make([]schema.Chunk, len(s.entries))
	for i, e := range s.entries {
		chunks[i] = e.Chunk
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunk ledger: %w", err)
	}

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", entriesFile, err)
	}
	return os.Rename(tmp, path)
}

func (s *FlatStore) load() error {
	vecPath := filepath.Join(s.dir, vectorsFile)
	entPath := filepath.Join(s.dir, entriesFile)

	vecData, vecErr := os.ReadFile(vecPath)
	entData, entErr := os.ReadFile(entPath)

	if os.IsNotExist(vecErr) && os.IsNotExist(entErr) {
		return nil // fresh index
	}
	if os.IsNotExist(vecErr) != os.IsNotExist(entErr) {
		// One half of the pair is missing: degrade instead of guessing.
		slog.Warn("vector index half-missing on disk, marking degraded", "dir", s.dir)
		s.degraded = true
		return nil
	}
	if vecErr != nil {
		return fmt.Errorf("read %s: %w", vectorsFile, vecErr)
	}
	if entErr != nil {
		return fmt.Errorf("read %s: %w", entriesFile, entErr)
	}

	dim, vecs, err := decodeVectors(vecData)
	if err != nil {
		return fmt.Errorf("decode %s: %w", vectorsFile, err)
	}

	var chunks []schema.Chunk
	if err := json.Unmarshal(entData, &chunks); err != nil {
		return fmt.Errorf("decode %s: %w", entriesFile, err)
	}

	if len(chunks) != len(vecs) {
		slog.Warn("vector index metadata mismatch, marking degraded",
			"dir", s.dir, "vectors", len(vecs), "metadata", len(chunks))
		s.degraded = true
		return nil
	}

	s.dim = dim
	s.entries = make([]Entry, len(vecs))
	for i := range vecs {
		s.entries[i] = Entry{Vec: vecs[i], Chunk: chunks[i]}
		s.docs[chunks[i].DocName]++
	}
	return nil
}

func decodeVectors(data []byte) (int, [][]float32, error) {
	if len(data) < 16 {
		return 0, nil, fmt.Errorf("file too short: %d bytes", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != vectorsMagic {
		return 0, nil, fmt.Errorf("bad magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != vectorsVersion {
		return 0, nil, fmt.Errorf("unsupported format version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	count := int(binary.LittleEndian.Uint32(data[12:16]))
	if len(data) != 16+4*dim*count {
		return 0, nil, fmt.Errorf("length %d does not match dim %d count %d", len(data), dim, count)
	}

	vecs := make([][]float32, count)
	off := 16
	for i := 0; i < count; i++ {
		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[i] = vec
	}
	return dim, vecs, nil
}
