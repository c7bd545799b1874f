package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/dungle03/rag-pdf/internal/fingerprint"
	"github.com/dungle03/rag-pdf/internal/vectorstore"
)

// Session owns one vector index and one fingerprint tracker, both persisted
// under the session's directory. The ingest path is the only writer; queries
// are read-only and freely parallel.
type Session struct {
	ID      string
	Dir     string
	Store   *vectorstore.FlatStore
	Tracker *fingerprint.Tracker
}

// Registry maps session ids to their owned index/tracker instances,
// constructed on first use. There is no implicit process-wide default
// session.
type Registry struct {
	mu       sync.Mutex
	baseDir  string
	opts     fingerprint.Options
	sessions map[string]*Session
}

func NewRegistry(baseDir string, opts fingerprint.Options) *Registry {
	return &Registry{
		baseDir:  baseDir,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

// Get returns the session for id, constructing and loading it from disk on
// first use.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	dir := filepath.Join(r.baseDir, id)
	store, err := vectorstore.NewFlatStore(filepath.Join(dir, "index"))
	if err != nil {
		return nil, fmt.Errorf("open session %s index: %w", id, err)
	}
	tracker, err := fingerprint.NewTracker(dir, r.opts)
	if err != nil {
		return nil, fmt.Errorf("open session %s tracker: %w", id, err)
	}

	s := &Session{ID: id, Dir: dir, Store: store, Tracker: tracker}
	r.sessions[id] = s
	return s, nil
}

// Drop evicts a session from the registry. When purge is set the persisted
// state is deleted as well.
func (r *Registry) Drop(id string, purge bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, id)
	if purge {
		if err := os.RemoveAll(filepath.Join(r.baseDir, id)); err != nil {
			return fmt.Errorf("purge session %s: %w", id, err)
		}
	}
	return nil
}

// IDs lists the sessions currently resident in the registry.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
