package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dungle03/rag-pdf/internal/schema"
)

// CachedAnswer is a previously computed answer with its confidence and
// citations. Entries are overwritten on every fresh compute; staleness is the
// caller's policy.
type CachedAnswer struct {
	Answer     string            `json:"answer"`
	Confidence float64           `json:"confidence"`
	Citations  []schema.Citation `json:"citations"`
	StoredAt   int64             `json:"stored_at"`
}

// AnswerCache maps (normalized question, document set) to a computed answer.
// It is shared process-wide across sessions; two sessions asking the same
// question over different document sets get distinct keys.
type AnswerCache struct {
	db *sql.DB
}

func NewAnswerCache(path string) (*AnswerCache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open answer cache: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS answer_cache (
			k TEXT PRIMARY KEY,
			answer TEXT NOT NULL,
			confidence REAL,
			citations TEXT,
			ts INTEGER
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create answer_cache table: %w", err)
	}

	return &AnswerCache{db: db}, nil
}

// Key digests the normalized question (whitespace collapsed, case-folded)
// together with the sorted unique document set, so the same question over
// {a,b} and {b,a} collides and over {a} vs {a,b} does not.
func (c *AnswerCache) Key(question string, docset []string) string {
	normQ := strings.ToLower(strings.Join(strings.Fields(question), " "))

	uniq := make(map[string]struct{}, len(docset))
	for _, d := range docset {
		uniq[d] = struct{}{}
	}
	docs := make([]string, 0, len(uniq))
	for d := range uniq {
		docs = append(docs, d)
	}
	sort.Strings(docs)

	sum := sha256.Sum256([]byte(normQ + "||" + strings.Join(docs, ",")))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached answer for the question/docset, or nil on a miss.
func (c *AnswerCache) Get(ctx context.Context, question string, docset []string) (*CachedAnswer, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT answer, confidence, citations, ts FROM answer_cache WHERE k = ?",
		c.Key(question, docset))

	var ans CachedAnswer
	var citationsJSON sql.NullString
	if err := row.Scan(&ans.Answer, &ans.Confidence, &citationsJSON, &ans.StoredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("answer cache get: %w", err)
	}

	if citationsJSON.Valid && citationsJSON.String != "" {
		if err := json.Unmarshal([]byte(citationsJSON.String), &ans.Citations); err != nil {
			return nil, fmt.Errorf("answer cache citations: %w", err)
		}
	}
	return &ans, nil
}

// Put stores an answer, overwriting any previous entry for the same key.
func (c *AnswerCache) Put(ctx context.Context, question string, docset []string, answer string, confidence float64, citations []schema.Citation) error {
	citationsJSON, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("marshal citations: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO answer_cache (k, answer, confidence, citations, ts) VALUES (?, ?, ?, ?, ?)",
		c.Key(question, docset), answer, confidence, string(citationsJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("answer cache put: %w", err)
	}
	return nil
}

func (c *AnswerCache) Close() error { return c.db.Close() }
