package vectorstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/dungle03/rag-pdf/internal/schema"
)

// PgVectorStore implements VectorStore on Postgres/pgvector for deployments
// that already run a database. Candidate retrieval uses cosine distance in
// SQL; MMR runs in-process over the returned embeddings. Consistency between
// vectors and metadata is a single row here, so the flat store's ledger
// verification has no equivalent.
type PgVectorStore struct {
	db      *pgxpool.Pool
	session string
}

func NewPgVectorStore(db *pgxpool.Pool, sessionID string) *PgVectorStore {
	return &PgVectorStore{db: db, session: sessionID}
}

// EnsureSchema creates the pgvector extension and the chunk table if they do
// not exist. Run once at pool construction; every query here assumes the
// table is present. The column stays untyped on dimension so one table can
// hold sessions indexed under different embedding models; the per-session
// dimension probe in Add and Search enforces consistency within a session.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS rag_chunks (
			id         UUID PRIMARY KEY,
			session_id TEXT    NOT NULL,
			doc_name   TEXT    NOT NULL,
			page       INTEGER NOT NULL,
			chunk_id   INTEGER NOT NULL,
			content    TEXT    NOT NULL,
			embedding  VECTOR  NOT NULL,
			n_tokens   INTEGER NOT NULL DEFAULT 0,
			meta       JSONB,
			UNIQUE (session_id, doc_name, page, chunk_id)
		)`,
		`CREATE INDEX IF NOT EXISTS rag_chunks_session_idx ON rag_chunks (session_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure pgvector schema: %w", err)
		}
	}
	return nil
}

func (s *PgVectorStore) Add(ctx context.Context, vectors [][]float32, chunks []schema.Chunk) error {
	if len(vectors) != len(chunks) {
		return fmt.Errorf("vectorstore: %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(vectors) == 0 {
		return nil
	}

	var dim int
	if err := s.db.QueryRow(ctx,
		"SELECT COALESCE(MAX(vector_dims(embedding)), 0) FROM rag_chunks WHERE session_id = $1",
		s.session,
	).Scan(&dim); err != nil {
		return fmt.Errorf("probe index dimension: %w", err)
	}
	if dim > 0 && dim != len(vectors[0]) {
		return fmt.Errorf("%w: index dim %d, incoming %d", ErrDimensionMismatch, dim, len(vectors[0]))
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, c := range chunks {
		if len(vectors[i]) != len(vectors[0]) {
			return fmt.Errorf("%w: ragged batch, %d vs %d", ErrDimensionMismatch, len(vectors[0]), len(vectors[i]))
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO rag_chunks (id, session_id, doc_name, page, chunk_id, content, embedding, n_tokens, meta)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (session_id, doc_name, page, chunk_id)
			 DO UPDATE SET content = $6, embedding = $7, n_tokens = $8, meta = $9`,
			uuid.New(), s.session, c.DocName, c.Page, c.ChunkID, c.Text,
			pgvector.NewVector(vectors[i]), c.NTokens, c.Meta,
		)
		if err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.Key(), err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PgVectorStore) Search(ctx context.Context, queryVec []float32, topK int, mmrLambda float64) ([]schema.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	var dim int
	if err := s.db.QueryRow(ctx,
		"SELECT COALESCE(MAX(vector_dims(embedding)), 0) FROM rag_chunks WHERE session_id = $1",
		s.session,
	).Scan(&dim); err != nil {
		return nil, fmt.Errorf("probe index dimension: %w", err)
	}
	if dim == 0 {
		return nil, nil
	}
	if dim != len(queryVec) {
		return nil, fmt.Errorf("%w: index dim %d, query %d", ErrDimensionMismatch, dim, len(queryVec))
	}

	rows, err := s.db.Query(ctx,
		`SELECT doc_name, page, chunk_id, content, n_tokens, meta, embedding
		 FROM rag_chunks
		 WHERE session_id = $1
		 ORDER BY embedding <=> $2
		 LIMIT $3`,
		s.session, pgvector.NewVector(queryVec), max(topK*3, topK),
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var chunks []schema.Chunk
	var vecs [][]float32
	for rows.Next() {
		var c schema.Chunk
		var emb pgvector.Vector
		if err := rows.Scan(&c.DocName, &c.Page, &c.ChunkID, &c.Text, &c.NTokens, &c.Meta, &emb); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		chunks = append(chunks, c)
		vecs = append(vecs, emb.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search rows: %w", err)
	}

	picked := MMR(queryVec, vecs, topK, mmrLambda)
	out := make([]schema.Chunk, 0, len(picked))
	for _, i := range picked {
		c := chunks[i]
		c.Score = Dot(vecs[i], queryVec)
		out = append(out, c)
	}
	return out, nil
}

func (s *PgVectorStore) Size(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM rag_chunks WHERE session_id = $1", s.session,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *PgVectorStore) ListDocs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
		"SELECT DISTINCT doc_name FROM rag_chunks WHERE session_id = $1 ORDER BY doc_name", s.session)
	if err != nil {
		return nil, fmt.Errorf("list docs: %w", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan doc name: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (s *PgVectorStore) RemoveDoc(ctx context.Context, docName string) (int, error) {
	tag, err := s.db.Exec(ctx,
		"DELETE FROM rag_chunks WHERE session_id = $1 AND doc_name = $2", s.session, docName)
	if err != nil {
		return 0, fmt.Errorf("remove doc %s: %w", docName, err)
	}
	return int(tag.RowsAffected()), nil
}
