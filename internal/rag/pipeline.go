package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dungle03/rag-pdf/internal/cache"
	"github.com/dungle03/rag-pdf/internal/config"
	"github.com/dungle03/rag-pdf/internal/embedding"
	"github.com/dungle03/rag-pdf/internal/fingerprint"
	"github.com/dungle03/rag-pdf/internal/retrieval"
	"github.com/dungle03/rag-pdf/internal/schema"
	"github.com/dungle03/rag-pdf/internal/session"
	"github.com/dungle03/rag-pdf/pkg/chunker"
	"github.com/dungle03/rag-pdf/pkg/textextract"
)

// Pipeline wires the retrieval core together: ingestion (chunk, embed, index,
// fingerprint) and querying (answer cache, hybrid retrieval, rerank,
// generate).
type Pipeline interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
}

type IngestRequest struct {
	Session  *session.Session
	Filename string
	Document *textextract.Document
	Chunk    chunker.Options
}

type IngestResult struct {
	Status     string  `json:"status"` // new | duplicate | updated | version
	Version    int     `json:"version"`
	Pages      int     `json:"pages"`
	Chunks     int     `json:"chunks"`
	Similarity float64 `json:"similarity,omitempty"`
	Superseded string  `json:"superseded,omitempty"`
}

type QueryRequest struct {
	Session *session.Session
	Query   string
	Docs    []string // allow-list; nil means every indexed document
	TopK    int
	Rerank  bool
	NoCache bool
}

type QueryResponse struct {
	Answer     string            `json:"answer"`
	Confidence float64           `json:"confidence"`
	Citations  []schema.Citation `json:"citations"`
	Sources    []schema.Chunk    `json:"sources,omitempty"`
	Cached     bool              `json:"cached"`
}

type pipeline struct {
	embedSvc  *embedding.Service
	answers   *cache.AnswerCache
	generator Generator
	reranker  *retrieval.Reranker
	cfg       config.RetrievalConfig
}

func NewPipeline(embedSvc *embedding.Service, answers *cache.AnswerCache, gen Generator, reranker *retrieval.Reranker, cfg config.RetrievalConfig) Pipeline {
	return &pipeline{
		embedSvc:  embedSvc,
		answers:   answers,
		generator: gen,
		reranker:  reranker,
		cfg:       cfg,
	}
}

func (p *pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	doc := req.Document
	if doc == nil || len(doc.Pages) == 0 {
		return &IngestResult{Status: fingerprint.RegisterNew}, nil
	}

	// Chunk first so the fingerprint records the chunk identities belonging
	// to this revision.
	chunks := chunker.ChunkPages(doc.Pages, req.Filename, req.Chunk, chunker.Provenance{})
	if len(chunks) == 0 {
		return &IngestResult{Status: fingerprint.RegisterNew, Pages: len(doc.Pages)}, nil
	}

	chunkIDs := make([]string, len(chunks))
	for i, c := range chunks {
		chunkIDs[i] = c.Key()
	}

	reg, err := req.Session.Tracker.Register(req.Filename, doc.RawBytes, doc.NormalizedText, len(doc.Pages), chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("register document %s: %w", req.Filename, err)
	}

	result := &IngestResult{
		Status:     reg.Status,
		Version:    reg.Fingerprint.Version,
		Pages:      len(doc.Pages),
		Chunks:     len(chunks),
		Similarity: reg.Similarity,
	}
	if reg.Superseded != nil {
		result.Superseded = reg.Superseded.Filename
	}

	if reg.Status == fingerprint.RegisterDuplicate {
		// Content already indexed; nothing new to embed or store.
		result.Chunks = 0
		return result, nil
	}

	// A superseding revision replaces the old one wholesale. Drop the old
	// generation's chunks before indexing the new ones so each
	// (doc, page, chunk) identity stays unique in the index.
	if reg.Superseded != nil {
		if _, err := req.Session.Store.RemoveDoc(ctx, reg.Superseded.Filename); err != nil {
			return nil, fmt.Errorf("remove superseded %s: %w", reg.Superseded.Filename, err)
		}
	}

	// Re-stamp chunks with the provenance the tracker assigned.
	prov := chunker.Provenance{
		UploadTimestamp: reg.Fingerprint.UploadTimestamp,
		DocumentStatus:  reg.Fingerprint.Status,
		DocumentVersion: reg.Fingerprint.Version,
	}
	chunks = chunker.ChunkPages(doc.Pages, req.Filename, req.Chunk, prov)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := p.embedSvc.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d chunks: %w", len(chunks), err)
	}

	if err := req.Session.Store.Add(ctx, vectors, chunks); err != nil {
		return nil, fmt.Errorf("index %s: %w", req.Filename, err)
	}

	slog.Info("document ingested",
		"session", req.Session.ID,
		"doc", req.Filename,
		"status", reg.Status,
		"version", reg.Fingerprint.Version,
		"chunks", len(chunks),
	)
	return result, nil
}

func (p *pipeline) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	if req.Query == "" {
		return &QueryResponse{}, nil
	}
	topK := req.TopK
	if topK <= 0 {
		topK = p.cfg.TopK
	}

	docset := req.Docs
	if len(docset) == 0 {
		var err error
		docset, err = req.Session.Store.ListDocs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list session docs: %w", err)
		}
	}

	if !req.NoCache {
		if hit, err := p.answers.Get(ctx, req.Query, docset); err != nil {
			slog.Warn("answer cache lookup failed", "error", err)
		} else if hit != nil {
			return &QueryResponse{
				Answer:     hit.Answer,
				Confidence: hit.Confidence,
				Citations:  hit.Citations,
				Cached:     true,
			}, nil
		}
	}

	queryVec, err := p.embedSvc.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	scorer := retrieval.NewHybridScorer(req.Session.Store)
	passages, err := scorer.Retrieve(ctx, queryVec, req.Query, retrieval.Options{
		Docs:          req.Docs,
		TopK:          topK,
		CandidateMult: p.cfg.CandidateMult,
		Alpha:         p.cfg.HybridAlpha,
		MMRLambda:     p.cfg.MMRLambda,
		RecencyWeight: p.cfg.RecencyWeight,
		RecencyMode:   p.cfg.RecencyMode,
		HalfLifeDays:  p.cfg.HalfLifeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	if len(passages) == 0 {
		return &QueryResponse{}, nil
	}

	if req.Rerank && p.reranker != nil {
		passages = p.reranker.Rerank(ctx, req.Query, passages, topK)
	}

	gen, err := p.generator.Generate(ctx, req.Query, passages)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	citations := make([]schema.Citation, len(passages))
	for i, c := range passages {
		citations[i] = schema.Citation{Doc: c.DocName, Page: c.Page, Score: c.Score}
	}

	if err := p.answers.Put(ctx, req.Query, docset, gen.Answer, gen.Confidence, citations); err != nil {
		slog.Warn("answer cache store failed", "error", err)
	}

	return &QueryResponse{
		Answer:     gen.Answer,
		Confidence: gen.Confidence,
		Citations:  citations,
		Sources:    passages,
	}, nil
}
