package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dungle03/rag-pdf/internal/cache"
	"github.com/dungle03/rag-pdf/internal/config"
	"github.com/dungle03/rag-pdf/internal/embedding"
	"github.com/dungle03/rag-pdf/internal/fingerprint"
	"github.com/dungle03/rag-pdf/internal/llm"
	"github.com/dungle03/rag-pdf/internal/rag"
	"github.com/dungle03/rag-pdf/internal/retrieval"
	"github.com/dungle03/rag-pdf/internal/schema"
	"github.com/dungle03/rag-pdf/internal/session"
	"github.com/dungle03/rag-pdf/internal/vectorstore"
	"github.com/dungle03/rag-pdf/pkg/chunker"
	"github.com/dungle03/rag-pdf/pkg/textextract"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	app, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "ingest":
		err = app.ingest(ctx, os.Args[2:])
	case "ask":
		err = app.ask(ctx, os.Args[2:])
	case "search":
		err = app.search(ctx, os.Args[2:])
	case "docs":
		err = app.docs(ctx, os.Args[2:])
	case "rm":
		err = app.removeDoc(ctx, os.Args[2:])
	case "stats":
		err = app.stats(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  rag ingest <session> <file.pdf> [more.pdf ...]
  rag ask    <session> <question> [-docs a.pdf,b.pdf] [-k N] [-rerank]
  rag search <session> <query> [-k N] [-lambda F]
  rag docs   <session>
  rag rm     <session> <doc-name>
  rag stats  <session>`)
}

type app struct {
	cfg      *config.Config
	registry *session.Registry
	pipeline rag.Pipeline
	embedSvc *embedding.Service
	embedKV  cache.KV
	answers  *cache.AnswerCache
	pg       *pgxpool.Pool
}

func newApp(cfg *config.Config) (*app, error) {
	var embedKV cache.KV
	var err error
	if cfg.Storage.RedisAddr != "" {
		embedKV = cache.NewRedisKV(redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		}))
	} else {
		embedKV, err = cache.NewSQLiteKV(cfg.Storage.EmbedCacheDB)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
	}

	answers, err := cache.NewAnswerCache(cfg.Storage.AnswerCacheDB)
	if err != nil {
		return nil, fmt.Errorf("open answer cache: %w", err)
	}

	gateway := llm.NewGateway(cfg.LLM)
	embedSvc := embedding.NewService(gateway, cache.NewEmbeddingCache(embedKV),
		cfg.Embedding.Model, cfg.Embedding.Concurrency, cfg.Embedding.Timeout)

	var reranker *retrieval.Reranker
	if cfg.Retrieval.RerankEnabled {
		reranker = retrieval.NewReranker(gateway, cfg.Retrieval.RerankModel)
	}

	generator := rag.NewLLMGenerator(gateway, cfg.LLM.GenModel)

	var pg *pgxpool.Pool
	if cfg.Storage.DatabaseURL != "" {
		pg, err = pgxpool.New(context.Background(), cfg.Storage.DatabaseURL)
		if err == nil {
			if err = vectorstore.EnsureSchema(context.Background(), pg); err != nil {
				pg.Close()
			}
		}
		if err != nil {
			slog.Warn("postgres unavailable, continuing with file-backed index only", "error", err)
			pg = nil
		}
	}

	return &app{
		cfg: cfg,
		registry: session.NewRegistry(cfg.Storage.SessionsDir, fingerprint.Options{
			HammingThreshold: cfg.Tracker.HammingThreshold,
			VersionCutoff:    cfg.Tracker.VersionCutoff,
			UpdateCutoff:     cfg.Tracker.UpdateCutoff,
		}),
		pipeline: rag.NewPipeline(embedSvc, answers, generator, reranker, cfg.Retrieval),
		embedSvc: embedSvc,
		embedKV:  embedKV,
		answers:  answers,
		pg:       pg,
	}, nil
}

func (a *app) Close() {
	a.embedKV.Close()
	a.answers.Close()
	if a.pg != nil {
		a.pg.Close()
	}
}

func (a *app) ingest(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("ingest needs a session id and at least one file")
	}

	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}

	for _, path := range args[1:] {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		doc, err := textextract.ExtractPDF(raw)
		if err != nil {
			return fmt.Errorf("extract %s: %w", path, err)
		}

		result, err := a.pipeline.Ingest(ctx, rag.IngestRequest{
			Session:  sess,
			Filename: filepath.Base(path),
			Document: doc,
			Chunk:    chunker.DefaultOptions(),
		})
		if err != nil {
			return err
		}
		if result.Chunks > 0 {
			if result.Superseded != "" && a.pg != nil {
				if _, err := vectorstore.NewPgVectorStore(a.pg, sess.ID).RemoveDoc(ctx, result.Superseded); err != nil {
					slog.Warn("pgvector mirror removal failed", "doc", result.Superseded, "error", err)
				}
			}
			a.mirrorDoc(ctx, sess, filepath.Base(path))
		}
		printJSON(result)
	}
	return nil
}

// mirrorDoc copies a freshly indexed document into the shared pgvector table
// when Postgres is configured. Mirror failures degrade to a warning; the
// file-backed index remains the source of truth.
func (a *app) mirrorDoc(ctx context.Context, sess *session.Session, doc string) {
	if a.pg == nil {
		return
	}

	var vecs [][]float32
	var chunks []schema.Chunk
	for _, e := range sess.Store.Entries() {
		if e.Chunk.DocName == doc {
			vecs = append(vecs, e.Vec)
			chunks = append(chunks, e.Chunk)
		}
	}

	mirror := vectorstore.NewPgVectorStore(a.pg, sess.ID)
	if err := mirror.Add(ctx, vecs, chunks); err != nil {
		slog.Warn("pgvector mirror failed", "doc", doc, "error", err)
	}
}

func (a *app) ask(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("ask needs a session id and a question")
	}

	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	docsCSV := fs.String("docs", "", "comma-separated allow-list of document names")
	topK := fs.Int("k", 0, "number of passages to retrieve")
	rerank := fs.Bool("rerank", a.cfg.Retrieval.RerankEnabled, "rerank the shortlist")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}

	var docs []string
	if *docsCSV != "" {
		docs = splitCSV(*docsCSV)
	}

	resp, err := a.pipeline.Query(ctx, rag.QueryRequest{
		Session: sess,
		Query:   args[1],
		Docs:    docs,
		TopK:    *topK,
		Rerank:  *rerank,
	})
	if err != nil {
		return err
	}
	printJSON(resp)
	return nil
}

// search runs a raw dense retrieval pass without generation, against the
// pgvector mirror when one is configured and the local index otherwise.
func (a *app) search(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("search needs a session id and a query")
	}

	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	topK := fs.Int("k", a.cfg.Retrieval.TopK, "number of passages")
	lambda := fs.Float64("lambda", a.cfg.Retrieval.MMRLambda, "MMR relevance/diversity trade-off")
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}

	queryVec, err := a.embedSvc.EmbedQuery(ctx, args[1])
	if err != nil {
		return err
	}

	var store vectorstore.VectorStore = sess.Store
	if a.pg != nil {
		store = vectorstore.NewPgVectorStore(a.pg, sess.ID)
	}

	chunks, err := store.Search(ctx, queryVec, *topK, *lambda)
	if err != nil {
		return err
	}
	printJSON(chunks)
	return nil
}

func (a *app) docs(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("docs needs a session id")
	}
	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}

	docs, err := sess.Store.ListDocs(ctx)
	if err != nil {
		return err
	}
	size, err := sess.Store.Size(ctx)
	if err != nil {
		return err
	}
	printJSON(map[string]any{"docs": docs, "vectors": size})
	return nil
}

func (a *app) removeDoc(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("rm needs a session id and a document name")
	}
	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}

	removed, err := sess.Store.RemoveDoc(ctx, args[1])
	if err != nil {
		return err
	}
	if _, err := sess.Tracker.Archive(args[1]); err != nil {
		slog.Warn("fingerprint archive failed", "doc", args[1], "error", err)
	}
	if a.pg != nil {
		if _, err := vectorstore.NewPgVectorStore(a.pg, sess.ID).RemoveDoc(ctx, args[1]); err != nil {
			slog.Warn("pgvector mirror removal failed", "doc", args[1], "error", err)
		}
	}
	printJSON(map[string]any{"doc": args[1], "removed": removed})
	return nil
}

func (a *app) stats(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("stats needs a session id")
	}
	sess, err := a.registry.Get(args[0])
	if err != nil {
		return err
	}
	printJSON(sess.Tracker.Statistics())
	return nil
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
