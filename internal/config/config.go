package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	Retrieval RetrievalConfig
	Tracker   TrackerConfig
	Storage   StorageConfig
}

type LLMConfig struct {
	OpenAIKey        string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	GenModel         string
	MaxRetries       int
}

type EmbeddingConfig struct {
	Model       string
	Concurrency int
	Timeout     time.Duration
}

type RetrievalConfig struct {
	TopK          int
	CandidateMult int
	HybridAlpha   float64 // lexical weight in [0,1]
	MMRLambda     float64 // relevance/diversity trade-off in [0,1]
	RecencyWeight float64 // recency weight in [0,1]
	RecencyMode   string  // "exponential" | "linear" | "step"
	HalfLifeDays  float64
	RerankEnabled bool
	RerankModel   string
}

type TrackerConfig struct {
	HammingThreshold int // max SimHash distance (of 128 bits) to accept a match
	VersionCutoff    float64
	UpdateCutoff     float64
}

type StorageConfig struct {
	SessionsDir   string
	EmbedCacheDB  string
	AnswerCacheDB string
	RedisAddr     string // optional: shared embedding cache backend
	RedisPassword string
	RedisDB       int
	DatabaseURL   string // optional: pgvector store backend
}

func Load() (*Config, error) {
	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	concurrency, err := getEnvInt("EMBED_CONCURRENCY", 4)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBED_CONCURRENCY: %w", err)
	}

	timeoutSec, err := getEnvInt("EMBED_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBED_TIMEOUT_SECONDS: %w", err)
	}

	topK, err := getEnvInt("RAG_TOP_K", 8)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_TOP_K: %w", err)
	}

	candMult, err := getEnvInt("RAG_CANDIDATE_MULT", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_CANDIDATE_MULT: %w", err)
	}

	hamming, err := getEnvInt("RAG_FUZZY_HAMMING_THRESHOLD", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RAG_FUZZY_HAMMING_THRESHOLD: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		LLM: LLMConfig{
			OpenAIKey:        getEnv("OPENAI_API_KEY", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "openai"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			GenModel:         getEnv("RAG_LLM_MODEL", "gpt-4o-mini"),
			MaxRetries:       maxRetries,
		},
		Embedding: EmbeddingConfig{
			Model:       getEnv("RAG_EMBED_MODEL", "text-embedding-3-small"),
			Concurrency: concurrency,
			Timeout:     time.Duration(timeoutSec) * time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:          topK,
			CandidateMult: candMult,
			HybridAlpha:   getEnvFloat("RAG_HYBRID_ALPHA", 0.6),
			MMRLambda:     getEnvFloat("RAG_MMR_LAMBDA", 0.5),
			RecencyWeight: getEnvFloat("RAG_RECENCY_WEIGHT", 0.0),
			RecencyMode:   getEnv("RAG_RECENCY_MODE", "exponential"),
			HalfLifeDays:  getEnvFloat("RAG_RECENCY_HALF_LIFE_DAYS", 30),
			RerankEnabled: getEnvBool("RAG_RERANK_ENABLED", false),
			RerankModel:   getEnv("RAG_RERANK_MODEL", "gpt-4o-mini"),
		},
		Tracker: TrackerConfig{
			HammingThreshold: hamming,
			VersionCutoff:    getEnvFloat("RAG_VERSION_SIMILARITY_CUTOFF", 0.95),
			UpdateCutoff:     getEnvFloat("RAG_UPDATE_SIMILARITY_CUTOFF", 0.80),
		},
		Storage: StorageConfig{
			SessionsDir:   getEnv("RAG_SESSIONS_DIR", "./storage/sessions"),
			EmbedCacheDB:  getEnv("EMBED_CACHE_DB", "./storage/embed_cache.sqlite"),
			AnswerCacheDB: getEnv("ANSWER_CACHE_DB", "./storage/answer_cache.sqlite"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       redisDB,
			DatabaseURL:   getEnv("DATABASE_URL", ""),
		},
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	var bad []string
	if c.Retrieval.HybridAlpha < 0 || c.Retrieval.HybridAlpha > 1 {
		bad = append(bad, "RAG_HYBRID_ALPHA")
	}
	if c.Retrieval.MMRLambda < 0 || c.Retrieval.MMRLambda > 1 {
		bad = append(bad, "RAG_MMR_LAMBDA")
	}
	if c.Retrieval.RecencyWeight < 0 || c.Retrieval.RecencyWeight > 1 {
		bad = append(bad, "RAG_RECENCY_WEIGHT")
	}
	if c.Tracker.HammingThreshold < 0 || c.Tracker.HammingThreshold > 128 {
		bad = append(bad, "RAG_FUZZY_HAMMING_THRESHOLD")
	}
	if len(bad) > 0 {
		return fmt.Errorf("out-of-range config values: %s", strings.Join(bad, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
