package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/dungle03/rag-pdf/internal/llm"
	"github.com/dungle03/rag-pdf/internal/schema"
)

// Generator is the contract toward the external generation stage: it turns a
// query and an ordered passage set into prose plus a scalar confidence.
type Generator interface {
	Generate(ctx context.Context, query string, passages []schema.Chunk) (*GenerateResult, error)
}

type GenerateResult struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

const generatorSystemPrompt = `You are an assistant answering questions strictly from the provided document excerpts.
Cite sources inline as [doc:page] after every claim. If the excerpts do not
contain the answer, say so instead of guessing.`

// LLMGenerator drives the generation stage through the provider gateway.
type LLMGenerator struct {
	gateway llm.Gateway
	model   string
}

func NewLLMGenerator(gw llm.Gateway, model string) *LLMGenerator {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &LLMGenerator{gateway: gw, model: model}
}

func (g *LLMGenerator) Generate(ctx context.Context, query string, passages []schema.Chunk) (*GenerateResult, error) {
	if len(passages) == 0 {
		return &GenerateResult{}, nil
	}

	var sb strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&sb, "[%s:%d]\n%s\n\n", p.DocName, p.Page, p.Text)
	}

	resp, err := g.gateway.Chat(ctx, llm.ChatRequest{
		Model: g.model,
		Messages: []llm.Message{
			{Role: "system", Content: generatorSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Excerpts:\n%s\nQuestion: %s", sb.String(), query)},
		},
		Temperature: 0.1,
		MaxTokens:   768,
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	return &GenerateResult{
		Answer:     resp.Content,
		Confidence: confidenceFrom(passages),
	}, nil
}

// confidenceFrom derives a [0,1] confidence from the retrieval scores of the
// passages the answer is grounded on.
func confidenceFrom(passages []schema.Chunk) float64 {
	var sum float64
	for _, p := range passages {
		sum += p.Score
	}
	conf := sum / float64(len(passages))
	if conf < 0 {
		return 0
	}
	if conf > 1 {
		return 1
	}
	return conf
}
