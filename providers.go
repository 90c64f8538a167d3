package fieldex

import (
	"context"
	"fmt"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// Embedder converts text to vector embeddings. Optional — without it (and
// without an API key) only zero-shot extraction works.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
// Optional — if the provided Embedder also implements BatchEmbedder,
// document preparation will use it for significantly better throughput.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// EmbeddingResult carries the embedding vector and token counts.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
type BatchEmbeddingResult struct {
	Embeddings   [][]float32
	PromptTokens int
	TotalTokens  int
}

// Tier selects the generation model class for one call.
type Tier string

// Generation tier constants.
const (
	TierFull Tier = "full" // reasoning model, scored extraction and analysis
	TierLite Tier = "lite" // fast model, benchmark passes
)

// Generator produces model completions. Prompts are self-contained; the
// implementation picks the concrete model from the tier.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier Tier) (GenerationResult, error)
}

// GenerationResult carries the model output and its token usage.
type GenerationResult struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// embedderAdapter wraps a public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// BatchEmbed uses the inner batch path when available, falling back to
// one call per text.
func (a *embedderAdapter) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := a.inner.(BatchEmbedder); ok {
		r, err := be.BatchEmbed(ctx, texts)
		if err != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed: %w", err)
		}
		return domain.BatchEmbeddingResult{
			Embeddings:   r.Embeddings,
			PromptTokens: r.PromptTokens,
			TotalTokens:  r.TotalTokens,
		}, nil
	}
	return domain.BatchFallback(ctx, a, texts)
}

// generatorAdapter wraps a public Generator to satisfy internal domain.Generator.
type generatorAdapter struct {
	inner Generator
}

func (a *generatorAdapter) Generate(ctx context.Context, prompt string, tier domain.Tier) (domain.GenerationResult, error) {
	r, err := a.inner.Generate(ctx, prompt, Tier(tier))
	if err != nil {
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}
	return domain.GenerationResult{
		Text:         r.Text,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
	}, nil
}
