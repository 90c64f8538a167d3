package domain

import (
	"context"
	"math"
)

// TokenTracker accumulates provider token usage for one flow invocation.
// A fresh tracker is created at the start of each flow and read at the end;
// the pipeline is sequential, so there is no locking. Trackers must not be
// shared across concurrent invocations.
type TokenTracker struct {
	llmInputTokens  int
	llmOutputTokens int
	embeddingTokens int
	llmCalls        int
	embeddingCalls  int
}

// NewTokenTracker creates an empty tracker.
func NewTokenTracker() *TokenTracker { return &TokenTracker{} }

// AddGeneration records one LLM call and its token usage. Nil-safe.
func (t *TokenTracker) AddGeneration(inputTokens, outputTokens int) {
	if t == nil {
		return
	}
	t.llmInputTokens += inputTokens
	t.llmOutputTokens += outputTokens
	t.llmCalls++
}

// AddEmbedding records one embedding call and its token usage. Nil-safe.
func (t *TokenTracker) AddEmbedding(tokens int) {
	if t == nil {
		return
	}
	t.embeddingTokens += tokens
	t.embeddingCalls++
}

// Reset zeroes all counters.
func (t *TokenTracker) Reset() {
	if t == nil {
		return
	}
	*t = TokenTracker{}
}

// Snapshot returns the current usage totals.
func (t *TokenTracker) Snapshot() UsageSummary {
	if t == nil {
		return UsageSummary{}
	}
	return UsageSummary{
		LLMInputTokens:  t.llmInputTokens,
		LLMOutputTokens: t.llmOutputTokens,
		LLMTotalTokens:  t.llmInputTokens + t.llmOutputTokens,
		EmbeddingTokens: t.embeddingTokens,
		TotalTokens:     t.llmInputTokens + t.llmOutputTokens + t.embeddingTokens,
		LLMCalls:        t.llmCalls,
		EmbeddingCalls:  t.embeddingCalls,
		TotalCalls:      t.llmCalls + t.embeddingCalls,
	}
}

// UsageSummary is a point-in-time view of tracked token usage.
type UsageSummary struct {
	LLMInputTokens  int `json:"llm_input_tokens"`
	LLMOutputTokens int `json:"llm_output_tokens"`
	LLMTotalTokens  int `json:"llm_total_tokens"`
	EmbeddingTokens int `json:"embedding_tokens"`
	TotalTokens     int `json:"total_tokens"`
	LLMCalls        int `json:"llm_calls"`
	EmbeddingCalls  int `json:"embedding_calls"`
	TotalCalls      int `json:"total_calls"`
}

// CostRates prices tokens in USD per million.
type CostRates struct {
	InputPerMTok     float64
	OutputPerMTok    float64
	EmbeddingPerMTok float64
}

// CostBreakdown is a priced usage summary in USD.
type CostBreakdown struct {
	Input     float64 `json:"input"`
	Output    float64 `json:"output"`
	Embedding float64 `json:"embedding"`
	Total     float64 `json:"total"`
}

// Cost prices the summary against the given rates. Amounts are rounded to
// six decimal places (micro-dollar precision).
func (s UsageSummary) Cost(r CostRates) CostBreakdown {
	input := float64(s.LLMInputTokens) / 1_000_000 * r.InputPerMTok
	output := float64(s.LLMOutputTokens) / 1_000_000 * r.OutputPerMTok
	embedding := float64(s.EmbeddingTokens) / 1_000_000 * r.EmbeddingPerMTok
	return CostBreakdown{
		Input:     roundMicro(input),
		Output:    roundMicro(output),
		Embedding: roundMicro(embedding),
		Total:     roundMicro(input + output + embedding),
	}
}

func roundMicro(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

type trackerKey struct{}

// NewContextWithTracker returns a context carrying a fresh tracker.
// Provider decorators record usage on it as calls happen; the flow reads
// the totals when it finishes.
func NewContextWithTracker(ctx context.Context) (context.Context, *TokenTracker) {
	t := NewTokenTracker()
	return context.WithValue(ctx, trackerKey{}, t), t
}

// TrackerFromContext extracts the tracker from context. Returns nil if not
// set; all tracker methods are nil-safe, so callers record unconditionally.
func TrackerFromContext(ctx context.Context) *TokenTracker {
	t, _ := ctx.Value(trackerKey{}).(*TokenTracker)
	return t
}
