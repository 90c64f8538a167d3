package domain

import (
	"context"
	"testing"
)

func TestTokenTracker_Accumulates(t *testing.T) {
	tr := NewTokenTracker()
	tr.AddGeneration(100, 40)
	tr.AddGeneration(50, 10)
	tr.AddEmbedding(30)

	s := tr.Snapshot()
	if s.LLMInputTokens != 150 {
		t.Errorf("LLMInputTokens = %d, want 150", s.LLMInputTokens)
	}
	if s.LLMOutputTokens != 50 {
		t.Errorf("LLMOutputTokens = %d, want 50", s.LLMOutputTokens)
	}
	if s.LLMTotalTokens != 200 {
		t.Errorf("LLMTotalTokens = %d, want 200", s.LLMTotalTokens)
	}
	if s.EmbeddingTokens != 30 {
		t.Errorf("EmbeddingTokens = %d, want 30", s.EmbeddingTokens)
	}
	if s.TotalTokens != 230 {
		t.Errorf("TotalTokens = %d, want 230", s.TotalTokens)
	}
	if s.LLMCalls != 2 || s.EmbeddingCalls != 1 || s.TotalCalls != 3 {
		t.Errorf("calls = %d/%d/%d, want 2/1/3", s.LLMCalls, s.EmbeddingCalls, s.TotalCalls)
	}
}

func TestTokenTracker_Reset(t *testing.T) {
	tr := NewTokenTracker()
	tr.AddGeneration(10, 5)
	tr.Reset()
	if s := tr.Snapshot(); s.TotalTokens != 0 || s.TotalCalls != 0 {
		t.Errorf("after reset: %+v", s)
	}
}

func TestTokenTracker_NilSafe(t *testing.T) {
	var tr *TokenTracker
	tr.AddGeneration(1, 1)
	tr.AddEmbedding(1)
	tr.Reset()
	if s := tr.Snapshot(); s.TotalTokens != 0 {
		t.Errorf("nil tracker snapshot = %+v", s)
	}
}

func TestTrackerFromContext(t *testing.T) {
	if got := TrackerFromContext(context.Background()); got != nil {
		t.Fatalf("expected nil tracker on bare context, got %v", got)
	}

	ctx, tr := NewContextWithTracker(context.Background())
	TrackerFromContext(ctx).AddEmbedding(7)
	if s := tr.Snapshot(); s.EmbeddingTokens != 7 || s.EmbeddingCalls != 1 {
		t.Errorf("usage via context = %+v", s)
	}
}

func TestUsageSummary_Cost(t *testing.T) {
	s := UsageSummary{
		LLMInputTokens:  1_000_000,
		LLMOutputTokens: 500_000,
		EmbeddingTokens: 2_000_000,
	}
	rates := CostRates{InputPerMTok: 0.10, OutputPerMTok: 0.40, EmbeddingPerMTok: 0.02}

	c := s.Cost(rates)
	if c.Input != 0.1 {
		t.Errorf("Input = %v, want 0.1", c.Input)
	}
	if c.Output != 0.2 {
		t.Errorf("Output = %v, want 0.2", c.Output)
	}
	if c.Embedding != 0.04 {
		t.Errorf("Embedding = %v, want 0.04", c.Embedding)
	}
	if c.Total != 0.34 {
		t.Errorf("Total = %v, want 0.34", c.Total)
	}
}

func TestUsageSummary_CostRoundsToMicros(t *testing.T) {
	s := UsageSummary{LLMInputTokens: 7}
	c := s.Cost(CostRates{InputPerMTok: 0.1})
	// 7 * 0.1 / 1e6 = 0.0000007 → rounds to 0.000001
	if c.Input != 0.000001 {
		t.Errorf("Input = %v, want 0.000001", c.Input)
	}
}
