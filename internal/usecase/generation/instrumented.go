// Package generation decorates LLM text generators with usage accounting.
package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// InstrumentedGenerator wraps Generator with usage accounting and logging.
// Transport metrics (requests, duration, tokens) are recorded in transport/openai.
// This layer feeds the per-run TokenTracker, estimating usage when the
// provider reports none. Injected custom generators get the same accounting
// as the built-in one because this wrapper is applied at wiring time.
type InstrumentedGenerator struct {
	inner    domain.Generator
	provider string
	estimate func(text string) int
	logger   *zap.Logger
}

// NewInstrumentedGenerator wraps a generator with accounting and observability.
// estimate may be nil when usage should only ever come from the provider.
func NewInstrumentedGenerator(
	inner domain.Generator, provider string,
	estimate func(text string) int, logger *zap.Logger,
) *InstrumentedGenerator {
	return &InstrumentedGenerator{
		inner:    inner,
		provider: provider,
		estimate: estimate,
		logger:   logger,
	}
}

// Generate delegates to the inner generator and records usage.
func (p *InstrumentedGenerator) Generate(
	ctx context.Context, prompt string, tier domain.Tier,
) (domain.GenerationResult, error) {
	start := time.Now()

	result, err := p.inner.Generate(ctx, prompt, tier)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Generation request failed",
			zap.String("provider", p.provider),
			zap.String("tier", string(tier)),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}

	p.record(ctx, result, prompt)

	p.logger.Debug("Generation request completed",
		zap.String("provider", p.provider),
		zap.String("tier", string(tier)),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", result.InputTokens),
		zap.Int("output_tokens", result.OutputTokens),
	)

	return result, nil
}

// record feeds the per-run tracker. Providers that omit usage get a word
// count based estimate instead, so cost accounting never silently reads zero.
func (p *InstrumentedGenerator) record(
	ctx context.Context, result domain.GenerationResult, prompt string,
) {
	tracker := domain.TrackerFromContext(ctx)
	if tracker == nil {
		return
	}

	in, out := result.InputTokens, result.OutputTokens
	if in == 0 && p.estimate != nil {
		in = p.estimate(prompt)
	}
	if out == 0 && p.estimate != nil {
		out = p.estimate(result.Text)
	}
	tracker.AddGeneration(in, out)
}
