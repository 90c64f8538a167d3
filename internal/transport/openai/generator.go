package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/metrics"
)

// Generator is a text generation provider using the OpenAI-compatible chat API.
// The full tier runs the reasoning model, the lite tier the fast one.
type Generator struct {
	client    *openai.Client
	fullModel string
	liteModel string
	user      string
	provider  string
	logger    *zap.Logger
}

// GeneratorConfig holds the generation provider settings.
type GeneratorConfig struct {
	APIKey    string
	BaseURL   string
	FullModel string
	LiteModel string
	User      string
	Provider  string
	Logger    *zap.Logger
}

// NewGenerator creates an OpenAI-compatible generation provider.
func NewGenerator(cfg *GeneratorConfig) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	liteModel := cfg.LiteModel
	if liteModel == "" {
		liteModel = cfg.FullModel
	}

	return &Generator{
		client:    openai.NewClientWithConfig(clientCfg),
		fullModel: cfg.FullModel,
		liteModel: liteModel,
		user:      cfg.User,
		provider:  cfg.Provider,
		logger:    cfg.Logger,
	}
}

// Generate implements domain.Generator. The response text is trimmed; token
// usage comes straight from the provider.
func (g *Generator) Generate(ctx context.Context, prompt string, tier domain.Tier) (domain.GenerationResult, error) {
	model := g.model(tier)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		User: g.user,
	}

	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.LLMRequestsTotal.WithLabelValues(g.provider, model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(g.provider, model, "api_error").Inc()
		return domain.GenerationResult{}, parseAPIError(err)
	}

	if len(resp.Choices) == 0 {
		metrics.LLMRequestsTotal.WithLabelValues(g.provider, model, "error").Inc()
		metrics.LLMErrorsTotal.WithLabelValues(g.provider, model, "empty_response").Inc()
		return domain.GenerationResult{}, fmt.Errorf("empty completion response: %w", domain.ErrProviderUnavailable)
	}

	metrics.LLMRequestsTotal.WithLabelValues(g.provider, model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(g.provider, model).Observe(duration.Seconds())

	inputTokens := resp.Usage.PromptTokens
	outputTokens := resp.Usage.CompletionTokens
	if inputTokens > 0 || outputTokens > 0 {
		metrics.LLMTokensTotal.WithLabelValues(g.provider, model, "input").Add(float64(inputTokens))
		metrics.LLMTokensTotal.WithLabelValues(g.provider, model, "output").Add(float64(outputTokens))
	}

	g.logger.Debug("Generation completed",
		zap.String("provider", g.provider),
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("input_tokens", inputTokens),
		zap.Int("output_tokens", outputTokens),
	)

	return domain.GenerationResult{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (g *Generator) HealthCheck(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

func (g *Generator) model(tier domain.Tier) string {
	if tier == domain.TierLite {
		return g.liteModel
	}
	return g.fullModel
}
