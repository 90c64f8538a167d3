// Package extraction pulls field values out of retrieved document context
// with a language model, attaching a confidence score and the model's
// reasoning to every value.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/llmjson"
	"github.com/parchment-labs/fieldex/internal/metrics"
	"github.com/parchment-labs/fieldex/internal/pacing"
)

const (
	// DefaultRetryCount is how many attempts a full extraction gets.
	DefaultRetryCount = 3
	// DefaultTopK is how many chunks are retrieved as context per field.
	DefaultTopK = 5
	// maxRetryHint caps how long a provider retry hint may stall one field.
	maxRetryHint = 60 * time.Second
)

const fieldPrompt = `You are a document field extraction expert. Extract the value and explain your reasoning.

CONTEXT FROM DOCUMENT:
%s

QUESTION: %s

INSTRUCTIONS:
1. Extract the EXACT value that answers the question from the context
2. Rate your confidence (0-100) based on:
   - How clearly the value appears in the context
   - How well it matches what the question is asking for
   - Whether the value is complete and unambiguous
3. Explain WHY you chose this specific value and why you assigned this confidence level

Return your response in this EXACT JSON format:
{"value": "extracted value or N/A if not found", "confidence": 85, "reasoning": "I found this value because... My confidence is X%% because..."}

Return ONLY the JSON object, no other text.`

const simplePrompt = `Extract the answer from the context below.

Context:
%s

Question: %s

Instructions:
- Find and return the exact value that answers the question
- If the answer contains multiple parts, include all relevant information
- If not found, say "N/A"
- Be thorough - look for related terms and synonyms

Answer:`

const confidencePrompt = `Rate your confidence and explain why.

Context: %s

Question: %s
Extracted Answer: %s

Provide a JSON response:
{"confidence": 0-100, "reasoning": "why this value and confidence"}

JSON only:`

// confidenceContextLimit bounds the context resent on the confidence call.
const confidenceContextLimit = 2000

// Service extracts field values from a prepared document session.
type Service struct {
	generator domain.Generator
	retriever Retriever
	pacer     Pacer
	logger    *zap.Logger

	retries int
	topK    int

	// injected for tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an extraction service with default retry and top-k settings.
func New(generator domain.Generator, retriever Retriever, pacer Pacer, logger *zap.Logger) *Service {
	return &Service{
		generator: generator,
		retriever: retriever,
		pacer:     pacer,
		logger:    logger,
		retries:   DefaultRetryCount,
		topK:      DefaultTopK,
		sleep:     pacing.Sleep,
	}
}

// WithRetries overrides the attempt count for full extraction.
func (s *Service) WithRetries(n int) *Service {
	if n >= 0 {
		s.retries = n
	}
	return s
}

// WithTopK overrides how many chunks are retrieved per field.
func (s *Service) WithTopK(k int) *Service {
	if k > 0 {
		s.topK = k
	}
	return s
}

// ExtractField asks the full model for a value, a confidence score and the
// reasoning behind both. A response that is not valid JSON degrades to the
// raw text with neutral confidence instead of failing the field.
func (s *Service) ExtractField(ctx context.Context, query, contextText string) (domain.Extraction, error) {
	prompt := fmt.Sprintf(fieldPrompt, contextText, query)

	for attempt := 0; attempt < s.retries; attempt++ {
		result, err := s.generator.Generate(ctx, prompt, domain.TierFull)
		if err != nil {
			if final := s.backoff(ctx, attempt, err); final != nil {
				return domain.Extraction{}, final
			}
			continue
		}
		return parseExtraction(result.Text), nil
	}
	return domain.Extraction{Value: "N/A", Confidence: 0, Reason: "Extraction failed after retries"}, nil
}

// backoff decides the fate of a failed attempt: nil means the pause was
// served and the caller should retry, anything else is the final error.
func (s *Service) backoff(ctx context.Context, attempt int, err error) error {
	last := attempt >= s.retries-1

	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Throttled() {
		// Без подсказки от провайдера повтор бессмысленен: квота кончилась.
		hint, ok := pe.RetryHint()
		if !ok || last {
			return fmt.Errorf("extract field: %w", domain.ErrQuotaExceeded)
		}
		if hint > maxRetryHint {
			hint = maxRetryHint
		}
		s.logger.Warn("Provider throttled, honoring retry hint",
			zap.Duration("retry_after", hint),
			zap.Int("attempt", attempt+1),
		)
		if serr := s.sleep(ctx, hint); serr != nil {
			return serr
		}
		return nil
	}

	if last {
		return fmt.Errorf("extract field: %w", err)
	}
	wait := time.Duration(attempt+1) * 2 * time.Second
	s.logger.Warn("Generation failed, backing off",
		zap.Duration("wait", wait),
		zap.Int("attempt", attempt+1),
		zap.Error(err),
	)
	if serr := s.sleep(ctx, wait); serr != nil {
		return serr
	}
	return nil
}

// ExtractFieldSimple is the cheaper two-step variant for the lite tier: one
// call extracts the bare value, a second rates the confidence. Only the
// value call can fail; a broken confidence call degrades to a heuristic.
func (s *Service) ExtractFieldSimple(ctx context.Context, query, contextText string) (domain.Extraction, error) {
	result, err := s.generator.Generate(ctx, fmt.Sprintf(simplePrompt, contextText, query), domain.TierLite)
	if err != nil {
		return domain.Extraction{}, fmt.Errorf("extract value: %w", err)
	}
	value := strings.TrimSpace(result.Text)

	confidence, reason := s.rateConfidence(ctx, query, contextText, value)
	return domain.Extraction{Value: value, Confidence: confidence, Reason: reason}, nil
}

func (s *Service) rateConfidence(ctx context.Context, query, contextText, value string) (float64, string) {
	sample := contextText
	if len(sample) > confidenceContextLimit {
		sample = sample[:confidenceContextLimit]
	}

	result, err := s.generator.Generate(ctx, fmt.Sprintf(confidencePrompt, sample, query, value), domain.TierLite)
	if err != nil {
		return heuristicConfidence(value)
	}
	m, err := llmjson.DecodeObject(result.Text)
	if err != nil {
		return heuristicConfidence(value)
	}
	return llmjson.Float(m, "confidence", 70), llmjson.String(m, "reasoning", "Value extracted from context")
}

// heuristicConfidence stands in when the model cannot rate its own answer.
func heuristicConfidence(value string) (float64, string) {
	switch strings.ToLower(value) {
	case "n/a", "not found", "":
		return 20, "Value not clearly found"
	}
	return 75, "Value found in document context"
}

// ExtractAll runs full extraction for every field. It never fails as a
// whole: a field whose retrieval or extraction errors out becomes an ERROR
// record and the batch moves on.
func (s *Service) ExtractAll(ctx context.Context, sess *domain.Session, fields []domain.FieldDefinition) []domain.FieldResult {
	if len(fields) == 0 {
		return nil
	}

	results := make([]domain.FieldResult, 0, len(fields))
	for i, field := range fields {
		if err := s.pacer.Wait(ctx); err != nil {
			// Контекст отменён: оставшиеся поля помечаются, а не зависают.
			for _, rest := range fields[i:] {
				results = append(results, domain.NewFieldError(rest.Name, err))
			}
			return results
		}

		start := time.Now()
		res, err := s.extractOne(ctx, sess, field)
		metrics.ExtractionDuration.WithLabelValues("rag").Observe(time.Since(start).Seconds())
		if err != nil {
			s.logger.Warn("Field extraction failed",
				zap.String("field", field.Name),
				zap.Error(err),
			)
			metrics.ExtractionFieldsTotal.WithLabelValues("rag", "error").Inc()
			results = append(results, domain.NewFieldError(field.Name, err))
			s.pacer.RecordError()
			continue
		}
		metrics.ExtractionFieldsTotal.WithLabelValues("rag", metrics.FieldStatus(res.Value)).Inc()
		results = append(results, res)
	}
	return results
}

func (s *Service) extractOne(ctx context.Context, sess *domain.Session, field domain.FieldDefinition) (domain.FieldResult, error) {
	query := field.RetrievalQuery()

	retrieved, err := s.retriever.Retrieve(ctx, sess, query, s.topK)
	if err != nil {
		return domain.FieldResult{}, fmt.Errorf("retrieve context: %w", err)
	}

	parts := make([]string, len(retrieved))
	for i, r := range retrieved {
		parts[i] = r.Chunk
	}

	ex, err := s.ExtractField(ctx, query, strings.Join(parts, "\n\n"))
	if err != nil {
		return domain.FieldResult{}, err
	}
	ex.Confidence = math.Round(ex.Confidence*10) / 10
	return domain.NewFieldResult(field.Name, ex, len(retrieved)), nil
}

func parseExtraction(raw string) domain.Extraction {
	m, err := llmjson.DecodeObject(raw)
	if err != nil {
		return domain.Extraction{
			Value:      strings.TrimSpace(raw),
			Confidence: 50,
			Reason:     "Could not parse LLM response",
		}
	}
	return domain.Extraction{
		Value:      llmjson.String(m, "value", "N/A"),
		Confidence: clampConfidence(llmjson.Float(m, "confidence", 50)),
		Reason:     llmjson.String(m, "reasoning", "No reasoning provided"),
	}
}

func clampConfidence(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
