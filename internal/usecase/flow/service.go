// Package flow runs the two extraction strategies end to end and grades
// them against each other: zero-shot sends the whole document to the model
// in one call, RAG retrieves a thin context per field. Both report token
// usage and cost from a per-invocation tracker.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/llmjson"
	promMetrics "github.com/parchment-labs/fieldex/internal/metrics"
	"github.com/parchment-labs/fieldex/internal/scoring"
)

const (
	// DefaultMaxDocumentLength caps how much document the zero-shot call sees.
	DefaultMaxDocumentLength = 15000
	// ragChunkLimit and ragChunkChars keep the RAG context thin: the point of
	// the comparison is that RAG spends fewer tokens than zero-shot.
	ragChunkLimit = 2
	ragChunkChars = 200
)

const (
	fieldsPlaceholder   = "{FIELDS}"
	documentPlaceholder = "{DOCUMENT}"
)

const defaultZeroShotPrompt = `You are a document field extraction expert. Extract the following fields and provide confidence scores.

FIELDS TO EXTRACT:
{FIELDS}

DOCUMENT:
{DOCUMENT}

INSTRUCTIONS:
1. Extract exact values for each field from the document
2. For EACH field, provide:
   - The extracted value (or "N/A" if not found)
   - Your confidence score (0-100) based on how clearly the value appears
   - A brief reason explaining your confidence level
3. Be precise - extract only what's in the document

Return your response in this EXACT JSON format:
{
  "Field Name 1": {"value": "extracted value", "confidence": 85, "reason": "why you chose this"},
  "Field Name 2": {"value": "N/A", "confidence": 10, "reason": "field not found in document"},
  ...
}

Return ONLY the JSON object, no other text.`

const ragPrompt = `Context: %s

Extract %s for: %s

JSON: {"value":"...","confidence":0-100,"reason":"..."}`

// Service runs zero-shot and RAG extraction flows.
type Service struct {
	generator domain.Generator
	retriever Retriever
	pacer     Pacer
	logger    *zap.Logger

	rates        domain.CostRates
	maxDocLength int
}

// New creates a flow service. Cost rates default to zero (no pricing).
func New(generator domain.Generator, retriever Retriever, pacer Pacer, logger *zap.Logger) *Service {
	return &Service{
		generator:    generator,
		retriever:    retriever,
		pacer:        pacer,
		logger:       logger,
		maxDocLength: DefaultMaxDocumentLength,
	}
}

// WithCostRates sets the per-million-token prices used in flow metrics.
func (s *Service) WithCostRates(r domain.CostRates) *Service {
	s.rates = r
	return s
}

// WithMaxDocumentLength overrides the zero-shot document cap.
func (s *Service) WithMaxDocumentLength(n int) *Service {
	if n > 0 {
		s.maxDocLength = n
	}
	return s
}

// ZeroShot extracts every field in one full-document model call. A custom
// template is honored only when it carries both the {FIELDS} and {DOCUMENT}
// placeholders; anything else silently falls back to the default prompt.
// A response that is not one JSON object keyed by field name yields nil
// results and metrics carrying the parse error plus the tokens spent.
func (s *Service) ZeroShot(ctx context.Context, docText string, fields []domain.FieldDefinition, promptTemplate string) ([]domain.FieldResult, domain.FlowMetrics) {
	start := time.Now()
	ctx, tracker := domain.NewContextWithTracker(ctx)

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = "- " + f.Name
	}
	fieldList := strings.Join(names, "\n")

	doc := docText
	if len(doc) > s.maxDocLength {
		doc = doc[:s.maxDocLength]
	}

	tmpl := defaultZeroShotPrompt
	if strings.Contains(promptTemplate, fieldsPlaceholder) && strings.Contains(promptTemplate, documentPlaceholder) {
		tmpl = promptTemplate
	}
	prompt := strings.NewReplacer(fieldsPlaceholder, fieldList, documentPlaceholder, doc).Replace(tmpl)

	result, err := s.generator.Generate(ctx, prompt, domain.TierFull)
	promMetrics.ExtractionDuration.WithLabelValues("zero_shot").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("Zero-shot extraction failed", zap.Error(err))
		promMetrics.ExtractionFieldsTotal.WithLabelValues("zero_shot", "error").Add(float64(len(fields)))
		return nil, domain.FlowMetrics{Err: err.Error()}
	}

	m, err := llmjson.DecodeObject(result.Text)
	if err != nil {
		s.logger.Warn("Zero-shot response is not the asked-for JSON", zap.Error(err))
		promMetrics.ExtractionFieldsTotal.WithLabelValues("zero_shot", "error").Add(float64(len(fields)))
		metrics := s.buildMetrics(tracker.Snapshot(), time.Since(start), 0)
		metrics.Err = fmt.Sprintf("parse zero-shot response: %v; response: %s", err, truncate(llmjson.StripFences(result.Text), 200))
		return nil, metrics
	}

	results := make([]domain.FieldResult, 0, len(fields))
	for _, f := range fields {
		res := zeroShotField(m, f.Name)
		promMetrics.ExtractionFieldsTotal.WithLabelValues("zero_shot", promMetrics.FieldStatus(res.Value)).Inc()
		results = append(results, res)
	}

	metrics := s.buildMetrics(tracker.Snapshot(), time.Since(start), 0)
	s.logger.Info("Zero-shot extraction done",
		zap.Int("fields", len(results)),
		zap.Int("total_tokens", metrics.TotalTokens),
	)
	return results, metrics
}

// zeroShotField reads one field out of the parsed response object. A field
// the model skipped gets neutral defaults; a bare scalar (old response
// shape) is taken as the value with no confidence attached.
func zeroShotField(m map[string]any, name string) domain.FieldResult {
	raw, ok := m[name]
	if !ok {
		raw = map[string]any{}
	}

	if obj, isObj := raw.(map[string]any); isObj {
		return domain.FieldResult{
			FieldName:  name,
			Value:      llmjson.String(obj, "value", "N/A"),
			Confidence: round1(llmjson.Float(obj, "confidence", 50)),
			Reason:     llmjson.String(obj, "reason", "No reason provided"),
		}
	}
	return domain.FieldResult{
		FieldName:  name,
		Value:      legacyValue(raw),
		Confidence: 50,
		Reason:     "Legacy format - no confidence provided",
	}
}

// legacyValue renders a bare scalar answer; empty and zero values mean the
// model had nothing, so they map to "N/A".
func legacyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case string:
		if t == "" {
			return "N/A"
		}
		return t
	case float64:
		if t == 0 {
			return "N/A"
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if !t {
			return "N/A"
		}
		return "true"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "N/A"
		}
		return string(b)
	}
}

// RAG extracts fields one by one over retrieved context. Per-field failures
// become ERROR records; the loop always yields one record per field.
func (s *Service) RAG(ctx context.Context, sess *domain.Session, fields []domain.FieldDefinition) ([]domain.FieldResult, domain.FlowMetrics) {
	start := time.Now()
	ctx, tracker := domain.NewContextWithTracker(ctx)

	results := make([]domain.FieldResult, 0, len(fields))
	for i, field := range fields {
		if err := s.pacer.Wait(ctx); err != nil {
			for _, rest := range fields[i:] {
				results = append(results, domain.NewFieldError(rest.Name, err))
			}
			break
		}

		fieldStart := time.Now()
		res, err := s.ragField(ctx, sess, field)
		promMetrics.ExtractionDuration.WithLabelValues("rag").Observe(time.Since(fieldStart).Seconds())
		if err != nil {
			s.logger.Warn("RAG field failed",
				zap.String("field", field.Name),
				zap.Error(err),
			)
			promMetrics.ExtractionFieldsTotal.WithLabelValues("rag", "error").Inc()
			results = append(results, domain.NewFieldError(field.Name, err))
			s.pacer.RecordError()
			continue
		}
		promMetrics.ExtractionFieldsTotal.WithLabelValues("rag", promMetrics.FieldStatus(res.Value)).Inc()
		results = append(results, res)
	}

	metrics := s.buildMetrics(tracker.Snapshot(), time.Since(start), len(fields))
	s.logger.Info("RAG extraction done",
		zap.Int("fields", len(results)),
		zap.Int("total_tokens", metrics.TotalTokens),
	)
	return results, metrics
}

func (s *Service) ragField(ctx context.Context, sess *domain.Session, field domain.FieldDefinition) (domain.FieldResult, error) {
	query := field.RetrievalQuery()

	retrieved, err := s.retriever.Retrieve(ctx, sess, query, ragChunkLimit)
	if err != nil {
		return domain.FieldResult{}, fmt.Errorf("retrieve context: %w", err)
	}

	parts := make([]string, len(retrieved))
	for i, r := range retrieved {
		chunk := r.Chunk
		if len(chunk) > ragChunkChars {
			chunk = chunk[:ragChunkChars] + "..."
		}
		parts[i] = chunk
	}

	prompt := fmt.Sprintf(ragPrompt, strings.Join(parts, "\n"), field.Name, query)
	result, err := s.generator.Generate(ctx, prompt, domain.TierFull)
	if err != nil {
		return domain.FieldResult{}, fmt.Errorf("extract %s: %w", field.Name, err)
	}

	ex := parseRAGExtraction(result.Text)
	ex.Confidence = round1(ex.Confidence)
	return domain.NewFieldResult(field.Name, ex, len(retrieved)), nil
}

func parseRAGExtraction(raw string) domain.Extraction {
	m, err := llmjson.DecodeObject(raw)
	if err != nil {
		return domain.Extraction{
			Value:      strings.TrimSpace(raw),
			Confidence: 50,
			Reason:     "Could not parse LLM confidence response",
		}
	}
	return domain.Extraction{
		Value:      llmjson.String(m, "value", "N/A"),
		Confidence: llmjson.Float(m, "confidence", 50),
		Reason:     llmjson.String(m, "reason", "No reason provided"),
	}
}

func (s *Service) buildMetrics(u domain.UsageSummary, elapsed time.Duration, numFields int) domain.FlowMetrics {
	m := domain.FlowMetrics{
		TotalTime:       round2(elapsed.Seconds()),
		LLMInputTokens:  u.LLMInputTokens,
		LLMOutputTokens: u.LLMOutputTokens,
		LLMTotalTokens:  u.LLMTotalTokens,
		EmbeddingTokens: u.EmbeddingTokens,
		TotalTokens:     u.TotalTokens,
		APICalls:        u.TotalCalls,
		LLMCalls:        u.LLMCalls,
		EmbeddingCalls:  u.EmbeddingCalls,
		Cost:            u.Cost(s.rates),
	}
	if numFields > 0 {
		m.AvgTimePerField = round2(elapsed.Seconds() / float64(numFields))
	}
	return m
}

// Compare grades both flows' results against the master fields. Results are
// joined by field name, first match wins; a side missing a field is graded
// as "N/A" with zero confidence. Hallucination is scored against docText.
func Compare(masters []domain.MasterField, zeroShot, rag []domain.FieldResult, docText string) domain.FlowReport {
	report := domain.FlowReport{Fields: make([]domain.FieldComparison, 0, len(masters))}

	var zsExact, zsPartial, zsHallTotal int
	var ragExact, ragPartial, ragHallTotal int

	for _, master := range masters {
		zsSide := scoreSide(findByName(zeroShot, master.Name), master.Value, docText)
		ragSide := scoreSide(findByName(rag, master.Name), master.Value, docText)

		switch {
		case zsSide.Score == 100:
			zsExact++
		case zsSide.Score > 0:
			zsPartial++
		}
		switch {
		case ragSide.Score == 100:
			ragExact++
		case ragSide.Score > 0:
			ragPartial++
		}
		zsHallTotal += zsSide.Hallucination
		ragHallTotal += ragSide.Hallucination

		report.Fields = append(report.Fields, domain.FieldComparison{
			FieldName:   master.Name,
			MasterValue: master.Value,
			ZeroShot:    zsSide,
			RAG:         ragSide,
		})
	}

	total := len(masters)
	report.ZeroShotSummary = buildSummary(total, zsExact, zsPartial, zsHallTotal, coverage(zeroShot, total))
	report.RAGSummary = buildSummary(total, ragExact, ragPartial, ragHallTotal, coverage(rag, total))
	return report
}

func scoreSide(r *domain.FieldResult, masterValue, docText string) domain.FlowSideResult {
	value := "N/A"
	confidence := 0.0
	if r != nil {
		value = r.Value
		confidence = r.Confidence
	}
	kind, score := scoring.Match(value, masterValue)
	return domain.FlowSideResult{
		Value:         value,
		Match:         string(kind),
		Score:         score,
		Confidence:    confidence,
		Hallucination: scoring.Hallucination(value, masterValue, docText),
	}
}

func findByName(results []domain.FieldResult, name string) *domain.FieldResult {
	for i := range results {
		if results[i].FieldName == name {
			return &results[i]
		}
	}
	return nil
}

// coverage is the share of a side's answers that are real values, measured
// against the master field count. Значения "N/A" и "ERROR" покрытием не
// считаются.
func coverage(results []domain.FieldResult, total int) float64 {
	if len(results) == 0 || total == 0 {
		return 0
	}
	n := 0
	for _, r := range results {
		if r.Value != "N/A" && r.Value != "ERROR" {
			n++
		}
	}
	return round1(float64(n) / float64(total) * 100)
}

func buildSummary(total, exact, partial, hallTotal int, fieldCoverage float64) domain.FlowSummary {
	s := domain.FlowSummary{
		ExactMatches:   exact,
		PartialMatches: partial,
		Mismatches:     total - exact - partial,
		FieldCoverage:  fieldCoverage,
	}
	if total > 0 {
		s.Accuracy = round1(float64(exact) / float64(total) * 100)
		s.PartialMatch = round1(float64(partial) / float64(total) * 100)
		s.AvgHallucination = round1(float64(hallTotal) / float64(total))
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
