// Package analysis discovers extractable fields in a document by asking a
// language model to read a sample of it.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/llmjson"
)

// DefaultSampleLimit is how much of the document the model gets to read.
const DefaultSampleLimit = 3000

const analysisPrompt = `You are a document analysis expert. Analyze this document and identify ALL key fields that should be extracted.

Document Sample:
%s

Instructions:
1. Identify all important fields (dates, amounts, names, addresses, IDs, etc.)
2. Return ONLY a JSON array of field objects
3. Each field should have: "field_name" (descriptive name) and "query" (question to extract it)
4. Be comprehensive - include 10-20 fields depending on document type
5. Format: [{"field_name": "Invoice Date", "query": "What is the invoice date?"}, ...]

Return ONLY the JSON array, no other text.`

// Service identifies document fields with the full model tier.
type Service struct {
	generator   domain.Generator
	logger      *zap.Logger
	sampleLimit int
}

// New creates an analysis service reading at most DefaultSampleLimit chars.
func New(generator domain.Generator, logger *zap.Logger) *Service {
	return &Service{
		generator:   generator,
		logger:      logger,
		sampleLimit: DefaultSampleLimit,
	}
}

// WithSampleLimit overrides how much document text the model sees.
func (s *Service) WithSampleLimit(n int) *Service {
	if n > 0 {
		s.sampleLimit = n
	}
	return s
}

// AnalyzeDocument asks the model which fields the document carries. Unlike
// extraction there is no degrade path: an answer that is not the asked-for
// JSON array is an error the caller has to see.
func (s *Service) AnalyzeDocument(ctx context.Context, documentText string) ([]domain.FieldDefinition, error) {
	if strings.TrimSpace(documentText) == "" {
		return nil, fmt.Errorf("analyze document: %w", domain.ErrEmptyDocument)
	}

	sample := documentText
	if len(sample) > s.sampleLimit {
		sample = sample[:s.sampleLimit]
	}

	result, err := s.generator.Generate(ctx, fmt.Sprintf(analysisPrompt, sample), domain.TierFull)
	if err != nil {
		return nil, fmt.Errorf("analyze document: %w", err)
	}

	var raw []struct {
		FieldName string `json:"field_name"`
		Query     string `json:"query"`
	}
	if err := json.Unmarshal([]byte(llmjson.StripFences(result.Text)), &raw); err != nil {
		return nil, fmt.Errorf("analyze document: %w: %s", domain.ErrUnparsableResponse, err)
	}

	fields := make([]domain.FieldDefinition, 0, len(raw))
	for _, f := range raw {
		if strings.TrimSpace(f.FieldName) == "" {
			continue
		}
		fields = append(fields, domain.FieldDefinition{Name: f.FieldName, Query: f.Query})
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("analyze document: %w", domain.ErrNoFields)
	}

	s.logger.Info("Document analyzed",
		zap.Int("fields", len(fields)),
		zap.Int("sample_length", len(sample)),
	)
	return fields, nil
}
