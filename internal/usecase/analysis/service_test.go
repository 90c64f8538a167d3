package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
)

type mockGenerator struct {
	text    string
	err     error
	prompts []string
	tiers   []domain.Tier
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, tier domain.Tier) (domain.GenerationResult, error) {
	m.prompts = append(m.prompts, prompt)
	m.tiers = append(m.tiers, tier)
	if m.err != nil {
		return domain.GenerationResult{}, m.err
	}
	return domain.GenerationResult{Text: m.text, InputTokens: 20, OutputTokens: 10}, nil
}

func TestAnalyzeDocument_Success(t *testing.T) {
	gen := &mockGenerator{text: "```json\n" + `[
		{"field_name": "Invoice Number", "query": "What is the invoice number?"},
		{"field_name": "Total Amount", "query": "What is the total amount?"}
	]` + "\n```"}
	s := New(gen, zap.NewNop())

	fields, err := s.AnalyzeDocument(context.Background(), "Invoice INV-001 from Acme Corp, total $500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Name != "Invoice Number" || fields[0].Query != "What is the invoice number?" {
		t.Errorf("unexpected first field: %+v", fields[0])
	}
	if gen.tiers[0] != domain.TierFull {
		t.Errorf("tier = %s, want full", gen.tiers[0])
	}
}

func TestAnalyzeDocument_SamplesDocument(t *testing.T) {
	gen := &mockGenerator{text: `[{"field_name": "F", "query": "q"}]`}
	s := New(gen, zap.NewNop()).WithSampleLimit(100)

	doc := strings.Repeat("a", 100) + "TAIL"
	if _, err := s.AnalyzeDocument(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(gen.prompts[0], "TAIL") {
		t.Error("prompt should only carry the document sample")
	}
}

func TestAnalyzeDocument_SkipsNamelessFields(t *testing.T) {
	gen := &mockGenerator{text: `[
		{"field_name": "  ", "query": "q1"},
		{"field_name": "Vendor", "query": "q2"}
	]`}
	s := New(gen, zap.NewNop())

	fields, err := s.AnalyzeDocument(context.Background(), "doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fields) != 1 || fields[0].Name != "Vendor" {
		t.Errorf("unexpected fields: %+v", fields)
	}
}

func TestAnalyzeDocument_UnparsableResponse(t *testing.T) {
	gen := &mockGenerator{text: "The document contains an invoice number and a date."}
	s := New(gen, zap.NewNop())

	_, err := s.AnalyzeDocument(context.Background(), "doc")
	if !errors.Is(err, domain.ErrUnparsableResponse) {
		t.Fatalf("error = %v, want unparsable response", err)
	}
}

func TestAnalyzeDocument_EmptyArray(t *testing.T) {
	gen := &mockGenerator{text: "[]"}
	s := New(gen, zap.NewNop())

	_, err := s.AnalyzeDocument(context.Background(), "doc")
	if !errors.Is(err, domain.ErrNoFields) {
		t.Fatalf("error = %v, want no fields", err)
	}
}

func TestAnalyzeDocument_EmptyDocument(t *testing.T) {
	s := New(&mockGenerator{}, zap.NewNop())

	_, err := s.AnalyzeDocument(context.Background(), "   \n ")
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("error = %v, want empty document", err)
	}
}

func TestAnalyzeDocument_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	s := New(&mockGenerator{err: boom}, zap.NewNop())

	_, err := s.AnalyzeDocument(context.Background(), "doc")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrap of %v", err, boom)
	}
}
