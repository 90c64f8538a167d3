package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/metrics"
)

type generateResponse struct {
	text string
	err  error
}

type mockGenerator struct {
	responses []generateResponse
	calls     int
	prompts   []string
	tiers     []domain.Tier
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, tier domain.Tier) (domain.GenerationResult, error) {
	m.prompts = append(m.prompts, prompt)
	m.tiers = append(m.tiers, tier)
	if m.calls >= len(m.responses) {
		return domain.GenerationResult{}, errors.New("unexpected generate call")
	}
	r := m.responses[m.calls]
	m.calls++
	if r.err != nil {
		return domain.GenerationResult{}, r.err
	}
	return domain.GenerationResult{Text: r.text, InputTokens: 10, OutputTokens: 5}, nil
}

type mockRetriever struct {
	chunks  []domain.RetrievedChunk
	err     error
	errOnce bool
	queries []string
	topKs   []int
}

func (m *mockRetriever) Retrieve(_ context.Context, _ *domain.Session, query string, topK int) ([]domain.RetrievedChunk, error) {
	m.queries = append(m.queries, query)
	m.topKs = append(m.topKs, topK)
	if m.err != nil {
		err := m.err
		if m.errOnce {
			m.err = nil
		}
		return nil, err
	}
	return m.chunks, nil
}

type mockPacer struct {
	waits        int
	recordErrors int
	failAt       int // fail the Nth Wait call, 1-based
	waitErr      error
}

func (m *mockPacer) Wait(context.Context) error {
	m.waits++
	if m.failAt > 0 && m.waits >= m.failAt {
		return m.waitErr
	}
	return nil
}

func (m *mockPacer) RecordError() { m.recordErrors++ }

func newTestService(gen *mockGenerator, ret *mockRetriever, pac *mockPacer) (*Service, *[]time.Duration) {
	var slept []time.Duration
	s := New(gen, ret, pac, zap.NewNop())
	s.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return s, &slept
}

func someChunks(texts ...string) []domain.RetrievedChunk {
	chunks := make([]domain.RetrievedChunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.RetrievedChunk{Chunk: t, Position: i, Confidence: 90}
	}
	return chunks
}

func TestExtractField_Success(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "INV-2024-001", "confidence": 92, "reasoning": "stated in the header"}`},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "What is the invoice number?", "Invoice INV-2024-001 issued in March")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "INV-2024-001" || ex.Confidence != 92 || ex.Reason != "stated in the header" {
		t.Errorf("unexpected extraction: %+v", ex)
	}
	if gen.tiers[0] != domain.TierFull {
		t.Errorf("tier = %s, want full", gen.tiers[0])
	}
	prompt := gen.prompts[0]
	if !strings.Contains(prompt, "Invoice INV-2024-001 issued in March") {
		t.Error("prompt is missing the context")
	}
	if !strings.Contains(prompt, "QUESTION: What is the invoice number?") {
		t.Error("prompt is missing the question")
	}
	if !strings.Contains(prompt, "My confidence is X% because...") {
		t.Error("prompt format example was mangled")
	}
}

func TestExtractField_FencedJSON(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: "```json\n{\"value\": \"Acme Corp\", \"confidence\": 80, \"reasoning\": \"vendor line\"}\n```"},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "vendor?", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "Acme Corp" || ex.Confidence != 80 {
		t.Errorf("unexpected extraction: %+v", ex)
	}
}

func TestExtractField_UnparsableResponse(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: "  The total is $500.  "},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "total?", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "The total is $500." {
		t.Errorf("value = %q, want trimmed raw text", ex.Value)
	}
	if ex.Confidence != 50 || ex.Reason != "Could not parse LLM response" {
		t.Errorf("unexpected fallback: %+v", ex)
	}
}

func TestExtractField_Defaults(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{{text: "{}"}}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "N/A" || ex.Confidence != 50 || ex.Reason != "No reasoning provided" {
		t.Errorf("unexpected defaults: %+v", ex)
	}
}

func TestExtractField_LooseTypes(t *testing.T) {
	// Числовое value и строковый confidence: модель часто путает типы.
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": 42500.5, "confidence": "85", "reasoning": "line total"}`},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "42500.5" || ex.Confidence != 85 {
		t.Errorf("unexpected extraction: %+v", ex)
	}
}

func TestExtractField_ConfidenceClamped(t *testing.T) {
	cases := []struct {
		response string
		want     float64
	}{
		{`{"value": "x", "confidence": 150}`, 100},
		{`{"value": "x", "confidence": -10}`, 0},
	}
	for _, tc := range cases {
		gen := &mockGenerator{responses: []generateResponse{{text: tc.response}}}
		s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

		ex, err := s.ExtractField(context.Background(), "q", "ctx")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ex.Confidence != tc.want {
			t.Errorf("confidence for %s = %v, want %v", tc.response, ex.Confidence, tc.want)
		}
	}
}

func TestExtractField_RetriesTransient(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{err: errors.New("boom one")},
		{err: errors.New("boom two")},
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "ok" {
		t.Errorf("value = %q, want ok", ex.Value)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Errorf("slept = %v, want %v", *slept, want)
	}
}

func TestExtractField_ExhaustedReturnsLastError(t *testing.T) {
	final := errors.New("still down")
	gen := &mockGenerator{responses: []generateResponse{
		{err: errors.New("down")},
		{err: errors.New("down again")},
		{err: final},
	}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})

	_, err := s.ExtractField(context.Background(), "q", "ctx")
	if !errors.Is(err, final) {
		t.Fatalf("error = %v, want wrap of %v", err, final)
	}
	if gen.calls != 3 {
		t.Errorf("calls = %d, want 3", gen.calls)
	}
	// No pause after the last attempt.
	if len(*slept) != 2 {
		t.Errorf("slept %d times, want 2", len(*slept))
	}
}

func TestExtractField_RateLimitHonorsHint(t *testing.T) {
	pe := &domain.ProviderError{Kind: domain.KindRateLimited, StatusCode: 429, RetryAfter: 5 * time.Second, Message: "slow down"}
	gen := &mockGenerator{responses: []generateResponse{
		{err: pe},
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractField(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "ok" {
		t.Errorf("value = %q, want ok", ex.Value)
	}
	if len(*slept) != 1 || (*slept)[0] != 5*time.Second {
		t.Errorf("slept = %v, want [5s]", *slept)
	}
}

func TestExtractField_RetryHintCapped(t *testing.T) {
	pe := &domain.ProviderError{Kind: domain.KindRateLimited, StatusCode: 429, RetryAfter: 2 * time.Minute, Message: "slow down"}
	gen := &mockGenerator{responses: []generateResponse{
		{err: pe},
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})

	if _, err := s.ExtractField(context.Background(), "q", "ctx"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != maxRetryHint {
		t.Errorf("slept = %v, want [%v]", *slept, maxRetryHint)
	}
}

func TestExtractField_RateLimitWithoutHintIsQuota(t *testing.T) {
	pe := &domain.ProviderError{Kind: domain.KindRateLimited, StatusCode: 429, Message: "slow down"}
	gen := &mockGenerator{responses: []generateResponse{{err: pe}}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})

	_, err := s.ExtractField(context.Background(), "q", "ctx")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want quota exceeded", err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry without a hint)", gen.calls)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none", *slept)
	}
}

func TestExtractField_QuotaExhaustedWithoutHintIsQuota(t *testing.T) {
	pe := &domain.ProviderError{Kind: domain.KindQuotaExhausted, StatusCode: 429, Message: "daily quota spent"}
	gen := &mockGenerator{responses: []generateResponse{{err: pe}}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	_, err := s.ExtractField(context.Background(), "q", "ctx")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want quota exceeded", err)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
}

func TestExtractField_RateLimitOnLastAttemptIsQuota(t *testing.T) {
	pe := &domain.ProviderError{Kind: domain.KindRateLimited, StatusCode: 429, RetryAfter: 5 * time.Second, Message: "slow down"}
	gen := &mockGenerator{responses: []generateResponse{{err: pe}}}
	s, slept := newTestService(gen, &mockRetriever{}, &mockPacer{})
	s.WithRetries(1)

	_, err := s.ExtractField(context.Background(), "q", "ctx")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("error = %v, want quota exceeded", err)
	}
	if len(*slept) != 0 {
		t.Errorf("slept = %v, want none on the last attempt", *slept)
	}
}

func TestExtractField_ZeroRetries(t *testing.T) {
	gen := &mockGenerator{}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})
	s.WithRetries(0)

	ex, err := s.ExtractField(context.Background(), "q", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "N/A" || ex.Confidence != 0 || ex.Reason != "Extraction failed after retries" {
		t.Errorf("unexpected sentinel: %+v", ex)
	}
	if gen.calls != 0 {
		t.Errorf("calls = %d, want 0", gen.calls)
	}
}

func TestExtractFieldSimple_TwoSteps(t *testing.T) {
	contextText := strings.Repeat("a", confidenceContextLimit) + "TAIL"
	gen := &mockGenerator{responses: []generateResponse{
		{text: "  Acme Corp  "},
		{text: "```json\n{\"confidence\": 88, \"reasoning\": \"clearly stated\"}\n```"},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractFieldSimple(context.Background(), "vendor?", contextText)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "Acme Corp" || ex.Confidence != 88 || ex.Reason != "clearly stated" {
		t.Errorf("unexpected extraction: %+v", ex)
	}
	if gen.tiers[0] != domain.TierLite || gen.tiers[1] != domain.TierLite {
		t.Errorf("tiers = %v, want lite for both steps", gen.tiers)
	}
	if !strings.Contains(gen.prompts[0], "TAIL") {
		t.Error("extraction prompt should carry the full context")
	}
	// Шаг подтверждения видит только первые 2000 символов контекста.
	if strings.Contains(gen.prompts[1], "TAIL") {
		t.Error("confidence prompt should carry the truncated context")
	}
	if !strings.Contains(gen.prompts[1], "Extracted Answer: Acme Corp") {
		t.Error("confidence prompt is missing the extracted value")
	}
}

func TestExtractFieldSimple_HeuristicOnUnparsableConfidence(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: "Acme Corp"},
		{text: "I am very confident."},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractFieldSimple(context.Background(), "vendor?", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Confidence != 75 || ex.Reason != "Value found in document context" {
		t.Errorf("unexpected heuristic: %+v", ex)
	}
}

func TestExtractFieldSimple_HeuristicOnConfidenceCallFailure(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: "Not Found"},
		{err: errors.New("boom")},
	}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	ex, err := s.ExtractFieldSimple(context.Background(), "vendor?", "ctx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ex.Value != "Not Found" || ex.Confidence != 20 || ex.Reason != "Value not clearly found" {
		t.Errorf("unexpected heuristic: %+v", ex)
	}
}

func TestExtractFieldSimple_ValueCallFailure(t *testing.T) {
	boom := errors.New("boom")
	gen := &mockGenerator{responses: []generateResponse{{err: boom}}}
	s, _ := newTestService(gen, &mockRetriever{}, &mockPacer{})

	_, err := s.ExtractFieldSimple(context.Background(), "vendor?", "ctx")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want wrap of %v", err, boom)
	}
	if gen.calls != 1 {
		t.Errorf("calls = %d, want 1", gen.calls)
	}
}

func TestExtractAll_Success(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "INV-001", "confidence": 85.678, "reasoning": "header"}`},
		{text: `{"value": "2024-03-15", "confidence": 90, "reasoning": "date line"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha", "beta")}
	pac := &mockPacer{}
	s, _ := newTestService(gen, ret, pac)

	fields := []domain.FieldDefinition{
		{Name: "Invoice Number", Query: "What is the invoice number?"},
		{Name: "Invoice Date", Query: "What is the invoice date?"},
	}
	results := s.ExtractAll(context.Background(), &domain.Session{}, fields)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	first := results[0]
	if first.FieldName != "Invoice Number" || first.Value != "INV-001" {
		t.Errorf("unexpected first result: %+v", first)
	}
	if first.Confidence != 85.7 {
		t.Errorf("confidence = %v, want 85.7 (rounded to one decimal)", first.Confidence)
	}
	if first.NumChunks != 2 {
		t.Errorf("num chunks = %d, want 2", first.NumChunks)
	}
	if !strings.Contains(gen.prompts[0], "alpha\n\nbeta") {
		t.Error("chunks should be joined with a blank line")
	}
	if ret.queries[0] != "What is the invoice number?" || ret.topKs[0] != DefaultTopK {
		t.Errorf("unexpected retrieval call: %q top-k %d", ret.queries[0], ret.topKs[0])
	}
	if pac.waits != 2 || pac.recordErrors != 0 {
		t.Errorf("pacer: waits %d recordErrors %d, want 2 and 0", pac.waits, pac.recordErrors)
	}
}

func TestExtractAll_FieldErrorBecomesRecord(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha"), err: errors.New("index gone"), errOnce: true}
	pac := &mockPacer{}
	s, _ := newTestService(gen, ret, pac)

	fields := []domain.FieldDefinition{
		{Name: "Vendor", Query: "vendor?"},
		{Name: "Total", Query: "total?"},
	}
	results := s.ExtractAll(context.Background(), &domain.Session{}, fields)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Failed() || results[0].Value != "ERROR" {
		t.Errorf("first result should be an ERROR record: %+v", results[0])
	}
	if !strings.Contains(results[0].Reason, "index gone") {
		t.Errorf("reason = %q, want the cause", results[0].Reason)
	}
	if results[1].Failed() {
		t.Errorf("second field should have recovered: %+v", results[1])
	}
	if pac.recordErrors != 1 {
		t.Errorf("recordErrors = %d, want 1", pac.recordErrors)
	}
}

func TestExtractAll_GenerationFailureRecorded(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{err: errors.New("model down")},
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha")}
	pac := &mockPacer{}
	s, _ := newTestService(gen, ret, pac)
	s.WithRetries(1)

	fields := []domain.FieldDefinition{
		{Name: "Vendor", Query: "vendor?"},
		{Name: "Total", Query: "total?"},
	}
	results := s.ExtractAll(context.Background(), &domain.Session{}, fields)

	if !results[0].Failed() {
		t.Errorf("first result should be an ERROR record: %+v", results[0])
	}
	if results[1].Failed() {
		t.Errorf("second result should be fine: %+v", results[1])
	}
}

func TestExtractAll_QueryFallback(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha")}
	s, _ := newTestService(gen, ret, &mockPacer{})

	s.ExtractAll(context.Background(), &domain.Session{}, []domain.FieldDefinition{{Name: "Invoice Number"}})

	if ret.queries[0] != "What is the Invoice Number?" {
		t.Errorf("query = %q, want the generated fallback", ret.queries[0])
	}
}

func TestExtractAll_RecordsMetrics(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.ExtractionFieldsTotal.WithLabelValues("rag", "ok"))
	errBefore := testutil.ToFloat64(metrics.ExtractionFieldsTotal.WithLabelValues("rag", "error"))

	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "INV-001", "confidence": 85, "reasoning": "header"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha"), err: errors.New("index gone"), errOnce: true}
	s, _ := newTestService(gen, ret, &mockPacer{})

	fields := []domain.FieldDefinition{
		{Name: "Vendor", Query: "vendor?"},
		{Name: "Total", Query: "total?"},
	}
	s.ExtractAll(context.Background(), &domain.Session{}, fields)

	okDelta := testutil.ToFloat64(metrics.ExtractionFieldsTotal.WithLabelValues("rag", "ok")) - okBefore
	if okDelta != 1 {
		t.Errorf("extraction_fields_total{rag,ok} delta = %v, want 1", okDelta)
	}
	errDelta := testutil.ToFloat64(metrics.ExtractionFieldsTotal.WithLabelValues("rag", "error")) - errBefore
	if errDelta != 1 {
		t.Errorf("extraction_fields_total{rag,error} delta = %v, want 1", errDelta)
	}
	if testutil.CollectAndCount(metrics.ExtractionDuration) == 0 {
		t.Error("extraction_duration_seconds should have observations")
	}
}

func TestExtractAll_Empty(t *testing.T) {
	s, _ := newTestService(&mockGenerator{}, &mockRetriever{}, &mockPacer{})
	if results := s.ExtractAll(context.Background(), &domain.Session{}, nil); results != nil {
		t.Errorf("results = %v, want nil", results)
	}
}

func TestExtractAll_CanceledContextMarksRemaining(t *testing.T) {
	gen := &mockGenerator{responses: []generateResponse{
		{text: `{"value": "ok", "confidence": 70, "reasoning": "r"}`},
	}}
	ret := &mockRetriever{chunks: someChunks("alpha")}
	pac := &mockPacer{failAt: 2, waitErr: context.Canceled}
	s, _ := newTestService(gen, ret, pac)

	fields := []domain.FieldDefinition{
		{Name: "Vendor", Query: "vendor?"},
		{Name: "Total", Query: "total?"},
		{Name: "Date", Query: "date?"},
	}
	results := s.ExtractAll(context.Background(), &domain.Session{}, fields)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Failed() {
		t.Errorf("first field should have succeeded: %+v", results[0])
	}
	for _, r := range results[1:] {
		if !r.Failed() {
			t.Errorf("field %s should be marked failed after cancellation", r.FieldName)
		}
	}
	if gen.calls != 1 {
		t.Errorf("generate calls = %d, want 1", gen.calls)
	}
}
