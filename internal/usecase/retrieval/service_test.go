package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/vector"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: m.vec, TotalTokens: 3}, nil
}

// newTestSession builds a session over three unit vectors at known distances
// from the query [1, 0]: exact hit, diagonal, orthogonal.
func newTestSession(t *testing.T) *domain.Session {
	t.Helper()
	idx, err := vector.Build([][]float32{
		{1, 0},     // d = 0    → confidence 100
		{0, 1},     // d = 2    → confidence 0
		{0.6, 0.8}, // d = 0.8  → confidence 60
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return &domain.Session{
		Chunks: []string{"exact match chunk", "orthogonal chunk", "diagonal chunk"},
		Index:  idx,
	}
}

func TestRetrieve_OrdersByDistance(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, 5, zap.NewNop())
	sess := newTestSession(t)

	got, err := svc.Retrieve(context.Background(), sess, "what is it", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}

	wantChunks := []string{"exact match chunk", "diagonal chunk", "orthogonal chunk"}
	wantConf := []float64{100, 60, 0}
	for i := range got {
		if got[i].Chunk != wantChunks[i] {
			t.Errorf("result %d chunk = %q, want %q", i, got[i].Chunk, wantChunks[i])
		}
		if math.Abs(got[i].Confidence-wantConf[i]) > 0.01 {
			t.Errorf("result %d confidence = %v, want %v", i, got[i].Confidence, wantConf[i])
		}
	}
	if got[0].Position != 0 || got[1].Position != 2 || got[2].Position != 1 {
		t.Errorf("positions = %d,%d,%d want 0,2,1", got[0].Position, got[1].Position, got[2].Position)
	}
	if got[0].Distance > got[1].Distance || got[1].Distance > got[2].Distance {
		t.Errorf("distances not ascending: %v, %v, %v", got[0].Distance, got[1].Distance, got[2].Distance)
	}
}

func TestRetrieve_DefaultTopK(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, 2, zap.NewNop())
	sess := newTestSession(t)

	got, err := svc.Retrieve(context.Background(), sess, "q", 0)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected the configured default of 2 results, got %d", len(got))
	}
}

func TestRetrieve_TopKBeyondIndexSize(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, 5, zap.NewNop())
	sess := newTestSession(t)

	got, err := svc.Retrieve(context.Background(), sess, "q", 10)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected all 3 chunks, got %d", len(got))
	}
}

func TestRetrieve_EmbedderError(t *testing.T) {
	svc := New(&mockEmbedder{err: fmt.Errorf("provider down")}, 5, zap.NewNop())
	sess := newTestSession(t)

	if _, err := svc.Retrieve(context.Background(), sess, "q", 3); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrieve_DimensionMismatch(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0, 0}}, 5, zap.NewNop())
	sess := newTestSession(t)

	_, err := svc.Retrieve(context.Background(), sess, "q", 3)
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		t.Fatalf("expected ErrVectorDimMismatch, got %v", err)
	}
}

func TestRetrieve_NoIndex(t *testing.T) {
	svc := New(&mockEmbedder{vec: []float32{1, 0}}, 5, zap.NewNop())

	if _, err := svc.Retrieve(context.Background(), &domain.Session{}, "q", 3); err == nil {
		t.Fatal("expected error for session without index")
	}
	if _, err := svc.Retrieve(context.Background(), nil, "q", 3); err == nil {
		t.Fatal("expected error for nil session")
	}
}

func TestConfidenceFromDistance(t *testing.T) {
	tests := []struct {
		d    float64
		want float64
	}{
		{0, 100},
		{0.8, 60},
		{2, 0},
		{5, 0},      // beyond the unit-vector range, clamped
		{-0.1, 100}, // negative distance cannot happen, clamp anyway
		{0.5858, 70.71},
	}
	for _, tt := range tests {
		if got := confidenceFromDistance(tt.d); math.Abs(got-tt.want) > 0.005 {
			t.Errorf("confidenceFromDistance(%v) = %v, want %v", tt.d, got, tt.want)
		}
	}
}
