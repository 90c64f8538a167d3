// Package retrieval maps field queries onto the most relevant session chunks.
package retrieval

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// DefaultTopK is the number of chunks retrieved when the caller does not ask
// for a specific count.
const DefaultTopK = 5

// Service retrieves chunks by embedding the query and searching the
// session's index.
type Service struct {
	embedder domain.Embedder
	topK     int
	logger   *zap.Logger
}

// New creates a retrieval service. embedder must be the query-mode side of
// the embedding chain.
func New(embedder domain.Embedder, defaultTopK int, logger *zap.Logger) *Service {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Service{embedder: embedder, topK: defaultTopK, logger: logger}
}

// Retrieve returns the topK chunks closest to the query, best first.
// topK ≤ 0 falls back to the configured default; an index smaller than topK
// returns fewer results.
func (s *Service) Retrieve(ctx context.Context, sess *domain.Session, query string, topK int) ([]domain.RetrievedChunk, error) {
	if sess == nil || sess.Index == nil {
		return nil, fmt.Errorf("session has no index")
	}
	if topK <= 0 {
		topK = s.topK
	}

	result, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := sess.Index.Search(result.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	out := make([]domain.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		if m.Position < 0 || m.Position >= len(sess.Chunks) {
			return nil, fmt.Errorf("index position %d out of range for %d chunks",
				m.Position, len(sess.Chunks))
		}
		out = append(out, domain.RetrievedChunk{
			Chunk:      sess.Chunks[m.Position],
			Position:   m.Position,
			Distance:   float64(m.Distance),
			Confidence: confidenceFromDistance(float64(m.Distance)),
		})
	}

	s.logger.Debug("Chunks retrieved",
		zap.String("query", query),
		zap.Int("top_k", topK),
		zap.Int("hits", len(out)))

	return out, nil
}

// confidenceFromDistance recovers cosine similarity from squared L2 distance
// between unit vectors: d = 2(1 − cos), so cos = 1 − d/2. Clamped to [0, 1]
// and expressed as a percentage with two decimals.
func confidenceFromDistance(d float64) float64 {
	cos := 1 - d/2
	if cos < 0 {
		cos = 0
	}
	if cos > 1 {
		cos = 1
	}
	return math.Round(cos*100*100) / 100
}
