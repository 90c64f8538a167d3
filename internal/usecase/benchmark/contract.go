package benchmark

import (
	"context"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// ExtractFunc performs one benchmark trial for a query and reports the
// extracted value, the model's confidence, and how many chunks backed it.
type ExtractFunc func(ctx context.Context, query string) (value string, confidence float64, numChunks int, err error)

// SessionBuilder builds a throwaway retrieval session for one algorithm pass.
type SessionBuilder interface {
	Build(ctx context.Context, text string, cfg domain.ChunkingConfig) (*domain.Session, error)
}

// Retriever finds the chunks most relevant to a query within a session.
type Retriever interface {
	Retrieve(ctx context.Context, sess *domain.Session, query string, topK int) ([]domain.RetrievedChunk, error)
}

// Extractor is the fast two-step extraction used for benchmark trials.
type Extractor interface {
	ExtractFieldSimple(ctx context.Context, query, contextText string) (domain.Extraction, error)
}

// Pacer spaces trials out against provider rate limits.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordError()
}
