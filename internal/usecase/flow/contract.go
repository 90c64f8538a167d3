package flow

import (
	"context"

	"github.com/parchment-labs/fieldex/internal/domain"
)

// Retriever returns the chunks most relevant to a query within a prepared
// session.
type Retriever interface {
	Retrieve(ctx context.Context, sess *domain.Session, query string, topK int) ([]domain.RetrievedChunk, error)
}

// Pacer spaces provider calls between fields and widens the gap after a
// failure.
type Pacer interface {
	Wait(ctx context.Context) error
	RecordError()
}
