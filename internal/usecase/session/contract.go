package session

import "github.com/parchment-labs/fieldex/internal/domain"

// Chunker splits document text into retrieval units.
type Chunker interface {
	Split(text string, cfg domain.ChunkingConfig) ([]string, error)
}

// IndexCache persists built sessions on disk keyed by document content hash.
type IndexCache interface {
	Exists(documentText string) (hash string, ok bool)
	LoadSession(hash string) (*domain.Session, bool)
	SaveSession(s *domain.Session) (string, error)
}
