package indexcache

import (
	"fmt"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/vector"
)

// SaveSession persists a built session. The session's index must be the flat
// index this package knows how to serialize.
func (c *Cache) SaveSession(s *domain.Session) (string, error) {
	idx, ok := s.Index.(*vector.FlatIndex)
	if !ok {
		return "", fmt.Errorf("save session: unsupported index type %T", s.Index)
	}
	return c.Save(idx, s.Chunks, s.Text, s.Filename, s.Chunking)
}

// LoadSession restores a session from disk. Text is not persisted; callers
// fill it in (they hashed it to find the entry in the first place).
func (c *Cache) LoadSession(hash string) (*domain.Session, bool) {
	entry, ok := c.Load(hash)
	if !ok {
		return nil, false
	}
	return &domain.Session{
		Hash:      hash,
		Filename:  entry.Meta.Filename,
		Chunks:    entry.Chunks,
		Index:     entry.Index,
		Chunking:  entry.Meta.ChunkingConfig,
		CreatedAt: entry.Meta.CreatedAt,
		FromCache: true,
	}, true
}
