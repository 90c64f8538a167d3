package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentHash is the content identity of a document: SHA-256 of the text,
// first 16 hex characters. Identical text always maps to the same hash.
func DocumentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}

// VectorIndex is the exact nearest-neighbor search contract. Positions in
// matches index into the chunk slice the index was built from.
type VectorIndex interface {
	Search(query []float32, k int) ([]IndexMatch, error)
	Dimension() int
	Len() int
}

// IndexMatch is one nearest neighbor. Distance is squared Euclidean.
type IndexMatch struct {
	Position int
	Distance float32
}

// Session is one prepared document: its text, content hash, chunks and the
// index built over them. Everything downstream (retrieval, extraction,
// flows) operates on an explicit session; nothing holds document state in
// package globals.
type Session struct {
	Text      string
	Hash      string
	Filename  string
	Chunks    []string
	Index     VectorIndex
	Chunking  ChunkingConfig
	CreatedAt time.Time
	// FromCache marks a session restored from the on-disk index cache
	// rather than chunked and embedded in this process.
	FromCache bool
}

// NumChunks returns the chunk count.
func (s *Session) NumChunks() int {
	if s == nil {
		return 0
	}
	return len(s.Chunks)
}
