package domain

import "fmt"

// Algorithm selects the chunking strategy.
type Algorithm string

const (
	AlgorithmSlidingWindow Algorithm = "sliding_window"
	AlgorithmRecursive     Algorithm = "recursive"
)

// Algorithms returns all strategies in comparison order.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmSlidingWindow, AlgorithmRecursive}
}

// Mode selects the unit a chunking strategy operates on.
type Mode string

const (
	ModeParagraph Mode = "paragraph"
	ModeSentence  Mode = "sentence"
	ModeToken     Mode = "token"
)

// Chunking defaults. Size is words for paragraph/sentence modes and
// tokens for token mode.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 20
)

// ChunkingConfig parameterizes one chunking pass.
type ChunkingConfig struct {
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
	Mode      Mode      `json:"mode" yaml:"mode"`
	Size      int       `json:"size" yaml:"size"`
	Overlap   int       `json:"overlap" yaml:"overlap"`
}

// WithDefaults fills zero values with the package defaults.
func (c ChunkingConfig) WithDefaults() ChunkingConfig {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmSlidingWindow
	}
	if c.Mode == "" {
		c.Mode = ModeParagraph
	}
	if c.Size <= 0 {
		c.Size = DefaultChunkSize
	}
	if c.Overlap < 0 {
		c.Overlap = DefaultChunkOverlap
	}
	return c
}

// Validate rejects unknown strategies and non-positive sizes.
func (c ChunkingConfig) Validate() error {
	switch c.Algorithm {
	case AlgorithmSlidingWindow, AlgorithmRecursive:
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrInvalidChunking, c.Algorithm)
	}
	switch c.Mode {
	case ModeParagraph, ModeSentence, ModeToken:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidChunking, c.Mode)
	}
	if c.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrInvalidChunking, c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap must be non-negative, got %d", ErrInvalidChunking, c.Overlap)
	}
	return nil
}
