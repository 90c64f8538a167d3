// Package session prepares documents for retrieval: chunk, embed, index,
// cache. Building a session is the expensive half of the pipeline (one
// provider call per chunk batch), so built indexes are persisted on disk
// keyed by document content hash.
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/metrics"
	"github.com/parchment-labs/fieldex/internal/vector"
)

// Service builds sessions.
type Service struct {
	chunker  Chunker
	embedder domain.BatchEmbedder
	cache    IndexCache
	logger   *zap.Logger
}

// New creates a session service.
func New(chunker Chunker, embedder domain.BatchEmbedder, cache IndexCache, logger *zap.Logger) *Service {
	return &Service{
		chunker:  chunker,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}
}

// Request describes one session build.
type Request struct {
	Text     string
	Filename string
	Chunking domain.ChunkingConfig
	// SkipCache builds without reading or writing the disk cache. Benchmark
	// passes use it: their throwaway indexes must not evict or shadow the
	// document's regular entry.
	SkipCache bool
}

// Build prepares a session for a document. A cached index for the exact same
// text is restored without any provider calls; the restored session carries
// the chunking config it was built with, not the requested one.
func (s *Service) Build(ctx context.Context, req Request) (*domain.Session, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	cfg := req.Chunking.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !req.SkipCache {
		if cached, ok := s.fromCache(req.Text); ok {
			return cached, nil
		}
	}

	sess, err := s.build(ctx, req.Text, req.Filename, cfg)
	if err != nil {
		return nil, err
	}

	if !req.SkipCache {
		// Cache write failure is a warning, not a build failure.
		if _, err := s.cache.SaveSession(sess); err != nil {
			s.logger.Warn("Session cache write failed",
				zap.String("hash", sess.Hash), zap.Error(err))
		}
	}
	return sess, nil
}

func (s *Service) fromCache(text string) (*domain.Session, bool) {
	hash, ok := s.cache.Exists(text)
	if ok {
		if cached, loaded := s.cache.LoadSession(hash); loaded {
			cached.Text = text
			metrics.IndexCacheTotal.WithLabelValues("hit").Inc()
			s.logger.Info("Session restored from cache",
				zap.String("hash", hash),
				zap.Int("chunks", len(cached.Chunks)))
			return cached, true
		}
	}
	metrics.IndexCacheTotal.WithLabelValues("miss").Inc()
	return nil, false
}

func (s *Service) build(ctx context.Context, text, filename string, cfg domain.ChunkingConfig) (*domain.Session, error) {
	chunks, err := s.chunker.Split(text, cfg)
	if err != nil {
		return nil, fmt.Errorf("chunk document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no chunks: %w", domain.ErrEmptyDocument)
	}

	batch, err := s.embedder.BatchEmbed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	// Positions in the index must line up with the chunk slice.
	if len(batch.Embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding count %d does not match chunk count %d",
			len(batch.Embeddings), len(chunks))
	}

	index, err := vector.Build(batch.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}

	s.logger.Info("Session built",
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimensions", index.Dimension()),
		zap.Int("embedding_tokens", batch.TotalTokens))

	return &domain.Session{
		Text:      text,
		Hash:      domain.DocumentHash(text),
		Filename:  filename,
		Chunks:    chunks,
		Index:     index,
		Chunking:  cfg,
		CreatedAt: time.Now(),
	}, nil
}
