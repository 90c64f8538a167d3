package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterExtractionMetrics()
	os.Exit(m.Run())
}

type mockChunker struct {
	chunks []string
	err    error
	calls  int
}

func (m *mockChunker) Split(_ string, cfg domain.ChunkingConfig) ([]string, error) {
	m.calls++
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return m.chunks, m.err
}

type mockBatchEmbedder struct {
	dims  int
	err   error
	calls int
	// drop removes this many embeddings from the tail of each response
	drop int
}

func (m *mockBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.BatchEmbeddingResult{}, m.err
	}
	n := len(texts) - m.drop
	embeddings := make([][]float32, n)
	for i := range embeddings {
		embeddings[i] = make([]float32, m.dims)
		embeddings[i][0] = float32(i + 1)
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: 10 * len(texts),
		TotalTokens:  10 * len(texts),
	}, nil
}

type mockIndexCache struct {
	existsHash  string
	exists      bool
	loaded      *domain.Session
	loadOK      bool
	saveErr     error
	existsCalls int
	saved       []*domain.Session
}

func (m *mockIndexCache) Exists(string) (string, bool) {
	m.existsCalls++
	return m.existsHash, m.exists
}

func (m *mockIndexCache) LoadSession(string) (*domain.Session, bool) {
	return m.loaded, m.loadOK
}

func (m *mockIndexCache) SaveSession(s *domain.Session) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved = append(m.saved, s)
	return s.Hash, nil
}

func newTestService(chunker *mockChunker, embedder *mockBatchEmbedder, cache *mockIndexCache) *Service {
	return New(chunker, embedder, cache, zap.NewNop())
}

func paragraphCfg() domain.ChunkingConfig {
	return domain.ChunkingConfig{
		Algorithm: domain.AlgorithmSlidingWindow,
		Mode:      domain.ModeParagraph,
		Size:      200,
		Overlap:   20,
	}
}

func TestBuild_FreshDocument(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha", "beta", "gamma"}}
	embedder := &mockBatchEmbedder{dims: 4}
	cache := &mockIndexCache{}
	svc := newTestService(chunker, embedder, cache)

	sess, err := svc.Build(context.Background(), Request{
		Text:     "para one\n\npara two",
		Filename: "doc.pdf",
		Chunking: paragraphCfg(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if sess.Text != "para one\n\npara two" {
		t.Errorf("Text = %q", sess.Text)
	}
	if sess.Hash != domain.DocumentHash("para one\n\npara two") {
		t.Errorf("Hash = %q", sess.Hash)
	}
	if sess.Filename != "doc.pdf" {
		t.Errorf("Filename = %q", sess.Filename)
	}
	if len(sess.Chunks) != 3 {
		t.Errorf("chunks = %v", sess.Chunks)
	}
	if sess.Index.Len() != 3 || sess.Index.Dimension() != 4 {
		t.Errorf("index %d vectors dim %d, want 3 dim 4", sess.Index.Len(), sess.Index.Dimension())
	}
	if sess.FromCache {
		t.Error("fresh session must not be marked FromCache")
	}
	if sess.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
	if len(cache.saved) != 1 {
		t.Fatalf("expected 1 cache save, got %d", len(cache.saved))
	}
	if embedder.calls != 1 {
		t.Errorf("expected 1 embedding call, got %d", embedder.calls)
	}
}

func TestBuild_CacheHit(t *testing.T) {
	cached := &domain.Session{
		Hash:      "cachedhash0000ab",
		Filename:  "doc.pdf",
		Chunks:    []string{"from", "disk"},
		FromCache: true,
	}
	chunker := &mockChunker{chunks: []string{"never used"}}
	embedder := &mockBatchEmbedder{dims: 4}
	cache := &mockIndexCache{existsHash: cached.Hash, exists: true, loaded: cached, loadOK: true}
	svc := newTestService(chunker, embedder, cache)

	sess, err := svc.Build(context.Background(), Request{Text: "doc text", Chunking: paragraphCfg()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !sess.FromCache {
		t.Error("expected FromCache session")
	}
	if sess.Text != "doc text" {
		t.Errorf("restored session must carry the request text, got %q", sess.Text)
	}
	if chunker.calls != 0 || embedder.calls != 0 {
		t.Errorf("cache hit must not chunk or embed: chunker=%d embedder=%d", chunker.calls, embedder.calls)
	}
	if len(cache.saved) != 0 {
		t.Errorf("cache hit must not re-save, saved %d", len(cache.saved))
	}
}

func TestBuild_CorruptCacheEntryRebuilds(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha"}}
	embedder := &mockBatchEmbedder{dims: 2}
	cache := &mockIndexCache{existsHash: "somehash", exists: true, loadOK: false}
	svc := newTestService(chunker, embedder, cache)

	sess, err := svc.Build(context.Background(), Request{Text: "doc text", Chunking: paragraphCfg()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sess.FromCache {
		t.Error("rebuilt session must not be FromCache")
	}
	if embedder.calls != 1 {
		t.Errorf("expected rebuild to embed, calls = %d", embedder.calls)
	}
	if len(cache.saved) != 1 {
		t.Errorf("expected rebuilt session to be saved, got %d", len(cache.saved))
	}
}

func TestBuild_SkipCache(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha"}}
	embedder := &mockBatchEmbedder{dims: 2}
	cache := &mockIndexCache{exists: true, loadOK: true, loaded: &domain.Session{}}
	svc := newTestService(chunker, embedder, cache)

	_, err := svc.Build(context.Background(), Request{
		Text:      "doc text",
		Chunking:  paragraphCfg(),
		SkipCache: true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cache.existsCalls != 0 {
		t.Errorf("SkipCache must not consult the cache, Exists called %d times", cache.existsCalls)
	}
	if len(cache.saved) != 0 {
		t.Errorf("SkipCache must not save, saved %d", len(cache.saved))
	}
}

func TestBuild_EmptyText(t *testing.T) {
	svc := newTestService(&mockChunker{}, &mockBatchEmbedder{dims: 2}, &mockIndexCache{})

	for _, text := range []string{"", "   \n\t "} {
		if _, err := svc.Build(context.Background(), Request{Text: text, Chunking: paragraphCfg()}); !errors.Is(err, domain.ErrEmptyDocument) {
			t.Errorf("Build(%q): expected ErrEmptyDocument, got %v", text, err)
		}
	}
}

func TestBuild_InvalidChunking(t *testing.T) {
	svc := newTestService(&mockChunker{}, &mockBatchEmbedder{dims: 2}, &mockIndexCache{})

	cfg := paragraphCfg()
	cfg.Algorithm = "bogus"
	_, err := svc.Build(context.Background(), Request{Text: "doc", Chunking: cfg})
	if !errors.Is(err, domain.ErrInvalidChunking) {
		t.Fatalf("expected ErrInvalidChunking, got %v", err)
	}
}

func TestBuild_NoChunks(t *testing.T) {
	svc := newTestService(&mockChunker{chunks: nil}, &mockBatchEmbedder{dims: 2}, &mockIndexCache{})

	_, err := svc.Build(context.Background(), Request{Text: "doc", Chunking: paragraphCfg()})
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("expected ErrEmptyDocument, got %v", err)
	}
}

func TestBuild_EmbedderError(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha"}}
	embedder := &mockBatchEmbedder{err: fmt.Errorf("quota spent")}
	svc := newTestService(chunker, embedder, &mockIndexCache{})

	_, err := svc.Build(context.Background(), Request{Text: "doc", Chunking: paragraphCfg()})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestBuild_EmbeddingCountMismatch(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha", "beta"}}
	embedder := &mockBatchEmbedder{dims: 2, drop: 1}
	svc := newTestService(chunker, embedder, &mockIndexCache{})

	_, err := svc.Build(context.Background(), Request{Text: "doc", Chunking: paragraphCfg()})
	if err == nil {
		t.Fatal("expected error on embedding count mismatch")
	}
}

func TestBuild_CacheSaveFailureIsSoft(t *testing.T) {
	chunker := &mockChunker{chunks: []string{"alpha"}}
	embedder := &mockBatchEmbedder{dims: 2}
	cache := &mockIndexCache{saveErr: fmt.Errorf("disk full")}
	svc := newTestService(chunker, embedder, cache)

	sess, err := svc.Build(context.Background(), Request{Text: "doc", Chunking: paragraphCfg()})
	if err != nil {
		t.Fatalf("Build must survive a failed cache write: %v", err)
	}
	if sess == nil || len(sess.Chunks) != 1 {
		t.Fatalf("unexpected session: %+v", sess)
	}
}
