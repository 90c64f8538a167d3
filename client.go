package fieldex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/chunk"
	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/pacing"
	"github.com/parchment-labs/fieldex/internal/pdf"
	"github.com/parchment-labs/fieldex/internal/repository/indexcache"
	"github.com/parchment-labs/fieldex/internal/tokenizer"
	openaiTransport "github.com/parchment-labs/fieldex/internal/transport/openai"
	analysisuc "github.com/parchment-labs/fieldex/internal/usecase/analysis"
	benchmarkuc "github.com/parchment-labs/fieldex/internal/usecase/benchmark"
	embeddinguc "github.com/parchment-labs/fieldex/internal/usecase/embedding"
	extractionuc "github.com/parchment-labs/fieldex/internal/usecase/extraction"
	flowuc "github.com/parchment-labs/fieldex/internal/usecase/flow"
	generationuc "github.com/parchment-labs/fieldex/internal/usecase/generation"
	retrievaluc "github.com/parchment-labs/fieldex/internal/usecase/retrieval"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

// Library defaults; each has an Option override.
const (
	defaultFullModel      = "gpt-4o"
	defaultLiteModel      = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultTopK           = 5
	defaultRetries        = 3
	defaultAPIDelay       = 2 * time.Second
	defaultMaxBatchSize   = 50
	defaultCacheDir       = ".fieldex/indexes"
)

// Client is the fieldex library entry point.
type Client struct {
	logger *zap.Logger
	cache  *indexcache.Cache

	sessions   *sessionuc.Service
	retrieval  *retrievaluc.Service
	analysis   *analysisuc.Service
	extraction *extractionuc.Service
	flows      *flowuc.Service
	benchmarks *benchmarkuc.Service

	providerHealth domain.HealthChecker // nil for custom providers
}

// Document is a prepared document handle: chunked, embedded and indexed.
type Document struct {
	sess *domain.Session
}

// Hash is the content identity of the document text.
func (d *Document) Hash() string { return d.sess.Hash }

// Chunks returns the document's chunks in index order.
func (d *Document) Chunks() []string { return d.sess.Chunks }

// FromCache reports whether the index was restored from the disk cache.
func (d *Document) FromCache() bool { return d.sess.FromCache }

// New creates a fieldex Client. Either an API key for the built-in
// OpenAI-compatible provider or a custom Generator is required.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		fullModel:      defaultFullModel,
		liteModel:      defaultLiteModel,
		embeddingModel: defaultEmbeddingModel,
		topK:           defaultTopK,
		retries:        defaultRetries,
		apiDelay:       defaultAPIDelay,
		maxBatchSize:   defaultMaxBatchSize,
		cacheDir:       defaultCacheDir,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.generator == nil && cfg.apiKey == "" {
		return nil, errors.New("fieldex: API key or custom generator required (use WithAPIKey or WithGenerator)")
	}

	logger := cfg.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	codec, err := tokenizer.NewTiktoken()
	if err != nil {
		return nil, fmt.Errorf("fieldex: load token codec: %w", err)
	}
	punkt, err := tokenizer.NewPunkt()
	if err != nil {
		return nil, fmt.Errorf("fieldex: load sentence tokenizer: %w", err)
	}
	chunker := chunk.New(codec, punkt)

	return wireClient(cfg, chunker, codec.Count, logger)
}

func wireClient(cfg *clientConfig, chunker *chunk.Chunker, estimate func(string) int, logger *zap.Logger) (*Client, error) {
	var health domain.HealthChecker

	// Generator: custom or built-in provider.
	var generator domain.Generator
	if cfg.generator != nil {
		generator = &generatorAdapter{inner: cfg.generator}
	} else {
		base := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			APIKey:    cfg.apiKey,
			BaseURL:   cfg.baseURL,
			FullModel: cfg.fullModel,
			LiteModel: cfg.liteModel,
			Provider:  "openai",
			Logger:    logger,
		})
		health = base
		generator = base
	}
	generator = generationuc.NewInstrumentedGenerator(generator, "openai", estimate, logger)

	docEmbedder := buildClientEmbedder(cfg, cfg.docInstruction, estimate, logger)
	queryEmbedder := buildClientEmbedder(cfg, cfg.queryInstruction, estimate, logger)

	cache := indexcache.New(cfg.cacheDir, logger)
	sessions := sessionuc.New(chunker, docEmbedder, cache, logger)
	retrieval := retrievaluc.New(queryEmbedder, cfg.topK, logger)
	pacer := pacing.New(cfg.apiDelay)

	extraction := extractionuc.New(generator, retrieval, pacer, logger).
		WithRetries(cfg.retries).
		WithTopK(cfg.topK)
	analysis := analysisuc.New(generator, logger)
	if cfg.analysisSampleChars > 0 {
		analysis = analysis.WithSampleLimit(cfg.analysisSampleChars)
	}
	flows := flowuc.New(generator, retrieval, pacer, logger).
		WithCostRates(domain.CostRates{
			InputPerMTok:     cfg.costRates.InputPerMTok,
			OutputPerMTok:    cfg.costRates.OutputPerMTok,
			EmbeddingPerMTok: cfg.costRates.EmbeddingPerMTok,
		})
	if cfg.maxDocumentChars > 0 {
		flows = flows.WithMaxDocumentLength(cfg.maxDocumentChars)
	}
	benchmarks := benchmarkuc.New(&clientSessionBuilder{sessions: sessions}, retrieval, extraction, pacer, logger).
		WithTopK(cfg.topK)

	return &Client{
		logger:         logger,
		cache:          cache,
		sessions:       sessions,
		retrieval:      retrieval,
		analysis:       analysis,
		extraction:     extraction,
		flows:          flows,
		benchmarks:     benchmarks,
		providerHealth: health,
	}, nil
}

// buildClientEmbedder assembles the embedding chain:
// provider -> instrumented -> instruction. Without an embedder the chain
// degrades to an erroring stub and only zero-shot extraction works.
func buildClientEmbedder(cfg *clientConfig, instruction string, estimate func(string) int, logger *zap.Logger) batchEmbedder {
	var base domain.Embedder
	switch {
	case cfg.embedder != nil:
		base = &embedderAdapter{inner: cfg.embedder}
	case cfg.apiKey != "":
		base = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:     cfg.apiKey,
			BaseURL:    cfg.baseURL,
			Model:      cfg.embeddingModel,
			Dimensions: cfg.dimensions,
			Provider:   "openai",
			Logger:     logger,
		})
	default:
		return noopEmbedder{}
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		base, "openai", cfg.embeddingModel, cfg.maxBatchSize, estimate, logger,
	)
	if instruction != "" {
		return domain.NewInstructionEmbedder(instrumented, instruction)
	}
	return instrumented
}

// batchEmbedder is what document preparation needs from the embedding chain.
type batchEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// noopEmbedder errors on use; wired when no embedding provider is configured.
type noopEmbedder struct{}

func (noopEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, errors.New(
		"fieldex: embedder not configured (use WithAPIKey or WithEmbedder for retrieval)",
	)
}

func (noopEmbedder) BatchEmbed(context.Context, []string) (domain.BatchEmbeddingResult, error) {
	return domain.BatchEmbeddingResult{}, errors.New(
		"fieldex: embedder not configured (use WithAPIKey or WithEmbedder for retrieval)",
	)
}

// clientSessionBuilder adapts the session service to the benchmark port.
// Benchmark indexes are throwaway and bypass the disk cache.
type clientSessionBuilder struct {
	sessions *sessionuc.Service
}

func (b *clientSessionBuilder) Build(ctx context.Context, text string, cfg domain.ChunkingConfig) (*domain.Session, error) {
	return b.sessions.Build(ctx, sessionuc.Request{Text: text, Chunking: cfg, SkipCache: true})
}

// ReadPDF extracts plain text from PDF bytes, pages joined with form feeds.
func ReadPDF(data []byte) (string, error) {
	return pdf.Read(data)
}

// Prepare chunks, embeds and indexes a document, reusing a cached index
// when the same text was prepared with the same chunking before.
func (c *Client) Prepare(ctx context.Context, text, filename string) (*Document, error) {
	return c.PrepareWithChunking(ctx, text, filename, c.defaultChunking())
}

// PrepareWithChunking is Prepare with an explicit chunking configuration.
func (c *Client) PrepareWithChunking(ctx context.Context, text, filename string, chunking ChunkingConfig) (*Document, error) {
	sess, err := c.sessions.Build(ctx, sessionuc.Request{
		Text:     text,
		Filename: filename,
		Chunking: toDomainChunking(chunking),
	})
	if err != nil {
		return nil, err
	}
	return &Document{sess: sess}, nil
}

func (c *Client) defaultChunking() ChunkingConfig {
	return fromDomainChunking(toDomainChunking(ChunkingConfig{}))
}

// Analyze asks the model which fields the document contains.
func (c *Client) Analyze(ctx context.Context, text string) ([]Field, error) {
	defs, err := c.analysis.AnalyzeDocument(ctx, text)
	if err != nil {
		return nil, err
	}
	return fromDomainFields(defs), nil
}

// Retrieve returns the chunks nearest to the query. topK zero means the
// client default.
func (c *Client) Retrieve(ctx context.Context, doc *Document, query string, topK int) ([]RetrievedChunk, error) {
	chunks, err := c.retrieval.Retrieve(ctx, doc.sess, query, topK)
	if err != nil {
		return nil, err
	}
	return fromDomainChunks(chunks), nil
}

// Extract runs retrieval-augmented extraction for every field. Results keep
// field order; a failed field carries its error instead of aborting the rest.
func (c *Client) Extract(ctx context.Context, doc *Document, fields []Field) []FieldResult {
	return fromDomainResults(c.extraction.ExtractAll(ctx, doc.sess, toDomainFields(fields)))
}

// ZeroShot extracts every field in one full-document model call.
func (c *Client) ZeroShot(ctx context.Context, text string, fields []Field) ([]FieldResult, FlowMetrics) {
	results, metrics := c.flows.ZeroShot(ctx, text, toDomainFields(fields), "")
	return fromDomainResults(results), fromDomainMetrics(metrics)
}

// RAG extracts every field over retrieved chunks, one model call per field.
func (c *Client) RAG(ctx context.Context, doc *Document, fields []Field) ([]FieldResult, FlowMetrics) {
	results, metrics := c.flows.RAG(ctx, doc.sess, toDomainFields(fields))
	return fromDomainResults(results), fromDomainMetrics(metrics)
}

// Compare runs both flows over the document and grades each against the
// ground truth. The error is from document preparation; flow failures are
// reported inside the result.
func (c *Client) Compare(ctx context.Context, text string, masters []MasterField) (FlowReport, error) {
	doc, err := c.Prepare(ctx, text, "")
	if err != nil {
		return FlowReport{}, err
	}

	defs := toDomainFields(fieldsOf(masters))
	zsResults, _ := c.flows.ZeroShot(ctx, text, defs, "")
	ragResults, _ := c.flows.RAG(ctx, doc.sess, defs)

	return fromDomainReport(flowuc.Compare(toDomainMasters(masters), zsResults, ragResults, text)), nil
}

func fieldsOf(masters []MasterField) []Field {
	fields := make([]Field, len(masters))
	for i, m := range masters {
		fields[i] = m.Field
	}
	return fields
}

// Benchmark repeats the same extraction and reports value consistency,
// confidence and latency per run.
func (c *Client) Benchmark(ctx context.Context, doc *Document, query string, runs int) []RunRecord {
	return fromDomainRuns(c.benchmarks.RunSession(ctx, doc.sess, query, runs))
}

// CompareAlgorithms benchmarks the query once per chunking algorithm on
// fresh throwaway indexes.
func (c *Client) CompareAlgorithms(ctx context.Context, text, query string, runs int) (map[Algorithm]AlgoSummary, error) {
	summaries, err := c.benchmarks.CompareAlgorithms(ctx, benchmarkuc.CompareRequest{
		Query: query,
		Text:  text,
		Runs:  runs,
	})
	if err != nil {
		return nil, err
	}
	return fromDomainSummaries(summaries), nil
}

// CachedDocuments lists the on-disk index cache.
func (c *Client) CachedDocuments() []CacheEntry {
	return fromCacheMetadata(c.cache.List())
}

// DeleteCached removes one cached index by document hash.
func (c *Client) DeleteCached(hash string) bool {
	return c.cache.Delete(hash)
}

// Ping verifies provider availability. Custom providers are assumed healthy.
func (c *Client) Ping(ctx context.Context) error {
	if c.providerHealth == nil {
		return nil
	}
	if err := c.providerHealth.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
