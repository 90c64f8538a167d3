package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parchment-labs/fieldex/internal/chunk"
	"github.com/parchment-labs/fieldex/internal/config"
	"github.com/parchment-labs/fieldex/internal/db"
	dbRedis "github.com/parchment-labs/fieldex/internal/db/redis"
	"github.com/parchment-labs/fieldex/internal/domain"
	"github.com/parchment-labs/fieldex/internal/metrics"
	"github.com/parchment-labs/fieldex/internal/pacing"
	"github.com/parchment-labs/fieldex/internal/repository/embcache"
	"github.com/parchment-labs/fieldex/internal/repository/indexcache"
	"github.com/parchment-labs/fieldex/internal/tokenizer"
	openaiTransport "github.com/parchment-labs/fieldex/internal/transport/openai"
	analysisuc "github.com/parchment-labs/fieldex/internal/usecase/analysis"
	benchmarkuc "github.com/parchment-labs/fieldex/internal/usecase/benchmark"
	embeddinguc "github.com/parchment-labs/fieldex/internal/usecase/embedding"
	extractionuc "github.com/parchment-labs/fieldex/internal/usecase/extraction"
	flowuc "github.com/parchment-labs/fieldex/internal/usecase/flow"
	generationuc "github.com/parchment-labs/fieldex/internal/usecase/generation"
	healthuc "github.com/parchment-labs/fieldex/internal/usecase/health"
	retrievaluc "github.com/parchment-labs/fieldex/internal/usecase/retrieval"
	sessionuc "github.com/parchment-labs/fieldex/internal/usecase/session"
)

const providerName = "openai"

// batchEmbedder is what the session builder needs from the embedding chain.
type batchEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}

// core bundles the wired engine services. One core per process.
type core struct {
	cfg    config.Config
	logger *zap.Logger
	store  db.Store // nil when no Redis embedding cache is configured

	cache      *indexcache.Cache
	sessions   *sessionuc.Service
	retrieval  *retrievaluc.Service
	extraction *extractionuc.Service
	analysis   *analysisuc.Service
	flows      *flowuc.Service
	benchmarks *benchmarkuc.Service
	health     *healthuc.Service
}

// buildCore is the composition root: decorator chains for both providers,
// the chunker, the disk index cache, and every usecase service on top.
func buildCore(cfg config.Config, logger *zap.Logger) (*core, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterLLMMetrics()
	metrics.RegisterExtractionMetrics()

	codec, err := tokenizer.NewTiktoken()
	if err != nil {
		return nil, fmt.Errorf("load token codec: %w", err)
	}
	punkt, err := tokenizer.NewPunkt()
	if err != nil {
		return nil, fmt.Errorf("load sentence tokenizer: %w", err)
	}
	chunker := chunk.New(codec, punkt)

	// Optional Redis embedding cache.
	var store db.Store
	if len(cfg.Cache.Redis.Addrs) > 0 {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Redis.Addrs,
			Password: cfg.Cache.Redis.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		readiness := time.Duration(cfg.Cache.Redis.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(context.Background(), readiness); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to Redis embedding cache",
			zap.Strings("addrs", cfg.Cache.Redis.Addrs))
	}

	docEmbedder := buildEmbedder(cfg, cfg.Models.DocumentInstruction, store, codec.Count, logger)
	queryEmbedder := buildEmbedder(cfg, cfg.Models.QueryInstruction, store, codec.Count, logger)

	baseGenerator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:    cfg.Provider.APIKey,
		BaseURL:   cfg.Provider.BaseURL,
		FullModel: cfg.Models.Generation,
		LiteModel: cfg.Models.GenerationLite,
		Provider:  providerName,
		Logger:    logger,
	})
	generator := generationuc.NewInstrumentedGenerator(baseGenerator, providerName, codec.Count, logger)

	cache := indexcache.New(cfg.Cache.Dir, logger)
	sessions := sessionuc.New(chunker, docEmbedder, cache, logger)
	retrieval := retrievaluc.New(queryEmbedder, cfg.Retrieval.TopK, logger)

	pacer := pacing.New(time.Duration(cfg.Extraction.APIDelaySec * float64(time.Second)))

	extraction := extractionuc.New(generator, retrieval, pacer, logger).
		WithRetries(cfg.Extraction.RetryCount).
		WithTopK(cfg.Retrieval.TopK)
	analysis := analysisuc.New(generator, logger).
		WithSampleLimit(cfg.Extraction.AnalysisSampleChars)
	flows := flowuc.New(generator, retrieval, pacer, logger).
		WithCostRates(cfg.Costs.Rates()).
		WithMaxDocumentLength(cfg.Extraction.MaxDocumentChars)
	benchmarks := benchmarkuc.New(&benchSessionBuilder{sessions: sessions}, retrieval, extraction, pacer, logger).
		WithTopK(cfg.Retrieval.TopK)

	var pinger healthuc.CachePinger
	if store != nil {
		pinger = store
	}
	health := healthuc.New(baseGenerator, pinger)

	return &core{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		cache:      cache,
		sessions:   sessions,
		retrieval:  retrieval,
		extraction: extraction,
		analysis:   analysis,
		flows:      flows,
		benchmarks: benchmarks,
		health:     health,
	}, nil
}

// Close releases held connections.
func (c *core) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> Cached -> Instrumented -> Instruction.
func buildEmbedder(
	cfg config.Config,
	instruction string,
	store db.Store,
	estimate func(string) int,
	logger *zap.Logger,
) batchEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Provider.APIKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Models.Embedding,
		Dimensions: cfg.Models.Dimensions,
		Provider:   providerName,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		ttl := time.Duration(cfg.Cache.Redis.TTLSec) * time.Second
		prefix := cfg.Cache.Redis.KeyPrefix + cfg.Models.Embedding + ":"
		embedder = embcache.New(base, store, prefix, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	instrumented := embeddinguc.NewInstrumentedEmbedder(
		embedder, providerName, cfg.Models.Embedding, cfg.Models.MaxBatchSize, estimate, logger,
	)

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(instrumented, instruction)
	}
	return instrumented
}

// benchSessionBuilder adapts the session service to the benchmark port:
// benchmark passes build throwaway indexes and must bypass the disk cache.
type benchSessionBuilder struct {
	sessions *sessionuc.Service
}

func (b *benchSessionBuilder) Build(ctx context.Context, text string, cfg domain.ChunkingConfig) (*domain.Session, error) {
	return b.sessions.Build(ctx, sessionuc.Request{
		Text:      text,
		Chunking:  cfg,
		SkipCache: true,
	})
}
