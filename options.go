package fieldex

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option interface {
	apply(*clientConfig)
}

// optionFunc adapts a function to the Option interface.
type optionFunc func(*clientConfig)

func (f optionFunc) apply(c *clientConfig) { f(c) }

type clientConfig struct {
	apiKey  string
	baseURL string

	fullModel      string
	liteModel      string
	embeddingModel string
	dimensions     int
	maxBatchSize   int

	docInstruction   string
	queryInstruction string

	embedder  Embedder
	generator Generator

	chunking ChunkingConfig
	topK     int
	retries  int
	apiDelay time.Duration

	maxDocumentChars    int
	analysisSampleChars int

	cacheDir string

	costRates CostRates

	logger *zap.Logger
}

// WithAPIKey sets the credential for the built-in OpenAI-compatible provider.
func WithAPIKey(key string) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiKey = key
	})
}

// WithBaseURL points the built-in provider at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return optionFunc(func(c *clientConfig) {
		c.baseURL = url
	})
}

// WithModels names the generation models behind each tier.
// Defaults: gpt-4o and gpt-4o-mini.
func WithModels(full, lite string) Option {
	return optionFunc(func(c *clientConfig) {
		c.fullModel = full
		c.liteModel = lite
	})
}

// WithEmbeddingModel names the embedding model and an optional dimension
// override. Default: text-embedding-3-small at the provider's native size.
func WithEmbeddingModel(model string, dimensions int) Option {
	return optionFunc(func(c *clientConfig) {
		c.embeddingModel = model
		c.dimensions = dimensions
	})
}

// WithInstructions sets the retrieval instruction prefixes. Instruction-tuned
// embedding models want different prefixes for stored text and queries.
func WithInstructions(document, query string) Option {
	return optionFunc(func(c *clientConfig) {
		c.docInstruction = document
		c.queryInstruction = query
	})
}

// WithEmbedder swaps in a custom embedding provider.
func WithEmbedder(e Embedder) Option {
	return optionFunc(func(c *clientConfig) {
		c.embedder = e
	})
}

// WithGenerator swaps in a custom generation provider.
func WithGenerator(g Generator) Option {
	return optionFunc(func(c *clientConfig) {
		c.generator = g
	})
}

// WithChunking sets the default chunking configuration for Prepare.
func WithChunking(cfg ChunkingConfig) Option {
	return optionFunc(func(c *clientConfig) {
		c.chunking = cfg
	})
}

// WithTopK sets how many chunks retrieval feeds into extraction. Default: 5.
func WithTopK(k int) Option {
	return optionFunc(func(c *clientConfig) {
		c.topK = k
	})
}

// WithRetries sets attempts per extraction call. Default: 3.
func WithRetries(n int) Option {
	return optionFunc(func(c *clientConfig) {
		c.retries = n
	})
}

// WithAPIDelay sets the minimum gap between provider calls. Default: 2s.
func WithAPIDelay(d time.Duration) Option {
	return optionFunc(func(c *clientConfig) {
		c.apiDelay = d
	})
}

// WithMaxBatchSize caps texts per embedding API call. Default: 50.
func WithMaxBatchSize(size int) Option {
	return optionFunc(func(c *clientConfig) {
		c.maxBatchSize = size
	})
}

// WithCacheDir sets where document indexes are cached.
// Default: .fieldex/indexes.
func WithCacheDir(dir string) Option {
	return optionFunc(func(c *clientConfig) {
		c.cacheDir = dir
	})
}

// WithCostRates prices token usage in flow metrics, USD per million tokens.
// Zero rates (the default) report zero cost.
func WithCostRates(r CostRates) Option {
	return optionFunc(func(c *clientConfig) {
		c.costRates = r
	})
}

// WithLogger enables structured logging. Pass nil to disable (default).
func WithLogger(l *zap.Logger) Option {
	return optionFunc(func(c *clientConfig) {
		c.logger = l
	})
}
