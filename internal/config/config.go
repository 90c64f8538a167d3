package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/parchment-labs/fieldex/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds the fieldex configuration.
type Config struct {
	HTTP       HTTPConfig            `yaml:"http"`
	Provider   ProviderConfig        `yaml:"provider"`
	Models     ModelsConfig          `yaml:"models"`
	Chunking   domain.ChunkingConfig `yaml:"chunking"`
	Retrieval  RetrievalConfig       `yaml:"retrieval"`
	Extraction ExtractionConfig      `yaml:"extraction"`
	Benchmark  BenchmarkConfig       `yaml:"benchmark"`
	Cache      CacheConfig           `yaml:"cache"`
	Costs      CostsConfig           `yaml:"costs"`
	Auth       AuthConfig            `yaml:"auth"`
	Logging    LoggingConfig         `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings for serve mode.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// ProviderConfig holds the OpenAI-compatible provider connection.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ModelsConfig names the models behind each tier and the embedding model.
type ModelsConfig struct {
	Generation          string `yaml:"generation"`      // full tier
	GenerationLite      string `yaml:"generation_lite"` // lite tier
	Embedding           string `yaml:"embedding"`
	Dimensions          int    `yaml:"dimensions"` // 0 = provider default
	MaxBatchSize        int    `yaml:"max_batch_size"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ExtractionConfig holds extraction pacing and sampling limits.
type ExtractionConfig struct {
	RetryCount          int     `yaml:"retry_count"`
	APIDelaySec         float64 `yaml:"api_delay_sec"`
	MaxDocumentChars    int     `yaml:"max_document_chars"`
	AnalysisSampleChars int     `yaml:"analysis_sample_chars"`
}

// BenchmarkConfig holds benchmark repetition settings.
type BenchmarkConfig struct {
	DefaultRuns int `yaml:"default_runs"`
	MaxRuns     int `yaml:"max_runs"`
}

// CacheConfig holds index cache and optional embedding cache settings.
type CacheConfig struct {
	Dir   string      `yaml:"dir"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds the optional Redis embedding cache connection.
// Empty addrs disables the cache.
type RedisConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	TTLSec           int      `yaml:"ttl_sec"` // 0 = no expiry
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CostsConfig prices tokens in USD per million for cost reporting.
type CostsConfig struct {
	InputPerMTok     float64 `yaml:"input_per_mtok"`
	OutputPerMTok    float64 `yaml:"output_per_mtok"`
	EmbeddingPerMTok float64 `yaml:"embedding_per_mtok"`
}

// Rates converts the cost section to domain rates.
func (c CostsConfig) Rates() domain.CostRates {
	return domain.CostRates{
		InputPerMTok:     c.InputPerMTok,
		OutputPerMTok:    c.OutputPerMTok,
		EmbeddingPerMTok: c.EmbeddingPerMTok,
	}
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port <= 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	// Extraction rides on slow LLM round-trips, so writes get a long leash.
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Models.Generation == "" {
		c.Models.Generation = "gpt-4o"
	}
	if c.Models.GenerationLite == "" {
		c.Models.GenerationLite = "gpt-4o-mini"
	}
	if c.Models.Embedding == "" {
		c.Models.Embedding = "text-embedding-3-small"
	}
	if c.Models.MaxBatchSize <= 0 {
		c.Models.MaxBatchSize = 50
	}
	c.Chunking = c.Chunking.WithDefaults()
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Extraction.RetryCount <= 0 {
		c.Extraction.RetryCount = 3
	}
	if c.Extraction.APIDelaySec <= 0 {
		c.Extraction.APIDelaySec = 2.0
	}
	if c.Extraction.MaxDocumentChars <= 0 {
		c.Extraction.MaxDocumentChars = 15000
	}
	if c.Extraction.AnalysisSampleChars <= 0 {
		c.Extraction.AnalysisSampleChars = 3000
	}
	if c.Benchmark.DefaultRuns <= 0 {
		c.Benchmark.DefaultRuns = 3
	}
	if c.Benchmark.MaxRuns <= 0 {
		c.Benchmark.MaxRuns = 10
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(".fieldex", "indexes")
	}
	if c.Cache.Redis.KeyPrefix == "" {
		c.Cache.Redis.KeyPrefix = "fieldex:"
	}
	if c.Cache.Redis.ReadinessTimeout <= 0 {
		c.Cache.Redis.ReadinessTimeout = 10
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Extraction.RetryCount < 1 {
		return fmt.Errorf("extraction.retry_count must be at least 1, got %d", c.Extraction.RetryCount)
	}
	if c.Benchmark.MaxRuns < c.Benchmark.DefaultRuns {
		return fmt.Errorf(
			"benchmark.max_runs (%d) must not be below benchmark.default_runs (%d)",
			c.Benchmark.MaxRuns, c.Benchmark.DefaultRuns,
		)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
