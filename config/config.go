package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/poiesic/mailrag/ai"
	"github.com/poiesic/mailrag/chunking"
	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/eviction"
	"github.com/poiesic/mailrag/ratelimit"
	"github.com/poiesic/mailrag/retrieval"
	"github.com/poiesic/mailrag/retry"
	"github.com/poiesic/mailrag/storage"
)

// Supported store backends.
const (
	BackendBadger  = "badger"
	BackendChromem = "chromem"
	BackendQdrant  = "qdrant"
)

// Backends lists the accepted values of store.backend.
var Backends = []string{BackendBadger, BackendChromem, BackendQdrant}

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	Embedding EmbeddingConfig `koanf:"embedding"`
	Store     StoreConfig     `koanf:"store"`
	Ingestion IngestionConfig `koanf:"ingestion"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// EmbeddingConfig configures the embedding service and its concurrency gate.
type EmbeddingConfig struct {
	Host        string        `koanf:"host"`
	Model       string        `koanf:"model"`
	APIKey      string        `koanf:"api_key"`
	Dimensions  int           `koanf:"dimensions"`
	Timeout     time.Duration `koanf:"timeout"`
	Concurrency int           `koanf:"concurrency"`
}

// StoreConfig selects and configures the vector store.
type StoreConfig struct {
	Backend    string `koanf:"backend"`
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`

	BatchSize  int           `koanf:"batch_size"`
	BatchDelay time.Duration `koanf:"batch_delay"`

	// QueryInterval spaces store reads. Zero leaves them unpaced.
	QueryInterval time.Duration `koanf:"query_interval"`

	QdrantHost   string `koanf:"qdrant_host"`
	QdrantPort   int    `koanf:"qdrant_port"`
	QdrantAPIKey string `koanf:"qdrant_api_key"`
	QdrantTLS    bool   `koanf:"qdrant_tls"`
}

// IngestionConfig configures the ingestion pipeline and capacity policy.
// Zero PoolSize keeps the pipeline default.
type IngestionConfig struct {
	MaxDocuments     int           `koanf:"max_documents"`
	UpsertsPerSecond float64       `koanf:"upserts_per_second"`
	PoolSize         int           `koanf:"pool_size"`
	MaxAttempts      int           `koanf:"max_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	MaxWords         int           `koanf:"max_words"`
	Overlap          int           `koanf:"overlap"`
	MaxBodyLength    int           `koanf:"max_body_length"`
}

// RetrievalConfig configures the retrieval pipeline.
type RetrievalConfig struct {
	Threshold        float32 `koanf:"threshold"`
	MaxDocuments     int     `koanf:"max_documents"`
	Candidates       int     `koanf:"candidates"`
	FetchConcurrency int     `koanf:"fetch_concurrency"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures Prometheus exposition. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Embedding: EmbeddingConfig{
			Host:        aiDefaults.EmbeddingHost,
			Model:       aiDefaults.EmbeddingModel,
			Dimensions:  core.DefaultDimensions,
			Timeout:     aiDefaults.Timeout,
			Concurrency: ratelimit.DefaultConcurrency,
		},
		Store: StoreConfig{
			Backend:    BackendBadger,
			BatchSize:  storage.DefaultBatchSize,
			BatchDelay: storage.DefaultBatchDelay,
			QdrantHost: "localhost",
			QdrantPort: 6334,
		},
		Ingestion: IngestionConfig{
			MaxDocuments:     eviction.DefaultMaxDocuments,
			UpsertsPerSecond: ratelimit.DefaultUpsertsPerSecond,
			MaxAttempts:      retry.DefaultMaxAttempts,
			RetryBaseDelay:   retry.DefaultBaseDelay,
			MaxWords:         chunking.DefaultMaxWords,
			Overlap:          chunking.DefaultOverlap,
			MaxBodyLength:    1000,
		},
		Retrieval: RetrievalConfig{
			Threshold:        retrieval.DefaultThreshold,
			MaxDocuments:     retrieval.DefaultMaxDocuments,
			Candidates:       retrieval.DefaultCandidates,
			FetchConcurrency: retrieval.DefaultFetchConcurrency,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// AI returns the embedding service settings as an ai.Config.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithDimensions(c.Embedding.Dimensions),
		ai.WithTimeout(c.Embedding.Timeout),
	)
}

// RetryPolicy returns the ingestion retry policy.
func (c *Config) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Ingestion.MaxAttempts
	p.BaseDelay = c.Ingestion.RetryBaseDelay
	return p
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.AI().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Embedding.Concurrency <= 0 {
		return fmt.Errorf("%w: embedding.concurrency must be greater than 0", ErrInvalidConfig)
	}

	if !slices.Contains(Backends, c.Store.Backend) {
		return fmt.Errorf("%w: store.backend must be one of %v, got %q", ErrInvalidConfig, Backends, c.Store.Backend)
	}
	if c.Store.BatchSize <= 0 {
		return fmt.Errorf("%w: store.batch_size must be greater than 0", ErrInvalidConfig)
	}
	if c.Store.BatchDelay < 0 || c.Store.QueryInterval < 0 {
		return fmt.Errorf("%w: store delays cannot be negative", ErrInvalidConfig)
	}
	if c.Store.Backend == BackendQdrant && (c.Store.QdrantHost == "" || c.Store.QdrantPort <= 0) {
		return fmt.Errorf("%w: store.qdrant_host and store.qdrant_port are required for qdrant", ErrInvalidConfig)
	}

	if c.Ingestion.MaxDocuments <= 0 {
		return fmt.Errorf("%w: ingestion.max_documents must be greater than 0", ErrInvalidConfig)
	}
	if c.Ingestion.UpsertsPerSecond < 0 {
		return fmt.Errorf("%w: ingestion.upserts_per_second cannot be negative", ErrInvalidConfig)
	}
	if c.Ingestion.PoolSize < 0 || c.Ingestion.Overlap < 0 || c.Ingestion.MaxBodyLength < 0 {
		return fmt.Errorf("%w: ingestion sizes cannot be negative", ErrInvalidConfig)
	}
	if c.Ingestion.MaxWords <= 0 {
		return fmt.Errorf("%w: ingestion.max_words must be greater than 0", ErrInvalidConfig)
	}
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: ingestion retry: %w", ErrInvalidConfig, err)
	}

	if c.Retrieval.Threshold < -1 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("%w: retrieval.threshold must be within [-1, 1]", ErrInvalidConfig)
	}
	if c.Retrieval.MaxDocuments <= 0 || c.Retrieval.Candidates <= 0 || c.Retrieval.FetchConcurrency <= 0 {
		return fmt.Errorf("%w: retrieval limits must be greater than 0", ErrInvalidConfig)
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Log.Format)
	}
	return nil
}
