package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendBadger, cfg.Store.Backend)
	assert.Equal(t, 500, cfg.Ingestion.MaxDocuments)
	assert.Equal(t, 5, cfg.Embedding.Concurrency)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 1.0, cfg.Ingestion.UpsertsPerSecond)
	assert.Equal(t, float32(0.8), cfg.Retrieval.Threshold)
	assert.Equal(t, 30, cfg.Retrieval.MaxDocuments)
	assert.Equal(t, 1000, cfg.Ingestion.MaxBodyLength)
}

func TestParse_YAML(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	content := []byte(`
embedding:
  model: text-embedding-3-small
  api_key: sk-test
  timeout: 5s
  concurrency: 2
store:
  backend: chromem
  path: /tmp/mailrag
  batch_delay: 50ms
ingestion:
  max_documents: 10
  upserts_per_second: 0
retrieval:
  threshold: 0.7
  max_documents: 5
log:
  level: debug
  format: json
`)
	cfg, err := Parse(content)
	require.NoError(t, err)

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout)
	assert.Equal(t, 2, cfg.Embedding.Concurrency)
	assert.Equal(t, BackendChromem, cfg.Store.Backend)
	assert.Equal(t, "/tmp/mailrag", cfg.Store.Path)
	assert.Equal(t, 50*time.Millisecond, cfg.Store.BatchDelay)
	assert.Equal(t, 10, cfg.Ingestion.MaxDocuments)
	assert.Zero(t, cfg.Ingestion.UpsertsPerSecond)
	assert.InDelta(t, 0.7, cfg.Retrieval.Threshold, 1e-6)
	assert.Equal(t, 5, cfg.Retrieval.MaxDocuments)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Untouched fields keep their defaults.
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.Host)
	assert.Equal(t, 100, cfg.Store.BatchSize)
	assert.Equal(t, 1000, cfg.Retrieval.Candidates)
}

func TestParse_EnvOverridesFile(t *testing.T) {
	t.Setenv("MAILRAG_STORE_BACKEND", "qdrant")
	t.Setenv("MAILRAG_STORE_QDRANT_HOST", "qdrant.internal")
	t.Setenv("MAILRAG_INGESTION_MAX_DOCUMENTS", "42")
	t.Setenv("MAILRAG_EMBEDDING_API_KEY", "from-env")
	t.Setenv("MAILRAG_RETRIEVAL_THRESHOLD", "0.65")

	cfg, err := Parse([]byte("store:\n  backend: chromem\ningestion:\n  max_documents: 7\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendQdrant, cfg.Store.Backend)
	assert.Equal(t, "qdrant.internal", cfg.Store.QdrantHost)
	assert.Equal(t, 42, cfg.Ingestion.MaxDocuments)
	assert.Equal(t, "from-env", cfg.Embedding.APIKey)
	assert.InDelta(t, 0.65, cfg.Retrieval.Threshold, 1e-6)
}

func TestParse_OpenAIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-fallback", cfg.Embedding.APIKey)

	t.Setenv("MAILRAG_EMBEDDING_API_KEY", "sk-explicit")
	cfg, err = Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "sk-explicit", cfg.Embedding.APIKey)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "store: [unterminated"},
		{"unknown backend", "store:\n  backend: pinecone\n"},
		{"zero capacity", "ingestion:\n  max_documents: 0\n"},
		{"negative upsert rate", "ingestion:\n  upserts_per_second: -1\n"},
		{"threshold out of range", "retrieval:\n  threshold: 1.5\n"},
		{"zero concurrency", "embedding:\n  concurrency: 0\n"},
		{"bad log level", "log:\n  level: loud\n"},
		{"bad log format", "log:\n  format: xml\n"},
		{"zero attempts", "ingestion:\n  max_attempts: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, BackendBadger, cfg.Store.Backend)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mailrag.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: Chromem\n"), 0o600))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, BackendChromem, cfg.Store.Backend)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("directory", func(t *testing.T) {
		_, err := Load(t.TempDir())
		assert.Error(t, err)
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "store.backend", envKey("MAILRAG_STORE_BACKEND"))
	assert.Equal(t, "embedding.api_key", envKey("MAILRAG_EMBEDDING_API_KEY"))
	assert.Equal(t, "store.qdrant_api_key", envKey("MAILRAG_STORE_QDRANT_API_KEY"))
	assert.Equal(t, "debug", envKey("MAILRAG_DEBUG"))
}

func TestConfig_Conversions(t *testing.T) {
	cfg := Default()
	cfg.Embedding.APIKey = "k"
	cfg.Ingestion.MaxAttempts = 5
	cfg.Ingestion.RetryBaseDelay = 10 * time.Millisecond

	aiCfg := cfg.AI()
	assert.Equal(t, "k", aiCfg.APIKey)
	assert.Equal(t, cfg.Embedding.Model, aiCfg.EmbeddingModel)
	assert.Equal(t, cfg.Embedding.Dimensions, aiCfg.Dimensions)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, policy.BaseDelay)
	assert.NotNil(t, policy.Retryable)
}

func TestLogConfig_NewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := LogConfig{Level: "warn", Format: "json"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = LogConfig{Level: "debug", Format: "text"}.NewLogger(&buf)
	require.NoError(t, err)
	logger.Debug("details")
	assert.Contains(t, buf.String(), "msg=details")

	_, err = LogConfig{Level: "verbose"}.NewLogger(&buf)
	assert.Error(t, err)
	_, err = LogConfig{Format: "xml"}.NewLogger(&buf)
	assert.Error(t, err)
}
