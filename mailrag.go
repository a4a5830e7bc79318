// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package mailrag ingests a user's email into a vector store and retrieves
// the messages most relevant to a query.
//
// An Engine wires the pieces together from a config.Config:
//
//	cfg, _ := config.Load("mailrag.yaml")
//	engine, err := mailrag.Open(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	engine.Ingest(ctx, core.Document{OwnerID: "u1", DocumentID: "m1", Text: text})
//	docs, err := engine.Retrieve(ctx, "u1", "when is the offsite?")
package mailrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/poiesic/mailrag/ai"
	"github.com/poiesic/mailrag/ai/openai"
	"github.com/poiesic/mailrag/chunking"
	"github.com/poiesic/mailrag/config"
	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/embedding"
	"github.com/poiesic/mailrag/eviction"
	"github.com/poiesic/mailrag/ingestion"
	"github.com/poiesic/mailrag/message"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/ratelimit"
	"github.com/poiesic/mailrag/retrieval"
	"github.com/poiesic/mailrag/storage"
	"github.com/poiesic/mailrag/storage/badger"
	"github.com/poiesic/mailrag/storage/chromem"
	"github.com/poiesic/mailrag/storage/qdrant"
)

// ErrConfigRequired is returned by Open when cfg is nil.
var ErrConfigRequired = errors.New("config required")

// Engine owns a vector store, an embedding client and the pipelines built
// on them. It is safe for concurrent use.
type Engine struct {
	cfg       *config.Config
	backend   storage.VectorStore
	store     *storage.Adapter
	provider  ai.AIProvider
	gate      *ratelimit.Gate
	embedder  *embedding.Client
	policy    *eviction.Policy
	pipeline  *ingestion.Pipeline
	retriever *retrieval.Retriever
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	provider   ai.AIProvider
	embedder   ai.Embedder
	store      storage.VectorStore
	registerer prometheus.Registerer
	observer   ingestion.StateObserver
	monitor    retrieval.Monitor
	logger     *slog.Logger
}

// WithEmbedder uses embedder instead of the OpenAI-compatible client
// described by the configuration.
func WithEmbedder(embedder ai.Embedder) Option {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithProvider uses provider's embedder instead of the OpenAI-compatible
// client. The Engine closes the provider on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithStore uses store instead of opening the configured backend.
// The Engine closes it on Close.
func WithStore(store storage.VectorStore) Option {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithMetrics registers the engine's Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *engineOptions) {
		o.registerer = reg
	}
}

// WithStateObserver receives ingestion state transitions.
func WithStateObserver(observer ingestion.StateObserver) Option {
	return func(o *engineOptions) {
		o.observer = observer
	}
}

// WithMonitor receives retrieval events in addition to metrics.
func WithMonitor(monitor retrieval.Monitor) Option {
	return func(o *engineOptions) {
		o.monitor = monitor
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open validates cfg and builds an Engine.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{
		cfg:    cfg,
		logger: options.logger.With("component", "engine"),
	}
	if options.registerer != nil {
		e.metrics = metrics.New(options.registerer)
	}
	if err := e.build(ctx, options); err != nil {
		e.Close()
		return nil, err
	}
	e.logger.Info("engine ready",
		"backend", cfg.Store.Backend,
		"model", cfg.Embedding.Model,
		"max_documents", cfg.Ingestion.MaxDocuments)
	return e, nil
}

func (e *Engine) build(ctx context.Context, options *engineOptions) error {
	cfg := e.cfg
	logger := options.logger

	// Store
	e.backend = options.store
	if e.backend == nil {
		backend, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		e.backend = backend
	}
	adapter, err := storage.NewAdapter(e.backend,
		storage.WithBatchSize(cfg.Store.BatchSize),
		storage.WithBatchDelay(cfg.Store.BatchDelay),
		storage.WithUpsertLimiter(ratelimit.PerSecond(cfg.Ingestion.UpsertsPerSecond)),
		storage.WithQueryLimiter(ratelimit.Every(cfg.Store.QueryInterval)),
		storage.WithDimensions(cfg.Embedding.Dimensions),
		storage.WithMetrics(e.metrics),
		storage.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	e.store = adapter

	// Embedding
	embedder := options.embedder
	if embedder == nil {
		provider := options.provider
		if provider == nil {
			provider, err = openai.NewProvider(cfg.AI())
			if err != nil {
				return err
			}
		}
		e.provider = provider
		embedder = provider.Embedder()
	}
	gate, err := ratelimit.NewGate(cfg.Embedding.Concurrency)
	if err != nil {
		return err
	}
	e.gate = gate
	e.metrics.WatchGate("embedding", gate)
	e.embedder, err = embedding.NewClient(embedder, gate,
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithMetrics(e.metrics),
		embedding.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// Capacity
	e.policy, err = eviction.NewPolicy(e.store,
		eviction.WithMaxDocuments(cfg.Ingestion.MaxDocuments),
		eviction.WithMetrics(e.metrics),
		eviction.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	// Ingestion
	chunker, err := chunking.New(
		chunking.WithMaxWords(cfg.Ingestion.MaxWords),
		chunking.WithOverlap(cfg.Ingestion.Overlap),
		chunking.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	pipelineOpts := []ingestion.Option{
		ingestion.WithChunker(chunker),
		ingestion.WithRetryPolicy(cfg.RetryPolicy()),
		ingestion.WithMetrics(e.metrics),
		ingestion.WithLogger(logger),
	}
	if cfg.Ingestion.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Ingestion.PoolSize))
	}
	if options.observer != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithStateObserver(options.observer))
	}
	e.pipeline, err = ingestion.NewPipeline(e.store, e.embedder, e.policy, pipelineOpts...)
	if err != nil {
		return err
	}

	// Retrieval
	var monitor retrieval.Monitor = retrieval.NewMetricsMonitor(e.metrics)
	if options.monitor != nil {
		monitor = multiMonitor{monitor, options.monitor}
	}
	e.retriever, err = retrieval.NewRetriever(e.store, e.embedder,
		retrieval.WithThreshold(cfg.Retrieval.Threshold),
		retrieval.WithMaxDocuments(cfg.Retrieval.MaxDocuments),
		retrieval.WithCandidates(cfg.Retrieval.Candidates),
		retrieval.WithFetchConcurrency(cfg.Retrieval.FetchConcurrency),
		retrieval.WithMonitor(monitor),
		retrieval.WithLogger(logger),
	)
	return err
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.VectorStore, error) {
	switch cfg.Store.Backend {
	case config.BackendBadger:
		return badger.Open(cfg.Store.Path)
	case config.BackendChromem:
		return chromem.Open(cfg.Store.Path, cfg.Store.Collection,
			chromem.WithDimensions(cfg.Embedding.Dimensions),
			chromem.WithCompression(cfg.Store.Compress),
			chromem.WithLogger(logger),
		)
	case config.BackendQdrant:
		return qdrant.Open(ctx, qdrant.Config{
			Host:       cfg.Store.QdrantHost,
			Port:       cfg.Store.QdrantPort,
			APIKey:     cfg.Store.QdrantAPIKey,
			UseTLS:     cfg.Store.QdrantTLS,
			Collection: cfg.Store.Collection,
			Dimensions: cfg.Embedding.Dimensions,
		})
	}
	return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Store.Backend)
}

// Ingest chunks, embeds and stores doc, evicting the owner's oldest
// documents when the owner is at capacity. A document without usable text
// is not an error: the result has Skipped set.
func (e *Engine) Ingest(ctx context.Context, doc core.Document, opts ...ingestion.IngestOption) (*ingestion.Result, error) {
	result, err := e.pipeline.Ingest(ctx, doc, opts...)
	if errors.Is(err, core.ErrEmptyDocument) {
		return result, nil
	}
	return result, err
}

// IngestMessage composes m into a document owned by ownerID and ingests it.
func (e *Engine) IngestMessage(ctx context.Context, ownerID string, m *message.Message, opts ...ingestion.IngestOption) (*ingestion.Result, error) {
	return e.Ingest(ctx, e.MessageDocument(ownerID, m), opts...)
}

// MessageDocument composes m with the configured body limit.
func (e *Engine) MessageDocument(ownerID string, m *message.Message) core.Document {
	return m.Document(ownerID, message.WithMaxBodyLength(e.cfg.Ingestion.MaxBodyLength))
}

// IngestBatch ingests docs in order and reports per-document failures in
// the result. progress may be nil.
func (e *Engine) IngestBatch(ctx context.Context, docs []core.Document, progress ingestion.ProgressObserver) (*ingestion.BatchResult, error) {
	return e.pipeline.IngestBatch(ctx, docs, progress)
}

// Retrieve returns the owner's documents most similar to query.
func (e *Engine) Retrieve(ctx context.Context, ownerID, query string, opts ...retrieval.QueryOption) ([]core.RetrievedDocument, error) {
	return e.retriever.Retrieve(ctx, ownerID, query, opts...)
}

// Purge deletes every record the owner has.
func (e *Engine) Purge(ctx context.Context, ownerID string) (*eviction.Report, error) {
	return e.policy.Purge(ctx, ownerID)
}

// Stats lists the owner's stored documents.
func (e *Engine) Stats(ctx context.Context, ownerID string) (*eviction.Inventory, error) {
	return e.policy.Inventory(ctx, ownerID)
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Close releases the worker pool, the embedding provider and the store.
func (e *Engine) Close() error {
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
		}
	}
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing store", "err", err)
			return err
		}
	}
	return nil
}

type multiMonitor []retrieval.Monitor

func (m multiMonitor) Started(ownerID, query string) {
	for _, mon := range m {
		mon.Started(ownerID, query)
	}
}

func (m multiMonitor) Candidates(ownerID string, matches []core.Match) {
	for _, mon := range m {
		mon.Candidates(ownerID, matches)
	}
}

func (m multiMonitor) Skipped(ownerID, documentID string, err error) {
	for _, mon := range m {
		mon.Skipped(ownerID, documentID, err)
	}
}

func (m multiMonitor) Completed(s retrieval.Summary) {
	for _, mon := range m {
		mon.Completed(s)
	}
}
