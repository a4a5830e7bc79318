package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/mailrag/chunking"
	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/eviction"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/ratelimit"
	"github.com/poiesic/mailrag/retry"
	"github.com/poiesic/mailrag/storage"
)

// Embedder produces the embedding for one chunk.
// *embedding.Client implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CapacityPolicy makes room for a document before it is written.
// *eviction.Policy implements it.
type CapacityPolicy interface {
	EnforceCapacity(ctx context.Context, ownerID, documentID string) (*eviction.Report, error)
}

// Result describes one ingested document.
type Result struct {
	OwnerID    string
	DocumentID string
	Chunks     int
	Attempts   int
	Skipped    bool     // The document produced no chunks
	Evicted    []string // Documents removed to make room
	Elapsed    time.Duration
}

// Pipeline ingests documents into a vector store.
type Pipeline struct {
	store         storage.VectorStore
	embedder      Embedder
	capacity      CapacityPolicy
	chunker       *chunking.Chunker
	embeddingPool *ants.Pool
	retryPolicy   retry.Policy
	observer      StateObserver
	metrics       *metrics.Metrics
	logger        *slog.Logger
	released      atomic.Bool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of workers embedding chunks.
// Default is runtime.NumCPU(), with a minimum of ratelimit.DefaultConcurrency.
// The embedding gate still bounds calls to the embedding service.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}
		p.embeddingPool = pool
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *chunking.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return errors.New("chunker cannot be nil")
		}
		p.chunker = c
		return nil
	}
}

// WithRetryPolicy sets the whole-document retry policy.
// Default is retry.DefaultPolicy().
func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		p.retryPolicy = policy
		return nil
	}
}

// WithStateObserver reports every state transition to observer.
func WithStateObserver(observer StateObserver) Option {
	return func(p *Pipeline) error {
		if observer == nil {
			observer = noopStateObserver{}
		}
		p.observer = observer
		return nil
	}
}

// WithMetrics records ingestion outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(store storage.VectorStore, embedder Embedder, capacity CapacityPolicy, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if capacity == nil {
		return nil, ErrCapacityPolicyRequired
	}

	chunker, err := chunking.New()
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:       store,
		embedder:    embedder,
		capacity:    capacity,
		chunker:     chunker,
		retryPolicy: retry.DefaultPolicy(),
		observer:    noopStateObserver{},
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.embeddingPool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU(), ratelimit.DefaultConcurrency))
		if err != nil {
			return nil, err
		}
		p.embeddingPool = pool
	}
	p.logger = p.logger.With("component", "ingestion")
	if p.retryPolicy.Logger == nil {
		p.retryPolicy.Logger = p.logger
	}
	return p, nil
}

// IngestOption configures a single Ingest call.
type IngestOption func(*ingestConfig)

type ingestConfig struct {
	progress ProgressObserver
}

// WithProgress reports embedded chunks as they complete.
func WithProgress(observer ProgressObserver) IngestOption {
	return func(c *ingestConfig) {
		if observer != nil {
			c.progress = observer
		}
	}
}

// run tracks one document's state for logging and observers.
type run struct {
	p       *Pipeline
	doc     core.Document
	state   State
	attempt int
	logger  *slog.Logger
}

func (r *run) transition(to State, err error) {
	from := r.state
	r.state = to
	if err != nil {
		r.logger.Warn("ingestion state changed", "from", from, "to", to, "attempt", r.attempt, "err", err)
	} else {
		r.logger.Debug("ingestion state changed", "from", from, "to", to, "attempt", r.attempt)
	}
	r.p.observer.OnTransition(Transition{
		OwnerID:    r.doc.OwnerID,
		DocumentID: r.doc.DocumentID,
		From:       from,
		To:         to,
		Attempt:    r.attempt,
		Err:        err,
	})
}

// Ingest stores doc as embedded chunks, replacing any chunks previously
// stored for the same document.
//
// A zero Timestamp is set to the current time; every chunk shares it.
// Documents that produce no chunks return core.ErrEmptyDocument, which
// callers treat as a no-op. Eviction failures return core.ErrCapacityCheck
// and are not retried. When transient failures exhaust the retry policy
// the error wraps core.ErrMaxRetriesExceeded; records upserted by the last
// attempt may remain in the store.
func (p *Pipeline) Ingest(ctx context.Context, doc core.Document, opts ...IngestOption) (*Result, error) {
	if p.released.Load() {
		return nil, ErrPipelineReleased
	}
	cfg := ingestConfig{progress: noopProgress{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	if doc.Timestamp.IsZero() {
		doc.Timestamp = time.Now().UTC()
	}
	if err := core.ValidateDocument(&doc); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &run{
		p:      p,
		doc:    doc,
		state:  StatePending,
		logger: p.logger.With("owner", doc.OwnerID, "document", doc.DocumentID),
	}
	result := &Result{OwnerID: doc.OwnerID, DocumentID: doc.DocumentID}

	fail := func(err error) (*Result, error) {
		result.Elapsed = time.Since(start)
		r.transition(StateFailed, err)
		p.metrics.ObserveIngest(metrics.ResultError, result.Chunks, result.Elapsed)
		return result, err
	}

	report, err := p.capacity.EnforceCapacity(ctx, doc.OwnerID, doc.DocumentID)
	if err != nil {
		return fail(err)
	}
	if report != nil {
		result.Evicted = report.Removed
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	r.transition(StateChunking, nil)
	chunks := p.chunker.Split(doc.Text)
	result.Chunks = len(chunks)
	if len(chunks) == 0 {
		result.Skipped = true
		result.Elapsed = time.Since(start)
		r.transition(StateComplete, nil)
		p.metrics.ObserveIngest(metrics.ResultSkipped, 0, result.Elapsed)
		return result, core.ErrEmptyDocument
	}

	err = p.retryPolicy.Do(ctx, func(ctx context.Context, attempt int) error {
		r.attempt = attempt
		result.Attempts = attempt
		return p.attempt(ctx, r, chunks, cfg.progress)
	})
	if err != nil {
		return fail(err)
	}

	result.Elapsed = time.Since(start)
	r.transition(StateComplete, nil)
	p.metrics.ObserveIngest(metrics.ResultSuccess, len(chunks), result.Elapsed)
	r.logger.Info("ingested document", "chunks", len(chunks), "attempts", result.Attempts, "elapsed", result.Elapsed)
	return result, nil
}

// attempt embeds every chunk and replaces the document's stored records.
func (p *Pipeline) attempt(ctx context.Context, r *run, chunks []core.Chunk, progress ProgressObserver) error {
	r.transition(StateEmbedding, nil)
	vectors, err := p.embedAll(ctx, chunks, progress)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	r.transition(StateUpserting, nil)
	records := make([]core.Record, len(chunks))
	for i, c := range chunks {
		records[i] = core.NewRecord(r.doc, c, vectors[i])
	}
	if err := p.store.DeleteByFilter(ctx, core.ForDocument(r.doc.OwnerID, r.doc.DocumentID)); err != nil {
		return err
	}
	return p.store.Upsert(ctx, records)
}

// embedAll embeds chunks on the worker pool. vectors[i] belongs to chunks[i].
// The first failure cancels the remaining work.
func (p *Pipeline) embedAll(ctx context.Context, chunks []core.Chunk, progress ProgressObserver) ([][]float32, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	vectors := make([][]float32, len(chunks))
	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	for i, c := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vector, err := p.embedder.Embed(ctx, c.Content)
			if err != nil {
				cancel(fmt.Errorf("chunk %d: %w", c.Index, err))
				return
			}
			vectors[i] = vector
			progress.OnProgress(int(done.Add(1)), len(chunks))
		}
		if err := p.embeddingPool.Submit(task); err != nil {
			wg.Done()
			cancel(fmt.Errorf("submitting chunk %d: %w", c.Index, err))
			break
		}
	}
	wg.Wait()

	if err := context.Cause(ctx); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.released.Store(true)
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
