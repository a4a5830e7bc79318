package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/ratelimit"
)

const (
	// DefaultBatchSize is the number of records written per upsert call.
	DefaultBatchSize = 100

	// DefaultBatchDelay is the pause between consecutive upsert batches.
	DefaultBatchDelay = 200 * time.Millisecond

	// DefaultFetchLimit is the page size used when FetchOptions.Limit is zero.
	DefaultFetchLimit = 100
)

// Operation names used for logging and metrics.
const (
	opUpsert = "upsert"
	opQuery  = "query"
	opFetch  = "fetch"
	opDelete = "delete"
)

// Adapter wraps a backend with validation, batching, pacing and error
// classification. It implements VectorStore.
type Adapter struct {
	store         VectorStore
	batchSize     int
	batchDelay    time.Duration
	upsertLimiter ratelimit.Limiter
	queryLimiter  ratelimit.Limiter
	dimensions    int
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

var _ VectorStore = (*Adapter)(nil)

// Option configures an Adapter.
type Option func(*Adapter) error

// WithBatchSize sets the number of records per upsert call. Default is 100.
func WithBatchSize(n int) Option {
	return func(a *Adapter) error {
		if n < 1 {
			return fmt.Errorf("batch size must be greater than 0: %d", n)
		}
		a.batchSize = n
		return nil
	}
}

// WithBatchDelay sets the pause between upsert batches. Default is 200ms.
func WithBatchDelay(d time.Duration) Option {
	return func(a *Adapter) error {
		if d < 0 {
			return fmt.Errorf("batch delay cannot be negative: %v", d)
		}
		a.batchDelay = d
		return nil
	}
}

// WithUpsertLimiter paces upsert batches. Default is unlimited.
func WithUpsertLimiter(l ratelimit.Limiter) Option {
	return func(a *Adapter) error {
		if l == nil {
			l = ratelimit.Unlimited()
		}
		a.upsertLimiter = l
		return nil
	}
}

// WithQueryLimiter paces similarity searches and fetches. Default is unlimited.
func WithQueryLimiter(l ratelimit.Limiter) Option {
	return func(a *Adapter) error {
		if l == nil {
			l = ratelimit.Unlimited()
		}
		a.queryLimiter = l
		return nil
	}
}

// WithDimensions rejects vectors whose length differs from dim.
// Zero disables the check.
func WithDimensions(dim int) Option {
	return func(a *Adapter) error {
		if dim < 0 {
			return fmt.Errorf("dimensions cannot be negative: %d", dim)
		}
		a.dimensions = dim
		return nil
	}
}

// WithMetrics records operation counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) error {
		a.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAdapter wraps store.
func NewAdapter(store VectorStore, opts ...Option) (*Adapter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	a := &Adapter{
		store:         store,
		batchSize:     DefaultBatchSize,
		batchDelay:    DefaultBatchDelay,
		upsertLimiter: ratelimit.Unlimited(),
		queryLimiter:  ratelimit.Unlimited(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.logger = a.logger.With("component", "vectorstore")
	return a, nil
}

// Upsert validates records and writes them in batches. Each batch waits for
// the upsert limiter, and consecutive batches are separated by the batch
// delay. Batches already written are not rolled back when a later one fails.
func (a *Adapter) Upsert(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := core.ValidateRecord(&records[i], a.dimensions); err != nil {
			return err
		}
	}

	written := 0
	for start := 0; start < len(records); start += a.batchSize {
		if start > 0 && a.batchDelay > 0 {
			if err := sleep(ctx, a.batchDelay); err != nil {
				return err
			}
		}
		if err := a.upsertLimiter.Wait(ctx); err != nil {
			return err
		}

		end := min(start+a.batchSize, len(records))
		batch := records[start:end]
		began := time.Now()
		err := a.store.Upsert(ctx, batch)
		a.metrics.ObserveStore(opUpsert, time.Since(began), err)
		if err != nil {
			a.logger.Error("upsert batch failed", "written", written, "batch", len(batch), "total", len(records), "err", err)
			return a.wrap(ctx, opUpsert, err)
		}
		written += len(batch)
		a.metrics.RecordUpserted(len(batch))
		a.logger.Debug("upserted batch", "written", written, "total", len(records))
	}
	return nil
}

// SimilaritySearch validates the query and delegates to the backend.
func (a *Adapter) SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error) {
	if err := core.ValidateFilter(filter); err != nil {
		return nil, err
	}
	if topK < 1 {
		return nil, fmt.Errorf("%w: topK must be greater than 0, got %d", ErrInvalidQuery, topK)
	}
	if err := core.ValidateEmbedding(vector, a.dimensions); err != nil {
		return nil, err
	}
	if err := a.queryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	began := time.Now()
	matches, err := a.store.SimilaritySearch(ctx, vector, filter, topK)
	a.metrics.ObserveStore(opQuery, time.Since(began), err)
	if err != nil {
		return nil, a.wrap(ctx, opQuery, err)
	}
	a.logger.Debug("similarity search", "owner", filter.OwnerID, "topK", topK, "matches", len(matches))
	return matches, nil
}

// FetchByFilter validates the filter and fetches one page.
func (a *Adapter) FetchByFilter(ctx context.Context, filter core.Filter, opts FetchOptions) (*FetchResult, error) {
	if err := core.ValidateFilter(filter); err != nil {
		return nil, err
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("%w: limit cannot be negative, got %d", ErrInvalidQuery, opts.Limit)
	}
	if opts.Limit == 0 {
		opts.Limit = DefaultFetchLimit
	}
	if err := a.queryLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	began := time.Now()
	result, err := a.store.FetchByFilter(ctx, filter, opts)
	a.metrics.ObserveStore(opFetch, time.Since(began), err)
	if err != nil {
		return nil, a.wrap(ctx, opFetch, err)
	}
	return result, nil
}

// DeleteByIDs removes records by ID. An empty list is a no-op.
func (a *Adapter) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	began := time.Now()
	err := a.store.DeleteByIDs(ctx, ids)
	a.metrics.ObserveStore(opDelete, time.Since(began), err)
	if err != nil {
		return a.wrap(ctx, opDelete, err)
	}
	return nil
}

// DeleteByFilter removes every record matching filter.
func (a *Adapter) DeleteByFilter(ctx context.Context, filter core.Filter) error {
	if err := core.ValidateFilter(filter); err != nil {
		return err
	}
	began := time.Now()
	err := a.store.DeleteByFilter(ctx, filter)
	a.metrics.ObserveStore(opDelete, time.Since(began), err)
	if err != nil {
		return a.wrap(ctx, opDelete, err)
	}
	a.logger.Debug("deleted by filter", "owner", filter.OwnerID, "document", filter.DocumentID)
	return nil
}

// Close closes the wrapped backend.
func (a *Adapter) Close() error {
	return a.store.Close()
}

// wrap classifies a backend failure as core.ErrStore. Context errors pass
// through unchanged; core.ErrTransient is preserved by wrapping.
func (a *Adapter) wrap(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", core.ErrStore, op, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
