package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mailrag/ai"
	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/ratelimit"
)

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrGateRequired is returned when no gate is provided.
	ErrGateRequired = errors.New("concurrency gate required")
)

// Client embeds text through a concurrency gate.
// It is safe for concurrent use.
type Client struct {
	embedder   ai.Embedder
	gate       *ratelimit.Gate
	dimensions int
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithDimensions rejects vectors whose length differs from dim.
// Zero disables the check.
func WithDimensions(dim int) Option {
	return func(c *Client) error {
		if dim < 0 {
			return fmt.Errorf("dimensions cannot be negative: %d", dim)
		}
		c.dimensions = dim
		return nil
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) error {
		c.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates a Client. The gate is shared with every other user of the
// same embedding service.
func NewClient(embedder ai.Embedder, gate *ratelimit.Gate, opts ...Option) (*Client, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if gate == nil {
		return nil, ErrGateRequired
	}
	c := &Client{
		embedder:   embedder,
		gate:       gate,
		dimensions: core.DefaultDimensions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "embedding")
	return c, nil
}

// Embed returns the vector for text. It blocks while the gate is full.
// A context that ends while waiting returns the context error.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.gate.Release()

	vector, err := c.embedder.EmbedText(ctx, text)
	if err == nil {
		err = core.ValidateEmbedding(vector, c.dimensions)
	}
	c.metrics.ObserveEmbedding(time.Since(start), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.logger.Warn("embedding failed", "length", len(text), "transient", core.IsTransient(err), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrUpstream, err)
	}
	return vector, nil
}

// Dimensions returns the enforced vector length, or zero when unchecked.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Gate returns the gate the client acquires before each call.
func (c *Client) Gate() *ratelimit.Gate {
	return c.gate
}
