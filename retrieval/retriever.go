package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

const (
	// DefaultThreshold is the minimum similarity for a document to be returned.
	DefaultThreshold float32 = 0.8

	// DefaultMaxDocuments is the number of documents returned at most.
	DefaultMaxDocuments = 30

	// DefaultCandidates is the number of chunks requested from the similarity search.
	DefaultCandidates = 1000

	// DefaultPageSize is the number of chunks read per fetch during reconstruction.
	DefaultPageSize = 100

	// DefaultFetchConcurrency bounds concurrent document reconstructions.
	DefaultFetchConcurrency = 8
)

// Embedder produces the embedding for a query.
// *embedding.Client implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever finds and reconstructs an owner's most relevant documents.
type Retriever struct {
	store            storage.VectorStore
	embedder         Embedder
	threshold        float32
	maxDocuments     int
	candidates       int
	pageSize         int
	fetchConcurrency int
	monitor          Monitor
	logger           *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithThreshold sets the default minimum similarity. Default is 0.8.
func WithThreshold(threshold float32) Option {
	return func(r *Retriever) error {
		if threshold < -1 || threshold > 1 {
			return fmt.Errorf("threshold must be within [-1, 1]: %v", threshold)
		}
		r.threshold = threshold
		return nil
	}
}

// WithMaxDocuments sets the default number of documents returned. Default is 30.
func WithMaxDocuments(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("max documents must be greater than 0: %d", n)
		}
		r.maxDocuments = n
		return nil
	}
}

// WithCandidates sets how many chunks the similarity search returns. Default is 1000.
func WithCandidates(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("candidates must be greater than 0: %d", n)
		}
		r.candidates = n
		return nil
	}
}

// WithPageSize sets the fetch page size used to reconstruct documents. Default is 100.
func WithPageSize(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("page size must be greater than 0: %d", n)
		}
		r.pageSize = n
		return nil
	}
}

// WithFetchConcurrency bounds concurrent document reconstructions. Default is 8.
func WithFetchConcurrency(n int) Option {
	return func(r *Retriever) error {
		if n < 1 {
			return fmt.Errorf("fetch concurrency must be greater than 0: %d", n)
		}
		r.fetchConcurrency = n
		return nil
	}
}

// WithMonitor sets the monitor notified of every retrieval.
func WithMonitor(m Monitor) Option {
	return func(r *Retriever) error {
		if m == nil {
			m = noopMonitor{}
		}
		r.monitor = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(store storage.VectorStore, embedder Embedder, opts ...Option) (*Retriever, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		store:            store,
		embedder:         embedder,
		threshold:        DefaultThreshold,
		maxDocuments:     DefaultMaxDocuments,
		candidates:       DefaultCandidates,
		pageSize:         DefaultPageSize,
		fetchConcurrency: DefaultFetchConcurrency,
		monitor:          noopMonitor{},
		logger:           slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retrieval")
	return r, nil
}

// QueryOption overrides retriever defaults for one call.
type QueryOption func(*queryConfig)

type queryConfig struct {
	threshold    float32
	maxDocuments int
}

// Threshold overrides the minimum similarity for one call.
func Threshold(threshold float32) QueryOption {
	return func(c *queryConfig) {
		c.threshold = threshold
	}
}

// MaxDocuments overrides the number of documents returned for one call.
// Values below one are ignored.
func MaxDocuments(n int) QueryOption {
	return func(c *queryConfig) {
		if n > 0 {
			c.maxDocuments = n
		}
	}
}

// Retrieve returns up to MaxDocuments of the owner's documents whose best
// chunk similarity to query reaches the threshold, highest score first.
// Each document's Content is its chunks joined by newlines in chunk order.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, opts ...QueryOption) ([]core.RetrievedDocument, error) {
	cfg := queryConfig{threshold: r.threshold, maxDocuments: r.maxDocuments}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := core.ValidateOwnerID(ownerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", core.ErrInvalidQuery)
	}

	start := time.Now()
	summary := Summary{OwnerID: ownerID}
	r.monitor.Started(ownerID, query)
	finish := func(docs []core.RetrievedDocument, err error) ([]core.RetrievedDocument, error) {
		summary.Returned = len(docs)
		summary.Elapsed = time.Since(start)
		summary.Err = err
		r.monitor.Completed(summary)
		return docs, err
	}

	// 1. Embed the query
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "owner", ownerID, "err", err)
		return finish(nil, err)
	}

	// 2. Search the owner's chunks
	matches, err := r.store.SimilaritySearch(ctx, vector, core.ForOwner(ownerID), r.candidates)
	if err != nil {
		r.logger.Error("error querying for similar chunks", "owner", ownerID, "err", err)
		return finish(nil, err)
	}
	summary.Candidates = len(matches)
	r.monitor.Candidates(ownerID, matches)

	// 3. Rank documents by their best chunk
	selected := rankDocuments(matches, cfg.threshold, cfg.maxDocuments)
	summary.Selected = len(selected)
	if len(selected) == 0 {
		r.logger.Debug("no documents above threshold", "owner", ownerID, "candidates", len(matches), "threshold", cfg.threshold)
		return finish([]core.RetrievedDocument{}, nil)
	}

	// 4. Reconstruct the selected documents
	docs, skipped, err := r.reconstruct(ctx, ownerID, selected)
	summary.Skipped = skipped
	if err != nil {
		return finish(nil, err)
	}
	r.logger.Debug("retrieved documents",
		"owner", ownerID,
		"candidates", len(matches),
		"selected", len(selected),
		"returned", len(docs))
	return finish(docs, nil)
}

type scoredDocument struct {
	documentID string
	score      float32
}

// rankDocuments keeps the best score per document among matches at or above
// threshold and returns the top n, highest score first. Equal scores keep
// the first one seen and order by document ID.
func rankDocuments(matches []core.Match, threshold float32, n int) []scoredDocument {
	best := make(map[string]float32)
	for _, m := range matches {
		if m.Score < threshold {
			continue
		}
		if current, ok := best[m.Metadata.DocumentID]; !ok || m.Score > current {
			best[m.Metadata.DocumentID] = m.Score
		}
	}

	ranked := make([]scoredDocument, 0, len(best))
	for id, score := range best {
		ranked = append(ranked, scoredDocument{documentID: id, score: score})
	}
	slices.SortFunc(ranked, func(a, b scoredDocument) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.documentID, b.documentID)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// reconstruct fetches every chunk of the selected documents concurrently.
// Results keep the order of selected; documents that fail or have no chunks
// are dropped and counted.
func (r *Retriever) reconstruct(ctx context.Context, ownerID string, selected []scoredDocument) ([]core.RetrievedDocument, int, error) {
	contents := make([]string, len(selected))
	found := make([]bool, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchConcurrency)
	for i, doc := range selected {
		g.Go(func() error {
			content, err := r.fetchDocument(gctx, ownerID, doc.documentID)
			switch {
			case err != nil && gctx.Err() != nil:
				return gctx.Err()
			case err != nil:
				r.logger.Warn("skipping document, fetch failed", "owner", ownerID, "document", doc.documentID, "err", err)
				r.monitor.Skipped(ownerID, doc.documentID, err)
			case content == nil:
				r.logger.Warn("skipping document, no chunks found", "owner", ownerID, "document", doc.documentID)
				r.monitor.Skipped(ownerID, doc.documentID, nil)
			default:
				contents[i] = *content
				found[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	docs := make([]core.RetrievedDocument, 0, len(selected))
	skipped := 0
	for i, doc := range selected {
		if !found[i] {
			skipped++
			continue
		}
		docs = append(docs, core.RetrievedDocument{
			DocumentID: doc.documentID,
			Score:      doc.score,
			Content:    contents[i],
		})
	}
	return docs, skipped, nil
}

// fetchDocument joins a document's chunks in chunk order. It returns nil
// when the document has no chunks.
func (r *Retriever) fetchDocument(ctx context.Context, ownerID, documentID string) (*string, error) {
	var chunks []core.Match
	err := storage.FetchAll(ctx, r.store, core.ForDocument(ownerID, documentID), r.pageSize, func(page []core.Match) error {
		chunks = append(chunks, page...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	slices.SortFunc(chunks, func(a, b core.Match) int {
		return cmp.Compare(a.Metadata.ChunkIndex, b.Metadata.ChunkIndex)
	})
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Metadata.Content
	}
	content := strings.Join(parts, "\n")
	return &content, nil
}
