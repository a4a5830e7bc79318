// Package chromem implements storage.VectorStore on the embedded chromem-go
// database. The database lives in memory, or on disk when a path is given.
package chromem

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// DefaultCollection is the collection holding every owner's chunks.
const DefaultCollection = "emails"

// errEmbeddingUnsupported is returned if chromem is ever asked to embed text.
// Records always carry their own vectors.
var errEmbeddingUnsupported = errors.New("chromem store does not embed text")

// Store is a chromem-go backed vector store.
type Store struct {
	db         *chromemgo.DB
	collection *chromemgo.Collection
	dimensions int
	compress   bool

	// mu keeps Count and the query that depends on it consistent.
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDimensions sets the vector length used for filter-only fetches before
// any record has been written. Default is core.DefaultDimensions.
func WithDimensions(dim int) Option {
	return func(s *Store) {
		if dim > 0 {
			s.dimensions = dim
		}
	}
}

// WithCompression gzips persisted documents.
func WithCompression(compress bool) Option {
	return func(s *Store) {
		s.compress = compress
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open opens the collection in a database at path. An empty path keeps
// everything in memory.
func Open(path, collection string, opts ...Option) (*Store, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	s := &Store{
		dimensions: core.DefaultDimensions,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if path == "" {
		s.db = chromemgo.NewDB()
	} else {
		db, err := chromemgo.NewPersistentDB(path, s.compress)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", path, err)
		}
		s.db = db
	}

	c, err := s.db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", collection, err)
	}
	s.collection = c
	s.logger = s.logger.With("component", "chromem", "collection", collection)
	s.logger.Debug("opened chromem store", "path", path, "documents", c.Count())
	return s, nil
}

func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errEmbeddingUnsupported
}

// Upsert adds or replaces records.
func (s *Store) Upsert(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	docs := make([]chromemgo.Document, len(records))
	for i, r := range records {
		md := storage.MetadataToStrings(r.Metadata)
		delete(md, core.MetaContent)
		docs[i] = chromemgo.Document{
			ID:        r.ID,
			Metadata:  md,
			Embedding: r.Vector,
			Content:   r.Metadata.Content,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return err
	}
	s.dimensions = len(records[0].Vector)
	return nil
}

// SimilaritySearch returns up to topK matching records, most similar first.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	// chromem requires nResults <= document count.
	n := min(topK, s.collection.Count())
	if n == 0 {
		return []core.Match{}, nil
	}
	results, err := s.collection.QueryEmbedding(ctx, vector, n, storage.FilterToStrings(filter), nil)
	if err != nil {
		return nil, err
	}
	matches, err := toMatches(results, true)
	if err != nil {
		return nil, err
	}
	storage.SortMatches(matches)
	return matches, nil
}

// FetchByFilter returns matching records ordered by ID. The cursor is the
// last ID of the previous page.
func (s *Store) FetchByFilter(ctx context.Context, filter core.Filter, opts storage.FetchOptions) (*storage.FetchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	count := s.collection.Count()
	if count == 0 {
		return &storage.FetchResult{Matches: []core.Match{}}, nil
	}

	// Any unit vector works: every filtered document is returned.
	probe := make([]float32, s.dimensions)
	probe[0] = 1
	results, err := s.collection.QueryEmbedding(ctx, probe, count, storage.FilterToStrings(filter), nil)
	if err != nil {
		return nil, err
	}
	matches, err := toMatches(results, false)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(matches, func(a, b core.Match) int { return cmp.Compare(a.ID, b.ID) })

	if opts.Cursor != "" {
		start, _ := slices.BinarySearchFunc(matches, opts.Cursor, func(m core.Match, cursor string) int {
			return cmp.Compare(m.ID, cursor)
		})
		for start < len(matches) && matches[start].ID <= opts.Cursor {
			start++
		}
		matches = matches[start:]
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultFetchLimit
	}
	result := &storage.FetchResult{Matches: matches}
	if len(matches) > limit {
		result.Matches = matches[:limit]
		result.NextCursor = matches[limit-1].ID
	}
	return result, nil
}

// DeleteByIDs removes records by ID.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return s.collection.Delete(ctx, nil, nil, ids...)
}

// DeleteByFilter removes every matching record.
func (s *Store) DeleteByFilter(ctx context.Context, filter core.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrStorageClosed
	}
	return s.collection.Delete(ctx, storage.FilterToStrings(filter), nil)
}

// Close marks the store closed. Persistent databases are written on every
// change, so there is nothing to flush.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Count returns the number of records in the collection.
func (s *Store) Count() int {
	return s.collection.Count()
}

func toMatches(results []chromemgo.Result, scored bool) ([]core.Match, error) {
	matches := make([]core.Match, 0, len(results))
	for _, r := range results {
		md, err := storage.MetadataFromStrings(r.Metadata)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		md.Content = r.Content
		m := core.Match{ID: r.ID, Metadata: md}
		if scored {
			m.Score = r.Similarity
		}
		matches = append(matches, m)
	}
	return matches, nil
}
