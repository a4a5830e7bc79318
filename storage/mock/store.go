package mock

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// Store is a test double for storage.VectorStore.
// The function fields must be set before the store is shared between goroutines.
type Store struct {
	UpsertFunc           func(ctx context.Context, records []core.Record) error
	SimilaritySearchFunc func(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error)
	FetchByFilterFunc    func(ctx context.Context, filter core.Filter, opts storage.FetchOptions) (*storage.FetchResult, error)
	DeleteByIDsFunc      func(ctx context.Context, ids []string) error
	DeleteByFilterFunc   func(ctx context.Context, filter core.Filter) error

	mu      sync.RWMutex
	records map[string]core.Record
	calls   map[string]int
	batches [][]core.Record
	closed  bool
}

var _ storage.VectorStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]core.Record),
		calls:   make(map[string]int),
	}
}

func (s *Store) count(op string) {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
}

// Upsert stores copies of records.
func (s *Store) Upsert(ctx context.Context, records []core.Record) error {
	s.count("Upsert")
	if s.UpsertFunc != nil {
		if err := s.UpsertFunc(ctx, records); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, slices.Clone(records))
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		s.records[r.ID] = r
	}
	return nil
}

// SimilaritySearch scores every matching record by cosine similarity.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error) {
	s.count("SimilaritySearch")
	if s.SimilaritySearchFunc != nil {
		return s.SimilaritySearchFunc(ctx, vector, filter, topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []core.Match
	for _, r := range s.records {
		if !filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, core.Match{
			ID:       r.ID,
			Score:    storage.CosineSimilarity(vector, r.Vector),
			Metadata: r.Metadata,
		})
	}
	storage.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// FetchByFilter pages through matching records ordered by ID.
// The cursor is the last ID of the previous page.
func (s *Store) FetchByFilter(ctx context.Context, filter core.Filter, opts storage.FetchOptions) (*storage.FetchResult, error) {
	s.count("FetchByFilter")
	if s.FetchByFilterFunc != nil {
		return s.FetchByFilterFunc(ctx, filter, opts)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultFetchLimit
	}

	s.mu.RLock()
	var ids []string
	for id, r := range s.records {
		if filter.Matches(r.Metadata) && id > opts.Cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	more := len(ids) > limit
	if more {
		ids = ids[:limit]
	}
	result := &storage.FetchResult{Matches: make([]core.Match, 0, len(ids))}
	for _, id := range ids {
		result.Matches = append(result.Matches, core.Match{ID: id, Metadata: s.records[id].Metadata})
	}
	s.mu.RUnlock()

	if more {
		result.NextCursor = ids[len(ids)-1]
	}
	return result, nil
}

// DeleteByIDs removes records by ID.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	s.count("DeleteByIDs")
	if s.DeleteByIDsFunc != nil {
		if err := s.DeleteByIDsFunc(ctx, ids); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

// DeleteByFilter removes matching records.
func (s *Store) DeleteByFilter(ctx context.Context, filter core.Filter) error {
	s.count("DeleteByFilter")
	if s.DeleteByFilterFunc != nil {
		if err := s.DeleteByFilterFunc(ctx, filter); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.records {
		if filter.Matches(r.Metadata) {
			delete(s.records, id)
		}
	}
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Put stores records directly, bypassing UpsertFunc and call counting.
func (s *Store) Put(records ...core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.ID] = r
	}
}

// Records returns copies of the stored records matching filter, ordered by ID.
func (s *Store) Records(filter core.Filter) []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Record
	for _, r := range s.records {
		if filter.Matches(r.Metadata) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b core.Record) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Calls returns how many times the named method was called.
func (s *Store) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

// Batches returns the record batches passed to Upsert, in call order.
func (s *Store) Batches() [][]core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.batches)
}
