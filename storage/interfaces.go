package storage

import (
	"context"

	"github.com/poiesic/mailrag/core"
)

// FetchOptions selects one page of a filtered fetch.
type FetchOptions struct {
	// Limit is the maximum number of matches returned. Zero means the
	// implementation's default page size.
	Limit int

	// Cursor resumes a previous fetch. Empty starts from the beginning.
	Cursor string
}

// FetchResult is one page of a filtered fetch.
type FetchResult struct {
	Matches []core.Match

	// NextCursor continues the fetch. Empty means there are no more pages.
	NextCursor string
}

// VectorStore persists chunk records and answers similarity and filter queries.
// Implementations must be thread-safe and support concurrent access.
type VectorStore interface {
	// Upsert writes records, replacing any record with the same ID.
	Upsert(ctx context.Context, records []core.Record) error

	// SimilaritySearch returns up to topK records matching filter, ordered by
	// cosine similarity to vector (highest first).
	SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error)

	// FetchByFilter returns records matching filter one page at a time, in an
	// order that is stable across pages. Scores are zero.
	FetchByFilter(ctx context.Context, filter core.Filter, opts FetchOptions) (*FetchResult, error)

	// DeleteByIDs removes records by ID. Missing IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// DeleteByFilter removes every record matching filter.
	DeleteByFilter(ctx context.Context, filter core.Filter) error

	// Close releases resources held by the store.
	Close() error
}

// FetchAll drains a paginated fetch, calling fn for every page.
// Iteration stops at the first error from the store or from fn.
func FetchAll(ctx context.Context, store VectorStore, filter core.Filter, pageSize int, fn func(page []core.Match) error) error {
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := store.FetchByFilter(ctx, filter, FetchOptions{Limit: pageSize, Cursor: cursor})
		if err != nil {
			return err
		}
		if len(result.Matches) > 0 {
			if err := fn(result.Matches); err != nil {
				return err
			}
		}
		if result.NextCursor == "" || len(result.Matches) == 0 {
			return nil
		}
		cursor = result.NextCursor
	}
}
