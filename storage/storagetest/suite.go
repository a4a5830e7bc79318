// Package storagetest provides a behavioral test suite shared by every
// storage.VectorStore implementation.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// Dimensions is the vector length used by the suite.
const Dimensions = 4

// Timestamp is a fixed millisecond-precision timestamp used by the suite.
var Timestamp = time.UnixMilli(1_735_689_600_123).UTC()

// Record builds a record for chunk index of doc with the given vector.
func Record(owner, doc string, index int, vector ...float32) core.Record {
	if len(vector) == 0 {
		vector = []float32{1, 0, 0, 0}
	}
	return core.NewRecord(
		core.Document{OwnerID: owner, DocumentID: doc, Timestamp: Timestamp},
		core.Chunk{Index: index, Content: fmt.Sprintf("%s chunk %d", doc, index)},
		vector,
	)
}

// Run exercises store semantics against stores created by newStore. Each
// subtest gets a fresh, empty store which the suite closes.
func Run(t *testing.T, newStore func(t *testing.T) storage.VectorStore) {
	t.Helper()

	fresh := func(t *testing.T) storage.VectorStore {
		s := newStore(t)
		t.Cleanup(func() { _ = s.Close() })
		return s
	}
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := fresh(t)
		res, err := s.FetchByFilter(ctx, core.ForOwner("u1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, res.Matches)
		assert.Empty(t, res.NextCursor)

		matches, err := s.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, core.ForOwner("u1"), 5)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("metadata round trip", func(t *testing.T) {
		s := fresh(t)
		rec := Record("u1", "d1", 3)
		require.NoError(t, s.Upsert(ctx, []core.Record{rec}))

		res, err := s.FetchByFilter(ctx, core.ForOwner("u1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)

		got := res.Matches[0]
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "u1", got.Metadata.OwnerID)
		assert.Equal(t, "d1", got.Metadata.DocumentID)
		assert.Equal(t, 3, got.Metadata.ChunkIndex)
		assert.Equal(t, "d1 chunk 3", got.Metadata.Content)
		assert.True(t, Timestamp.Equal(got.Metadata.Timestamp), "timestamp %v != %v", got.Metadata.Timestamp, Timestamp)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := fresh(t)
		rec := Record("u1", "d1", 0)
		require.NoError(t, s.Upsert(ctx, []core.Record{rec}))
		rec.Metadata.Content = "updated"
		require.NoError(t, s.Upsert(ctx, []core.Record{rec}))

		res, err := s.FetchByFilter(ctx, core.ForOwner("u1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "updated", res.Matches[0].Metadata.Content)
	})

	t.Run("fetch paginates every record once", func(t *testing.T) {
		s := fresh(t)
		var records []core.Record
		for i := 0; i < 7; i++ {
			records = append(records, Record("u1", fmt.Sprintf("d%d", i%3), i))
		}
		records = append(records, Record("u2", "d0", 0))
		require.NoError(t, s.Upsert(ctx, records))

		seen := map[string]int{}
		pages := 0
		var order []string
		err := storage.FetchAll(ctx, s, core.ForOwner("u1"), 2, func(page []core.Match) error {
			pages++
			assert.LessOrEqual(t, len(page), 2)
			for _, m := range page {
				seen[m.ID]++
				order = append(order, m.ID)
				assert.Equal(t, "u1", m.Metadata.OwnerID)
			}
			return nil
		})
		require.NoError(t, err)
		assert.Len(t, seen, 7)
		for id, n := range seen {
			assert.Equal(t, 1, n, "record %s returned more than once", id)
		}
		assert.GreaterOrEqual(t, pages, 4)

		var again []string
		require.NoError(t, storage.FetchAll(ctx, s, core.ForOwner("u1"), 2, func(page []core.Match) error {
			for _, m := range page {
				again = append(again, m.ID)
			}
			return nil
		}))
		assert.Equal(t, order, again, "fetch order must be stable")
	})

	t.Run("fetch by document", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Upsert(ctx, []core.Record{
			Record("u1", "d1", 0), Record("u1", "d1", 1), Record("u1", "d2", 0),
		}))
		res, err := s.FetchByFilter(ctx, core.ForDocument("u1", "d1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, res.Matches, 2)
		for _, m := range res.Matches {
			assert.Equal(t, "d1", m.Metadata.DocumentID)
		}
	})

	t.Run("similarity search orders by score and honors filter", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Upsert(ctx, []core.Record{
			Record("u1", "exact", 0, 1, 0, 0, 0),
			Record("u1", "orthogonal", 0, 0, 1, 0, 0),
			Record("u1", "partial", 0, 0.6, 0.8, 0, 0),
			Record("u2", "exact", 0, 1, 0, 0, 0),
		}))

		matches, err := s.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, core.ForOwner("u1"), 10)
		require.NoError(t, err)
		require.Len(t, matches, 3)
		assert.Equal(t, "exact", matches[0].Metadata.DocumentID)
		assert.Equal(t, "partial", matches[1].Metadata.DocumentID)
		assert.Equal(t, "orthogonal", matches[2].Metadata.DocumentID)
		assert.InDelta(t, 1.0, matches[0].Score, 1e-4)
		assert.InDelta(t, 0.6, matches[1].Score, 1e-4)
		assert.InDelta(t, 0.0, matches[2].Score, 1e-4)
		for _, m := range matches {
			assert.Equal(t, "u1", m.Metadata.OwnerID)
		}

		top, err := s.SimilaritySearch(ctx, []float32{1, 0, 0, 0}, core.ForOwner("u1"), 1)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "exact", top[0].Metadata.DocumentID)
	})

	t.Run("delete by filter", func(t *testing.T) {
		s := fresh(t)
		require.NoError(t, s.Upsert(ctx, []core.Record{
			Record("u1", "d1", 0), Record("u1", "d1", 1), Record("u1", "d2", 0), Record("u2", "d1", 0),
		}))
		require.NoError(t, s.DeleteByFilter(ctx, core.ForDocument("u1", "d1")))

		res, err := s.FetchByFilter(ctx, core.ForOwner("u1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, "d2", res.Matches[0].Metadata.DocumentID)

		res, err = s.FetchByFilter(ctx, core.ForOwner("u2"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		assert.Len(t, res.Matches, 1, "other owners are untouched")

		require.NoError(t, s.DeleteByFilter(ctx, core.ForDocument("u1", "missing")))
	})

	t.Run("delete by ids", func(t *testing.T) {
		s := fresh(t)
		a, b := Record("u1", "d1", 0), Record("u1", "d1", 1)
		require.NoError(t, s.Upsert(ctx, []core.Record{a, b}))
		require.NoError(t, s.DeleteByIDs(ctx, []string{a.ID, "u1_missing_chunk0"}))

		res, err := s.FetchByFilter(ctx, core.ForOwner("u1"), storage.FetchOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, res.Matches, 1)
		assert.Equal(t, b.ID, res.Matches[0].ID)
	})
}
