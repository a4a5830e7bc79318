package eviction

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/metrics"
	"github.com/poiesic/mailrag/storage"
	"github.com/poiesic/mailrag/storage/mock"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// putDocument stores a document with the given number of chunks ingested
// minutes after base.
func putDocument(s *mock.Store, owner, doc string, minutes, chunks int) {
	ts := base.Add(time.Duration(minutes) * time.Minute)
	for i := 0; i < chunks; i++ {
		s.Put(core.NewRecord(
			core.Document{OwnerID: owner, DocumentID: doc, Timestamp: ts},
			core.Chunk{Index: i, Content: fmt.Sprintf("%s-%d", doc, i)},
			[]float32{1, 0},
		))
	}
}

func documentIDs(s *mock.Store, owner string) map[string]bool {
	ids := map[string]bool{}
	for _, r := range s.Records(core.ForOwner(owner)) {
		ids[r.Metadata.DocumentID] = true
	}
	return ids
}

func TestNewPolicy(t *testing.T) {
	_, err := NewPolicy(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPolicy(mock.NewStore(), WithMaxDocuments(0))
	assert.Error(t, err)

	_, err = NewPolicy(mock.NewStore(), WithPageSize(-1))
	assert.Error(t, err)

	p, err := NewPolicy(mock.NewStore())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDocuments, p.MaxDocuments())
}

func TestEnforceCapacity_BelowLimit(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "a", 0, 2)
	putDocument(store, "u1", "b", 1, 1)

	p, err := NewPolicy(store, WithMaxDocuments(3))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Empty(t, report.Removed)
	assert.Zero(t, store.Calls("DeleteByFilter"))
}

func TestEnforceCapacity_EvictsOldest(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "newest", 30, 1)
	putDocument(store, "u1", "oldest", 0, 3)
	putDocument(store, "u1", "middle", 10, 2)
	putDocument(store, "u2", "older-elsewhere", -100, 1)

	p, err := NewPolicy(store, WithMaxDocuments(3))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, 3, report.Documents)
	assert.Equal(t, []string{"oldest"}, report.Removed)
	assert.Equal(t, map[string]bool{"middle": true, "newest": true}, documentIDs(store, "u1"))
	assert.Len(t, documentIDs(store, "u2"), 1, "other owners are untouched")
}

func TestEnforceCapacity_OverLimitEvictsExcess(t *testing.T) {
	store := mock.NewStore()
	for i := 0; i < 6; i++ {
		putDocument(store, "u1", fmt.Sprintf("d%d", i), i, 1)
	}

	p, err := NewPolicy(store, WithMaxDocuments(3))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, []string{"d0", "d1", "d2", "d3"}, report.Removed)
	assert.Len(t, documentIDs(store, "u1"), 2)
}

func TestEnforceCapacity_TiesBreakByDocumentID(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "b", 0, 1)
	putDocument(store, "u1", "a", 0, 1)

	p, err := NewPolicy(store, WithMaxDocuments(2))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Removed)
}

func TestEnforceCapacity_StoredDocumentIsNotNew(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "a", 0, 1)
	putDocument(store, "u1", "b", 1, 2)

	p, err := NewPolicy(store, WithMaxDocuments(2))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.Empty(t, report.Removed)
	assert.Zero(t, store.Calls("DeleteByFilter"))
	assert.Equal(t, map[string]bool{"a": true, "b": true}, documentIDs(store, "u1"))
}

func TestInventory_Contains(t *testing.T) {
	inv := &Inventory{Documents: []DocumentInfo{{DocumentID: "a"}, {DocumentID: "b"}}}
	assert.True(t, inv.Contains("b"))
	assert.False(t, inv.Contains("c"))
	assert.False(t, inv.Contains(""))
}

func TestEnforceCapacity_PaginatesAllRecords(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "old", 0, 5)
	putDocument(store, "u1", "new", 5, 5)

	p, err := NewPolicy(store, WithMaxDocuments(2), WithPageSize(3))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, report.Removed)
	assert.GreaterOrEqual(t, store.Calls("FetchByFilter"), 4, "10 records in pages of 3")
}

func TestEnforceCapacity_EarliestChunkTimestamp(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "a", 10, 1)
	putDocument(store, "u1", "b", 5, 1)
	// One chunk of "a" predates everything in "b".
	store.Put(core.NewRecord(
		core.Document{OwnerID: "u1", DocumentID: "a", Timestamp: base},
		core.Chunk{Index: 1, Content: "early"},
		[]float32{1, 0},
	))

	p, err := NewPolicy(store, WithMaxDocuments(2))
	require.NoError(t, err)

	report, err := p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, report.Removed)
}

func TestEnforceCapacity_Failures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("fetch", func(t *testing.T) {
		store := mock.NewStore()
		store.FetchByFilterFunc = func(context.Context, core.Filter, storage.FetchOptions) (*storage.FetchResult, error) {
			return nil, boom
		}
		p, err := NewPolicy(store)
		require.NoError(t, err)

		_, err = p.EnforceCapacity(context.Background(), "u1", "incoming")
		assert.ErrorIs(t, err, core.ErrCapacityCheck)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("delete", func(t *testing.T) {
		store := mock.NewStore()
		putDocument(store, "u1", "a", 0, 1)
		store.DeleteByFilterFunc = func(context.Context, core.Filter) error { return boom }
		p, err := NewPolicy(store, WithMaxDocuments(1))
		require.NoError(t, err)

		_, err = p.EnforceCapacity(context.Background(), "u1", "incoming")
		assert.ErrorIs(t, err, core.ErrCapacityCheck)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("invalid owner", func(t *testing.T) {
		p, err := NewPolicy(mock.NewStore())
		require.NoError(t, err)

		_, err = p.EnforceCapacity(context.Background(), "", "incoming")
		assert.ErrorIs(t, err, core.ErrInvalidOwnerID)
	})
}

func TestEnforceCapacity_Metrics(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "a", 0, 1)
	putDocument(store, "u1", "b", 1, 1)

	m := metrics.New(prometheus.NewRegistry())
	p, err := NewPolicy(store, WithMaxDocuments(1), WithMetrics(m))
	require.NoError(t, err)

	_, err = p.EnforceCapacity(context.Background(), "u1", "incoming")
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DocumentsEvictedTotal))
}

func TestPurge(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "a", 0, 2)
	putDocument(store, "u1", "b", 1, 3)
	putDocument(store, "u2", "a", 0, 1)

	p, err := NewPolicy(store, WithPageSize(2))
	require.NoError(t, err)

	report, err := p.Purge(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Documents)
	assert.ElementsMatch(t, []string{"a", "b"}, report.Removed)
	assert.Empty(t, store.Records(core.ForOwner("u1")))
	assert.Len(t, store.Records(core.ForOwner("u2")), 1)
}

func TestPurge_Empty(t *testing.T) {
	p, err := NewPolicy(mock.NewStore())
	require.NoError(t, err)

	report, err := p.Purge(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, report.Documents)
	assert.Empty(t, report.Removed)
}

func TestInventory(t *testing.T) {
	store := mock.NewStore()
	putDocument(store, "u1", "b", 5, 3)
	putDocument(store, "u1", "a", 7, 2)

	p, err := NewPolicy(store)
	require.NoError(t, err)

	inv, err := p.Inventory(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, inv.Chunks)
	require.Len(t, inv.Documents, 2)
	assert.Equal(t, "b", inv.Documents[0].DocumentID)
	assert.Equal(t, 3, inv.Documents[0].Chunks)
	assert.True(t, base.Add(5*time.Minute).Equal(inv.Documents[0].Oldest))
	assert.Equal(t, "a", inv.Documents[1].DocumentID)
}
