package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// Store implements storage.VectorStore using BadgerDB.
// Similarity search is brute force over the owner's records.
type Store struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// NewStore creates a vector store on an open backend.
func NewStore(backend *Backend) (*Store, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "badger-store"),
	}, nil
}

// Open opens a backend at path and returns a store that owns it.
// An empty path keeps everything in memory.
func Open(path string) (*Store, error) {
	backend, err := OpenBackend(path, path == "")
	if err != nil {
		return nil, err
	}
	return NewStore(backend)
}

// Upsert writes records, replacing any record with the same ID.
func (s *Store) Upsert(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// An ID may have been written under a different primary key.
	stale := make([][]byte, 0)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for i := range records {
			old, err := lookupPrimaryKey(tx, records[i].ID)
			if err != nil {
				return err
			}
			if old != nil && !bytes.Equal(old, makeVectorRecordKey(records[i].Metadata)) {
				stale = append(stale, old)
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, key := range stale {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		for i := range records {
			data, err := storage.MarshalRecord(&records[i])
			if err != nil {
				return err
			}
			key := makeVectorRecordKey(records[i].Metadata)
			if err := wb.Set(key, data); err != nil {
				return err
			}
			if err := wb.Set(makeVectorIDKey(records[i].ID), key); err != nil {
				return err
			}
		}
		return nil
	})
}

// SimilaritySearch returns up to topK matching records, most similar first.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	matches := make([]core.Match, 0)
	err := s.scan(ctx, makeFilterPrefix(filter), nil, func(key []byte, r *core.Record) bool {
		matches = append(matches, core.Match{
			ID:       r.ID,
			Score:    storage.CosineSimilarity(vector, r.Vector),
			Metadata: r.Metadata,
		})
		return true
	})
	if err != nil {
		return nil, err
	}

	storage.SortMatches(matches)
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// FetchByFilter returns matching records in key order: by document, then by
// chunk index. The cursor encodes the last key of the previous page.
func (s *Store) FetchByFilter(ctx context.Context, filter core.Filter, opts storage.FetchOptions) (*storage.FetchResult, error) {
	if s.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	prefix := makeFilterPrefix(filter)
	var after []byte
	if opts.Cursor != "" {
		key, err := decodeCursor(opts.Cursor, prefix)
		if err != nil {
			return nil, err
		}
		after = key
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultFetchLimit
	}

	result := &storage.FetchResult{Matches: make([]core.Match, 0)}
	var lastKey []byte
	err := s.scan(ctx, prefix, after, func(key []byte, r *core.Record) bool {
		if len(result.Matches) == limit {
			// One more record exists past this page.
			result.NextCursor = encodeCursor(lastKey)
			return false
		}
		result.Matches = append(result.Matches, core.Match{ID: r.ID, Metadata: r.Metadata})
		lastKey = key
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByIDs removes records by ID. Missing IDs are ignored.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	keys := make([][]byte, 0, len(ids)*2)
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			primary, err := lookupPrimaryKey(tx, id)
			if err != nil {
				return err
			}
			if primary == nil {
				continue
			}
			keys = append(keys, primary, makeVectorIDKey(id))
		}
		return nil
	}, false)
	if err != nil {
		return err
	}
	return s.deleteKeys(keys)
}

// DeleteByFilter removes every matching record.
func (s *Store) DeleteByFilter(ctx context.Context, filter core.Filter) error {
	if s.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	keys := make([][]byte, 0)
	err := s.scan(ctx, makeFilterPrefix(filter), nil, func(key []byte, r *core.Record) bool {
		keys = append(keys, key, makeVectorIDKey(r.ID))
		return true
	})
	if err != nil {
		return err
	}
	s.logger.Debug("deleting records", "owner", filter.OwnerID, "document", filter.DocumentID, "count", len(keys)/2)
	return s.deleteKeys(keys)
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	if s.backend.IsClosed() {
		return nil
	}
	return s.backend.Close()
}

func (s *Store) deleteKeys(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	return s.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, key := range keys {
			if err := wb.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// scan visits records under prefix in key order, starting after the key
// after when it is set. fn returns false to stop.
func (s *Store) scan(ctx context.Context, prefix, after []byte, fn func(key []byte, r *core.Record) bool) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := tx.NewIterator(opts)
		defer it.Close()

		start := prefix
		if after != nil {
			start = after
		}
		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			if after != nil && bytes.Equal(key, after) {
				continue
			}

			var record *core.Record
			err := item.Value(func(val []byte) error {
				r, err := storage.UnmarshalRecord(val)
				if err != nil {
					return err
				}
				record = r
				return nil
			})
			if err != nil {
				return fmt.Errorf("reading %q: %w", key, err)
			}
			if !fn(key, record) {
				return nil
			}
		}
		return nil
	}, false)
}

func lookupPrimaryKey(tx *badger.Txn, id string) ([]byte, error) {
	item, err := tx.Get(makeVectorIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}
