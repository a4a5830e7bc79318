// Package qdrant implements storage.VectorStore on a Qdrant server over its
// native gRPC API.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// pointsClient is the subset of *qdrant.Client the store uses.
type pointsClient interface {
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)
	Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Store is a Qdrant backed vector store. Records of every owner share one
// collection and are separated by payload filters.
type Store struct {
	client     pointsClient
	collection string

	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Open connects to the server described by cfg and makes sure the collection
// exists with cosine distance and keyword indexes on the filter fields.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(cfg.MaxMessageSize),
				grpc.MaxCallSendMsgSize(cfg.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	logger := slog.Default().With("component", "qdrant", "collection", cfg.Collection)
	if !cfg.UseTLS {
		logger.Warn("qdrant gRPC connection is plaintext", "host", cfg.Host)
	}

	if err := ensureCollection(ctx, client, cfg); err != nil {
		_ = client.Close()
		return nil, classify(err)
	}
	return newStore(client, cfg.Collection, logger), nil
}

func newStore(client pointsClient, collection string, logger *slog.Logger) *Store {
	return &Store{
		client:     client,
		collection: collection,
		logger:     logger,
	}
}

func ensureCollection(ctx context.Context, client *qdrant.Client, cfg Config) error {
	exists, err := client.CollectionExists(ctx, cfg.Collection)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if exists {
		return nil
	}

	err = client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(cfg.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	for _, field := range []string{core.MetaOwnerID, core.MetaDocumentID} {
		_, err := client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: cfg.Collection,
			Wait:           qdrant.PtrOf(true),
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("indexing %s: %w", field, err)
		}
	}
	return nil
}

func (s *Store) checkOpen() error {
	if s.closed {
		return storage.ErrStorageClosed
	}
	return nil
}

// Upsert writes records and waits for them to be applied.
func (s *Store) Upsert(ctx context.Context, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: toPayload(r.ID, r.Metadata),
		}
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return classify(err)
}

// SimilaritySearch returns up to topK matching records, most similar first.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, filter core.Filter, topK int) ([]core.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         toFilter(filter),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify(err)
	}

	matches := make([]core.Match, 0, len(points))
	for _, p := range points {
		id, md, err := fromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		matches = append(matches, core.Match{ID: id, Score: p.GetScore(), Metadata: md})
	}
	storage.SortMatches(matches)
	return matches, nil
}

// FetchByFilter scrolls matching records in point ID order. The cursor is the
// first point ID of the next page.
func (s *Store) FetchByFilter(ctx context.Context, filter core.Filter, opts storage.FetchOptions) (*storage.FetchResult, error) {
	offset, err := decodeCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultFetchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	points, next, err := s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter:         toFilter(filter),
		Offset:         offset,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, classify(err)
	}

	result := &storage.FetchResult{
		Matches:    make([]core.Match, 0, len(points)),
		NextCursor: encodeCursor(next),
	}
	for _, p := range points {
		id, md, err := fromPayload(p.GetPayload())
		if err != nil {
			return nil, err
		}
		result.Matches = append(result.Matches, core.Match{ID: id, Metadata: md})
	}
	return result, nil
}

// DeleteByIDs removes records by ID.
func (s *Store) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	return s.delete(ctx, qdrant.NewPointsSelector(pointIDs...))
}

// DeleteByFilter removes every matching record.
func (s *Store) DeleteByFilter(ctx context.Context, filter core.Filter) error {
	return s.delete(ctx, qdrant.NewPointsSelectorFilter(toFilter(filter)))
}

func (s *Store) delete(ctx context.Context, selector *qdrant.PointsSelector) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         selector,
	})
	return classify(err)
}

// Close closes the gRPC connections.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
