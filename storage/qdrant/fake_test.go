package qdrant

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/poiesic/mailrag/storage"
)

// fakeClient is an in-process stand-in for a Qdrant collection.
type fakeClient struct {
	mu     sync.Mutex
	points map[uint64]*qdrant.PointStruct
	err    error
	closed bool
}

var _ pointsClient = (*fakeClient)(nil)

func newFakeStore() (*Store, *fakeClient) {
	fc := &fakeClient{points: make(map[uint64]*qdrant.PointStruct)}
	return newStore(fc, "emails", slog.Default()), fc
}

func (f *fakeClient) Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, p := range req.GetPoints() {
		f.points[p.GetId().GetNum()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	query := req.GetQuery().GetNearest().GetDense().GetData()
	var out []*qdrant.ScoredPoint
	for _, p := range f.points {
		if !matches(req.GetFilter(), p) {
			continue
		}
		vec := p.GetVectors().GetVector().GetDense().GetData()
		out = append(out, &qdrant.ScoredPoint{
			Id:      p.GetId(),
			Payload: p.GetPayload(),
			Score:   storage.CosineSimilarity(query, vec),
		})
	}
	slices.SortFunc(out, func(a, b *qdrant.ScoredPoint) int { return cmp.Compare(b.Score, a.Score) })
	if limit := int(req.GetLimit()); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeClient) ScrollAndOffset(ctx context.Context, req *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	var ids []uint64
	for id, p := range f.points {
		if matches(req.GetFilter(), p) && (req.Offset == nil || id >= req.GetOffset().GetNum()) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	var next *qdrant.PointId
	if limit := int(req.GetLimit()); len(ids) > limit {
		next = qdrant.NewIDNum(ids[limit])
		ids = ids[:limit]
	}
	out := make([]*qdrant.RetrievedPoint, len(ids))
	for i, id := range ids {
		out[i] = &qdrant.RetrievedPoint{Id: f.points[id].GetId(), Payload: f.points[id].GetPayload()}
	}
	return out, next, nil
}

func (f *fakeClient) Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if filter := req.GetPoints().GetFilter(); filter != nil {
		for id, p := range f.points {
			if matches(filter, p) {
				delete(f.points, id)
			}
		}
		return &qdrant.UpdateResult{}, nil
	}
	for _, id := range req.GetPoints().GetPoints().GetIds() {
		delete(f.points, id.GetNum())
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// matches evaluates the keyword conditions toFilter produces.
func matches(filter *qdrant.Filter, p *qdrant.PointStruct) bool {
	for _, c := range filter.GetMust() {
		field := c.GetField()
		if p.GetPayload()[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}
