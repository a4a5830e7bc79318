package qdrant

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// payloadRecordID stores the string vector ID. Qdrant point IDs must be
// integers or UUIDs, so the point ID is a hash of it.
const payloadRecordID = "id"

// pointID maps a vector ID to a numeric point ID.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDNum(uint64(core.IDFromContent(id)))
}

func toPayload(id string, md core.Metadata) map[string]*qdrant.Value {
	return qdrant.NewValueMap(map[string]any{
		payloadRecordID:     id,
		core.MetaOwnerID:    md.OwnerID,
		core.MetaDocumentID: md.DocumentID,
		core.MetaChunkIndex: md.ChunkIndex,
		core.MetaContent:    md.Content,
		core.MetaTimestamp:  md.Timestamp.UnixMilli(),
	})
}

func fromPayload(payload map[string]*qdrant.Value) (string, core.Metadata, error) {
	id := payload[payloadRecordID].GetStringValue()
	if id == "" {
		return "", core.Metadata{}, fmt.Errorf("%w: point has no %q payload", storage.ErrSerializationFailed, payloadRecordID)
	}
	return id, core.Metadata{
		OwnerID:    payload[core.MetaOwnerID].GetStringValue(),
		DocumentID: payload[core.MetaDocumentID].GetStringValue(),
		ChunkIndex: int(payload[core.MetaChunkIndex].GetIntegerValue()),
		Content:    payload[core.MetaContent].GetStringValue(),
		Timestamp:  time.UnixMilli(payload[core.MetaTimestamp].GetIntegerValue()).UTC(),
	}, nil
}

func toFilter(f core.Filter) *qdrant.Filter {
	must := []*qdrant.Condition{qdrant.NewMatchKeyword(core.MetaOwnerID, f.OwnerID)}
	if f.DocumentID != "" {
		must = append(must, qdrant.NewMatchKeyword(core.MetaDocumentID, f.DocumentID))
	}
	return &qdrant.Filter{Must: must}
}

// encodeCursor renders the next scroll offset. A nil offset ends the fetch.
func encodeCursor(next *qdrant.PointId) string {
	if next == nil {
		return ""
	}
	return strconv.FormatUint(next.GetNum(), 10)
}

func decodeCursor(cursor string) (*qdrant.PointId, error) {
	if cursor == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
	}
	return qdrant.NewIDNum(n), nil
}

// classify marks retryable gRPC failures with core.ErrTransient.
func classify(err error) error {
	if isTransient(err) {
		return core.Transient(err)
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var exhausted *qdrant.QdrantResourceExhaustedError
	if errors.As(err, &exhausted) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
