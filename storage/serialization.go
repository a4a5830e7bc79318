// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/poiesic/mailrag/core"
)

// storedRecord is the on-disk form of a core.Record.
// Field names match the metadata keys used by every backend.
type storedRecord struct {
	ID         string    `msgpack:"id"`
	Vector     []float32 `msgpack:"vector"`
	OwnerID    string    `msgpack:"user_id"`
	DocumentID string    `msgpack:"email_id"`
	ChunkIndex int       `msgpack:"chunk_id"`
	Content    string    `msgpack:"content"`
	Timestamp  int64     `msgpack:"timestamp"`
}

// MarshalRecord serializes a Record to bytes.
// Timestamps are kept with millisecond precision.
func MarshalRecord(record *core.Record) ([]byte, error) {
	data, err := msgpack.Marshal(&storedRecord{
		ID:         record.ID,
		Vector:     record.Vector,
		OwnerID:    record.Metadata.OwnerID,
		DocumentID: record.Metadata.DocumentID,
		ChunkIndex: record.Metadata.ChunkIndex,
		Content:    record.Metadata.Content,
		Timestamp:  record.Metadata.Timestamp.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a Record from bytes.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	var sr storedRecord
	if err := msgpack.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &core.Record{
		ID:     sr.ID,
		Vector: sr.Vector,
		Metadata: core.Metadata{
			OwnerID:    sr.OwnerID,
			DocumentID: sr.DocumentID,
			ChunkIndex: sr.ChunkIndex,
			Content:    sr.Content,
			Timestamp:  time.UnixMilli(sr.Timestamp).UTC(),
		},
	}, nil
}

// MetadataToStrings flattens metadata into string values for stores whose
// metadata is map[string]string. Content is included.
func MetadataToStrings(md core.Metadata) map[string]string {
	return map[string]string{
		core.MetaOwnerID:    md.OwnerID,
		core.MetaDocumentID: md.DocumentID,
		core.MetaChunkIndex: strconv.Itoa(md.ChunkIndex),
		core.MetaContent:    md.Content,
		core.MetaTimestamp:  strconv.FormatInt(md.Timestamp.UnixMilli(), 10),
	}
}

// MetadataFromStrings is the inverse of MetadataToStrings.
// A missing content key is allowed; callers may carry content separately.
func MetadataFromStrings(m map[string]string) (core.Metadata, error) {
	idx, err := strconv.Atoi(m[core.MetaChunkIndex])
	if err != nil {
		return core.Metadata{}, fmt.Errorf("%w: chunk index %q: %w", ErrSerializationFailed, m[core.MetaChunkIndex], err)
	}
	ms, err := strconv.ParseInt(m[core.MetaTimestamp], 10, 64)
	if err != nil {
		return core.Metadata{}, fmt.Errorf("%w: timestamp %q: %w", ErrSerializationFailed, m[core.MetaTimestamp], err)
	}
	return core.Metadata{
		OwnerID:    m[core.MetaOwnerID],
		DocumentID: m[core.MetaDocumentID],
		ChunkIndex: idx,
		Content:    m[core.MetaContent],
		Timestamp:  time.UnixMilli(ms).UTC(),
	}, nil
}

// FilterToStrings converts a filter into an equality match on metadata keys.
func FilterToStrings(f core.Filter) map[string]string {
	where := map[string]string{core.MetaOwnerID: f.OwnerID}
	if f.DocumentID != "" {
		where[core.MetaDocumentID] = f.DocumentID
	}
	return where
}
