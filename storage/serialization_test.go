package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailrag/core"
)

func TestRecordSerialization(t *testing.T) {
	ts := time.Date(2025, 3, 4, 10, 30, 15, 123_456_789, time.UTC)
	record := &core.Record{
		ID:     core.VectorID("alice@example.com", "msg-1", 2),
		Vector: []float32{0.25, -0.5, 0.75},
		Metadata: core.Metadata{
			OwnerID:    "alice@example.com",
			DocumentID: "msg-1",
			ChunkIndex: 2,
			Content:    "The invoice is attached.\nPlease confirm receipt.",
			Timestamp:  ts,
		},
	}

	data, err := MarshalRecord(record)
	require.NoError(t, err)

	got, err := UnmarshalRecord(data)
	require.NoError(t, err)

	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Vector, got.Vector)
	assert.Equal(t, record.Metadata.OwnerID, got.Metadata.OwnerID)
	assert.Equal(t, record.Metadata.DocumentID, got.Metadata.DocumentID)
	assert.Equal(t, record.Metadata.ChunkIndex, got.Metadata.ChunkIndex)
	assert.Equal(t, record.Metadata.Content, got.Metadata.Content)
	assert.True(t, ts.Truncate(time.Millisecond).Equal(got.Metadata.Timestamp), "timestamps keep millisecond precision")
}

func TestUnmarshalRecord_Corrupt(t *testing.T) {
	_, err := UnmarshalRecord([]byte{0xc1})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMetadataStrings(t *testing.T) {
	md := core.Metadata{
		OwnerID:    "u1",
		DocumentID: "d1",
		ChunkIndex: 7,
		Content:    "hello",
		Timestamp:  time.UnixMilli(1_700_000_000_123).UTC(),
	}

	m := MetadataToStrings(md)
	assert.Equal(t, "u1", m[core.MetaOwnerID])
	assert.Equal(t, "d1", m[core.MetaDocumentID])
	assert.Equal(t, "7", m[core.MetaChunkIndex])
	assert.Equal(t, "1700000000123", m[core.MetaTimestamp])

	got, err := MetadataFromStrings(m)
	require.NoError(t, err)
	assert.Equal(t, md.OwnerID, got.OwnerID)
	assert.Equal(t, md.ChunkIndex, got.ChunkIndex)
	assert.Equal(t, md.Content, got.Content)
	assert.True(t, md.Timestamp.Equal(got.Timestamp))

	m[core.MetaChunkIndex] = "x"
	_, err = MetadataFromStrings(m)
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestFilterToStrings(t *testing.T) {
	assert.Equal(t, map[string]string{core.MetaOwnerID: "u1"}, FilterToStrings(core.ForOwner("u1")))
	assert.Equal(t,
		map[string]string{core.MetaOwnerID: "u1", core.MetaDocumentID: "d1"},
		FilterToStrings(core.ForDocument("u1", "d1")),
	)
}
