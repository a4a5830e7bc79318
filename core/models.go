package core

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DefaultDimensions is the vector length produced by text-embedding-ada-002.
const DefaultDimensions = 1536

// Metadata keys persisted alongside every vector.
const (
	MetaOwnerID    = "user_id"
	MetaDocumentID = "email_id"
	MetaChunkIndex = "chunk_id"
	MetaContent    = "content"
	MetaTimestamp  = "timestamp"
)

const chunkSeparator = "_chunk"

// ID is a content-derived numeric identifier.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Document is a unit of raw text owned by a single owner.
type Document struct {
	OwnerID    string
	DocumentID string
	Text       string
	Timestamp  time.Time // Ingestion time, shared by every chunk
}

// Chunk is a bounded segment of a document. Index defines reconstruction order.
type Chunk struct {
	Index   int
	Content string
}

// Metadata is the payload stored with each vector.
type Metadata struct {
	OwnerID    string
	DocumentID string
	ChunkIndex int
	Content    string
	Timestamp  time.Time
}

// Record is the persisted unit: one chunk, its embedding and its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Metadata Metadata
}

// Match is a record read back from a vector store. Score is zero for
// filter-only fetches.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// Filter scopes store reads and deletes. OwnerID is always required;
// an empty DocumentID matches every document of the owner.
type Filter struct {
	OwnerID    string
	DocumentID string
}

// ForOwner returns a filter matching all records of ownerID.
func ForOwner(ownerID string) Filter {
	return Filter{OwnerID: ownerID}
}

// ForDocument returns a filter matching all chunks of one document.
func ForDocument(ownerID, documentID string) Filter {
	return Filter{OwnerID: ownerID, DocumentID: documentID}
}

// Matches reports whether md falls inside the filter.
func (f Filter) Matches(md Metadata) bool {
	if md.OwnerID != f.OwnerID {
		return false
	}
	return f.DocumentID == "" || md.DocumentID == f.DocumentID
}

// RetrievedDocument is a reconstructed document returned by retrieval.
type RetrievedDocument struct {
	DocumentID string
	Score      float32
	Content    string
}

// VectorID builds the storage key for a chunk: owner_document_chunk{index}.
func VectorID(ownerID, documentID string, index int) string {
	return ownerID + "_" + documentID + chunkSeparator + strconv.Itoa(index)
}

// ChunkIndexFromVectorID extracts the chunk index from a vector ID built by VectorID.
func ChunkIndexFromVectorID(id string) (int, error) {
	pos := strings.LastIndex(id, chunkSeparator)
	if pos < 0 {
		return 0, fmt.Errorf("%w: %q has no chunk suffix", ErrInvalidRecord, id)
	}
	idx, err := strconv.Atoi(id[pos+len(chunkSeparator):])
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: %q has a malformed chunk suffix", ErrInvalidRecord, id)
	}
	return idx, nil
}

// NewRecord assembles the record for chunk c of doc.
func NewRecord(doc Document, c Chunk, vector []float32) Record {
	return Record{
		ID:     VectorID(doc.OwnerID, doc.DocumentID, c.Index),
		Vector: vector,
		Metadata: Metadata{
			OwnerID:    doc.OwnerID,
			DocumentID: doc.DocumentID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			Timestamp:  doc.Timestamp,
		},
	}
}
