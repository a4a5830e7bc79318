package badger

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/poiesic/mailrag/core"
	"github.com/poiesic/mailrag/storage"
)

// Key prefixes for different data types
const (
	vectorRecordPrefix = "vecrec:"
	vectorIDPrefix     = "vecid:"
)

// separator terminates owner and document components so that one owner's
// prefix never matches another owner whose ID extends it.
const separator = 0x00

// makeOwnerPrefix generates the prefix shared by all records of an owner.
// Format: prefix owner 0x00
func makeOwnerPrefix(ownerID string) []byte {
	buf := make([]byte, 0, len(vectorRecordPrefix)+len(ownerID)+1)
	buf = append(buf, vectorRecordPrefix...)
	buf = append(buf, ownerID...)
	return append(buf, separator)
}

// makeDocumentPrefix generates the prefix shared by all chunks of a document.
// Format: prefix owner 0x00 document 0x00
func makeDocumentPrefix(ownerID, documentID string) []byte {
	buf := makeOwnerPrefix(ownerID)
	buf = append(buf, documentID...)
	return append(buf, separator)
}

// makeFilterPrefix returns the narrowest prefix covering filter.
func makeFilterPrefix(f core.Filter) []byte {
	if f.DocumentID != "" {
		return makeDocumentPrefix(f.OwnerID, f.DocumentID)
	}
	return makeOwnerPrefix(f.OwnerID)
}

// makeVectorRecordKey generates the primary key for a chunk.
// Format: prefix owner 0x00 document 0x00 chunkIndex
// The chunk index is written in BigEndian order so lexicographic sort
// follows chunk order.
func makeVectorRecordKey(md core.Metadata) []byte {
	buf := makeDocumentPrefix(md.OwnerID, md.DocumentID)
	return binary.BigEndian.AppendUint32(buf, uint32(md.ChunkIndex))
}

// makeVectorIDKey generates the index key mapping a vector ID to its primary key.
func makeVectorIDKey(id string) []byte {
	return []byte(vectorIDPrefix + id)
}

// encodeCursor turns the last key of a page into an opaque cursor.
func encodeCursor(key []byte) string {
	return hex.EncodeToString(key)
}

// decodeCursor validates a cursor against the prefix of the fetch it continues.
func decodeCursor(cursor string, prefix []byte) ([]byte, error) {
	key, err := hex.DecodeString(cursor)
	if err != nil || len(key) < len(prefix) || string(key[:len(prefix)]) != string(prefix) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
	}
	return key, nil
}
