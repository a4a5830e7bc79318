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


package core

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ValidateOwnerID rejects empty or whitespace-only owner identifiers.
func ValidateOwnerID(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrInvalidOwnerID
	}
	return nil
}

// ValidateDocumentID rejects empty or whitespace-only document identifiers.
func ValidateDocumentID(documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return ErrInvalidDocumentID
	}
	return nil
}

// ValidateFilter checks that a filter is scoped to an owner.
func ValidateFilter(f Filter) error {
	return ValidateOwnerID(f.OwnerID)
}

// ValidateDocument validates a Document before ingestion.
//
// Validation rules:
//   - OwnerID and DocumentID must not be empty
//   - Timestamp, when set, must not be in the future
//
// NOT validated:
//   - Text (an empty text is reported as ErrEmptyDocument by the pipeline)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidRecord)
	}
	if err := ValidateOwnerID(doc.OwnerID); err != nil {
		return err
	}
	if err := ValidateDocumentID(doc.DocumentID); err != nil {
		return err
	}
	if !doc.Timestamp.IsZero() && !IsValidTimestamp(doc.Timestamp) {
		return ErrInvalidTimestamp
	}
	return nil
}

// ValidateEmbedding checks a vector is non-empty, finite and, when dim > 0, of length dim.
func ValidateEmbedding(vector []float32, dim int) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: vector is empty", ErrInvalidEmbedding)
	}
	if dim > 0 && len(vector) != dim {
		return fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidEmbedding, len(vector), dim)
	}
	for i, v := range vector {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrInvalidEmbedding, i)
		}
	}
	return nil
}

// ValidateRecord validates a Record before it is written.
//
// Validation rules:
//   - OwnerID and DocumentID must not be empty
//   - ChunkIndex must not be negative
//   - ID must equal VectorID(owner, document, chunkIndex)
//   - Vector must pass ValidateEmbedding
func ValidateRecord(r *Record, dim int) error {
	if r == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	md := r.Metadata
	if err := ValidateOwnerID(md.OwnerID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := ValidateDocumentID(md.DocumentID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if md.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative chunk index %d", ErrInvalidRecord, md.ChunkIndex)
	}
	if want := VectorID(md.OwnerID, md.DocumentID, md.ChunkIndex); r.ID != want {
		return fmt.Errorf("%w: id %q does not match %q", ErrInvalidRecord, r.ID, want)
	}
	if err := ValidateEmbedding(r.Vector, dim); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

// IsValidTimestamp checks if a timestamp is valid (not in the future).
func IsValidTimestamp(ts time.Time) bool {
	return !ts.After(time.Now())
}
