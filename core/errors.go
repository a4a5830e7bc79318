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
	"errors"
	"fmt"
)

// Pipeline error taxonomy. Callers classify failures with errors.Is.
var (
	// ErrEmptyDocument indicates chunking produced nothing. Callers treat it as a no-op.
	ErrEmptyDocument = errors.New("document produced no chunks")

	// ErrUpstream indicates the embedding service failed.
	ErrUpstream = errors.New("embedding upstream error")

	// ErrStore indicates a vector store upsert, query or delete failed.
	ErrStore = errors.New("vector store error")

	// ErrCapacityCheck indicates the eviction query or delete failed.
	ErrCapacityCheck = errors.New("capacity check failed")

	// ErrMaxRetriesExceeded is terminal; the caller owns cleanup of partial writes.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// ErrTransient marks failures that are worth retrying.
	ErrTransient = errors.New("transient failure")
)

// Domain validation errors
var (
	// ErrInvalidOwnerID indicates an empty owner identifier.
	ErrInvalidOwnerID = errors.New("invalid owner id")

	// ErrInvalidDocumentID indicates an empty document identifier.
	ErrInvalidDocumentID = errors.New("invalid document id")

	// ErrInvalidEmbedding indicates a vector that is empty or of the wrong dimension.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidQuery indicates an empty retrieval query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidTimestamp indicates a timestamp is in the future.
	ErrInvalidTimestamp = errors.New("timestamp cannot be in the future")
)

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err was marked as retryable.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
