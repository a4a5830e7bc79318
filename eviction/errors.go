package eviction

import "errors"

// ErrStoreRequired is returned when a vector store is not provided.
var ErrStoreRequired = errors.New("vector store required")
