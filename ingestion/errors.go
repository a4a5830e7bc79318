package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when a vector store is not provided.
	ErrStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCapacityPolicyRequired is returned when a capacity policy is not provided.
	ErrCapacityPolicyRequired = errors.New("capacity policy required")

	// ErrPipelineReleased is returned when Ingest is called after Release.
	ErrPipelineReleased = errors.New("pipeline released")
)
