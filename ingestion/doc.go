// Package ingestion turns documents into stored, embedded chunks.
//
// The Pipeline runs each document through these stages:
//   - Capacity enforcement for the owner (eviction of the oldest documents)
//   - Chunking
//   - Concurrent embedding of every chunk on a worker pool
//   - Replacement of the document's stored chunks
//
// Transient embedding and storage failures retry the whole document with
// exponential backoff. Because the previous chunks are deleted before the
// new ones are written, a retried document never leaves stale chunks behind.
package ingestion
