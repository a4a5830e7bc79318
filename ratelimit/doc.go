// Package ratelimit provides the two throttles shared across pipelines:
// a FIFO concurrency Gate for embedding calls and token-bucket Limiters for
// vector store writes and reads.
//
// Both are explicit values injected into constructors. Nothing in this
// package holds process-global state.
package ratelimit
