// Package embedding turns text into vectors through a shared concurrency gate.
//
// A Client wraps an ai.Embedder. Every call first acquires a slot on a
// ratelimit.Gate, so ingestion and retrieval together never have more than
// the gate's size of requests in flight. Waiters are admitted in arrival order.
//
// Failures are reported as core.ErrUpstream. Timeouts, network failures,
// throttling and server errors additionally carry core.ErrTransient so that
// callers can decide whether to retry. The client never retries by itself.
package embedding
