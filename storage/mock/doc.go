// Package mock provides an in-memory storage.VectorStore for tests.
//
// Store keeps records in a map and implements every operation exactly, so it
// can stand in for a real backend. Each operation can be overridden with a
// function field to inject failures or latency.
package mock
