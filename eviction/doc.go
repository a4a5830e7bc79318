// Package eviction bounds the number of documents each owner keeps in the
// vector store.
//
// Before a document is ingested, Policy.EnforceCapacity pages through the
// owner's records, groups them by document, and deletes the oldest
// documents when the owner is at capacity. A document that is already
// stored is being replaced, so it never triggers an eviction. The bound is
// soft: concurrent ingestions for the same owner may briefly exceed it.
//
// Policy.Purge removes every document of an owner.
package eviction
