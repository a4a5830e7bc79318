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


// Package storage provides the vector store abstraction for mailrag.
//
// VectorStore is implemented by every backend:
//
//   - chromem: embedded chromem-go database, in memory or persisted to disk
//   - badger: embedded BadgerDB with brute-force cosine search
//   - qdrant: external Qdrant server over gRPC
//
// Backends are wrapped by an Adapter, which is what the rest of the system
// talks to. The adapter validates records, splits upserts into batches, paces
// calls through injected rate limiters and reports every failure as
// core.ErrStore. Failures that are worth retrying keep core.ErrTransient.
//
// # Usage
//
//	backend, err := chromem.Open("", chromem.DefaultCollection)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store, err := storage.NewAdapter(backend,
//	    storage.WithUpsertLimiter(ratelimit.PerSecond(1)),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Filters
//
// Every read and every filtered delete is scoped to an owner. FetchByFilter
// replaces similarity queries with a zero vector: it returns filter-matched
// records in a stable order, one page at a time, and callers must follow
// NextCursor until it is empty.
//
// # Thread Safety
//
// All store implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
