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


// Package retrieval answers natural-language queries with whole documents.
//
// The Retriever embeds the query, searches the owner's chunks by cosine
// similarity, and keeps each document's best score when it reaches the
// threshold. The highest scoring documents are then reconstructed by
// fetching all of their chunks and joining them in chunk order.
//
// Documents whose chunks cannot be fetched are skipped rather than failing
// the whole query.
package retrieval
