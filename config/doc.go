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


// Package config loads the mailrag application configuration.
//
// Values come from three layers, highest precedence first:
//
//  1. Environment variables prefixed with MAILRAG_
//  2. A YAML file
//  3. Built-in defaults (see Default)
//
// Environment variables map to YAML keys by stripping the prefix,
// lowercasing, and splitting section from field on the first underscore:
//
//	MAILRAG_STORE_BACKEND           -> store.backend
//	MAILRAG_EMBEDDING_API_KEY       -> embedding.api_key
//	MAILRAG_INGESTION_MAX_DOCUMENTS -> ingestion.max_documents
//
// When embedding.api_key is empty, OPENAI_API_KEY is used.
package config
