// Copyright 2025 Calyptra Labs
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


// Package ai provides the embedding adapter used by ingestion and retrieval.
//
// The central type is Adapter: it embeds text through a primary Backend
// (OpenAI-compatible API, ai/openai) and transparently retries failed
// inputs against a local fallback Backend (Ollama, ai/ollama). Batch calls
// are processed in fixed-size batches with a short pause between batches to
// respect backend rate limits, and always preserve input order.
//
// The adapter learns the embedding dimension from the first successful
// primary response; before that it reports a model-keyed default. An
// optional CachingEmbedder layer memoizes embeddings by content hash with
// bounded, oldest-first eviction.
//
// Production constructors return interface types to enforce abstraction;
// ai/mock returns concrete types so tests can inject behavior and assert
// on call counts.
package ai
