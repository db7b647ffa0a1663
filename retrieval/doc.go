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


// Package retrieval answers one logical query against a corpus partitioned
// across collections with different, non-comparable embedding spaces.
//
// The Router maps source tags to embedding models and models to
// collections. The Retriever fans the query out to every resolved
// collection, embeds it with that collection's own model, merges all
// candidates by descending score and truncates to k. One failing
// collection is logged and excluded; the request fails only when every
// collection fails.
package retrieval
