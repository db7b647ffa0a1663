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


// Package chunk splits fetched documents into bounded, overlapping,
// addressable chunks ready for embedding.
//
// A Splitter accumulates paragraph-like units greedily up to the configured
// chunk size, seeds each new chunk with the trailing overlap of the previous
// one, and enforces a hard safety cap with sentence-boundary truncation.
// Segmentation is a pluggable strategy selected per document type:
//
//   - ParagraphSegmenter: blank-line / heading delimited prose
//   - FencedCodeSegmenter: fenced code blocks kept atomic
//   - HeadingSegmenter: strict heading boundaries, heading prefixed to chunks
//
// Chunk identifiers are deterministic in (document, index, text prefix), so
// re-chunking unchanged input reproduces identical chunks and downstream
// upserts stay idempotent.
package chunk
