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


package core

import "fmt"

// ValidateDocument validates a RawDocument according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - Source must not be empty
//
// NOT validated:
//   - ID (derived by fetchers; empty means the chunker derives one from URL)
//   - Metadata, Title, URL (optional)
func ValidateDocument(doc *RawDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}
	if doc.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySource)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Text must not be empty
//   - Metadata.Source must not be empty
//
// NOT validated:
//   - Id (0 only occurs before derivation)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Metadata.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptySource)
	}
	return nil
}

// ValidateRecord validates a VectorRecord before it is upserted.
//
// Validation rules:
//   - Embedding must not be empty
//   - Source must not be empty
func ValidateRecord(record *VectorRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}
	if len(record.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyEmbedding)
	}
	if record.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptySource)
	}
	return nil
}

// ValidateDocType reports whether t is a known document type.
func ValidateDocType(t DocType) error {
	switch t {
	case DocTypeText, DocTypeMarkdown, DocTypeReference:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidDocType, t)
	}
}
