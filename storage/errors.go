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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrCollectionNotFound indicates an operation against a collection
	// that has never been provisioned.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrSchemaConflict indicates that a write does not match the
	// collection's provisioned dimension or numeric representation and
	// migration was not permitted. Existing data is left untouched.
	ErrSchemaConflict = errors.New("collection schema conflict")

	// ErrMixedDimensions indicates an upsert batch whose records do not
	// all share one embedding dimension.
	ErrMixedDimensions = errors.New("mixed embedding dimensions in batch")

	// ErrInvalidCollection indicates a collection name the key schema
	// cannot represent.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrCorruptRecord indicates a stored record that failed to
	// deserialize.
	ErrCorruptRecord = errors.New("corrupt record")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)
