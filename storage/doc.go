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


// Package storage defines the persistence contracts for vector collections
// and persisted chunks, plus the binary serialization shared by all
// backends.
//
// A collection is a named set of VectorRecords with one manifest fixing its
// embedding dimension and numeric representation. The representation is
// chosen exactly once, at provisioning time: float16 for wide embeddings
// (dimension above Float16Threshold), float32 otherwise. Changing either
// after provisioning requires an explicit, destructive migration.
//
// Serialization uses the MUS binary format. Vector payloads are encoded per
// the collection's representation, so the same record occupies half the
// space in a float16 collection.
//
// The storage/badger subpackage provides the BadgerDB implementation.
package storage
