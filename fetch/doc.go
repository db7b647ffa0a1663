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


// Package fetch defines the source fetcher contract consumed by ingestion
// jobs, a registry mapping source tags to fetchers, and a shared rate
// limiter helper.
//
// Fetchers return whatever was retrievable rather than failing wholesale:
// a document that cannot be fetched is logged and skipped, and the returned
// slice carries the rest. Each fetcher self-rate-limits through Limiter.
package fetch
