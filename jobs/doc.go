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


// Package jobs runs background ingestion jobs: fetch documents per source,
// chunk them, embed the chunks and upsert them into the model's collection.
//
// Jobs move PENDING -> RUNNING -> {COMPLETED | FAILED}. Inside RUNNING they
// pass through the fetching, embedding and upserting phases; progress is
// polled through Manager.Get snapshots. A failure fetching one source is
// recorded as a warning and skipped; a failure in the shared embedding or
// upsert phase fails the whole job. Cancellation is cooperative and only
// acts on a RUNNING job.
//
// The registry of jobs is process-local. There is no cross-restart
// durability; a restart forgets all jobs.
package jobs
