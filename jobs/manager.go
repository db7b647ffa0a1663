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


package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/calyptra/lodestone/chunk"
	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/fetch"
	"github.com/calyptra/lodestone/storage"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
)

const defaultPoolSize = 4

// Embedder is what a job needs from the embedding layer: batch embedding,
// the model identity and the expected dimension. *ai.Adapter satisfies it.
type Embedder interface {
	Model() string
	Dimension() int
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Composer builds the embedder for one model. The manager calls it once
// per job, so a job using a non-default model gets its own adapter and
// collection pairing without touching other jobs.
type Composer func(model string) (Embedder, error)

// Manager owns the process-local job registry and runs jobs on a shared
// worker pool.
type Manager struct {
	registry *fetch.Registry
	vectors  storage.VectorRepository
	chunks   storage.ChunkRepository
	compose  Composer
	splitter *chunk.Splitter

	defaultModel string
	poolSize     int
	pool         *ants.Pool
	logger       *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*core.Job
	cancels map[string]context.CancelFunc
	closed  bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaultModel sets the embedding model used when a job names none.
func WithDefaultModel(model string) ManagerOption {
	return func(m *Manager) {
		m.defaultModel = model
	}
}

// WithChunkConfig sets the chunking configuration for all jobs.
func WithChunkConfig(cfg chunk.Config) ManagerOption {
	return func(m *Manager) {
		m.splitter = chunk.NewSplitter(cfg)
	}
}

// WithPoolSize sets how many jobs may run concurrently.
func WithPoolSize(size int) ManagerOption {
	return func(m *Manager) {
		if size >= 1 {
			m.poolSize = size
		}
	}
}

// NewManager creates a job manager over the given fetcher registry,
// repositories and embedder composer.
func NewManager(registry *fetch.Registry, vectors storage.VectorRepository, chunks storage.ChunkRepository, compose Composer, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		registry:     registry,
		vectors:      vectors,
		chunks:       chunks,
		compose:      compose,
		splitter:     chunk.NewSplitter(chunk.DefaultConfig()),
		defaultModel: "nomic-embed-text",
		poolSize:     defaultPoolSize,
		logger:       slog.Default().With("component", "job-manager"),
		jobs:         make(map[string]*core.Job),
		cancels:      make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}

	pool, err := ants.NewPool(m.poolSize)
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return m, nil
}

// Create registers a new PENDING job and schedules it on the pool.
func (m *Manager) Create(sources, keywords, extraURLs []string, model string) (string, error) {
	if len(sources) == 0 {
		return "", ErrNoSources
	}
	if model == "" {
		model = m.defaultModel
	}

	now := time.Now().UTC()
	job := &core.Job{
		Id:             uuid.NewString(),
		Status:         core.JobPending,
		Sources:        slices.Clone(sources),
		Keywords:       slices.Clone(keywords),
		ExtraURLs:      slices.Clone(extraURLs),
		EmbeddingModel: model,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return "", ErrManagerClosed
	}
	m.jobs[job.Id] = job
	m.cancels[job.Id] = cancel
	m.mu.Unlock()

	// Submit blocks while the pool is saturated; dispatching from a
	// goroutine keeps Create non-blocking and the queued job PENDING.
	go m.dispatch(ctx, job.Id)

	m.logger.Info("job created",
		"job", job.Id, "sources", sources, "model", model)
	return job.Id, nil
}

// dispatch hands a job to the worker pool. A submit failure (the pool was
// released) is recorded on the job like any other execution failure.
func (m *Manager) dispatch(ctx context.Context, id string) {
	if err := m.pool.Submit(func() { m.run(ctx, id) }); err != nil {
		m.failJob(id, fmt.Sprintf("schedule job: %v", err))
	}
}

// Get returns a snapshot copy of a job.
func (m *Manager) Get(id string) (*core.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return snapshot(job), nil
}

// Cancel requests cancellation of a RUNNING job. Returns true if the job
// was transitioned to FAILED with a cancellation marker; cancelling a
// PENDING or terminal job is a no-op returning false.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != core.JobRunning {
		return false
	}

	job.Status = core.JobFailed
	job.Error = ErrJobCancelled.Error()
	job.UpdatedAt = time.Now().UTC()

	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}

	m.logger.Info("job cancelled", "job", id)
	return true
}

// Close stops accepting jobs and releases the worker pool. Running jobs
// are cancelled.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()

	m.pool.Release()
	return nil
}

// jobUpdate is the fixed set of optional job-field updates. Every status
// mutation goes through applyUpdate with one of these, so the update shape
// stays static.
type jobUpdate struct {
	status        *core.JobStatus
	phase         *core.JobPhase
	processed     *int
	addTotal      *int
	currentSource *string
	err           *string
	warning       *string
}

// applyUpdate applies a directive under the manager mutex. Updates against
// a terminal job are dropped: a cancelled job stays FAILED no matter what
// the abandoned runner reports afterwards.
func (m *Manager) applyUpdate(id string, u jobUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status.Terminal() {
		return
	}

	if u.status != nil {
		job.Status = *u.status
	}
	if u.phase != nil {
		job.Progress.CurrentPhase = *u.phase
	}
	if u.processed != nil {
		job.Progress.Processed = *u.processed
	}
	if u.addTotal != nil {
		job.Progress.TotalDocs += *u.addTotal
	}
	if u.currentSource != nil {
		job.Progress.CurrentSource = *u.currentSource
	}
	if u.err != nil {
		job.Error = *u.err
	}
	if u.warning != nil {
		job.Warnings = append(job.Warnings, *u.warning)
	}
	job.UpdatedAt = time.Now().UTC()
}

// snapshot copies a job for handing out; the caller owns the copy.
func snapshot(job *core.Job) *core.Job {
	c := *job
	c.Sources = slices.Clone(job.Sources)
	c.Keywords = slices.Clone(job.Keywords)
	c.ExtraURLs = slices.Clone(job.ExtraURLs)
	c.Warnings = slices.Clone(job.Warnings)
	return &c
}
