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


package ai

import (
	"errors"
	"strings"
	"time"
)

// Config holds configuration for the embedding adapter and its backends.
type Config struct {
	// PrimaryHost is the base URL of the primary, OpenAI-compatible
	// embedding API. Example: "http://localhost:11434/v1".
	PrimaryHost string

	// PrimaryModel is the model identifier used on the primary backend.
	// Example: "embeddinggemma", "text-embedding-3-small".
	PrimaryModel string

	// FallbackHost is the base URL of the local Ollama fallback.
	// Example: "http://localhost:11434".
	FallbackHost string

	// FallbackModel is the model used on the fallback backend.
	FallbackModel string

	// BatchSize is how many texts go to the backend per request batch.
	BatchSize int

	// BatchPause is the pause between consecutive batches, respecting
	// backend rate limits.
	BatchPause time.Duration

	// FallbackPause is the pause before retrying a failed input against
	// the fallback backend.
	FallbackPause time.Duration

	// CacheSize bounds the embedding memo cache. Zero disables caching.
	CacheSize int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithPrimary sets the primary backend host and model.
func WithPrimary(host, model string) ConfigOption {
	return func(c *Config) {
		c.PrimaryHost = host
		c.PrimaryModel = model
	}
}

// WithPrimaryModel sets only the primary model identifier.
func WithPrimaryModel(model string) ConfigOption {
	return func(c *Config) {
		c.PrimaryModel = model
	}
}

// WithFallback sets the fallback backend host and model.
func WithFallback(host, model string) ConfigOption {
	return func(c *Config) {
		c.FallbackHost = host
		c.FallbackModel = model
	}
}

// WithBatchSize sets the embedding batch size.
func WithBatchSize(size int) ConfigOption {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithBatchPause sets the pause between embedding batches.
func WithBatchPause(pause time.Duration) ConfigOption {
	return func(c *Config) {
		c.BatchPause = pause
	}
}

// WithCacheSize bounds the embedding cache.
func WithCacheSize(size int) ConfigOption {
	return func(c *Config) {
		c.CacheSize = size
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible primary and an Ollama fallback on the same daemon.
func DefaultConfig() *Config {
	return &Config{
		PrimaryHost:   "http://localhost:11434/v1",
		PrimaryModel:  "embeddinggemma",
		FallbackHost:  "http://localhost:11434",
		FallbackModel: "nomic-embed-text",
		BatchSize:     32,
		BatchPause:    200 * time.Millisecond,
		FallbackPause: 500 * time.Millisecond,
		CacheSize:     2048,
	}
}

// NewConfig creates a Config with default values and applies the provided
// options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in canonical form. The primary
// host gets the /v1 suffix required by OpenAI-compatible APIs (Ollama,
// LocalAI, vLLM); the fallback host keeps Ollama's native root.
func (c *Config) Normalize() {
	if c.PrimaryHost != "" && !strings.HasSuffix(c.PrimaryHost, "/v1") {
		c.PrimaryHost = strings.TrimSuffix(c.PrimaryHost, "/") + "/v1"
	}
	c.FallbackHost = strings.TrimSuffix(c.FallbackHost, "/")
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration first.
func (c *Config) Validate() error {
	c.Normalize()

	if c.PrimaryHost == "" {
		return errors.New("ai config: PrimaryHost is required")
	}
	if c.PrimaryModel == "" {
		return errors.New("ai config: PrimaryModel is required")
	}
	if c.BatchSize < 1 {
		return errors.New("ai config: BatchSize must be at least 1")
	}
	if c.BatchPause < 0 || c.FallbackPause < 0 {
		return errors.New("ai config: pauses cannot be negative")
	}
	if c.CacheSize < 0 {
		return errors.New("ai config: CacheSize cannot be negative")
	}
	return nil
}
