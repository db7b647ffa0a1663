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


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/calyptra/lodestone"
	"github.com/calyptra/lodestone/ai"
	"github.com/calyptra/lodestone/chunk"
	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/fetch"
	"github.com/calyptra/lodestone/retrieval"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "lodestone",
		Usage: "Multi-source retrieval engine over local vector collections",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Create an ingestion job and wait for it to finish",
				Action: ingestCommand,
				Flags: append(engineFlags(),
					&cli.StringSliceFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Source to ingest (repeatable; default: all configured sources)",
					},
					&cli.StringSliceFlag{
						Name:  "keyword",
						Usage: "Keyword to select documents (repeatable)",
					},
					&cli.StringSliceFlag{
						Name:  "url",
						Usage: "Extra URL to fetch (repeatable)",
					},
					&cli.StringFlag{
						Name:  "job-model",
						Usage: "Embedding model for this job (default: the configured model)",
					},
				),
			},
			{
				Name:      "search",
				Usage:     "Query the indexed sources",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append(engineFlags(),
					&cli.StringSliceFlag{
						Name:    "source",
						Aliases: []string{"s"},
						Usage:   "Restrict the query to a source (repeatable)",
					},
					&cli.IntFlag{
						Name:    "top",
						Aliases: []string{"k"},
						Usage:   "Maximum number of results",
						Value:   8,
					},
					&cli.BoolFlag{
						Name:  "context",
						Usage: "Print one assembled context block instead of a result list",
					},
					&cli.IntFlag{
						Name:  "max-context",
						Usage: "Maximum context block length in bytes",
						Value: retrieval.DefaultContextLength,
					},
				),
			},
			{
				Name:   "delete",
				Usage:  "Remove everything indexed for a source",
				Action: deleteCommand,
				Flags: append(engineFlags(),
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Source to remove",
						Required: true,
					},
				),
			},
			{
				Name:   "health",
				Usage:  "Probe the embedding backends",
				Action: healthCommand,
				Flags:  engineFlags(),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}

// engineFlags are shared by every command that assembles an engine.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML config file",
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the database directory",
		},
		&cli.StringFlag{
			Name:  "embedding-host",
			Usage: "Primary embedding service host URL (OpenAI-compatible)",
			Value: "http://localhost:11434/v1",
		},
		&cli.StringFlag{
			Name:    "model",
			Aliases: []string{"m"},
			Usage:   "Default embedding model",
			Value:   "nomic-embed-text",
		},
		&cli.StringFlag{
			Name:  "fallback-host",
			Usage: "Local Ollama fallback host URL (empty disables the fallback)",
			Value: "http://localhost:11434",
		},
		&cli.StringFlag{
			Name:  "fallback-model",
			Usage: "Fallback embedding model",
			Value: "nomic-embed-text",
		},
		&cli.StringFlag{
			Name:    "api-token",
			Usage:   "Bearer token for the primary embedding API",
			EnvVars: []string{"LODESTONE_API_TOKEN"},
		},
		&cli.IntFlag{
			Name:  "chunk-size",
			Usage: "Chunk size in characters (0 uses the built-in default)",
		},
		&cli.IntFlag{
			Name:  "chunk-overlap",
			Usage: "Chunk overlap in characters",
		},
		&cli.Float64Flag{
			Name:  "score-threshold",
			Usage: "Minimum similarity for search results",
			Value: retrieval.DefaultScoreThreshold,
		},
	}
}

// buildEngine assembles an engine from the resolved settings and registers
// the configured sources.
func buildEngine(s *settings) (*lodestone.Engine, error) {
	aiConfig := ai.NewConfig(
		ai.WithPrimary(s.embeddingHost, s.model),
		ai.WithFallback(s.fallbackHost, s.fallbackModel),
	)
	if s.fallbackHost == "" {
		aiConfig.FallbackHost = ""
		aiConfig.FallbackModel = ""
	}

	opts := []lodestone.EngineOption{
		lodestone.WithAIConfig(aiConfig),
		lodestone.WithDefaultModel(s.model),
		lodestone.WithScoreThreshold(float32(s.scoreThreshold)),
	}
	if s.apiToken != "" {
		opts = append(opts, lodestone.WithAPIToken(s.apiToken))
	}
	if s.chunkSize > 0 {
		opts = append(opts, lodestone.WithChunkConfig(chunk.Config{
			ChunkSize: s.chunkSize,
			Overlap:   s.chunkOverlap,
		}))
	}

	engine, err := lodestone.NewEngine(s.dbPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}

	for _, src := range s.sources {
		docType, err := src.docType()
		if err != nil {
			engine.Close()
			return nil, fmt.Errorf("source %q: %w", src.Name, err)
		}
		engine.RegisterSource(fetch.NewWebFetcher(src.Name, docType, src.RequestsPerSecond), src.Model)
	}
	return engine, nil
}

func ingestCommand(c *cli.Context) error {
	s, err := resolveSettings(c)
	if err != nil {
		return err
	}

	engine, err := buildEngine(s)
	if err != nil {
		return err
	}
	defer engine.Close()

	sources := c.StringSlice("source")
	if len(sources) == 0 {
		sources = engine.Sources()
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources: pass --source or configure sources in the config file")
	}

	id, err := engine.Ingest(sources, c.StringSlice("keyword"), c.StringSlice("url"), c.String("job-model"))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Job %s created for sources %s\n", id, strings.Join(sources, ", "))

	job, err := waitForJob(engine, id)
	if err != nil {
		return err
	}

	for _, warning := range job.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	if job.Status == core.JobFailed {
		return fmt.Errorf("job failed: %s", job.Error)
	}

	fmt.Fprintf(os.Stderr, "Completed: %d of %d documents indexed\n",
		job.Progress.Processed, job.Progress.TotalDocs)
	return nil
}

// waitForJob polls the job until it reaches a terminal state, reporting
// phase changes on the way.
func waitForJob(engine *lodestone.Engine, id string) (*core.Job, error) {
	var lastPhase core.JobPhase
	for {
		job, err := engine.Job(id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		if job.Progress.CurrentPhase != lastPhase {
			lastPhase = job.Progress.CurrentPhase
			fmt.Fprintf(os.Stderr, "phase: %s\n", lastPhase)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func searchCommand(c *cli.Context) error {
	query := c.Args().First()
	if query == "" {
		return fmt.Errorf("query argument is required")
	}

	s, err := resolveSettings(c)
	if err != nil {
		return err
	}

	engine, err := buildEngine(s)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx := context.Background()
	sources := c.StringSlice("source")

	if c.Bool("context") {
		block, err := engine.SearchContext(ctx, query, c.Int("top"), c.Int("max-context"), sources...)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		fmt.Println(block)
		return nil
	}

	results, err := engine.Search(ctx, query, c.Int("top"), sources...)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(os.Stderr, "no results")
		return nil
	}

	for _, res := range results {
		fmt.Printf("%.3f  [%s] %s\n", res.Score, res.Source, res.Metadata["title"])
		if url := res.Metadata["url"]; url != "" {
			fmt.Printf("       %s\n", url)
		}
		fmt.Printf("       %s\n\n", snippet(res.Text, 200))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	s, err := resolveSettings(c)
	if err != nil {
		return err
	}

	engine, err := buildEngine(s)
	if err != nil {
		return err
	}
	defer engine.Close()

	source := c.String("source")
	removed, err := engine.DeleteSource(context.Background(), source)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Removed %d records for source %s\n", removed, source)
	return nil
}

func healthCommand(c *cli.Context) error {
	s, err := resolveSettings(c)
	if err != nil {
		return err
	}

	engine, err := buildEngine(s)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := engine.Health(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("primary reachable: %v\n", health.PrimaryReachable)
	fmt.Printf("model available:   %v\n", health.ModelAvailable)
	fmt.Printf("fallback usable:   %v\n", health.FallbackUsable)
	if health.Detail != "" {
		fmt.Printf("detail: %s\n", health.Detail)
	}
	if !health.OK() {
		return fmt.Errorf("no usable embedding path")
	}
	return nil
}

// snippet trims text to a single display line.
func snippet(text string, maxLen int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= maxLen {
		return text
	}
	for maxLen > 0 && !utf8.RuneStart(text[maxLen]) {
		maxLen--
	}
	return text[:maxLen] + "…"
}
