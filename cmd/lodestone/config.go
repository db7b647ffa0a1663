package main

import (
	"fmt"
	"os"

	"github.com/calyptra/lodestone/core"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig is the optional YAML configuration file. File values override
// flag defaults; explicitly set flags override the file.
type fileConfig struct {
	DBPath         string         `yaml:"db"`
	EmbeddingHost  string         `yaml:"embedding_host"`
	Model          string         `yaml:"model"`
	FallbackHost   string         `yaml:"fallback_host"`
	FallbackModel  string         `yaml:"fallback_model"`
	APIToken       string         `yaml:"api_token"`
	ChunkSize      int            `yaml:"chunk_size"`
	ChunkOverlap   int            `yaml:"chunk_overlap"`
	ScoreThreshold float64        `yaml:"score_threshold"`
	Sources        []sourceConfig `yaml:"sources"`
}

// sourceConfig declares one fetchable source and the model that indexes it.
type sourceConfig struct {
	Name              string  `yaml:"name"`
	Type              string  `yaml:"type"`
	Model             string  `yaml:"model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

func (s sourceConfig) docType() (core.DocType, error) {
	switch s.Type {
	case "", "text":
		return core.DocTypeText, nil
	case "markdown":
		return core.DocTypeMarkdown, nil
	case "reference":
		return core.DocTypeReference, nil
	}
	return 0, fmt.Errorf("%w: %q", core.ErrInvalidDocType, s.Type)
}

func readConfig(cfgPath string) (*fileConfig, error) {
	cfgFile, err := os.Open(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("unable to open config file: %w", err)
	}
	defer cfgFile.Close()

	cfg := &fileConfig{}
	if err := yaml.NewDecoder(cfgFile).Decode(cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}
	return cfg, nil
}

// settings are the resolved effective values for one command invocation.
type settings struct {
	dbPath         string
	embeddingHost  string
	model          string
	fallbackHost   string
	fallbackModel  string
	apiToken       string
	chunkSize      int
	chunkOverlap   int
	scoreThreshold float64
	sources        []sourceConfig
}

// resolveSettings merges the optional config file with the command's flags.
func resolveSettings(c *cli.Context) (*settings, error) {
	cfg := &fileConfig{}
	if path := c.String("config"); path != "" {
		loaded, err := readConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	s := &settings{
		dbPath:         stringSetting(c, "db", cfg.DBPath),
		embeddingHost:  stringSetting(c, "embedding-host", cfg.EmbeddingHost),
		model:          stringSetting(c, "model", cfg.Model),
		fallbackHost:   stringSetting(c, "fallback-host", cfg.FallbackHost),
		fallbackModel:  stringSetting(c, "fallback-model", cfg.FallbackModel),
		apiToken:       stringSetting(c, "api-token", cfg.APIToken),
		chunkSize:      intSetting(c, "chunk-size", cfg.ChunkSize),
		chunkOverlap:   intSetting(c, "chunk-overlap", cfg.ChunkOverlap),
		scoreThreshold: floatSetting(c, "score-threshold", cfg.ScoreThreshold),
		sources:        cfg.Sources,
	}

	if s.dbPath == "" {
		return nil, fmt.Errorf("database path is required (flag --db or config key db)")
	}
	return s, nil
}

func stringSetting(c *cli.Context, name, fromFile string) string {
	if c.IsSet(name) || fromFile == "" {
		return c.String(name)
	}
	return fromFile
}

func intSetting(c *cli.Context, name string, fromFile int) int {
	if c.IsSet(name) || fromFile == 0 {
		return c.Int(name)
	}
	return fromFile
}

func floatSetting(c *cli.Context, name string, fromFile float64) float64 {
	if c.IsSet(name) || fromFile == 0 {
		return c.Float64(name)
	}
	return fromFile
}
