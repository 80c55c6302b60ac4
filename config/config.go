// Copyright 2025 Poiesic Systems
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

// Package config loads newsrag settings from a YAML file and the environment.
//
// Values are resolved in order: built-in defaults, the YAML file, environment
// variables (DB_DIR, DB_NAME, DB_DRIVER, DB_KEY, EMBEDDING_HOST,
// EMBEDDING_MODEL, EMBEDDING_TOKEN), then command-line flags applied by the
// caller. The converters hand each component its own configuration type.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/chunking"
	"github.com/poiesic/newsrag/crawl"
	"github.com/poiesic/newsrag/embedding"
	"github.com/poiesic/newsrag/fetch"
	"github.com/poiesic/newsrag/retrieval"
	"github.com/poiesic/newsrag/retry"
	"github.com/poiesic/newsrag/storage"
	"gopkg.in/yaml.v3"
)

const (
	// DriverBadger selects the BadgerDB store.
	DriverBadger = "badger"
	// DriverSQLite selects the SQLite store.
	DriverSQLite = "sqlite"
)

var (
	// ErrMissingStoreConfig is returned when the store location is incomplete.
	ErrMissingStoreConfig = errors.New("missing store configuration")

	// ErrInvalidKey is returned when the encryption key has an unusable length.
	ErrInvalidKey = errors.New("encryption key must be 16, 24 or 32 bytes")
)

// StoreConfig locates the database.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`
	Name   string `yaml:"name"`
	Key    string `yaml:"key"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	Host      string `yaml:"host"`
	Model     string `yaml:"model"`
	Token     string `yaml:"token"`
	BatchSize int    `yaml:"batch_size"`
}

// CrawlConfig configures the crawler and its fetcher.
type CrawlConfig struct {
	Workers       int           `yaml:"workers"`
	Poll          time.Duration `yaml:"poll"`
	MaxPages      int           `yaml:"max_pages"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	Attempts      int           `yaml:"attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// ChunkConfig configures the chunk job.
type ChunkConfig struct {
	TargetChars  int `yaml:"target_chars"`
	MaxChars     int `yaml:"max_chars"`
	OverlapParas int `yaml:"overlap_paras"`
	Limit        int `yaml:"limit"`
}

// EmbedConfig configures the embedding job.
type EmbedConfig struct {
	Prefix     string        `yaml:"prefix"`
	Limit      int           `yaml:"limit"`
	Normalize  bool          `yaml:"normalize"`
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// SearchConfig configures semantic search.
type SearchConfig struct {
	Prefix         string `yaml:"prefix"`
	TopK           int    `yaml:"topk"`
	Window         int    `yaml:"window"`
	NormalizeQuery bool   `yaml:"normalize_query"`
	SnippetChars   int    `yaml:"snippet_chars"`
}

// AppConfig is the root configuration.
type AppConfig struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Crawl     CrawlConfig     `yaml:"crawl"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Embed     EmbedConfig     `yaml:"embed"`
	Search    SearchConfig    `yaml:"search"`
}

// Default returns the built-in configuration. The store location is left empty.
func Default() *AppConfig {
	aiDefaults := ai.DefaultConfig()
	crawlDefaults := crawl.DefaultConfig()
	fetchDefaults := fetch.DefaultConfig()
	chunkDefaults := chunking.DefaultConfig()
	return &AppConfig{
		Store: StoreConfig{Driver: DriverBadger},
		Embedding: EmbeddingConfig{
			Host:      aiDefaults.EmbeddingHost,
			Model:     aiDefaults.EmbeddingModel,
			Token:     aiDefaults.Token,
			BatchSize: aiDefaults.BatchSize,
		},
		Crawl: CrawlConfig{
			Workers:       crawlDefaults.Workers,
			Poll:          crawlDefaults.Poll,
			UserAgent:     fetchDefaults.UserAgent,
			Timeout:       fetchDefaults.Timeout,
			Attempts:      fetchDefaults.Attempts,
			RetryDelay:    fetchDefaults.RetryDelay,
			RatePerSecond: fetchDefaults.RatePerSecond,
		},
		Chunk: ChunkConfig{
			TargetChars:  chunkDefaults.TargetChars,
			MaxChars:     chunkDefaults.MaxChars,
			OverlapParas: chunkDefaults.OverlapParas,
			Limit:        chunking.DefaultLimit,
		},
		Embed: EmbedConfig{
			Prefix:     embedding.DefaultPrefix,
			Limit:      embedding.DefaultLimit,
			Attempts:   retry.DefaultPolicy.Attempts,
			RetryDelay: retry.DefaultPolicy.BaseDelay,
		},
		Search: SearchConfig{
			Prefix:       retrieval.DefaultPrefix,
			TopK:         retrieval.DefaultTopK,
			Window:       retrieval.DefaultWindow,
			SnippetChars: retrieval.DefaultSnippetChars,
		},
	}
}

// Load reads a config from path over the defaults. Keys absent from the
// file keep their default. An empty path or a missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv overrides store and embedding settings with the non-empty
// variables getenv returns.
func (c *AppConfig) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, name string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	set(&c.Store.Dir, "DB_DIR")
	set(&c.Store.Name, "DB_NAME")
	set(&c.Store.Driver, "DB_DRIVER")
	set(&c.Store.Key, "DB_KEY")
	set(&c.Embedding.Host, "EMBEDDING_HOST")
	set(&c.Embedding.Model, "EMBEDDING_MODEL")
	set(&c.Embedding.Token, "EMBEDDING_TOKEN")
}

// Validate checks the store settings. Every missing location variable is named in the error.
func (c *AppConfig) Validate() error {
	return c.Store.Validate()
}

// Validate checks that the store is fully located and its driver and key are usable.
func (s StoreConfig) Validate() error {
	var missing []string
	if s.Dir == "" {
		missing = append(missing, "DB_DIR")
	}
	if s.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingStoreConfig, strings.Join(missing, ", "))
	}
	switch s.Driver {
	case DriverBadger, DriverSQLite:
	default:
		return fmt.Errorf("%w: %q", storage.ErrUnknownDriver, s.Driver)
	}
	switch len(s.Key) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("%w, got %d", ErrInvalidKey, len(s.Key))
	}
	if s.Key != "" && s.Driver != DriverBadger {
		return fmt.Errorf("%w: encryption is only supported by the %s driver", ErrInvalidKey, DriverBadger)
	}
	return nil
}

// Path returns the store location: a directory for Badger, a file for SQLite.
func (s StoreConfig) Path() string {
	if s.Driver == DriverSQLite {
		return filepath.Join(s.Dir, s.Name+".db")
	}
	return filepath.Join(s.Dir, s.Name)
}

// IndexPath returns the location of the lexical index beside the store.
func (s StoreConfig) IndexPath() string {
	return filepath.Join(s.Dir, s.Name+".bleve")
}

// AIConfig returns the embedding endpoint configuration.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithToken(c.Embedding.Token),
		ai.WithBatchSize(c.Embedding.BatchSize),
	)
}

// FetchConfig returns the fetcher configuration.
func (c *AppConfig) FetchConfig() *fetch.Config {
	cfg := fetch.DefaultConfig()
	cfg.UserAgent = c.Crawl.UserAgent
	cfg.Timeout = c.Crawl.Timeout
	cfg.Attempts = c.Crawl.Attempts
	cfg.RetryDelay = c.Crawl.RetryDelay
	cfg.RatePerSecond = c.Crawl.RatePerSecond
	return cfg
}

// CrawlConfig returns the crawler configuration.
func (c *AppConfig) CrawlConfig() *crawl.Config {
	return &crawl.Config{
		Workers:  c.Crawl.Workers,
		Poll:     c.Crawl.Poll,
		MaxPages: c.Crawl.MaxPages,
	}
}

// ChunkConfig returns the chunker configuration.
func (c *AppConfig) ChunkConfig() *chunking.Config {
	return &chunking.Config{
		TargetChars:  c.Chunk.TargetChars,
		MaxChars:     c.Chunk.MaxChars,
		OverlapParas: c.Chunk.OverlapParas,
	}
}

// EmbedConfig returns the embedding job configuration for the configured model.
func (c *AppConfig) EmbedConfig() *embedding.Config {
	return &embedding.Config{
		Model:     c.Embedding.Model,
		Prefix:    c.Embed.Prefix,
		BatchSize: c.Embedding.BatchSize,
		Normalize: c.Embed.Normalize,
		Retry:     retry.Policy{Attempts: c.Embed.Attempts, BaseDelay: c.Embed.RetryDelay},
	}
}

// SearchConfig returns the retrieval configuration for the configured model.
func (c *AppConfig) SearchConfig() *retrieval.Config {
	return &retrieval.Config{
		Model:          c.Embedding.Model,
		Prefix:         c.Search.Prefix,
		TopK:           c.Search.TopK,
		Window:         c.Search.Window,
		NormalizeQuery: c.Search.NormalizeQuery,
		SnippetChars:   c.Search.SnippetChars,
	}
}
