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

// Package newsrag wires the crawl, chunk, embed and search pipeline over one store.
//
// A Database opens the configured store and embedding client once and hands
// out the components that share them:
//
//	db, err := newsrag.NewDatabase(cfg)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	crawler, err := db.NewCrawler()
//	stats, err := crawler.Run(ctx)
package newsrag

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/ai/openai"
	"github.com/poiesic/newsrag/chunking"
	"github.com/poiesic/newsrag/config"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/crawl"
	"github.com/poiesic/newsrag/embedding"
	"github.com/poiesic/newsrag/fetch"
	"github.com/poiesic/newsrag/frontier"
	"github.com/poiesic/newsrag/lexical"
	"github.com/poiesic/newsrag/retrieval"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
	"github.com/poiesic/newsrag/storage/sqlite"
)

type Database struct {
	config   *config.AppConfig
	store    storage.Store
	embedder ai.Embedder
	logger   *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	embedder ai.Embedder
	logger   *slog.Logger
}

// WithEmbedder replaces the OpenAI-compatible embedding client.
func WithEmbedder(embedder ai.Embedder) DatabaseOption {
	return func(o *databaseOptions) {
		o.embedder = embedder
	}
}

// WithLogger sets the logger. Nil keeps the default.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// OpenStore opens the store the config names.
func OpenStore(cfg config.StoreConfig, logger *slog.Logger) (storage.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path())
	case config.DriverBadger:
		opts := []badger.Option{badger.WithLogger(logger)}
		if cfg.Key != "" {
			opts = append(opts, badger.WithEncryptionKey([]byte(cfg.Key)))
		}
		return badger.Open(cfg.Path(), opts...)
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownDriver, cfg.Driver)
	}
}

// NewDatabase opens the store and the embedding client described by cfg.
func NewDatabase(cfg *config.AppConfig, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	store, err := OpenStore(cfg.Store, options.logger)
	if err != nil {
		return nil, err
	}

	embedder := options.embedder
	if embedder == nil {
		embedder, err = openai.NewEmbedder(cfg.AIConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	return &Database{
		config:   cfg,
		store:    store,
		embedder: embedder,
		logger:   options.logger,
	}, nil
}

func (db *Database) Close() error {
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

func (db *Database) Store() storage.Store {
	return db.store
}

func (db *Database) Config() *config.AppConfig {
	return db.config
}

// NewFrontier creates a frontier over the store.
func (db *Database) NewFrontier(opts ...frontier.Option) *frontier.Frontier {
	return frontier.New(db.store, opts...)
}

// NewCrawler creates a crawler with a fetcher built from the crawl settings.
func (db *Database) NewCrawler(opts ...frontier.Option) (*crawl.Crawler, error) {
	fetcher := fetch.New(db.config.FetchConfig())
	return crawl.New(db.NewFrontier(opts...), fetcher, db.config.CrawlConfig())
}

// NewChunkJob creates a chunk job. Progress is written to w when it is non-nil.
func (db *Database) NewChunkJob(w io.Writer) (*chunking.Job, error) {
	return chunking.NewJob(db.store, db.config.ChunkConfig(), w)
}

// NewEmbeddingJob creates an embedding job for the configured model.
func (db *Database) NewEmbeddingJob(w io.Writer) (*embedding.Job, error) {
	return embedding.NewJob(db.store, db.embedder, db.config.EmbedConfig(), w)
}

// NewEngine creates a semantic search engine for the configured model.
func (db *Database) NewEngine(opts ...retrieval.Option) (*retrieval.Engine, error) {
	return retrieval.New(db.store.Embeddings(), db.embedder, db.config.SearchConfig(), opts...)
}

// OpenLexicalIndex opens or creates the keyword index beside the store.
func (db *Database) OpenLexicalIndex() (*lexical.Index, error) {
	return lexical.Open(db.config.Store.IndexPath())
}

// Stats counts the rows of every table.
type Stats struct {
	URLs       map[core.URLStatus]int
	Fetches    int
	Articles   int
	Chunks     int
	Embeddings int
	// ModelEmbeddings counts the embeddings of the configured model.
	ModelEmbeddings int
}

// Stats reports the current row counts.
func (db *Database) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats
	var err error
	if stats.URLs, err = db.store.URLs().CountByStatus(ctx); err != nil {
		return nil, fmt.Errorf("failed to count urls: %w", err)
	}
	if stats.Fetches, err = db.store.Fetches().CountFetches(ctx); err != nil {
		return nil, fmt.Errorf("failed to count fetches: %w", err)
	}
	if stats.Articles, err = db.store.Articles().CountArticles(ctx); err != nil {
		return nil, fmt.Errorf("failed to count articles: %w", err)
	}
	if stats.Chunks, err = db.store.Chunks().CountChunks(ctx); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if stats.Embeddings, err = db.store.Embeddings().CountEmbeddings(ctx, ""); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	if stats.ModelEmbeddings, err = db.store.Embeddings().CountEmbeddings(ctx, db.config.Embedding.Model); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return &stats, nil
}
