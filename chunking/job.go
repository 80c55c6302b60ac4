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

package chunking

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/progress"
	"github.com/poiesic/newsrag/storage"
)

// DefaultLimit is the number of articles a job processes per run.
const DefaultLimit = 50

// Store is the storage surface the chunk job needs.
type Store interface {
	storage.Transactor
	Articles() storage.ArticleRepository
	Chunks() storage.ChunkRepository
}

// Stats summarizes one job run.
type Stats struct {
	ArticlesProcessed int
	ChunksCreated     int
	ChunksInserted    int
}

// Job chunks stored articles that have no chunks yet.
type Job struct {
	store    Store
	config   Config
	progress io.Writer
	logger   *slog.Logger
}

// NewJob creates a chunk job. A nil config uses DefaultConfig.
// progress receives a progress line per run; nil disables it.
func NewJob(store Store, config *Config, progress io.Writer) (*Job, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		store:    store,
		config:   *config,
		progress: progress,
		logger:   slog.Default().With("component", "chunker"),
	}, nil
}

// Run chunks up to limit un-chunked articles, lowest ID first.
// Each article's chunks are written in their own transaction; a failure
// rolls back that article and stops the run, keeping earlier articles.
func (j *Job) Run(ctx context.Context, limit int) (Stats, error) {
	var stats Stats
	if limit <= 0 {
		limit = DefaultLimit
	}

	articles, err := j.store.Articles().ListArticlesWithoutChunks(ctx, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to list articles without chunks: %w", err)
	}
	if len(articles) == 0 {
		j.logger.Info("no articles without chunks")
		return stats, nil
	}

	var tracker *progress.Tracker
	if j.progress != nil {
		tracker = progress.New(j.progress, "articles", len(articles), 1)
	}
	tracker.Start()
	defer tracker.Finish()

	for _, article := range articles {
		text := Normalize(article.Text)
		if text == "" {
			continue
		}
		texts := Chunk(text, j.config)

		var inserted int
		err := j.store.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			inserted, err = j.store.Chunks().InsertChunks(ctx, Build(article.ID, texts)...)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("failed to store chunks of article %d: %w", article.ID, err)
		}

		stats.ArticlesProcessed++
		stats.ChunksCreated += len(texts)
		stats.ChunksInserted += inserted
		tracker.Add(1)
		j.logger.Debug("chunked article", "article", article.ID, "chunks", len(texts), "inserted", inserted)
	}

	j.logger.Info("chunking complete",
		"articles", stats.ArticlesProcessed,
		"chunks", stats.ChunksCreated,
		"inserted", stats.ChunksInserted)
	return stats, nil
}

// Build turns the chunk texts of an article into chunk records with their dedup hashes.
func Build(articleID core.ID, texts []string) []*core.Chunk {
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{
			ArticleID:  articleID,
			ChunkIndex: i,
			ChunkText:  text,
			ChunkHash:  core.ChunkHash(articleID, i, text),
		}
	}
	return chunks
}
