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

package embedding

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/progress"
	"github.com/poiesic/newsrag/retry"
	"github.com/poiesic/newsrag/storage"
)

// Store is the storage surface the embedding job needs.
type Store interface {
	storage.Transactor
	Chunks() storage.ChunkRepository
	Embeddings() storage.EmbeddingRepository
}

// Stats summarizes one job run.
type Stats struct {
	// Selected is the number of chunks that lacked an embedding.
	Selected int
	// Inserted is the number of embeddings stored.
	Inserted int
	// Dims is the dimensionality of the run's vectors, zero when nothing was embedded.
	Dims    int
	Batches int
}

// Job embeds chunks that have no embedding under the configured model.
type Job struct {
	store    Store
	embedder ai.Embedder
	config   Config
	progress io.Writer
	logger   *slog.Logger
}

// NewJob creates an embedding job. A nil config uses DefaultConfig.
// progress receives a progress line per run; nil disables it.
func NewJob(store Store, embedder ai.Embedder, config *Config, progress io.Writer) (*Job, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Job{
		store:    store,
		embedder: embedder,
		config:   *config,
		progress: progress,
		logger:   slog.Default().With("component", "embedder", "model", config.Model),
	}, nil
}

// Run embeds up to limit chunks, lowest ID first, committing once per batch.
// A failed batch is rolled back and stops the run; earlier batches stay stored.
func (j *Job) Run(ctx context.Context, limit int) (Stats, error) {
	var stats Stats
	if limit <= 0 {
		limit = DefaultLimit
	}

	chunks, err := j.store.Chunks().ListChunksWithoutEmbedding(ctx, j.config.Model, limit)
	if err != nil {
		return stats, fmt.Errorf("failed to list chunks without embedding: %w", err)
	}
	stats.Selected = len(chunks)
	if len(chunks) == 0 {
		j.logger.Info("no chunks without embedding")
		return stats, nil
	}

	var tracker *progress.Tracker
	if j.progress != nil {
		tracker = progress.New(j.progress, "chunks", len(chunks), j.config.BatchSize)
	}
	tracker.Start()
	defer tracker.Finish()

	for start := 0; start < len(chunks); start += j.config.BatchSize {
		batch := chunks[start:min(start+j.config.BatchSize, len(chunks))]

		records, err := j.embedBatch(ctx, batch, &stats.Dims)
		if err != nil {
			return stats, err
		}

		var inserted int
		err = j.store.WithTransaction(ctx, func(ctx context.Context) error {
			var err error
			inserted, err = j.store.Embeddings().InsertEmbeddings(ctx, records...)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("failed to store embedding batch at chunk %d: %w", batch[0].ID, err)
		}

		stats.Inserted += inserted
		stats.Batches++
		tracker.Add(len(batch))
	}

	j.logger.Info("embedding complete",
		"selected", stats.Selected,
		"inserted", stats.Inserted,
		"dims", stats.Dims,
		"batches", stats.Batches)
	return stats, nil
}

// embedBatch calls the model for one batch and builds its embedding records.
// dims holds the run's dimensionality; the first vector fixes it.
func (j *Job) embedBatch(ctx context.Context, batch []*core.Chunk, dims *int) ([]*core.Embedding, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = j.config.Prefix + c.ChunkText
	}

	var vectors [][]float32
	err := retry.Do(ctx, j.config.Retry, func(ctx context.Context) error {
		var err error
		vectors, err = j.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed batch at chunk %d: %w", batch[0].ID, err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: %d vectors for %d texts", ErrVectorCount, len(vectors), len(batch))
	}

	records := make([]*core.Embedding, len(batch))
	for i, v := range vectors {
		if *dims == 0 {
			*dims = len(v)
		}
		if len(v) == 0 || len(v) != *dims {
			return nil, fmt.Errorf("%w: chunk %d has %d dims, run has %d",
				core.ErrDimsMismatch, batch[i].ID, len(v), *dims)
		}
		if j.config.Normalize {
			v = core.NormalizeVector(v)
		}
		records[i] = &core.Embedding{
			ChunkID: batch[i].ID,
			Model:   j.config.Model,
			Dims:    len(v),
			Vector:  core.EncodeVector(v),
		}
	}
	return records, nil
}
