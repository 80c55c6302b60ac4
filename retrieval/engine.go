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

package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// Result is one ranked chunk.
type Result struct {
	Rank         int
	Score        float64
	EmbeddingID  core.ID
	ChunkID      core.ID
	ArticleID    core.ID
	ChunkIndex   int
	Title        string
	CanonicalURL string
	PublishedAt  *time.Time
	Snippet      string
}

// Response is the outcome of one search.
type Response struct {
	Model string
	// Dims is the dimensionality of the window, zero when it was empty.
	Dims int
	// Searched is the number of embeddings scored.
	Searched int
	Results  []*Result
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// Engine answers semantic queries over stored embeddings. It is safe for concurrent use.
type Engine struct {
	embeddings storage.EmbeddingRepository
	embedder   ai.Embedder
	config     Config
	logger     *slog.Logger
}

// New creates an engine. A nil config uses DefaultConfig.
func New(embeddings storage.EmbeddingRepository, embedder ai.Embedder, config *Config, opts ...Option) (*Engine, error) {
	if embeddings == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		embeddings: embeddings,
		embedder:   embedder,
		config:     *config,
		logger:     slog.Default().With("component", "retrieval"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Search ranks the loaded window against query.
func (e *Engine) Search(ctx context.Context, query string) (*Response, error) {
	return e.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor is Search reporting its stages to monitor.
func (e *Engine) SearchWithMonitor(ctx context.Context, query string, monitor Monitor) (*Response, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query)

	resp := &Response{Model: e.config.Model}
	rows, err := e.embeddings.LoadEmbeddings(ctx, e.config.Model, e.config.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	if len(rows) == 0 {
		e.logger.Info("no embeddings for model", "model", e.config.Model)
		monitor.AfterLoad(0, 0)
		monitor.Finish(nil)
		return resp, nil
	}

	vectors, dims, err := decodeWindow(rows)
	if err != nil {
		return nil, err
	}
	resp.Dims = dims
	resp.Searched = len(rows)
	monitor.AfterLoad(len(rows), dims)

	q, err := e.embedder.EmbedText(ctx, e.config.Prefix+query)
	if err != nil {
		e.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(q) != dims {
		return nil, fmt.Errorf("%w: query has %d dims, window has %d", core.ErrDimsMismatch, len(q), dims)
	}
	if e.config.NormalizeQuery {
		q = normalizeQuery(q)
	}
	monitor.AfterQueryEmbedding(len(q))

	scores := make([]float64, len(vectors))
	for i, v := range vectors {
		scores[i] = Cosine(v, q)
	}

	for rank, i := range TopK(scores, e.config.TopK) {
		row := rows[i]
		resp.Results = append(resp.Results, &Result{
			Rank:         rank + 1,
			Score:        scores[i],
			EmbeddingID:  row.Embedding.ID,
			ChunkID:      row.Embedding.ChunkID,
			ArticleID:    row.ArticleID,
			ChunkIndex:   row.ChunkIndex,
			Title:        row.Title,
			CanonicalURL: row.CanonicalURL,
			PublishedAt:  row.PublishedAt,
			Snippet:      Snippet(row.ChunkText, e.config.SnippetChars),
		})
	}

	e.logger.Debug("search complete", "searched", resp.Searched, "dims", dims, "results", len(resp.Results))
	monitor.Finish(resp.Results)
	return resp, nil
}

// decodeWindow decodes every row, requiring each to match its recorded
// dims and the first row's dims.
func decodeWindow(rows []*core.EmbeddedChunk) ([][]float32, int, error) {
	dims := rows[0].Embedding.Dims
	vectors := make([][]float32, len(rows))
	for i, row := range rows {
		if row.Embedding.Dims != dims {
			return nil, 0, fmt.Errorf("%w: embedding %d records %d dims, window has %d",
				core.ErrDimsMismatch, row.Embedding.ID, row.Embedding.Dims, dims)
		}
		v, err := core.DecodeVector(row.Embedding.Vector, row.Embedding.Dims)
		if err != nil {
			return nil, 0, fmt.Errorf("embedding %d: %w", row.Embedding.ID, err)
		}
		vectors[i] = v
	}
	return vectors, dims, nil
}
