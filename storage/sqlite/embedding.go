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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for SQLite.
type EmbeddingRepository struct {
	store *Store
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// InsertEmbeddings inserts embeddings not yet stored for their (chunk, model).
// Returns storage.ErrNotFound if a referenced chunk doesn't exist.
func (r *EmbeddingRepository) InsertEmbeddings(ctx context.Context, embeddings ...*core.Embedding) (int, error) {
	var inserted int
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		inserted = 0
		for _, e := range embeddings {
			if err := core.ValidateEmbedding(e); err != nil {
				return err
			}
			var one int
			err := r.store.q(ctx).QueryRowContext(ctx, `SELECT 1 FROM article_chunks WHERE id = ?`, e.ChunkID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("chunk %d: %w", e.ChunkID, storage.ErrNotFound)
			}
			if err != nil {
				return err
			}

			res, err := r.store.q(ctx).ExecContext(ctx, `
			INSERT OR IGNORE INTO embeddings (chunk_id, model, dims, vector)
			VALUES (?, ?, ?, ?)`,
				e.ChunkID, e.Model, e.Dims, e.Vector)
			if err != nil {
				return err
			}
			n, err := rowsAffected(res)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			e.ID = core.ID(id)
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// LoadEmbeddings returns embeddings of model joined with chunk and article, by embedding ID.
func (r *EmbeddingRepository) LoadEmbeddings(ctx context.Context, model string, limit int) ([]*core.EmbeddedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.store.q(ctx).QueryContext(ctx, `
	SELECT e.id, e.chunk_id, e.model, e.dims, e.vector,
	       c.article_id, c.chunk_index, c.chunk_text,
	       a.title, a.canonical_url, a.published_at
	FROM embeddings e
	JOIN article_chunks c ON c.id = e.chunk_id
	JOIN articles a ON a.id = c.article_id
	WHERE e.model = ?
	ORDER BY e.id
	LIMIT ?`, model, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.EmbeddedChunk
	for rows.Next() {
		var row core.EmbeddedChunk
		var publishedAt sql.NullInt64
		err := rows.Scan(&row.Embedding.ID, &row.Embedding.ChunkID, &row.Embedding.Model,
			&row.Embedding.Dims, &row.Embedding.Vector,
			&row.ArticleID, &row.ChunkIndex, &row.ChunkText,
			&row.Title, &row.CanonicalURL, &publishedAt)
		if err != nil {
			return nil, err
		}
		row.PublishedAt = fromNullMicro(publishedAt)
		results = append(results, &row)
	}
	return results, rows.Err()
}

// CountEmbeddings returns the number of embeddings under model, or all when model is empty.
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context, model string) (int, error) {
	if model == "" {
		return r.store.count(ctx, `SELECT COUNT(*) FROM embeddings`)
	}
	return r.store.count(ctx, `SELECT COUNT(*) FROM embeddings WHERE model = ?`, model)
}
