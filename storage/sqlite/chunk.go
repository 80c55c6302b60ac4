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
	"strings"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

const chunkColumns = `id, article_id, chunk_index, chunk_text, chunk_hash`

// ChunkRepository implements storage.ChunkRepository for SQLite.
type ChunkRepository struct {
	store *Store
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// InsertChunks inserts chunks, ignoring those that collide on hash or (article, index).
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks ...*core.Chunk) (int, error) {
	var inserted int
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		inserted = 0
		for _, c := range chunks {
			if err := core.ValidateChunk(c); err != nil {
				return err
			}
			if c.ChunkHash.IsZero() {
				c.ChunkHash = core.ChunkHash(c.ArticleID, c.ChunkIndex, c.ChunkText)
			}
			res, err := r.store.q(ctx).ExecContext(ctx, `
			INSERT OR IGNORE INTO article_chunks (article_id, chunk_index, chunk_text, chunk_hash)
			VALUES (?, ?, ?, ?)`,
				c.ArticleID, c.ChunkIndex, c.ChunkText, c.ChunkHash[:])
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
			c.ID = core.ID(id)
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetChunk retrieves a chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	row := r.store.q(ctx).QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM article_chunks WHERE id = ?`, id)
	return notFound(scanChunk(row))
}

// GetChunksByArticle returns the chunks of an article by chunk index.
func (r *ChunkRepository) GetChunksByArticle(ctx context.Context, articleID core.ID) ([]*core.Chunk, error) {
	return r.list(ctx, `SELECT `+chunkColumns+` FROM article_chunks WHERE article_id = ? ORDER BY chunk_index`, articleID)
}

// ListChunksWithoutEmbedding returns chunks lacking an embedding under model, by ID.
func (r *ChunkRepository) ListChunksWithoutEmbedding(ctx context.Context, model string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.list(ctx, `
	SELECT `+prefixed("c.", chunkColumns)+`
	FROM article_chunks c
	LEFT JOIN embeddings e ON e.chunk_id = c.id AND e.model = ?
	WHERE e.id IS NULL AND c.chunk_text <> ''
	ORDER BY c.id
	LIMIT ?`, model, limit)
}

// ListChunks returns chunks with ID greater than afterID, by ID.
func (r *ChunkRepository) ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	return r.list(ctx, `SELECT `+chunkColumns+` FROM article_chunks WHERE id > ? ORDER BY id LIMIT ?`, afterID, limit)
}

// CountChunks returns the total number of chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	return r.store.count(ctx, `SELECT COUNT(*) FROM article_chunks`)
}

func (r *ChunkRepository) list(ctx context.Context, query string, args ...any) ([]*core.Chunk, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanChunk(s scanner) (*core.Chunk, error) {
	var c core.Chunk
	var hash []byte
	if err := s.Scan(&c.ID, &c.ArticleID, &c.ChunkIndex, &c.ChunkText, &hash); err != nil {
		return nil, err
	}
	c.ChunkHash, _ = core.HashFromBytes(hash)
	return &c, nil
}

// prefixed qualifies every column of a comma-separated list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + c
	}
	return strings.Join(cols, ", ")
}
