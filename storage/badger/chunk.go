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

package badger

import (
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) (*ChunkRepository, error) {
	idSeq, err := backend.GetSequence(chunkIDSeq)
	if err != nil {
		return nil, err
	}
	return &ChunkRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *ChunkRepository) Close() error {
	return r.idSeq.Release()
}

// InsertChunks inserts chunks that collide with neither an existing hash nor
// an existing (article, index) pair.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks ...*core.Chunk) (int, error) {
	var inserted int
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		inserted = 0
		for _, c := range chunks {
			if err := core.ValidateChunk(c); err != nil {
				return err
			}
			if c.ChunkHash.IsZero() {
				c.ChunkHash = core.ChunkHash(c.ArticleID, c.ChunkIndex, c.ChunkText)
			}
			hashKey := makeHashKey(chunkHashPrefix, c.ChunkHash)
			posKey := makePairKey(chunkArticlePrefix, uint64(c.ArticleID), uint64(c.ChunkIndex))

			dup, err := exists(tx, hashKey)
			if err != nil {
				return err
			}
			if !dup {
				if dup, err = exists(tx, posKey); err != nil {
					return err
				}
			}
			if dup {
				continue
			}

			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			c.ID = core.ID(id)
			idBytes := storage.MarshalID(c.ID)
			if err := tx.Set(makeIDKey(chunkPrefix, c.ID), storage.MarshalChunk(c)); err != nil {
				return err
			}
			if err := tx.Set(hashKey, idBytes); err != nil {
				return err
			}
			if err := tx.Set(posKey, idBytes); err != nil {
				return err
			}
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
	var result *core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		c, found, err := readValue(tx, makeIDKey(chunkPrefix, id), storage.UnmarshalChunk)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		result = c
		return nil
	})
	return result, err
}

// GetChunksByArticle returns the chunks of an article by chunk index.
func (r *ChunkRepository) GetChunksByArticle(ctx context.Context, articleID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		var ids []core.ID
		err := iteratePrefix(tx, makeIDKey(chunkArticlePrefix, articleID), nil, false, func(item *badger.Item) (bool, error) {
			return true, item.Value(func(val []byte) error {
				id, err := storage.UnmarshalID(val)
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			})
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			c, found, err := readValue(tx, makeIDKey(chunkPrefix, id), storage.UnmarshalChunk)
			if err != nil {
				return err
			}
			if found {
				results = append(results, c)
			}
		}
		return nil
	})
	return results, err
}

// ListChunksWithoutEmbedding returns chunks lacking an embedding under model, by ID.
func (r *ChunkRepository) ListChunksWithoutEmbedding(ctx context.Context, model string, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	var results []*core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		return r.scan(tx, 0, func(c *core.Chunk) (bool, error) {
			if c.ChunkText == "" {
				return true, nil
			}
			embedded, err := exists(tx, makeEmbeddingKey(model, c.ID))
			if err != nil {
				return false, err
			}
			if !embedded {
				results = append(results, c)
			}
			return len(results) < limit, nil
		})
	})
	return results, err
}

// ListChunks returns chunks with ID greater than afterID, by ID.
func (r *ChunkRepository) ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	var results []*core.Chunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		return r.scan(tx, afterID+1, func(c *core.Chunk) (bool, error) {
			results = append(results, c)
			return len(results) < limit, nil
		})
	})
	return results, err
}

// CountChunks returns the total number of chunks.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	return countPrefix(ctx, r.backend, []byte(chunkPrefix))
}

// scan visits chunks in ID order starting at from.
func (r *ChunkRepository) scan(tx *badger.Txn, from core.ID, fn func(c *core.Chunk) (bool, error)) error {
	return iteratePrefix(tx, []byte(chunkPrefix), makeIDKey(chunkPrefix, from), false, func(item *badger.Item) (bool, error) {
		var c *core.Chunk
		err := item.Value(func(val []byte) error {
			var err error
			c, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return false, err
		}
		return fn(c)
	})
}
