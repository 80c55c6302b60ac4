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
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// EmbeddingRepository implements storage.EmbeddingRepository for BadgerDB.
type EmbeddingRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.EmbeddingRepository = (*EmbeddingRepository)(nil)

// NewEmbeddingRepository creates a new EmbeddingRepository.
func NewEmbeddingRepository(backend *Backend) (*EmbeddingRepository, error) {
	idSeq, err := backend.GetSequence(embeddingIDSeq)
	if err != nil {
		return nil, err
	}
	return &EmbeddingRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *EmbeddingRepository) Close() error {
	return r.idSeq.Release()
}

// InsertEmbeddings inserts embeddings not yet stored for their (chunk, model).
// Returns storage.ErrNotFound if a referenced chunk doesn't exist.
func (r *EmbeddingRepository) InsertEmbeddings(ctx context.Context, embeddings ...*core.Embedding) (int, error) {
	var inserted int
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		inserted = 0
		for _, e := range embeddings {
			if err := core.ValidateEmbedding(e); err != nil {
				return err
			}
			uniqueKey := makeEmbeddingKey(e.Model, e.ChunkID)
			dup, err := exists(tx, uniqueKey)
			if err != nil {
				return err
			}
			if dup {
				continue
			}
			chunkExists, err := exists(tx, makeIDKey(chunkPrefix, e.ChunkID))
			if err != nil {
				return err
			}
			if !chunkExists {
				return fmt.Errorf("chunk %d: %w", e.ChunkID, storage.ErrNotFound)
			}

			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			e.ID = core.ID(id)
			if err := tx.Set(makeIDKey(embeddingPrefix, e.ID), storage.MarshalEmbedding(e)); err != nil {
				return err
			}
			if err := tx.Set(uniqueKey, storage.MarshalID(e.ID)); err != nil {
				return err
			}
			if err := tx.Set(makeEmbeddingModelKey(e.Model, e.ID), []byte{}); err != nil {
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

// LoadEmbeddings returns embeddings of model joined with chunk and article, by embedding ID.
// Embeddings whose chunk or article is missing are skipped.
func (r *EmbeddingRepository) LoadEmbeddings(ctx context.Context, model string, limit int) ([]*core.EmbeddedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	var results []*core.EmbeddedChunk
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		return iteratePrefix(tx, makeModelPrefix(embeddingModelPrefix, model), nil, true, func(item *badger.Item) (bool, error) {
			ec, err := joinEmbedding(tx, trailingID(item.Key()))
			if err != nil {
				return false, err
			}
			if ec != nil {
				results = append(results, ec)
			}
			return len(results) < limit, nil
		})
	})
	return results, err
}

// joinEmbedding reads an embedding with its chunk and article. It returns nil
// when any of the three records is missing.
func joinEmbedding(tx *badger.Txn, id core.ID) (*core.EmbeddedChunk, error) {
	e, found, err := readValue(tx, makeIDKey(embeddingPrefix, id), storage.UnmarshalEmbedding)
	if err != nil || !found {
		return nil, err
	}
	c, found, err := readValue(tx, makeIDKey(chunkPrefix, e.ChunkID), storage.UnmarshalChunk)
	if err != nil || !found {
		return nil, err
	}
	a, found, err := readValue(tx, makeIDKey(articlePrefix, c.ArticleID), storage.UnmarshalArticle)
	if err != nil || !found {
		return nil, err
	}
	return &core.EmbeddedChunk{
		Embedding:    *e,
		ArticleID:    a.ID,
		ChunkIndex:   c.ChunkIndex,
		ChunkText:    c.ChunkText,
		Title:        a.Title,
		CanonicalURL: a.CanonicalURL,
		PublishedAt:  a.PublishedAt,
	}, nil
}

// CountEmbeddings returns the number of embeddings under model, or all when model is empty.
func (r *EmbeddingRepository) CountEmbeddings(ctx context.Context, model string) (int, error) {
	if model == "" {
		return countPrefix(ctx, r.backend, []byte(embeddingPrefix))
	}
	return countPrefix(ctx, r.backend, makeModelPrefix(embeddingModelPrefix, model))
}
