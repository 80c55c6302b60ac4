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

// ArticleRepository implements storage.ArticleRepository for BadgerDB.
type ArticleRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// NewArticleRepository creates a new ArticleRepository.
func NewArticleRepository(backend *Backend) (*ArticleRepository, error) {
	idSeq, err := backend.GetSequence(articleIDSeq)
	if err != nil {
		return nil, err
	}
	return &ArticleRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *ArticleRepository) Close() error {
	return r.idSeq.Release()
}

// UpsertArticle inserts or overwrites the article of a URL.
func (r *ArticleRepository) UpsertArticle(ctx context.Context, article *core.Article) (*core.Article, error) {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		now := storage.Now()
		article.TextHash = core.HashContent(article.Text)
		if article.SourceID == 0 {
			article.SourceID = core.DefaultSourceID
		}

		existingID, found, err := readValue(tx, makeIDKey(articleURLPrefix, article.URLID), storage.UnmarshalID)
		if err != nil {
			return err
		}
		if found {
			old, err := r.mustRead(tx, existingID)
			if err != nil {
				return err
			}
			article.ID = old.ID
			article.InsertedAt = old.InsertedAt
		} else {
			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			article.ID = core.ID(id)
			article.InsertedAt = now
			if err := tx.Set(makeIDKey(articleURLPrefix, article.URLID), storage.MarshalID(article.ID)); err != nil {
				return err
			}
		}
		article.UpdatedAt = now
		return tx.Set(makeIDKey(articlePrefix, article.ID), storage.MarshalArticle(article))
	})
	if err != nil {
		return nil, err
	}
	return article, nil
}

// GetArticle retrieves an article by ID.
func (r *ArticleRepository) GetArticle(ctx context.Context, id core.ID) (*core.Article, error) {
	var result *core.Article
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = r.mustRead(tx, id)
		return err
	})
	return result, err
}

// GetArticleByURL retrieves the article extracted from a URL.
func (r *ArticleRepository) GetArticleByURL(ctx context.Context, urlID core.ID) (*core.Article, error) {
	var result *core.Article
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		id, found, err := readValue(tx, makeIDKey(articleURLPrefix, urlID), storage.UnmarshalID)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNotFound
		}
		result, err = r.mustRead(tx, id)
		return err
	})
	return result, err
}

// ListArticlesWithoutChunks returns un-chunked articles with text, by ID.
// Chunk indexes are contiguous from zero, so an article has chunks exactly
// when its index-0 chunk key exists.
func (r *ArticleRepository) ListArticlesWithoutChunks(ctx context.Context, limit int) ([]*core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	var results []*core.Article
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		return iteratePrefix(tx, []byte(articlePrefix), nil, false, func(item *badger.Item) (bool, error) {
			var a *core.Article
			err := item.Value(func(val []byte) error {
				var err error
				a, err = storage.UnmarshalArticle(val)
				return err
			})
			if err != nil {
				return false, err
			}
			if a.Text == "" {
				return true, nil
			}
			chunked, err := exists(tx, makePairKey(chunkArticlePrefix, uint64(a.ID), 0))
			if err != nil {
				return false, err
			}
			if !chunked {
				results = append(results, a)
			}
			return len(results) < limit, nil
		})
	})
	return results, err
}

// CountArticles returns the total number of articles.
func (r *ArticleRepository) CountArticles(ctx context.Context) (int, error) {
	return countPrefix(ctx, r.backend, []byte(articlePrefix))
}

func (r *ArticleRepository) mustRead(tx *badger.Txn, id core.ID) (*core.Article, error) {
	a, found, err := readValue(tx, makeIDKey(articlePrefix, id), storage.UnmarshalArticle)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return a, nil
}
