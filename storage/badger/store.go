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
	"errors"

	"github.com/poiesic/newsrag/storage"
)

// Store implements storage.Store on a single BadgerDB backend.
type Store struct {
	backend    *Backend
	urls       *URLRepository
	fetches    *FetchRepository
	articles   *ArticleRepository
	chunks     *ChunkRepository
	embeddings *EmbeddingRepository
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates a BadgerDB store in the directory at path.
func Open(path string, opts ...Option) (storage.Store, error) {
	backend, err := OpenBackend(path, false, opts...)
	if err != nil {
		return nil, err
	}
	store, err := NewStore(backend)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// NewStore creates every repository on backend. The store owns the backend
// and closes it on Close.
func NewStore(backend *Backend) (*Store, error) {
	s := &Store{backend: backend}
	var err error
	if s.urls, err = NewURLRepository(backend); err != nil {
		return nil, s.abort(err)
	}
	if s.fetches, err = NewFetchRepository(backend); err != nil {
		return nil, s.abort(err)
	}
	if s.articles, err = NewArticleRepository(backend); err != nil {
		return nil, s.abort(err)
	}
	if s.chunks, err = NewChunkRepository(backend); err != nil {
		return nil, s.abort(err)
	}
	if s.embeddings, err = NewEmbeddingRepository(backend); err != nil {
		return nil, s.abort(err)
	}
	return s, nil
}

func (s *Store) abort(cause error) error {
	return errors.Join(cause, s.Close())
}

// URLs returns the frontier repository.
func (s *Store) URLs() storage.URLRepository { return s.urls }

// Fetches returns the fetch log repository.
func (s *Store) Fetches() storage.FetchRepository { return s.fetches }

// Articles returns the article repository.
func (s *Store) Articles() storage.ArticleRepository { return s.articles }

// Chunks returns the chunk repository.
func (s *Store) Chunks() storage.ChunkRepository { return s.chunks }

// Embeddings returns the embedding repository.
func (s *Store) Embeddings() storage.EmbeddingRepository { return s.embeddings }

// WithTransaction delegates to the backend.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.backend.WithTransaction(ctx, fn)
}

// Close releases every ID sequence, then closes the backend.
func (s *Store) Close() error {
	var errs []error
	if s.urls != nil {
		errs = append(errs, s.urls.Close())
	}
	if s.fetches != nil {
		errs = append(errs, s.fetches.Close())
	}
	if s.articles != nil {
		errs = append(errs, s.articles.Close())
	}
	if s.chunks != nil {
		errs = append(errs, s.chunks.Close())
	}
	if s.embeddings != nil {
		errs = append(errs, s.embeddings.Close())
	}
	if !s.backend.IsClosed() {
		errs = append(errs, s.backend.Close())
	}
	return errors.Join(errs...)
}
