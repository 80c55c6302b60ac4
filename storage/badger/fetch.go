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

// FetchRepository implements storage.FetchRepository for BadgerDB.
type FetchRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.FetchRepository = (*FetchRepository)(nil)

// NewFetchRepository creates a new FetchRepository.
func NewFetchRepository(backend *Backend) (*FetchRepository, error) {
	idSeq, err := backend.GetSequence(fetchIDSeq)
	if err != nil {
		return nil, err
	}
	return &FetchRepository{backend: backend, idSeq: idSeq}, nil
}

// Close releases the ID sequence.
func (r *FetchRepository) Close() error {
	return r.idSeq.Release()
}

// AddFetch appends a fetch row.
func (r *FetchRepository) AddFetch(ctx context.Context, fetch *core.Fetch) (*core.Fetch, error) {
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		id, err := nextID(r.idSeq)
		if err != nil {
			return err
		}
		fetch.ID = core.ID(id)
		if fetch.FetchedAt.IsZero() {
			fetch.FetchedAt = storage.Now()
		}
		if err := tx.Set(makeIDKey(fetchPrefix, fetch.ID), storage.MarshalFetch(fetch)); err != nil {
			return err
		}
		return tx.Set(makePairKey(fetchURLPrefix, uint64(fetch.URLID), uint64(fetch.ID)), []byte{})
	})
	if err != nil {
		return nil, err
	}
	return fetch, nil
}

// GetFetchesByURL returns every fetch of a URL in insertion order.
func (r *FetchRepository) GetFetchesByURL(ctx context.Context, urlID core.ID) ([]*core.Fetch, error) {
	var results []*core.Fetch
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		var ids []core.ID
		err := iteratePrefix(tx, makeIDKey(fetchURLPrefix, urlID), nil, true, func(item *badger.Item) (bool, error) {
			ids = append(ids, trailingID(item.Key()))
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			f, found, err := readValue(tx, makeIDKey(fetchPrefix, id), storage.UnmarshalFetch)
			if err != nil {
				return err
			}
			if found {
				results = append(results, f)
			}
		}
		return nil
	})
	return results, err
}

// CountFetches returns the total number of fetch rows.
func (r *FetchRepository) CountFetches(ctx context.Context) (int, error) {
	return countPrefix(ctx, r.backend, []byte(fetchPrefix))
}

// countPrefix counts the keys under prefix.
func countPrefix(ctx context.Context, backend *Backend, prefix []byte) (int, error) {
	var n int
	err := backend.view(ctx, func(tx *badger.Txn) error {
		n = 0
		return iteratePrefix(tx, prefix, nil, true, func(*badger.Item) (bool, error) {
			n++
			return true, nil
		})
	})
	return n, err
}
