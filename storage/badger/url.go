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
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// URLRepository implements storage.URLRepository for BadgerDB.
//
// Queued and fetching URLs are mirrored in index key spaces so claim selection
// and crash recovery only visit rows in those states.
type URLRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.URLRepository = (*URLRepository)(nil)

// NewURLRepository creates a new URLRepository.
func NewURLRepository(backend *Backend) (*URLRepository, error) {
	idSeq, err := backend.GetSequence(urlIDSeq)
	if err != nil {
		return nil, err
	}
	return &URLRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *URLRepository) Close() error {
	return r.idSeq.Release()
}

// ResetFetching moves every fetching URL back to queued.
func (r *URLRepository) ResetFetching(ctx context.Context) (int, error) {
	var reset int
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		reset = 0
		var ids []core.ID
		err := iteratePrefix(tx, []byte(urlFetchingPrefix), nil, true, func(item *badger.Item) (bool, error) {
			ids = append(ids, trailingID(item.Key()))
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			u, err := r.mustRead(tx, id)
			if err != nil {
				return err
			}
			old := *u
			u.Status = core.URLStatusQueued
			if err := r.write(tx, u, &old); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	return reset, err
}

// NextQueued returns due queued URLs matching roots in claim order.
func (r *URLRepository) NextQueued(ctx context.Context, now time.Time, roots []string, limit int) ([]*core.URL, error) {
	if limit <= 0 || len(roots) == 0 {
		return nil, nil
	}
	var results []*core.URL
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		results = nil
		var ids []core.ID
		err := iteratePrefix(tx, []byte(urlQueuePrefix), nil, true, func(item *badger.Item) (bool, error) {
			ids = append(ids, trailingID(item.Key()))
			return true, nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			u, err := r.mustRead(tx, id)
			if err != nil {
				return err
			}
			if !u.IsDue(now) || !hasAnyPrefix(u.URL, roots) {
				continue
			}
			results = append(results, u)
			if len(results) >= limit {
				break
			}
		}
		return nil
	})
	return results, err
}

// TransitionToFetching moves a queued URL to fetching.
// Outside a caller's transaction a commit conflict means another claimer
// transitioned the row first, which is reported as zero rows affected.
func (r *URLRepository) TransitionToFetching(ctx context.Context, id core.ID) (int, error) {
	var affected int
	err := r.backend.updateOnce(ctx, func(tx *badger.Txn) error {
		affected = 0
		u, err := r.mustRead(tx, id)
		if err != nil {
			return err
		}
		if u.Status != core.URLStatusQueued {
			return nil
		}
		old := *u
		u.Status = core.URLStatusFetching
		u.Attempts++
		if err := r.write(tx, u, &old); err != nil {
			return err
		}
		affected = 1
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return affected, nil
}

// InsertURLs inserts URLs whose hash is not yet known.
func (r *URLRepository) InsertURLs(ctx context.Context, urls ...*core.URL) (int, error) {
	var inserted int
	err := r.backend.update(ctx, func(tx *badger.Txn) error {
		inserted = 0
		for _, u := range urls {
			if u.Status == "" {
				u.Status = core.URLStatusQueued
			}
			if err := core.ValidateURL(u); err != nil {
				return err
			}
			u.URLHash = core.HashURL(u.URL)

			found, err := exists(tx, makeHashKey(urlHashPrefix, u.URLHash))
			if err != nil {
				return err
			}
			if found {
				continue
			}

			id, err := nextID(r.idSeq)
			if err != nil {
				return err
			}
			u.ID = core.ID(id)
			if u.SourceID == 0 {
				u.SourceID = core.DefaultSourceID
			}
			if u.InsertedAt.IsZero() {
				u.InsertedAt = storage.Now()
			}
			if err := tx.Set(makeHashKey(urlHashPrefix, u.URLHash), storage.MarshalID(u.ID)); err != nil {
				return err
			}
			if err := r.write(tx, u, nil); err != nil {
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

// UpdateStatus sets the status and next fetch time of a URL.
func (r *URLRepository) UpdateStatus(ctx context.Context, id core.ID, status core.URLStatus, nextFetchAt *time.Time) error {
	if err := core.ValidateURLStatus(status); err != nil {
		return err
	}
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		u, err := r.mustRead(tx, id)
		if err != nil {
			return err
		}
		old := *u
		u.Status = status
		u.NextFetchAt = nextFetchAt
		return r.write(tx, u, &old)
	})
}

// GetURL retrieves a URL by ID.
func (r *URLRepository) GetURL(ctx context.Context, id core.ID) (*core.URL, error) {
	var result *core.URL
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = r.mustRead(tx, id)
		return err
	})
	return result, err
}

// FindURL retrieves a URL by its address.
func (r *URLRepository) FindURL(ctx context.Context, address string) (*core.URL, error) {
	var result *core.URL
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		id, found, err := readValue(tx, makeHashKey(urlHashPrefix, core.HashURL(address)), storage.UnmarshalID)
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

// CountByStatus returns the number of URLs in each status.
func (r *URLRepository) CountByStatus(ctx context.Context) (map[core.URLStatus]int, error) {
	counts := make(map[core.URLStatus]int)
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		clear(counts)
		return iteratePrefix(tx, []byte(urlPrefix), nil, false, func(item *badger.Item) (bool, error) {
			return true, item.Value(func(val []byte) error {
				u, err := storage.UnmarshalURL(val)
				if err != nil {
					return err
				}
				counts[u.Status]++
				return nil
			})
		})
	})
	return counts, err
}

// mustRead reads a URL record, returning storage.ErrNotFound when absent.
func (r *URLRepository) mustRead(tx *badger.Txn, id core.ID) (*core.URL, error) {
	u, found, err := readValue(tx, makeIDKey(urlPrefix, id), storage.UnmarshalURL)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, storage.ErrNotFound
	}
	return u, nil
}

// write stores a URL record and moves its state index entries from old to u.
func (r *URLRepository) write(tx *badger.Txn, u, old *core.URL) error {
	if old != nil {
		switch old.Status {
		case core.URLStatusQueued:
			if err := tx.Delete(makeQueueKey(old.Priority, old.ID)); err != nil {
				return err
			}
		case core.URLStatusFetching:
			if err := tx.Delete(makeIDKey(urlFetchingPrefix, old.ID)); err != nil {
				return err
			}
		}
	}
	switch u.Status {
	case core.URLStatusQueued:
		if err := tx.Set(makeQueueKey(u.Priority, u.ID), []byte{}); err != nil {
			return err
		}
	case core.URLStatusFetching:
		if err := tx.Set(makeIDKey(urlFetchingPrefix, u.ID), []byte{}); err != nil {
			return err
		}
	}
	return tx.Set(makeIDKey(urlPrefix, u.ID), storage.MarshalURL(u))
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
