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

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// FetchRepository implements storage.FetchRepository for SQLite.
type FetchRepository struct {
	store *Store
}

var _ storage.FetchRepository = (*FetchRepository)(nil)

// AddFetch appends a fetch row.
func (r *FetchRepository) AddFetch(ctx context.Context, fetch *core.Fetch) (*core.Fetch, error) {
	if fetch.FetchedAt.IsZero() {
		fetch.FetchedAt = storage.Now()
	}
	res, err := r.store.q(ctx).ExecContext(ctx, `
	INSERT INTO fetches (url_id, http_status, content_type, final_url, response_ms, body, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fetch.URLID, fetch.HTTPStatus, fetch.ContentType, fetch.FinalURL, fetch.ResponseMS,
		fetch.Body, toMicro(fetch.FetchedAt))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	fetch.ID = core.ID(id)
	return fetch, nil
}

// GetFetchesByURL returns every fetch of a URL in insertion order.
func (r *FetchRepository) GetFetchesByURL(ctx context.Context, urlID core.ID) ([]*core.Fetch, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
	SELECT id, url_id, http_status, content_type, final_url, response_ms, body, fetched_at
	FROM fetches WHERE url_id = ? ORDER BY id`, urlID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.Fetch
	for rows.Next() {
		var f core.Fetch
		var fetchedAt int64
		if err := rows.Scan(&f.ID, &f.URLID, &f.HTTPStatus, &f.ContentType, &f.FinalURL,
			&f.ResponseMS, &f.Body, &fetchedAt); err != nil {
			return nil, err
		}
		f.FetchedAt = fromMicro(fetchedAt)
		results = append(results, &f)
	}
	return results, rows.Err()
}

// CountFetches returns the total number of fetch rows.
func (r *FetchRepository) CountFetches(ctx context.Context) (int, error) {
	return r.store.count(ctx, `SELECT COUNT(*) FROM fetches`)
}
