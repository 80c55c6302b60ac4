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
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

const urlColumns = `id, source_id, url, url_hash, status, priority, attempts, next_fetch_at, discovered_from, inserted_at`

// URLRepository implements storage.URLRepository for SQLite.
type URLRepository struct {
	store *Store
}

var _ storage.URLRepository = (*URLRepository)(nil)

// ResetFetching moves every fetching URL back to queued.
func (r *URLRepository) ResetFetching(ctx context.Context) (int, error) {
	res, err := r.store.q(ctx).ExecContext(ctx,
		`UPDATE urls SET status = ? WHERE status = ?`,
		core.URLStatusQueued, core.URLStatusFetching)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// NextQueued returns due queued URLs matching roots in claim order.
func (r *URLRepository) NextQueued(ctx context.Context, now time.Time, roots []string, limit int) ([]*core.URL, error) {
	if limit <= 0 || len(roots) == 0 {
		return nil, nil
	}

	args := []any{core.URLStatusQueued, toMicro(now)}
	clauses := make([]string, len(roots))
	for i, root := range roots {
		clauses[i] = "substr(url, 1, ?) = ?"
		args = append(args, utf8.RuneCountInString(root), root)
	}
	args = append(args, limit)

	query := `SELECT ` + urlColumns + ` FROM urls
	WHERE status = ?
	  AND (next_fetch_at IS NULL OR next_fetch_at <= ?)
	  AND (` + strings.Join(clauses, " OR ") + `)
	ORDER BY priority DESC, id ASC
	LIMIT ?`

	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.URL
	for rows.Next() {
		u, err := scanURL(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// TransitionToFetching moves a URL to fetching only while it is still queued.
// The conditional UPDATE makes the affected-row count the race signal.
func (r *URLRepository) TransitionToFetching(ctx context.Context, id core.ID) (int, error) {
	res, err := r.store.q(ctx).ExecContext(ctx,
		`UPDATE urls SET status = ?, attempts = attempts + 1 WHERE id = ? AND status = ?`,
		core.URLStatusFetching, id, core.URLStatusQueued)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// InsertURLs inserts URLs whose hash is not yet known.
func (r *URLRepository) InsertURLs(ctx context.Context, urls ...*core.URL) (int, error) {
	var inserted int
	err := r.store.WithTransaction(ctx, func(ctx context.Context) error {
		inserted = 0
		now := storage.Now()
		for _, u := range urls {
			if u.Status == "" {
				u.Status = core.URLStatusQueued
			}
			if err := core.ValidateURL(u); err != nil {
				return err
			}
			u.URLHash = core.HashURL(u.URL)
			if u.SourceID == 0 {
				u.SourceID = core.DefaultSourceID
			}
			insertedAt := u.InsertedAt
			if insertedAt.IsZero() {
				insertedAt = now
			}

			var discoveredFrom sql.NullInt64
			if u.DiscoveredFrom != nil {
				discoveredFrom = sql.NullInt64{Int64: int64(*u.DiscoveredFrom), Valid: true}
			}
			res, err := r.store.q(ctx).ExecContext(ctx, `
			INSERT OR IGNORE INTO urls (source_id, url, url_hash, status, priority, attempts, next_fetch_at, discovered_from, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				u.SourceID, u.URL, u.URLHash[:], u.Status, u.Priority, u.Attempts,
				toNullMicro(u.NextFetchAt), discoveredFrom, toMicro(insertedAt))
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
			u.ID = core.ID(id)
			u.InsertedAt = insertedAt
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
	res, err := r.store.q(ctx).ExecContext(ctx,
		`UPDATE urls SET status = ?, next_fetch_at = ? WHERE id = ?`,
		status, toNullMicro(nextFetchAt), id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetURL retrieves a URL by ID.
func (r *URLRepository) GetURL(ctx context.Context, id core.ID) (*core.URL, error) {
	row := r.store.q(ctx).QueryRowContext(ctx, `SELECT `+urlColumns+` FROM urls WHERE id = ?`, id)
	return notFound(scanURL(row))
}

// FindURL retrieves a URL by its address.
func (r *URLRepository) FindURL(ctx context.Context, address string) (*core.URL, error) {
	hash := core.HashURL(address)
	row := r.store.q(ctx).QueryRowContext(ctx, `SELECT `+urlColumns+` FROM urls WHERE url_hash = ?`, hash[:])
	return notFound(scanURL(row))
}

// CountByStatus returns the number of URLs in each status.
func (r *URLRepository) CountByStatus(ctx context.Context) (map[core.URLStatus]int, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM urls GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[core.URLStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[core.URLStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanURL(s scanner) (*core.URL, error) {
	var (
		u              core.URL
		hash           []byte
		status         string
		nextFetchAt    sql.NullInt64
		discoveredFrom sql.NullInt64
		insertedAt     int64
	)
	err := s.Scan(&u.ID, &u.SourceID, &u.URL, &hash, &status, &u.Priority, &u.Attempts,
		&nextFetchAt, &discoveredFrom, &insertedAt)
	if err != nil {
		return nil, err
	}
	u.URLHash, _ = core.HashFromBytes(hash)
	u.Status = core.URLStatus(status)
	u.NextFetchAt = fromNullMicro(nextFetchAt)
	if discoveredFrom.Valid {
		id := core.ID(discoveredFrom.Int64)
		u.DiscoveredFrom = &id
	}
	u.InsertedAt = fromMicro(insertedAt)
	return &u, nil
}

// notFound maps sql.ErrNoRows to storage.ErrNotFound.
func notFound[T any](v T, err error) (T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, storage.ErrNotFound
	}
	return v, err
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func toMicro(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicro(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func toNullMicro(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

func fromNullMicro(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMicro(v.Int64)
	return &t
}
