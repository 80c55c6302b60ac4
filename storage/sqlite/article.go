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

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

const articleColumns = `id, source_id, url_id, canonical_url, title, published_at, author, text, text_hash, inserted_at, updated_at`

// ArticleRepository implements storage.ArticleRepository for SQLite.
type ArticleRepository struct {
	store *Store
}

var _ storage.ArticleRepository = (*ArticleRepository)(nil)

// UpsertArticle inserts or overwrites the article of a URL.
func (r *ArticleRepository) UpsertArticle(ctx context.Context, article *core.Article) (*core.Article, error) {
	now := storage.Now()
	article.TextHash = core.HashContent(article.Text)
	if article.SourceID == 0 {
		article.SourceID = core.DefaultSourceID
	}

	query := `
	INSERT INTO articles (
		source_id, url_id, canonical_url, title, published_at, author, text, text_hash, inserted_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(url_id) DO UPDATE SET
		source_id = excluded.source_id,
		canonical_url = excluded.canonical_url,
		title = excluded.title,
		published_at = excluded.published_at,
		author = excluded.author,
		text = excluded.text,
		text_hash = excluded.text_hash,
		updated_at = excluded.updated_at
	RETURNING id, inserted_at
	`

	var insertedAt int64
	err := r.store.q(ctx).QueryRowContext(ctx, query,
		article.SourceID, article.URLID, article.CanonicalURL, article.Title,
		toNullMicro(article.PublishedAt), article.Author, article.Text, article.TextHash[:],
		toMicro(now), toMicro(now),
	).Scan(&article.ID, &insertedAt)
	if err != nil {
		return nil, err
	}
	article.InsertedAt = fromMicro(insertedAt)
	article.UpdatedAt = now
	return article, nil
}

// GetArticle retrieves an article by ID.
func (r *ArticleRepository) GetArticle(ctx context.Context, id core.ID) (*core.Article, error) {
	row := r.store.q(ctx).QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	return notFound(scanArticle(row))
}

// GetArticleByURL retrieves the article extracted from a URL.
func (r *ArticleRepository) GetArticleByURL(ctx context.Context, urlID core.ID) (*core.Article, error) {
	row := r.store.q(ctx).QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE url_id = ?`, urlID)
	return notFound(scanArticle(row))
}

// ListArticlesWithoutChunks returns un-chunked articles with text, by ID.
func (r *ArticleRepository) ListArticlesWithoutChunks(ctx context.Context, limit int) ([]*core.Article, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.store.q(ctx).QueryContext(ctx, `
	SELECT `+prefixed("a.", articleColumns)+`
	FROM articles a
	LEFT JOIN article_chunks c ON c.article_id = a.id
	WHERE c.id IS NULL AND a.text <> ''
	ORDER BY a.id
	LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*core.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// CountArticles returns the total number of articles.
func (r *ArticleRepository) CountArticles(ctx context.Context) (int, error) {
	return r.store.count(ctx, `SELECT COUNT(*) FROM articles`)
}

func scanArticle(s scanner) (*core.Article, error) {
	var (
		a           core.Article
		publishedAt sql.NullInt64
		hash        []byte
		insertedAt  int64
		updatedAt   int64
	)
	err := s.Scan(&a.ID, &a.SourceID, &a.URLID, &a.CanonicalURL, &a.Title, &publishedAt,
		&a.Author, &a.Text, &hash, &insertedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	a.PublishedAt = fromNullMicro(publishedAt)
	a.TextHash, _ = core.HashFromBytes(hash)
	a.InsertedAt = fromMicro(insertedAt)
	a.UpdatedAt = fromMicro(updatedAt)
	return &a, nil
}
