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

package storage

import (
	"context"
	"time"

	"github.com/poiesic/newsrag/core"
)

// Transactor runs units of work inside scoped transactions.
type Transactor interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// Repository calls made with the context passed to fn join the transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// URLRepository provides operations over the crawl frontier.
type URLRepository interface {
	// ResetFetching moves every URL left in fetching back to queued.
	// Returns the number of URLs reset.
	ResetFetching(ctx context.Context) (int, error)

	// NextQueued returns queued URLs due at now whose url starts with one of roots,
	// ordered by priority descending then id ascending. Returns at most limit URLs.
	NextQueued(ctx context.Context, now time.Time, roots []string, limit int) ([]*core.URL, error)

	// TransitionToFetching moves a URL from queued to fetching and increments its attempts,
	// but only if it is still queued. Returns the number of rows affected (0 or 1).
	// Zero means another claimer won the race.
	TransitionToFetching(ctx context.Context, id core.ID) (int, error)

	// InsertURLs inserts each URL unless one with the same url hash already exists.
	// Inserted records get ID, URLHash and InsertedAt populated.
	// Returns the number of URLs inserted; skipped duplicates are not an error.
	InsertURLs(ctx context.Context, urls ...*core.URL) (int, error)

	// UpdateStatus sets the status and next fetch time of a URL.
	// Returns ErrNotFound if the URL doesn't exist.
	UpdateStatus(ctx context.Context, id core.ID, status core.URLStatus, nextFetchAt *time.Time) error

	// GetURL retrieves a URL by ID.
	// Returns ErrNotFound if the URL doesn't exist.
	GetURL(ctx context.Context, id core.ID) (*core.URL, error)

	// FindURL retrieves a URL by its address.
	// Returns ErrNotFound if the URL doesn't exist.
	FindURL(ctx context.Context, url string) (*core.URL, error)

	// CountByStatus returns the number of URLs in each status.
	CountByStatus(ctx context.Context) (map[core.URLStatus]int, error)
}

// FetchRepository records fetch attempts. Fetches are append-only.
type FetchRepository interface {
	// AddFetch appends a fetch row, assigning its ID and FetchedAt.
	AddFetch(ctx context.Context, fetch *core.Fetch) (*core.Fetch, error)

	// GetFetchesByURL returns every fetch of a URL in insertion order.
	GetFetchesByURL(ctx context.Context, urlID core.ID) ([]*core.Fetch, error)

	// CountFetches returns the total number of fetch rows.
	CountFetches(ctx context.Context) (int, error)
}

// ArticleRepository provides operations for managing extracted articles.
type ArticleRepository interface {
	// UpsertArticle inserts an article or, if one exists for the same URLID,
	// overwrites its content fields while keeping its ID and InsertedAt.
	// Returns the stored article.
	UpsertArticle(ctx context.Context, article *core.Article) (*core.Article, error)

	// GetArticle retrieves an article by ID.
	// Returns ErrNotFound if the article doesn't exist.
	GetArticle(ctx context.Context, id core.ID) (*core.Article, error)

	// GetArticleByURL retrieves the article extracted from a URL.
	// Returns ErrNotFound if the URL produced no article.
	GetArticleByURL(ctx context.Context, urlID core.ID) (*core.Article, error)

	// ListArticlesWithoutChunks returns articles with non-empty text and no chunks,
	// ordered by ID ascending, up to limit.
	ListArticlesWithoutChunks(ctx context.Context, limit int) ([]*core.Article, error)

	// CountArticles returns the total number of articles.
	CountArticles(ctx context.Context) (int, error)
}

// ChunkRepository provides operations for managing article chunks.
type ChunkRepository interface {
	// InsertChunks inserts each chunk unless a chunk with the same hash, or the same
	// article and index, already exists. Inserted chunks get their ID populated.
	// Returns the number of chunks inserted.
	InsertChunks(ctx context.Context, chunks ...*core.Chunk) (int, error)

	// GetChunk retrieves a chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// GetChunksByArticle returns the chunks of an article ordered by chunk index.
	GetChunksByArticle(ctx context.Context, articleID core.ID) ([]*core.Chunk, error)

	// ListChunksWithoutEmbedding returns chunks with non-empty text that have no
	// embedding under model, ordered by ID ascending, up to limit.
	ListChunksWithoutEmbedding(ctx context.Context, model string, limit int) ([]*core.Chunk, error)

	// ListChunks returns chunks with ID greater than afterID, ordered by ID, up to limit.
	ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error)

	// CountChunks returns the total number of chunks.
	CountChunks(ctx context.Context) (int, error)
}

// EmbeddingRepository provides operations for managing chunk embeddings.
type EmbeddingRepository interface {
	// InsertEmbeddings inserts each embedding unless one exists for the same
	// (ChunkID, Model). Inserted embeddings get their ID populated.
	// Returns the number of embeddings inserted.
	InsertEmbeddings(ctx context.Context, embeddings ...*core.Embedding) (int, error)

	// LoadEmbeddings returns up to limit embeddings of model joined with their chunk
	// and article, ordered by embedding ID ascending. Vectors are returned undecoded.
	LoadEmbeddings(ctx context.Context, model string, limit int) ([]*core.EmbeddedChunk, error)

	// CountEmbeddings returns the number of embeddings under model, or of all
	// embeddings when model is empty.
	CountEmbeddings(ctx context.Context, model string) (int, error)
}

// Store aggregates the repositories of one storage backend.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	Transactor

	URLs() URLRepository
	Fetches() FetchRepository
	Articles() ArticleRepository
	Chunks() ChunkRepository
	Embeddings() EmbeddingRepository

	// Close closes the storage backend and releases resources.
	Close() error
}
