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

// Package sqlite implements the storage interfaces on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/newsrag/storage"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// Store implements storage.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	urls       *URLRepository
	fetches    *FetchRepository
	articles   *ArticleRepository
	chunks     *ChunkRepository
	embeddings *EmbeddingRepository
}

var _ storage.Store = (*Store)(nil)

// Open opens or creates the SQLite database file at path and applies the schema.
func Open(path string) (storage.Store, error) {
	store, err := OpenStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// OpenStore is Open returning the concrete type.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL mode for better concurrency between the crawler and batch jobs
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	s := &Store{db: db, logger: slog.Default().With("component", "sqlite")}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s.urls = &URLRepository{store: s}
	s.fetches = &FetchRepository{store: s}
	s.articles = &ArticleRepository{store: s}
	s.chunks = &ChunkRepository{store: s}
	s.embeddings = &EmbeddingRepository{store: s}
	return s, nil
}

// initSchema creates tables if they don't exist
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		url TEXT NOT NULL UNIQUE,
		url_hash BLOB NOT NULL UNIQUE,
		status TEXT NOT NULL,
		priority INTEGER NOT NULL DEFAULT 0,
		attempts INTEGER NOT NULL DEFAULT 0,
		next_fetch_at INTEGER,
		discovered_from INTEGER REFERENCES urls(id),
		inserted_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_urls_claim ON urls(status, priority DESC, id);

	CREATE TABLE IF NOT EXISTS fetches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url_id INTEGER NOT NULL REFERENCES urls(id),
		http_status INTEGER NOT NULL,
		content_type TEXT NOT NULL,
		final_url TEXT NOT NULL,
		response_ms INTEGER NOT NULL,
		body TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url_id);

	CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL,
		url_id INTEGER NOT NULL UNIQUE REFERENCES urls(id),
		canonical_url TEXT NOT NULL,
		title TEXT NOT NULL,
		published_at INTEGER,
		author TEXT NOT NULL,
		text TEXT NOT NULL,
		text_hash BLOB NOT NULL,
		inserted_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS article_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL REFERENCES articles(id),
		chunk_index INTEGER NOT NULL,
		chunk_text TEXT NOT NULL,
		chunk_hash BLOB NOT NULL UNIQUE,
		UNIQUE (article_id, chunk_index)
	);

	CREATE TABLE IF NOT EXISTS embeddings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id INTEGER NOT NULL REFERENCES article_chunks(id),
		model TEXT NOT NULL,
		dims INTEGER NOT NULL,
		vector BLOB NOT NULL,
		UNIQUE (chunk_id, model)
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model, id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// q returns the transaction carried by ctx, or the database handle.
func (s *Store) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTransaction executes fn within a transaction carried in ctx.
// A call made inside an existing transaction joins it.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op; the deferred call covers error returns and panics.
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", "error", err)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit()
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

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// count runs a single-value COUNT query.
func (s *Store) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.q(ctx).QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
