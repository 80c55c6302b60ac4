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

// Package storage provides the storage abstraction layer for newsrag.
//
// This package defines repository interfaces that decouple storage implementation
// from the crawl, chunking and retrieval logic. Two backends implement them:
// storage/badger (embedded key/value, the default) and storage/sqlite.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - Store: aggregates every repository of one backend
//   - URLRepository: the crawl frontier and its claim transition
//   - FetchRepository: append-only fetch log
//   - ArticleRepository: articles upserted by URL
//   - ChunkRepository: insert-if-absent article chunks
//   - EmbeddingRepository: insert-if-absent vectors keyed by (chunk, model)
//   - Transactor: scoped transactions
//
// # Transactions
//
// WithTransaction places the transaction in the context passed to its callback.
// Every repository method called with that context joins the transaction; called
// with any other context it runs in a transaction of its own.
//
//	err := store.WithTransaction(ctx, func(ctx context.Context) error {
//	    if _, err := store.Fetches().AddFetch(ctx, fetch); err != nil {
//	        return err
//	    }
//	    return store.URLs().UpdateStatus(ctx, id, core.URLStatusFetched, nil)
//	})
//
// # Idempotent inserts
//
// InsertURLs, InsertChunks and InsertEmbeddings skip rows that collide with an
// existing uniqueness key and report how many rows they actually inserted.
// Zero is a success signal, not an error.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
