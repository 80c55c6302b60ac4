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

package core

import (
	"time"
)

// ID is a unique identifier for stored entities.
// It is assigned by the store from a per-table sequence and only grows.
type ID uint64

// URLStatus is the frontier state of a URL.
type URLStatus string

const (
	// URLStatusQueued marks a URL waiting to be claimed.
	URLStatusQueued URLStatus = "queued"
	// URLStatusFetching marks a URL claimed by a worker.
	URLStatusFetching URLStatus = "fetching"
	// URLStatusFetched marks a URL whose fetch completed. Terminal for ordinary content.
	URLStatusFetched URLStatus = "fetched"
)

// DefaultSourceID identifies the single whitelisted web source.
const DefaultSourceID = 1

// URL is a frontier entry.
type URL struct {
	ID             ID
	SourceID       int
	URL            string
	URLHash        Hash
	Status         URLStatus
	Priority       int
	Attempts       int
	NextFetchAt    *time.Time // nil means due immediately
	DiscoveredFrom *ID        // nil for seeds
	InsertedAt     time.Time
}

// IsDue reports whether the URL may be fetched at the given time.
func (u *URL) IsDue(now time.Time) bool {
	return u.NextFetchAt == nil || !u.NextFetchAt.After(now)
}

// Fetch records one fetch attempt of a URL. Fetches are append-only.
type Fetch struct {
	ID          ID
	URLID       ID
	HTTPStatus  int
	ContentType string
	FinalURL    string
	ResponseMS  int64
	Body        string
	FetchedAt   time.Time
}

// Article is the extracted content of a page that looks like a news article.
// It is keyed by URLID: a re-fetch overwrites content fields but keeps the ID.
type Article struct {
	ID           ID
	SourceID     int
	URLID        ID
	CanonicalURL string
	Title        string
	PublishedAt  *time.Time
	Author       string
	Text         string
	TextHash     Hash
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// Chunk is a bounded slice of an article's text, the unit of embedding.
// Chunks are immutable once written.
type Chunk struct {
	ID         ID
	ArticleID  ID
	ChunkIndex int
	ChunkText  string
	ChunkHash  Hash
}

// Embedding is the vector of a chunk under a named model.
// Vector holds Dims little-endian float32 values.
type Embedding struct {
	ID      ID
	ChunkID ID
	Model   string
	Dims    int
	Vector  []byte
}

// EmbeddedChunk is an embedding joined with its chunk text and article metadata.
type EmbeddedChunk struct {
	Embedding    Embedding
	ArticleID    ID
	ChunkIndex   int
	ChunkText    string
	Title        string
	CanonicalURL string
	PublishedAt  *time.Time
}
