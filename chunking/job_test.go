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

package chunking

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addArticle(t *testing.T, store storage.Store, address, text string) *core.Article {
	t.Helper()
	ctx := context.Background()
	u := &core.URL{URL: address, Status: core.URLStatusFetched}
	_, err := store.URLs().InsertURLs(ctx, u)
	require.NoError(t, err)
	a, err := store.Articles().UpsertArticle(ctx, &core.Article{
		URLID:        u.ID,
		CanonicalURL: address,
		Title:        "Antraštė",
		Text:         text,
	})
	require.NoError(t, err)
	return a
}

func longText() string {
	var paras []string
	for i := 0; i < 5; i++ {
		paras = append(paras, strings.Repeat(string(rune('a'+i)), 600))
	}
	return strings.Join(paras, "\r\n\r\n\r\n")
}

func TestJob_Run(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	long := addArticle(t, store, "https://www.lrt.lt/naujienos/lietuvoje/1", longText())
	short := addArticle(t, store, "https://www.lrt.lt/naujienos/lietuvoje/2", "Trumpa žinia.\n\nAntra pastraipa.")
	addArticle(t, store, "https://www.lrt.lt/naujienos/lietuvoje/3", "")

	var out bytes.Buffer
	job, err := NewJob(store, nil, &out)
	require.NoError(t, err)

	stats, err := job.Run(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, Stats{ArticlesProcessed: 2, ChunksCreated: 4, ChunksInserted: 4}, stats)
	assert.Contains(t, out.String(), "articles: 2/2")

	chunks, err := store.Chunks().GetChunksByArticle(ctx, long.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, core.ChunkHash(long.ID, i, c.ChunkText), c.ChunkHash)
	}

	chunks, err = store.Chunks().GetChunksByArticle(ctx, short.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Trumpa žinia.\nAntra pastraipa.", chunks[0].ChunkText)

	t.Run("second run is a no-op", func(t *testing.T) {
		stats, err := job.Run(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)

		n, err := store.Chunks().CountChunks(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestJob_RunRespectsLimit(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	first := addArticle(t, store, "https://www.lrt.lt/naujienos/verslas/1", "Pirmas.")
	addArticle(t, store, "https://www.lrt.lt/naujienos/verslas/2", "Antras.")

	job, err := NewJob(store, nil, nil)
	require.NoError(t, err)

	stats, err := job.Run(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ArticlesProcessed)

	chunks, err := store.Chunks().GetChunksByArticle(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestJob_ReinsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	a := addArticle(t, store, "https://www.lrt.lt/naujienos/pasaulyje/1", "Tekstas.")

	chunks := Build(a.ID, []string{"Tekstas."})
	n, err := store.Chunks().InsertChunks(ctx, chunks...)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.Chunks().InsertChunks(ctx, Build(a.ID, []string{"Tekstas."})...)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestNewJob_InvalidConfig(t *testing.T) {
	_, err := NewJob(setupStore(t), &Config{TargetChars: 10, MaxChars: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuild(t *testing.T) {
	chunks := Build(7, []string{"a", "b"})
	require.Len(t, chunks, 2)
	assert.Equal(t, core.ID(7), chunks[1].ArticleID)
	assert.Equal(t, 1, chunks[1].ChunkIndex)
	assert.NotEqual(t, chunks[0].ChunkHash, chunks[1].ChunkHash)
}
