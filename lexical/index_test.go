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

package lexical

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (storage.Store, []*core.Chunk) {
	t.Helper()
	ctx := context.Background()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	articles := []struct {
		url    string
		title  string
		chunks []string
	}{
		{
			"https://www.lrt.lt/naujienos/verslas/2/1/infliacija",
			"Infliacija lėtėja",
			[]string{"Metinė infliacija sulėtėjo iki trijų procentų.", "Degalų kainos stabilizavosi."},
		},
		{
			"https://www.lrt.lt/naujienos/lietuvoje/2/2/seimas",
			"Seimas posėdžiauja",
			[]string{"Seimas svarstė biudžeto projektą."},
		},
	}

	var all []*core.Chunk
	for _, a := range articles {
		u := &core.URL{URL: a.url, Status: core.URLStatusFetched}
		_, err := store.URLs().InsertURLs(ctx, u)
		require.NoError(t, err)
		article, err := store.Articles().UpsertArticle(ctx, &core.Article{
			URLID:        u.ID,
			CanonicalURL: a.url,
			Title:        a.title,
			Text:         strings.Join(a.chunks, "\n\n"),
		})
		require.NoError(t, err)

		for i, text := range a.chunks {
			c := &core.Chunk{ArticleID: article.ID, ChunkIndex: i, ChunkText: text}
			_, err := store.Chunks().InsertChunks(ctx, c)
			require.NoError(t, err)
			all = append(all, c)
		}
	}
	return store, all
}

func TestIndex_IndexChunksAndSearch(t *testing.T) {
	store, chunks := setupStore(t)
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()

	n, err := idx.IndexChunks(context.Background(), store, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)

	hits, err := idx.Search("biudžeto", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	hit := hits[0]
	assert.Equal(t, chunks[2].ID, hit.ChunkID)
	assert.Equal(t, chunks[2].ArticleID, hit.ArticleID)
	assert.Equal(t, "Seimas posėdžiauja", hit.Title)
	assert.Equal(t, "https://www.lrt.lt/naujienos/lietuvoje/2/2/seimas", hit.URL)
	assert.Greater(t, hit.Score, 0.0)

	var fragments []string
	for _, f := range hit.Fragments {
		fragments = append(fragments, f...)
	}
	assert.Contains(t, strings.Join(fragments, " "), "<mark>")

	t.Run("title terms match every chunk of the article", func(t *testing.T) {
		hits, err := idx.Search("lėtėja", 10)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Equal(t, chunks[0].ArticleID, h.ArticleID)
		}
	})

	t.Run("no match", func(t *testing.T) {
		hits, err := idx.Search("krepšinis", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("reindexing overwrites", func(t *testing.T) {
		n, err := idx.IndexChunks(context.Background(), store, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		count, err := idx.Count()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), count)
	})
}

func TestOpen_Persistent(t *testing.T) {
	store, _ := setupStore(t)
	path := filepath.Join(t.TempDir(), "chunks.bleve")

	idx, err := Open(path)
	require.NoError(t, err)
	_, err = idx.IndexChunks(context.Background(), store, 10)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	count, err := reopened.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestIndexChunks_Cancelled(t *testing.T) {
	store, _ := setupStore(t)
	idx, err := Open("")
	require.NoError(t, err)
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = idx.IndexChunks(ctx, store, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
