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

// Package storagetest holds a conformance suite every storage.Store backend must pass.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Root is the allowed prefix used by the suite's claim queries.
const Root = "https://www.lrt.lt/naujienos/lietuvoje"

// Factory opens an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

// Run runs the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"InsertURLsIsIdempotent", testInsertURLsIdempotent},
		{"NextQueuedOrderAndFilters", testNextQueued},
		{"NextQueuedNonASCIIRoot", testNextQueuedNonASCIIRoot},
		{"TransitionToFetching", testTransitionToFetching},
		{"ConcurrentTransitionHasOneWinner", testConcurrentTransition},
		{"ResetFetching", testResetFetching},
		{"UpdateStatus", testUpdateStatus},
		{"Fetches", testFetches},
		{"UpsertArticlePreservesIdentity", testUpsertArticle},
		{"ListArticlesWithoutChunks", testArticlesWithoutChunks},
		{"InsertChunksIsIdempotent", testInsertChunks},
		{"ListChunks", testListChunks},
		{"InsertEmbeddingsIsIdempotent", testInsertEmbeddings},
		{"LoadEmbeddings", testLoadEmbeddings},
		{"TransactionRollback", testTransactionRollback},
		{"TransactionCommit", testTransactionCommit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func newURL(address string, priority int) *core.URL {
	return &core.URL{URL: address, Status: core.URLStatusQueued, Priority: priority}
}

func addURLs(t *testing.T, s storage.Store, urls ...*core.URL) {
	t.Helper()
	n, err := s.URLs().InsertURLs(context.Background(), urls...)
	require.NoError(t, err)
	require.Equal(t, len(urls), n)
}

func addArticle(t *testing.T, s storage.Store, address, text string) *core.Article {
	t.Helper()
	ctx := context.Background()
	u := newURL(address, 0)
	addURLs(t, s, u)
	a, err := s.Articles().UpsertArticle(ctx, &core.Article{
		URLID:        u.ID,
		CanonicalURL: address,
		Title:        "Antraštė " + address,
		Author:       "LRT.lt",
		Text:         text,
	})
	require.NoError(t, err)
	return a
}

func addChunks(t *testing.T, s storage.Store, articleID core.ID, texts ...string) []*core.Chunk {
	t.Helper()
	chunks := make([]*core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = &core.Chunk{ArticleID: articleID, ChunkIndex: i, ChunkText: text}
	}
	n, err := s.Chunks().InsertChunks(context.Background(), chunks...)
	require.NoError(t, err)
	require.Equal(t, len(texts), n)
	return chunks
}

func testInsertURLsIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()

	first := newURL(Root+"/1", 0)
	n, err := s.URLs().InsertURLs(ctx, first, newURL(Root+"/1", 5))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "duplicate within one batch is skipped")
	assert.NotZero(t, first.ID)
	assert.Equal(t, core.HashURL(Root+"/1"), first.URLHash)

	n, err = s.URLs().InsertURLs(ctx, newURL(Root+"/1", 0))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	second := newURL(Root+"/2", 0)
	addURLs(t, s, second)
	assert.Greater(t, second.ID, first.ID)

	found, err := s.URLs().FindURL(ctx, Root+"/1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 0, found.Priority)

	_, err = s.URLs().FindURL(ctx, Root+"/missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.URLs().InsertURLs(ctx, newURL("not a url", 0))
	assert.Error(t, err)
}

func testNextQueued(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	low := newURL(Root+"/low", 0)
	high := newURL(Root+"/high", 10)
	highSecond := newURL(Root+"/high-2", 10)
	future := newURL(Root+"/future", 20)
	future.NextFetchAt = &later
	past := newURL(Root+"/past", 1)
	past.NextFetchAt = &earlier
	outside := newURL("https://www.lrt.lt/sportas/1", 99)
	addURLs(t, s, low, high, highSecond, future, past, outside)

	got, err := s.URLs().NextQueued(ctx, now, []string{Root}, 10)
	require.NoError(t, err)

	var ids []core.ID
	for _, u := range got {
		ids = append(ids, u.ID)
	}
	assert.Equal(t, []core.ID{high.ID, highSecond.ID, past.ID, low.ID}, ids)

	got, err = s.URLs().NextQueued(ctx, now, []string{Root}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, high.ID, got[0].ID)

	got, err = s.URLs().NextQueued(ctx, now, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testNextQueuedNonASCIIRoot(t *testing.T, s storage.Store) {
	ctx := context.Background()
	root := "https://www.lrt.lt/naujienos/ūkis"
	inside := newURL(root+"/1", 0)
	sibling := newURL("https://www.lrt.lt/naujienos/ūkininkai/1", 0)
	addURLs(t, s, inside, sibling)

	got, err := s.URLs().NextQueued(ctx, time.Now(), []string{root}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, inside.ID, got[0].ID)
}

func testTransitionToFetching(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := newURL(Root+"/1", 0)
	addURLs(t, s, u)

	n, err := s.URLs().TransitionToFetching(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.URLs().TransitionToFetching(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a URL no longer queued cannot be claimed")

	got, err := s.URLs().GetURL(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetching, got.Status)
	assert.Equal(t, 1, got.Attempts)

	queued, err := s.URLs().NextQueued(ctx, time.Now(), []string{Root}, 10)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func testConcurrentTransition(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := newURL(Root+"/contested", 0)
	addURLs(t, s, u)

	const claimers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.URLs().TransitionToFetching(ctx, u.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			wins += n
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, wins)

	got, err := s.URLs().GetURL(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func testResetFetching(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := newURL(Root+"/a", 0)
	b := newURL(Root+"/b", 0)
	c := newURL(Root+"/c", 0)
	addURLs(t, s, a, b, c)

	for _, u := range []*core.URL{a, b} {
		n, err := s.URLs().TransitionToFetching(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	reset, err := s.URLs().ResetFetching(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reset)

	counts, err := s.URLs().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[core.URLStatusQueued])
	assert.Equal(t, 0, counts[core.URLStatusFetching])

	got, err := s.URLs().GetURL(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts, "reset keeps the attempt count")

	reset, err = s.URLs().ResetFetching(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, reset)
}

func testUpdateStatus(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := newURL(Root+"/1", 10)
	addURLs(t, s, u)

	next := time.Now().UTC().Add(15 * time.Minute).Truncate(time.Microsecond)
	require.NoError(t, s.URLs().UpdateStatus(ctx, u.ID, core.URLStatusQueued, &next))

	got, err := s.URLs().GetURL(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextFetchAt)
	assert.True(t, next.Equal(*got.NextFetchAt))

	due, err := s.URLs().NextQueued(ctx, time.Now(), []string{Root}, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.URLs().NextQueued(ctx, next.Add(time.Second), []string{Root}, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)

	require.NoError(t, s.URLs().UpdateStatus(ctx, u.ID, core.URLStatusFetched, nil))
	counts, err := s.URLs().CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[core.URLStatusFetched])

	err = s.URLs().UpdateStatus(ctx, 9999, core.URLStatusFetched, nil)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	err = s.URLs().UpdateStatus(ctx, u.ID, "failed", nil)
	assert.True(t, errors.Is(err, core.ErrInvalidStatus))
}

func testFetches(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := newURL(Root+"/1", 0)
	addURLs(t, s, u)

	first, err := s.Fetches().AddFetch(ctx, &core.Fetch{URLID: u.ID, HTTPStatus: 200, ContentType: "text/html", FinalURL: u.URL, ResponseMS: 12, Body: "<html></html>"})
	require.NoError(t, err)
	second, err := s.Fetches().AddFetch(ctx, &core.Fetch{URLID: u.ID, HTTPStatus: 200, FinalURL: u.URL, Body: "<html>2</html>"})
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)
	assert.False(t, first.FetchedAt.IsZero())

	fetches, err := s.Fetches().GetFetchesByURL(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, fetches, 2)
	assert.Equal(t, first.ID, fetches[0].ID)
	assert.Equal(t, "text/html", fetches[0].ContentType)
	assert.Equal(t, int64(12), fetches[0].ResponseMS)
	assert.Equal(t, "<html>2</html>", fetches[1].Body)

	n, err := s.Fetches().CountFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func testUpsertArticle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	published := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)

	original := addArticle(t, s, Root+"/1", "Pirmas tekstas.")
	require.NotZero(t, original.ID)
	assert.Equal(t, core.HashContent("Pirmas tekstas."), original.TextHash)

	updated, err := s.Articles().UpsertArticle(ctx, &core.Article{
		URLID:        original.URLID,
		CanonicalURL: Root + "/1",
		Title:        "Nauja antraštė",
		PublishedAt:  &published,
		Author:       "Jonas",
		Text:         "Antras tekstas.",
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, updated.ID)

	got, err := s.Articles().GetArticleByURL(ctx, original.URLID)
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, "Nauja antraštė", got.Title)
	assert.Equal(t, "Jonas", got.Author)
	assert.Equal(t, "Antras tekstas.", got.Text)
	require.NotNil(t, got.PublishedAt)
	assert.True(t, published.Equal(*got.PublishedAt))
	assert.True(t, original.InsertedAt.Equal(got.InsertedAt))

	n, err := s.Articles().CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Articles().GetArticle(ctx, 9999)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testArticlesWithoutChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	chunked := addArticle(t, s, Root+"/chunked", "Tekstas.")
	empty := addArticle(t, s, Root+"/empty", "")
	pending := addArticle(t, s, Root+"/pending", "Laukia.")
	pendingSecond := addArticle(t, s, Root+"/pending-2", "Dar laukia.")
	addChunks(t, s, chunked.ID, "Tekstas.")

	got, err := s.Articles().ListArticlesWithoutChunks(ctx, 10)
	require.NoError(t, err)
	var ids []core.ID
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []core.ID{pending.ID, pendingSecond.ID}, ids)
	assert.NotContains(t, ids, empty.ID)

	got, err = s.Articles().ListArticlesWithoutChunks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func testInsertChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addArticle(t, s, Root+"/1", "Pirmas.\n\nAntras.")
	b := addArticle(t, s, Root+"/2", "Pirmas.")

	chunks := addChunks(t, s, a.ID, "Pirmas.", "Antras.")
	assert.Equal(t, core.ChunkHash(a.ID, 0, "Pirmas."), chunks[0].ChunkHash)

	again := []*core.Chunk{
		{ArticleID: a.ID, ChunkIndex: 0, ChunkText: "Pirmas."},
		{ArticleID: a.ID, ChunkIndex: 1, ChunkText: "Antras."},
	}
	n, err := s.Chunks().InsertChunks(ctx, again...)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Identical text in another article is a different chunk.
	addChunks(t, s, b.ID, "Pirmas.")

	got, err := s.Chunks().GetChunksByArticle(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].ChunkIndex)
	assert.Equal(t, "Antras.", got[1].ChunkText)

	total, err := s.Chunks().CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = s.Chunks().InsertChunks(ctx, &core.Chunk{ArticleID: a.ID, ChunkIndex: 5})
	assert.True(t, errors.Is(err, core.ErrInvalidChunk))
}

func testListChunks(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addArticle(t, s, Root+"/1", "x")
	chunks := addChunks(t, s, a.ID, "vienas", "du", "trys")

	got, err := s.Chunks().ListChunks(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, chunks[0].ID, got[0].ID)

	got, err = s.Chunks().ListChunks(ctx, got[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, chunks[2].ID, got[0].ID)

	one, err := s.Chunks().GetChunk(ctx, chunks[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "du", one.ChunkText)
}

func testInsertEmbeddings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addArticle(t, s, Root+"/1", "x")
	chunks := addChunks(t, s, a.ID, "vienas", "du")
	vec := core.EncodeVector([]float32{1, 0, 0})

	n, err := s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: chunks[0].ID, Model: "m1", Dims: 3, Vector: vec})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: chunks[0].ID, Model: "m1", Dims: 3, Vector: vec})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: chunks[0].ID, Model: "m2", Dims: 3, Vector: vec})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "models coexist for one chunk")

	pending, err := s.Chunks().ListChunksWithoutEmbedding(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, chunks[1].ID, pending[0].ID)

	pending, err = s.Chunks().ListChunksWithoutEmbedding(ctx, "m3", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	count, err := s.Embeddings().CountEmbeddings(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	count, err = s.Embeddings().CountEmbeddings(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: 9999, Model: "m1", Dims: 3, Vector: vec})
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: chunks[1].ID, Model: "m1", Dims: 4, Vector: vec})
	assert.True(t, errors.Is(err, core.ErrDimsMismatch))
}

func testLoadEmbeddings(t *testing.T, s storage.Store) {
	ctx := context.Background()
	a := addArticle(t, s, Root+"/1", "x")
	chunks := addChunks(t, s, a.ID, "vienas", "du", "trys")

	for i, c := range chunks {
		vec := core.EncodeVector([]float32{float32(i), 1})
		_, err := s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: c.ID, Model: "m", Dims: 2, Vector: vec})
		require.NoError(t, err)
	}
	_, err := s.Embeddings().InsertEmbeddings(ctx, &core.Embedding{ChunkID: chunks[0].ID, Model: "other", Dims: 2, Vector: core.EncodeVector([]float32{9, 9})})
	require.NoError(t, err)

	rows, err := s.Embeddings().LoadEmbeddings(ctx, "m", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Less(t, rows[0].Embedding.ID, rows[1].Embedding.ID)
	assert.Equal(t, "vienas", rows[0].ChunkText)
	assert.Equal(t, 1, rows[1].ChunkIndex)
	assert.Equal(t, a.ID, rows[0].ArticleID)
	assert.Equal(t, a.Title, rows[0].Title)
	assert.Equal(t, a.CanonicalURL, rows[0].CanonicalURL)

	v, err := core.DecodeVector(rows[1].Embedding.Vector, rows[1].Embedding.Dims)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 1}, v)

	rows, err = s.Embeddings().LoadEmbeddings(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testTransactionRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.URLs().InsertURLs(ctx, newURL(Root+"/rolled-back", 0)); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = s.URLs().FindURL(ctx, Root+"/rolled-back")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func testTransactionCommit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := newURL(Root+"/1", 0)
	addURLs(t, s, u)

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Fetches().AddFetch(ctx, &core.Fetch{URLID: u.ID, HTTPStatus: 200, FinalURL: u.URL}); err != nil {
			return err
		}
		// Reads inside the transaction see its own writes.
		n, err := s.URLs().InsertURLs(ctx, newURL(Root+"/2", 0), newURL(Root+"/2", 0))
		if err != nil {
			return err
		}
		if n != 1 {
			return errors.New("expected one insert")
		}
		return s.URLs().UpdateStatus(ctx, u.ID, core.URLStatusFetched, nil)
	})
	require.NoError(t, err)

	got, err := s.URLs().GetURL(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetched, got.Status)

	_, err = s.URLs().FindURL(ctx, Root+"/2")
	assert.NoError(t, err)
}
