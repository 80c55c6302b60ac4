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

package frontier

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/extract"
	"github.com/poiesic/newsrag/fetch"
	"github.com/poiesic/newsrag/storage"
	"github.com/poiesic/newsrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	section = "https://www.lrt.lt/naujienos/lietuvoje"
	story   = section + "/2/1000/seimas"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setup(t *testing.T, opts ...Option) (*Frontier, storage.Store, *clock) {
	t.Helper()
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &clock{now: storage.Now()}
	opts = append([]Option{WithClock(c.Now)}, opts...)
	return New(store, opts...), store, c
}

func insert(t *testing.T, store storage.Store, address string, priority int) *core.URL {
	t.Helper()
	u := &core.URL{URL: address, Status: core.URLStatusQueued, Priority: priority}
	n, err := store.URLs().InsertURLs(context.Background(), u)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return u
}

func articlePage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><meta name=\"author\" content=\"Ona Onaitė\"></head><body><article><h1>Seimas priėmė biudžetą</h1>")
	b.WriteString("<p>" + strings.Repeat("Seimas antradienį priėmė kitų metų biudžetą. ", 8) + "</p>")
	b.WriteString("</article>")
	for _, l := range links {
		b.WriteString(`<a href="` + l + `">x</a>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func response(finalURL, body string) *fetch.Response {
	return &fetch.Response{
		Status:      200,
		ContentType: "text/html; charset=utf-8",
		FinalURL:    finalURL,
		ResponseMS:  42,
		Body:        body,
	}
}

func TestClaim_Order(t *testing.T) {
	ctx := context.Background()
	f, store, c := setup(t)

	low := insert(t, store, section+"/2/1/low", 0)
	high := insert(t, store, section+"/2/2/high", 5)
	highLater := insert(t, store, section+"/2/3/high-later", 5)

	later := c.Now().Add(time.Hour)
	notDue := insert(t, store, section+"/2/4/not-due", 99)
	require.NoError(t, store.URLs().UpdateStatus(ctx, notDue.ID, core.URLStatusQueued, &later))

	var order []core.ID
	for {
		u, err := f.Claim(ctx)
		require.NoError(t, err)
		if u == nil {
			break
		}
		assert.Equal(t, core.URLStatusFetching, u.Status)
		assert.Equal(t, 1, u.Attempts)
		order = append(order, u.ID)
	}
	assert.Equal(t, []core.ID{high.ID, highLater.ID, low.ID}, order)

	stored, err := store.URLs().GetURL(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetching, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
}

func TestClaim_NeverReturnsURLOutsideRoots(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)

	insert(t, store, "https://www.lrt.lt/naujienos/sportas/1", 100)
	insert(t, store, "https://example.com/naujienos/lietuvoje/1", 100)

	u, err := f.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	inside := insert(t, store, section+"/2/1/a", 0)
	u, err = f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, inside.ID, u.ID)
}

func TestClaim_Concurrent(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	for i := 0; i < 5; i++ {
		insert(t, store, section+"/2/"+string(rune('a'+i)), 0)
	}

	var (
		mu      sync.Mutex
		claimed = map[core.ID]int{}
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				u, err := f.Claim(ctx)
				if !assert.NoError(t, err) || u == nil {
					return
				}
				mu.Lock()
				claimed[u.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 5)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "url %d claimed more than once", id)
	}
}

func TestRecover(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	u := insert(t, store, section+"/2/1/a", 0)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	n, err := f.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, 2, again.Attempts)
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	origin := insert(t, store, section, 10)

	links := []string{
		section + "/2/1/a",
		section + "/2/1/a",
		section + "/2/2/b",
		"https://www.lrt.lt/naujienos/sportas/2/3",
		"https://www.lrt.lt/naujienos/lietuvoje/video/4",
		"mailto:info@lrt.lt",
	}
	n, err := f.Enqueue(ctx, origin.ID, links)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	u, err := store.URLs().FindURL(ctx, section+"/2/1/a")
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusQueued, u.Status)
	assert.Equal(t, 0, u.Priority)
	require.NotNil(t, u.DiscoveredFrom)
	assert.Equal(t, origin.ID, *u.DiscoveredFrom)

	n, err = f.Enqueue(ctx, origin.ID, links)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = store.URLs().FindURL(ctx, "https://www.lrt.lt/naujienos/sportas/2/3")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)

	n, err := f.Seed(ctx, DefaultPolicy().Roots, DefaultSeedPriority)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = f.Seed(ctx, DefaultPolicy().Roots, DefaultSeedPriority)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	u, err := store.URLs().FindURL(ctx, section)
	require.NoError(t, err)
	assert.Equal(t, 10, u.Priority)
	assert.Nil(t, u.DiscoveredFrom)

	t.Run("rejects urls outside whitelist", func(t *testing.T) {
		_, err := f.Seed(ctx, []string{section + "/2/9/ok", "https://www.lrt.lt/naujienos/sportas"}, 10)
		assert.ErrorIs(t, err, ErrOutsideWhitelist)

		_, err = store.URLs().FindURL(ctx, section+"/2/9/ok")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestComplete_Article(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	insert(t, store, story, 0)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	body := articlePage("/naujienos/lietuvoje/2/1001/kitas#c", "/naujienos/sportas/1", "https://example.com/")
	outcome, err := f.Complete(ctx, claimed, response(story, body))
	require.NoError(t, err)

	assert.False(t, outcome.Quarantined)
	assert.False(t, outcome.Requeued)
	assert.Equal(t, 1, outcome.Links)
	assert.Equal(t, 1, outcome.Discovered)
	require.NotNil(t, outcome.Fetch)
	require.NotNil(t, outcome.Article)

	u, err := store.URLs().GetURL(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetched, u.Status)

	fetches, err := store.Fetches().GetFetchesByURL(ctx, claimed.ID)
	require.NoError(t, err)
	require.Len(t, fetches, 1)
	assert.Equal(t, 200, fetches[0].HTTPStatus)
	assert.Equal(t, story, fetches[0].FinalURL)
	assert.Equal(t, int64(42), fetches[0].ResponseMS)
	assert.Equal(t, body, fetches[0].Body)

	article, err := store.Articles().GetArticleByURL(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seimas priėmė biudžetą", article.Title)
	assert.Equal(t, "Ona Onaitė", article.Author)
	assert.Equal(t, story, article.CanonicalURL)
	assert.Equal(t, core.DefaultSourceID, article.SourceID)
	assert.Equal(t, core.HashContent(article.Text), article.TextHash)

	discovered, err := store.URLs().FindURL(ctx, section+"/2/1001/kitas")
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, *discovered.DiscoveredFrom)
}

func TestComplete_ReFetchKeepsArticleIdentity(t *testing.T) {
	ctx := context.Background()
	f, store, c := setup(t)
	insert(t, store, section, DefaultSeedPriority)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	first, err := f.Complete(ctx, claimed, response(section, articlePage()))
	require.NoError(t, err)
	require.NotNil(t, first.Article)

	c.Advance(DefaultPolicy().RequeueDelay)
	claimed, err = f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	second, err := f.Complete(ctx, claimed, response(section, strings.Replace(articlePage(), "biudžetą</h1>", "biudžetą iš naujo</h1>", 1)))
	require.NoError(t, err)

	assert.Equal(t, first.Article.ID, second.Article.ID)
	article, err := store.Articles().GetArticle(ctx, first.Article.ID)
	require.NoError(t, err)
	assert.Equal(t, "Seimas priėmė biudžetą iš naujo", article.Title)

	n, err := store.Articles().CountArticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestComplete_EntrypointRequeues(t *testing.T) {
	ctx := context.Background()
	f, store, c := setup(t)
	_, err := f.Seed(ctx, []string{section}, DefaultSeedPriority)
	require.NoError(t, err)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	outcome, err := f.Complete(ctx, claimed, response(section, "<html><a href=\"/naujienos/lietuvoje/2/5/x\">x</a></html>"))
	require.NoError(t, err)
	assert.True(t, outcome.Requeued)
	assert.Nil(t, outcome.Article)
	assert.Equal(t, 1, outcome.Discovered)

	u, err := store.URLs().GetURL(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusQueued, u.Status)
	require.NotNil(t, u.NextFetchAt)
	assert.True(t, c.Now().Add(15*time.Minute).Equal(*u.NextFetchAt))

	next, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.NotEqual(t, claimed.ID, next.ID, "entrypoint is not due yet")

	c.Advance(15 * time.Minute)
	again, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, claimed.ID, again.ID)
}

func TestComplete_QuarantinesOutOfWhitelistRedirect(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	insert(t, store, story, DefaultSeedPriority)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)

	outcome, err := f.Complete(ctx, claimed, response("https://www.lrt.lt/naujienos/sportas/1", articlePage(section+"/2/7/x")))
	require.NoError(t, err)
	assert.True(t, outcome.Quarantined)

	u, err := store.URLs().GetURL(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetched, u.Status, "quarantine is terminal even for entrypoints")

	n, err := store.Fetches().CountFetches(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.Articles().CountArticles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = store.URLs().FindURL(ctx, section+"/2/7/x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestComplete_NonArticleRecordsFetch(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	insert(t, store, story, 0)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	outcome, err := f.Complete(ctx, claimed, response(story, "<html><body><p>trumpai</p></body></html>"))
	require.NoError(t, err)
	assert.Nil(t, outcome.Article)

	n, err := store.Fetches().CountFetches(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.Articles().CountArticles(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingExtractor struct{}

func (failingExtractor) Extract(string, io.Reader) (*extract.Document, error) {
	return nil, errors.New("broken page")
}

func TestComplete_ExtractionFailureRecordsNothing(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t, WithExtractor(failingExtractor{}))
	insert(t, store, story, 0)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	_, err = f.Complete(ctx, claimed, response(story, "<html></html>"))
	require.Error(t, err)

	u, err := store.URLs().GetURL(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, core.URLStatusFetching, u.Status)
	n, err := store.Fetches().CountFetches(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRecordFetch_CapsBody(t *testing.T) {
	ctx := context.Background()
	f, store, _ := setup(t)
	u := insert(t, store, story, 0)

	body := strings.Repeat("ž", MaxBodyChars+10)
	saved, err := f.RecordFetch(ctx, u.ID, response(story, body))
	require.NoError(t, err)
	assert.Equal(t, MaxBodyChars, len([]rune(saved.Body)))
}

func TestWithPolicy(t *testing.T) {
	ctx := context.Background()
	p := Policy{
		Roots:              []string{"http://127.0.0.1:8080/news"},
		HostPrefix:         "http://127.0.0.1:8080/",
		EntrypointPriority: 10,
		RequeueDelay:       time.Minute,
	}
	f, store, _ := setup(t, WithPolicy(p))
	assert.Equal(t, p, f.Policy())

	n, err := f.Seed(ctx, []string{"http://127.0.0.1:8080/news"}, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, err := f.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	outcome, err := f.Complete(ctx, claimed, response(claimed.URL, `<a href="/news/1">1</a><a href="/other">2</a>`))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Discovered)

	_, err = store.URLs().FindURL(ctx, "http://127.0.0.1:8080/news/1")
	assert.NoError(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "ąb", truncate("ąbc", 2))
	assert.Equal(t, "ąbc", truncate("ąbc", 3))
	assert.Equal(t, "", truncate("ąbc", 0))
}
