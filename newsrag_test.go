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

package newsrag

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/newsrag/ai/mock"
	"github.com/poiesic/newsrag/config"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/frontier"
	"github.com/poiesic/newsrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, driver string) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = driver
	cfg.Store.Dir = t.TempDir()
	cfg.Store.Name = "news"
	cfg.Crawl.RatePerSecond = 0
	cfg.Crawl.Attempts = 1
	cfg.Crawl.Poll = 10 * time.Millisecond
	return cfg
}

func TestNewDatabase(t *testing.T) {
	for _, driver := range []string{config.DriverBadger, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			db, err := NewDatabase(testConfig(t, driver), WithEmbedder(mock.NewMockEmbedder()))
			require.NoError(t, err)
			require.NotNil(t, db)
			defer db.Close()

			assert.NotNil(t, db.Store())
			assert.NotNil(t, db.logger)
			assert.Equal(t, driver, db.Config().Store.Driver)
		})
	}

	t.Run("missing store location", func(t *testing.T) {
		db, err := NewDatabase(config.Default(), WithEmbedder(mock.NewMockEmbedder()))
		assert.ErrorIs(t, err, config.ErrMissingStoreConfig)
		assert.Nil(t, db)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := testConfig(t, "postgres")
		_, err := NewDatabase(cfg, WithEmbedder(mock.NewMockEmbedder()))
		assert.ErrorIs(t, err, storage.ErrUnknownDriver)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		cfg := testConfig(t, config.DriverBadger)
		require.NoError(t, os.WriteFile(cfg.Store.Path(), []byte("test"), 0o644))

		db, err := NewDatabase(cfg, WithEmbedder(mock.NewMockEmbedder()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("default embedder", func(t *testing.T) {
		db, err := NewDatabase(testConfig(t, config.DriverBadger))
		require.NoError(t, err)
		defer db.Close()
		assert.NotNil(t, db.embedder)
	})
}

func TestDatabase_Close(t *testing.T) {
	db, err := NewDatabase(testConfig(t, config.DriverBadger), WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)

	err = db.Close()
	assert.NoError(t, err)
}

func TestDatabase_FactoryMethods(t *testing.T) {
	db, err := NewDatabase(testConfig(t, config.DriverBadger), WithEmbedder(mock.NewMockEmbedder()))
	require.NoError(t, err)
	defer db.Close()

	t.Run("can create crawler", func(t *testing.T) {
		crawler, err := db.NewCrawler()
		require.NoError(t, err)
		assert.NotNil(t, crawler)
	})

	t.Run("can create chunk job", func(t *testing.T) {
		job, err := db.NewChunkJob(nil)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("can create embedding job", func(t *testing.T) {
		job, err := db.NewEmbeddingJob(nil)
		require.NoError(t, err)
		assert.NotNil(t, job)
	})

	t.Run("can create engine", func(t *testing.T) {
		engine, err := db.NewEngine()
		require.NoError(t, err)
		assert.NotNil(t, engine)
	})

	t.Run("invalid crawl config", func(t *testing.T) {
		db.Config().Crawl.Workers = 0
		defer func() { db.Config().Crawl.Workers = 1 }()
		_, err := db.NewCrawler()
		assert.Error(t, err)
	})
}

func newsSite(t *testing.T) *httptest.Server {
	t.Helper()
	body := strings.Repeat("Vyriausybė pristatė naują mokesčių reformos planą. ", 7)
	pages := map[string]string{
		"/news":        `<html><body><a href="/news/budget">a</a><a href="/news/reform">b</a><a href="/video/x">c</a></body></html>`,
		"/news/budget": "<html><body><article><h1>Biudžetas</h1><p>" + body + "</p></article></body></html>",
		"/news/reform": "<html><body><article><h1>Reforma</h1><p>" + body + "</p></article></body></html>",
	}
	mux := http.NewServeMux()
	for path, page := range pages {
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, page)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPipeline(t *testing.T) {
	for _, driver := range []string{config.DriverBadger, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			srv := newsSite(t)
			policy := frontier.WithPolicy(frontier.Policy{
				Roots:              []string{srv.URL + "/news"},
				HostPrefix:         srv.URL + "/",
				Blacklist:          []string{"/video"},
				EntrypointPriority: 10,
				RequeueDelay:       15 * time.Minute,
			})

			embedder := mock.NewMockEmbedder()
			db, err := NewDatabase(testConfig(t, driver), WithEmbedder(embedder))
			require.NoError(t, err)
			defer db.Close()

			seeded, err := db.NewFrontier(policy).Seed(ctx, []string{srv.URL + "/news"}, frontier.DefaultSeedPriority)
			require.NoError(t, err)
			assert.Equal(t, 1, seeded)

			crawler, err := db.NewCrawler(policy)
			require.NoError(t, err)
			crawlStats, err := crawler.Run(ctx)
			require.NoError(t, err)
			assert.Equal(t, 3, crawlStats.Claimed)
			assert.Equal(t, 2, crawlStats.Articles)

			chunkJob, err := db.NewChunkJob(nil)
			require.NoError(t, err)
			chunkStats, err := chunkJob.Run(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, 2, chunkStats.ChunksInserted)

			embedJob, err := db.NewEmbeddingJob(nil)
			require.NoError(t, err)
			embedStats, err := embedJob.Run(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, 2, embedStats.Inserted)

			engine, err := db.NewEngine()
			require.NoError(t, err)
			resp, err := engine.Search(ctx, "mokesčių reforma")
			require.NoError(t, err)
			require.Len(t, resp.Results, 2)
			assert.Equal(t, 2, resp.Searched)
			assert.Contains(t, []string{"Biudžetas", "Reforma"}, resp.Results[0].Title)
			assert.Contains(t, embedder.Texts(), "query: mokesčių reforma")

			index, err := db.OpenLexicalIndex()
			require.NoError(t, err)
			defer index.Close()
			indexed, err := index.IndexChunks(ctx, db.Store(), 0)
			require.NoError(t, err)
			assert.Equal(t, 2, indexed)
			hits, err := index.Search("Biudžetas", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, srv.URL+"/news/budget", hits[0].URL)

			stats, err := db.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, stats.URLs[core.URLStatusQueued])
			assert.Equal(t, 2, stats.URLs[core.URLStatusFetched])
			assert.Equal(t, 3, stats.Fetches)
			assert.Equal(t, 2, stats.Articles)
			assert.Equal(t, 2, stats.Chunks)
			assert.Equal(t, 2, stats.Embeddings)
			assert.Equal(t, 2, stats.ModelEmbeddings)
		})
	}
}
