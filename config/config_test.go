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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.yaml")} {
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DriverBadger, cfg.Store.Driver)
	assert.Equal(t, ai.DefaultEmbeddingModel, cfg.Embedding.Model)
	assert.Equal(t, 1500, cfg.Chunk.TargetChars)
	assert.Equal(t, 2200, cfg.Chunk.MaxChars)
	assert.Equal(t, 1, cfg.Chunk.OverlapParas)
	assert.Equal(t, "passage: ", cfg.Embed.Prefix)
	assert.Equal(t, 500, cfg.Embed.Limit)
	assert.False(t, cfg.Embed.Normalize)
	assert.Equal(t, "query: ", cfg.Search.Prefix)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, 5000, cfg.Search.Window)
	assert.Equal(t, 350, cfg.Search.SnippetChars)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newsrag.yaml")
	data := `
store:
  driver: sqlite
  dir: /var/lib/newsrag
  name: lrt
crawl:
  workers: 4
  poll: 250ms
  max_pages: 100
chunk:
  overlap_paras: 0
embed:
  prefix: ""
  normalize: true
search:
  topk: 3
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/newsrag", cfg.Store.Dir)
	assert.Equal(t, 4, cfg.Crawl.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Crawl.Poll)
	assert.Equal(t, 100, cfg.Crawl.MaxPages)
	assert.Equal(t, 0, cfg.Chunk.OverlapParas)
	assert.Equal(t, "", cfg.Embed.Prefix)
	assert.True(t, cfg.Embed.Normalize)
	assert.Equal(t, 3, cfg.Search.TopK)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1500, cfg.Chunk.TargetChars)
	assert.Equal(t, 5000, cfg.Search.Window)
	assert.Equal(t, ai.DefaultEmbeddingModel, cfg.Embedding.Model)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "newsrag.yaml")
	cfg := Default()
	cfg.Store.Dir = "/data"
	cfg.Store.Name = "lrt"
	cfg.Crawl.Workers = 8
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DB_DIR":          "/srv",
		"DB_NAME":         "news",
		"DB_DRIVER":       "sqlite",
		"EMBEDDING_HOST":  "http://embed:8080/v1",
		"EMBEDDING_MODEL": "intfloat/multilingual-e5-base",
	}
	cfg := Default()
	cfg.Embedding.Token = "from-file"
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "/srv", cfg.Store.Dir)
	assert.Equal(t, "news", cfg.Store.Name)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "", cfg.Store.Key)
	assert.Equal(t, "http://embed:8080/v1", cfg.Embedding.Host)
	assert.Equal(t, "intfloat/multilingual-e5-base", cfg.Embedding.Model)
	assert.Equal(t, "from-file", cfg.Embedding.Token)
}

func TestStoreConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		store   StoreConfig
		wantErr error
		wantMsg string
	}{
		{
			name:  "valid badger",
			store: StoreConfig{Driver: DriverBadger, Dir: "/d", Name: "n"},
		},
		{
			name:  "valid badger with key",
			store: StoreConfig{Driver: DriverBadger, Dir: "/d", Name: "n", Key: "0123456789abcdef"},
		},
		{
			name:  "valid sqlite",
			store: StoreConfig{Driver: DriverSQLite, Dir: "/d", Name: "n"},
		},
		{
			name:    "both missing",
			store:   StoreConfig{Driver: DriverBadger},
			wantErr: ErrMissingStoreConfig,
			wantMsg: "DB_DIR, DB_NAME",
		},
		{
			name:    "name missing",
			store:   StoreConfig{Driver: DriverBadger, Dir: "/d"},
			wantErr: ErrMissingStoreConfig,
			wantMsg: "DB_NAME",
		},
		{
			name:    "unknown driver",
			store:   StoreConfig{Driver: "postgres", Dir: "/d", Name: "n"},
			wantErr: storage.ErrUnknownDriver,
		},
		{
			name:    "short key",
			store:   StoreConfig{Driver: DriverBadger, Dir: "/d", Name: "n", Key: "short"},
			wantErr: ErrInvalidKey,
		},
		{
			name:    "key with sqlite",
			store:   StoreConfig{Driver: DriverSQLite, Dir: "/d", Name: "n", Key: "0123456789abcdef"},
			wantErr: ErrInvalidKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.store.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestStoreConfig_Paths(t *testing.T) {
	badger := StoreConfig{Driver: DriverBadger, Dir: "/data", Name: "lrt"}
	assert.Equal(t, filepath.Join("/data", "lrt"), badger.Path())
	assert.Equal(t, filepath.Join("/data", "lrt.bleve"), badger.IndexPath())

	sqlite := StoreConfig{Driver: DriverSQLite, Dir: "/data", Name: "lrt"}
	assert.Equal(t, filepath.Join("/data", "lrt.db"), sqlite.Path())
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Embedding.Model = "m"
	cfg.Embedding.BatchSize = 8
	cfg.Crawl.Workers = 3
	cfg.Crawl.MaxPages = 7
	cfg.Crawl.RatePerSecond = 0.5
	cfg.Search.NormalizeQuery = true

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "m", aiCfg.EmbeddingModel)
	assert.Equal(t, 8, aiCfg.BatchSize)

	fetchCfg := cfg.FetchConfig()
	assert.Equal(t, 0.5, fetchCfg.RatePerSecond)
	assert.Equal(t, int64(8<<20), fetchCfg.MaxBodyBytes)

	crawlCfg := cfg.CrawlConfig()
	assert.Equal(t, 3, crawlCfg.Workers)
	assert.Equal(t, 7, crawlCfg.MaxPages)
	require.NoError(t, crawlCfg.Validate())

	require.NoError(t, cfg.ChunkConfig().Validate())

	embedCfg := cfg.EmbedConfig()
	assert.Equal(t, "m", embedCfg.Model)
	assert.Equal(t, 8, embedCfg.BatchSize)
	assert.Equal(t, "passage: ", embedCfg.Prefix)
	require.NoError(t, embedCfg.Validate())

	searchCfg := cfg.SearchConfig()
	assert.Equal(t, "m", searchCfg.Model)
	assert.True(t, searchCfg.NormalizeQuery)
	require.NoError(t, searchCfg.Validate())
}
