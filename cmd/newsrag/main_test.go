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

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// isolate pins every environment variable the app reads so the host
// environment cannot leak into a run.
func isolate(t *testing.T, dir string) {
	t.Helper()
	t.Setenv("NEWSRAG_CONFIG", "")
	t.Setenv("DB_DIR", dir)
	t.Setenv("DB_NAME", "news")
	t.Setenv("DB_DRIVER", config.DriverSQLite)
	t.Setenv("DB_KEY", "")
	t.Setenv("EMBEDDING_HOST", "http://localhost:11434/v1")
	t.Setenv("EMBEDDING_MODEL", ai.DefaultEmbeddingModel)
	t.Setenv("EMBEDDING_TOKEN", "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"newsrag"}, args...))
	return out.String(), err
}

func findCommand(t *testing.T, app *cli.App, name string) *cli.Command {
	t.Helper()
	for _, cmd := range app.Commands {
		if cmd.Name == name {
			return cmd
		}
	}
	t.Fatalf("command %q not found", name)
	return nil
}

func findFlag(flags []cli.Flag, name string) cli.Flag {
	for _, flag := range flags {
		for _, n := range flag.Names() {
			if n == name {
				return flag
			}
		}
	}
	return nil
}

func TestGlobalFlags(t *testing.T) {
	app := newApp()

	t.Run("log-level has default value", func(t *testing.T) {
		f, ok := findFlag(app.Flags, "log-level").(*cli.StringFlag)
		require.True(t, ok)
		assert.Equal(t, "info", f.Value)
		assert.Contains(t, f.Aliases, "l")
	})

	envVars := map[string]string{
		"db-dir":          "DB_DIR",
		"db-name":         "DB_NAME",
		"db-driver":       "DB_DRIVER",
		"db-key":          "DB_KEY",
		"embedding-host":  "EMBEDDING_HOST",
		"embedding-model": "EMBEDDING_MODEL",
		"embedding-token": "EMBEDDING_TOKEN",
	}
	for name, env := range envVars {
		t.Run(name+" reads "+env, func(t *testing.T) {
			f, ok := findFlag(app.Flags, name).(*cli.StringFlag)
			require.True(t, ok)
			assert.Equal(t, []string{env}, f.EnvVars)
			assert.Empty(t, f.Value)
		})
	}
}

func TestCommandFlagDefaults(t *testing.T) {
	app := newApp()

	tests := []struct {
		command string
		flag    string
		want    any
	}{
		{"seed", "priority", 10},
		{"chunk", "limit", 50},
		{"chunk", "target-chars", 1500},
		{"chunk", "max-chars", 2200},
		{"chunk", "overlap-paras", 1},
		{"embed", "limit", 500},
		{"embed", "batch-size", 32},
		{"embed", "prefix", "passage: "},
		{"embed", "normalize", false},
		{"search", "topk", 10},
		{"search", "limit", 5000},
		{"search", "show-chars", 350},
		{"search", "prefix", "query: "},
		{"search", "normalize-query", false},
		{"index", "batch-size", 500},
		{"keyword-search", "topk", 10},
	}

	for _, tt := range tests {
		t.Run(tt.command+" "+tt.flag, func(t *testing.T) {
			flag := findFlag(findCommand(t, app, tt.command).Flags, tt.flag)
			require.NotNil(t, flag)
			switch f := flag.(type) {
			case *cli.IntFlag:
				assert.Equal(t, tt.want, f.Value)
			case *cli.StringFlag:
				assert.Equal(t, tt.want, f.Value)
			case *cli.BoolFlag:
				assert.Equal(t, tt.want, f.Value)
			default:
				t.Fatalf("unexpected flag type %T", flag)
			}
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	isolate(t, t.TempDir())
	_, err := run(t, "--log-level", "loud", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMissingStoreConfig(t *testing.T) {
	isolate(t, "")
	t.Setenv("DB_NAME", "")

	_, err := run(t, "stats")
	require.ErrorIs(t, err, config.ErrMissingStoreConfig)
	assert.Contains(t, err.Error(), "DB_DIR, DB_NAME")
}

func TestSeedAndStats(t *testing.T) {
	dir := t.TempDir()
	isolate(t, dir)

	out, err := run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "[seed] requested=4 inserted=4")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "[seed] requested=4 inserted=0")

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "queued=4 fetching=0 fetched=0")
	assert.Contains(t, out, "articles:   0")

	assert.FileExists(t, filepath.Join(dir, "news.db"))
}

func TestSeedRejectsForeignURL(t *testing.T) {
	isolate(t, t.TempDir())

	_, err := run(t, "seed", "https://example.com/news")
	assert.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	isolate(t, "")
	t.Setenv("DB_NAME", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "newsrag.yaml")
	data := "store:\n  driver: sqlite\n  dir: " + dir + "\n  name: fromfile\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	_, err := run(t, "--config", path, "stats")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "fromfile.db"))
}

func TestEmptyStoreCommands(t *testing.T) {
	isolate(t, t.TempDir())

	out, err := run(t, "chunk")
	require.NoError(t, err)
	assert.Contains(t, out, "[chunker] articles_processed=0")

	out, err = run(t, "embed")
	require.NoError(t, err)
	assert.Contains(t, out, "[embedder] done. dims=0 inserted=0 requested=0")

	out, err = run(t, "search", "biudžetas")
	require.NoError(t, err)
	assert.Contains(t, out, "No embeddings found")

	out, err = run(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "[index] indexed=0 total=0")

	out, err = run(t, "keyword-search", "biudžetas")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches")
}

func TestQueryRequired(t *testing.T) {
	isolate(t, t.TempDir())

	for _, command := range []string{"search", "keyword-search"} {
		_, err := run(t, command)
		assert.ErrorIs(t, err, errQueryRequired, command)
	}
}
