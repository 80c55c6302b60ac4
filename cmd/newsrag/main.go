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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/chunking"
	"github.com/poiesic/newsrag/config"
	"github.com/poiesic/newsrag/embedding"
	"github.com/poiesic/newsrag/frontier"
	"github.com/poiesic/newsrag/lexical"
	"github.com/poiesic/newsrag/retrieval"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	app := newApp()
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:     "newsrag",
		Usage:    "Crawl, chunk, embed and search LRT news articles",
		Flags:    globalFlags(),
		Before:   setupLogger,
		Commands: commands(),
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Aliases: []string{"l"},
			Usage:   "Set logging level (debug, info, warn, error)",
			Value:   "info",
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to YAML config file",
			EnvVars: []string{"NEWSRAG_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "db-dir",
			Usage:   "Directory holding the database",
			EnvVars: []string{"DB_DIR"},
		},
		&cli.StringFlag{
			Name:    "db-name",
			Usage:   "Database name",
			EnvVars: []string{"DB_NAME"},
		},
		&cli.StringFlag{
			Name:    "db-driver",
			Usage:   "Store driver (badger, sqlite)",
			EnvVars: []string{"DB_DRIVER"},
		},
		&cli.StringFlag{
			Name:    "db-key",
			Usage:   "Badger encryption key (16, 24 or 32 bytes)",
			EnvVars: []string{"DB_KEY"},
		},
		&cli.StringFlag{
			Name:    "embedding-host",
			Usage:   "Embedding service host URL",
			EnvVars: []string{"EMBEDDING_HOST"},
		},
		&cli.StringFlag{
			Name:    "embedding-model",
			Aliases: []string{"model"},
			Usage:   "Embedding model name (must match stored embeddings)",
			EnvVars: []string{"EMBEDDING_MODEL"},
		},
		&cli.StringFlag{
			Name:    "embedding-token",
			Usage:   "Bearer token for the embedding service",
			EnvVars: []string{"EMBEDDING_TOKEN"},
		},
	}
}

func commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "seed",
			Usage:     "Insert entrypoint URLs into the frontier",
			ArgsUsage: "[url...]",
			Action:    seedCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "priority",
					Usage: "Priority of the seeded URLs",
					Value: frontier.DefaultSeedPriority,
				},
			},
		},
		{
			Name:   "crawl",
			Usage:  "Fetch queued URLs until the frontier is drained",
			Action: crawlCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "workers",
					Usage: "Number of concurrent crawl workers",
				},
				&cli.IntFlag{
					Name:  "max-pages",
					Usage: "Stop after claiming this many URLs (0 for no limit)",
				},
				&cli.DurationFlag{
					Name:  "poll",
					Usage: "Wait between claims while other workers are busy",
				},
				&cli.Float64Flag{
					Name:  "rate",
					Usage: "Maximum requests per second (0 for no limit)",
				},
				&cli.StringFlag{
					Name:  "user-agent",
					Usage: "User-Agent header sent with every request",
				},
			},
		},
		{
			Name:   "chunk",
			Usage:  "Split un-chunked articles into overlapping chunks",
			Action: chunkCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Number of articles to process in one run",
					Value: chunking.DefaultLimit,
				},
				&cli.IntFlag{
					Name:  "target-chars",
					Usage: "Target chunk size in characters",
					Value: 1500,
				},
				&cli.IntFlag{
					Name:  "max-chars",
					Usage: "Maximum chunk size in characters",
					Value: 2200,
				},
				&cli.IntFlag{
					Name:  "overlap-paras",
					Usage: "Number of trailing paragraphs repeated in the next chunk",
					Value: 1,
				},
			},
		},
		{
			Name:   "embed",
			Usage:  "Embed chunks that lack an embedding for the model",
			Action: embedCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Number of chunks to process in one run",
					Value: embedding.DefaultLimit,
				},
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Number of texts per embedding request",
					Value: embedding.DefaultBatchSize,
				},
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "Prefix prepended to every chunk text",
					Value: embedding.DefaultPrefix,
				},
				&cli.BoolFlag{
					Name:  "normalize",
					Usage: "Scale stored vectors to unit length",
				},
			},
		},
		{
			Name:      "search",
			Usage:     "Rank stored chunks by cosine similarity to a query",
			ArgsUsage: "<query>",
			Action:    searchCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "topk",
					Usage: "Number of results to return",
					Value: retrieval.DefaultTopK,
				},
				&cli.IntFlag{
					Name:  "limit",
					Usage: "Number of embeddings loaded into memory",
					Value: retrieval.DefaultWindow,
				},
				&cli.BoolFlag{
					Name:  "normalize-query",
					Usage: "Scale the query vector to unit length",
				},
				&cli.IntFlag{
					Name:  "show-chars",
					Usage: "Number of chunk characters shown per result",
					Value: retrieval.DefaultSnippetChars,
				},
				&cli.StringFlag{
					Name:  "prefix",
					Usage: "Prefix prepended to the query",
					Value: retrieval.DefaultPrefix,
				},
				&cli.BoolFlag{
					Name:    "verbose",
					Aliases: []string{"v"},
					Usage:   "Print search timings",
				},
			},
		},
		{
			Name:   "index",
			Usage:  "Build the keyword index over stored chunks",
			Action: indexCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "batch-size",
					Usage: "Number of chunks indexed per batch",
					Value: lexical.DefaultBatchSize,
				},
			},
		},
		{
			Name:      "keyword-search",
			Usage:     "Search the keyword index",
			ArgsUsage: "<query>",
			Action:    keywordSearchCommand,
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "topk",
					Usage: "Number of results to return",
					Value: retrieval.DefaultTopK,
				},
			},
		},
		{
			Name:   "stats",
			Usage:  "Print row counts of the store",
			Action: statsCommand,
		},
	}
}

// loadConfig resolves the configuration from file, environment and flags, in
// that order, and validates the store location.
func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)

	override(c, "db-dir", &cfg.Store.Dir)
	override(c, "db-name", &cfg.Store.Name)
	override(c, "db-driver", &cfg.Store.Driver)
	override(c, "db-key", &cfg.Store.Key)
	override(c, "embedding-host", &cfg.Embedding.Host)
	override(c, "embedding-model", &cfg.Embedding.Model)
	override(c, "embedding-token", &cfg.Embedding.Token)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// override replaces dst with a flag value that was set and is not empty.
func override(c *cli.Context, name string, dst *string) {
	if v := c.String(name); c.IsSet(name) && v != "" {
		*dst = v
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}

// aiSummary is the embedding endpoint line printed by the embedding commands.
func aiSummary(cfg *ai.Config) string {
	return fmt.Sprintf("host=%s model=%s", cfg.EmbeddingHost, cfg.EmbeddingModel)
}
