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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/poiesic/newsrag"
	"github.com/poiesic/newsrag/config"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/lexical"
	"github.com/poiesic/newsrag/retrieval"
	"github.com/urfave/cli/v2"
)

var errQueryRequired = errors.New("query is required")

func openDatabase(c *cli.Context) (*newsrag.Database, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	applyCommandFlags(c, cfg)
	db, err := newsrag.NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// applyCommandFlags copies the explicitly set flags of the running command into cfg.
func applyCommandFlags(c *cli.Context, cfg *config.AppConfig) {
	ints := map[string]*int{}
	switch c.Command.Name {
	case "crawl":
		ints["workers"] = &cfg.Crawl.Workers
		ints["max-pages"] = &cfg.Crawl.MaxPages
		if c.IsSet("poll") {
			cfg.Crawl.Poll = c.Duration("poll")
		}
		if c.IsSet("rate") {
			cfg.Crawl.RatePerSecond = c.Float64("rate")
		}
		override(c, "user-agent", &cfg.Crawl.UserAgent)
	case "chunk":
		ints["limit"] = &cfg.Chunk.Limit
		ints["target-chars"] = &cfg.Chunk.TargetChars
		ints["max-chars"] = &cfg.Chunk.MaxChars
		ints["overlap-paras"] = &cfg.Chunk.OverlapParas
	case "embed":
		ints["limit"] = &cfg.Embed.Limit
		ints["batch-size"] = &cfg.Embedding.BatchSize
		if c.IsSet("prefix") {
			cfg.Embed.Prefix = c.String("prefix")
		}
		if c.IsSet("normalize") {
			cfg.Embed.Normalize = c.Bool("normalize")
		}
	case "search":
		ints["topk"] = &cfg.Search.TopK
		ints["limit"] = &cfg.Search.Window
		ints["show-chars"] = &cfg.Search.SnippetChars
		if c.IsSet("prefix") {
			cfg.Search.Prefix = c.String("prefix")
		}
		if c.IsSet("normalize-query") {
			cfg.Search.NormalizeQuery = c.Bool("normalize-query")
		}
	}
	for name, dst := range ints {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func seedCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	urls := c.Args().Slice()
	f := db.NewFrontier()
	if len(urls) == 0 {
		urls = f.Policy().Roots
	}

	inserted, err := f.Seed(c.Context, urls, c.Int("priority"))
	if err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "[seed] requested=%d inserted=%d\n", len(urls), inserted)
	return nil
}

func crawlCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	crawler, err := db.NewCrawler()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(c)
	defer stop()

	stats, err := crawler.Run(ctx)
	fmt.Fprintf(c.App.Writer, "[crawl] claimed=%d fetched=%d failed=%d quarantined=%d articles=%d discovered=%d\n",
		stats.Claimed, stats.Fetched, stats.Failed, stats.Quarantined, stats.Articles, stats.Discovered)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}
	return nil
}

func chunkCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	job, err := db.NewChunkJob(os.Stderr)
	if err != nil {
		return err
	}
	stats, err := job.Run(c.Context, db.Config().Chunk.Limit)
	if err != nil {
		return fmt.Errorf("chunking failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "[chunker] articles_processed=%d chunks=%d chunks_inserted=%d\n",
		stats.ArticlesProcessed, stats.ChunksCreated, stats.ChunksInserted)
	return nil
}

func embedCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := db.Config()
	fmt.Fprintf(os.Stderr, "[embedder] %s batch_size=%d normalize=%t\n",
		aiSummary(cfg.AIConfig()), cfg.Embedding.BatchSize, cfg.Embed.Normalize)

	job, err := db.NewEmbeddingJob(os.Stderr)
	if err != nil {
		return err
	}
	stats, err := job.Run(c.Context, cfg.Embed.Limit)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "[embedder] done. dims=%d inserted=%d requested=%d\n",
		stats.Dims, stats.Inserted, stats.Selected)
	return nil
}

func searchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errQueryRequired
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := db.NewEngine()
	if err != nil {
		return err
	}

	var monitor retrieval.Monitor
	if c.Bool("verbose") {
		monitor = retrieval.NewTimingMonitor(os.Stderr)
	}
	resp, err := engine.SearchWithMonitor(c.Context, query, monitor)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(c.App.Writer, resp)
	return nil
}

func printResults(w io.Writer, resp *retrieval.Response) {
	if resp.Searched == 0 {
		fmt.Fprintln(w, "[search] No embeddings found for this model.")
		return
	}
	fmt.Fprintf(w, "[search] model=%s dims=%d searched=%d topk=%d\n\n",
		resp.Model, resp.Dims, resp.Searched, len(resp.Results))
	for _, r := range resp.Results {
		fmt.Fprintf(w, "%d. score=%.4f  article_id=%d  chunk_id=%d  idx=%d\n",
			r.Rank, r.Score, r.ArticleID, r.ChunkID, r.ChunkIndex)
		fmt.Fprintf(w, "   title: %s\n", r.Title)
		fmt.Fprintf(w, "   url:   %s\n", r.CanonicalURL)
		if r.PublishedAt != nil {
			fmt.Fprintf(w, "   published_at: %s\n", r.PublishedAt.Format("2006-01-02 15:04:05Z07:00"))
		}
		fmt.Fprintf(w, "   text:  %s\n\n", r.Snippet)
	}
}

func indexCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	index, err := db.OpenLexicalIndex()
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	indexed, err := index.IndexChunks(c.Context, db.Store(), c.Int("batch-size"))
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	total, err := index.Count()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "[index] indexed=%d total=%d\n", indexed, total)
	return nil
}

func keywordSearchCommand(c *cli.Context) error {
	query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if query == "" {
		return errQueryRequired
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	index, err := db.OpenLexicalIndex()
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer index.Close()

	hits, err := index.Search(query, c.Int("topk"))
	if err != nil {
		return fmt.Errorf("keyword search failed: %w", err)
	}
	printHits(c.App.Writer, hits)
	return nil
}

func printHits(w io.Writer, hits []*lexical.Hit) {
	if len(hits) == 0 {
		fmt.Fprintln(w, "[keyword-search] No matches.")
		return
	}
	for i, h := range hits {
		fmt.Fprintf(w, "%d. score=%.4f  article_id=%d  chunk_id=%d\n", i+1, h.Score, h.ArticleID, h.ChunkID)
		fmt.Fprintf(w, "   title: %s\n", h.Title)
		fmt.Fprintf(w, "   url:   %s\n", h.URL)
		for _, fragment := range h.Fragments["Text"] {
			fmt.Fprintf(w, "   text:  %s\n", fragment)
		}
		fmt.Fprintln(w)
	}
}

func statsCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.Stats(c.Context)
	if err != nil {
		return err
	}
	printStats(c.App.Writer, db.Config().Embedding.Model, stats)
	return nil
}

func printStats(w io.Writer, model string, stats *newsrag.Stats) {
	fmt.Fprintf(w, "urls:       queued=%d fetching=%d fetched=%d\n",
		stats.URLs[core.URLStatusQueued], stats.URLs[core.URLStatusFetching], stats.URLs[core.URLStatusFetched])
	fmt.Fprintf(w, "fetches:    %d\n", stats.Fetches)
	fmt.Fprintf(w, "articles:   %d\n", stats.Articles)
	fmt.Fprintf(w, "chunks:     %d\n", stats.Chunks)
	fmt.Fprintf(w, "embeddings: %d (%s: %d)\n", stats.Embeddings, model, stats.ModelEmbeddings)
}
