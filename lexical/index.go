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

// Package lexical keeps a full-text index of chunks beside the vector store.
//
// The index is a bleve index keyed by chunk ID. It complements semantic
// retrieval with keyword queries (quotes, boolean operators, fuzzy ~) and
// returns highlighted fragments.
package lexical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/storage"
)

// DefaultBatchSize is the number of chunks read and indexed per batch.
const DefaultBatchSize = 500

// Store is the storage surface indexing needs.
type Store interface {
	Articles() storage.ArticleRepository
	Chunks() storage.ChunkRepository
}

// Index wraps a bleve index of chunks.
type Index struct {
	index  bleve.Index
	logger *slog.Logger
}

// chunkDocument is the indexed form of a chunk.
type chunkDocument struct {
	ArticleID float64
	Title     string
	URL       string
	Text      string
}

// Hit is one keyword match.
type Hit struct {
	ChunkID   core.ID
	ArticleID core.ID
	Title     string
	URL       string
	Score     float64
	// Fragments holds highlighted snippets per field.
	Fragments map[string][]string
}

// Open opens the index at path, creating it if it does not exist.
// An empty path creates an in-memory index.
func Open(path string) (*Index, error) {
	logger := slog.Default().With("component", "lexical")
	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{index: idx, logger: logger}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		logger.Info("created index", "path", path)
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx, logger: logger}, nil
}

// buildIndexMapping maps chunk documents. Text and title use the standard
// analyzer; bleve ships none for Lithuanian.
func buildIndexMapping() mapping.IndexMapping {
	keyword := bleve.NewTextFieldMapping()
	keyword.Analyzer = "keyword"
	keyword.IncludeInAll = false

	articleID := bleve.NewNumericFieldMapping()
	articleID.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ArticleID", articleID)
	docMapping.AddFieldMappingsAt("Title", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("URL", keyword)
	docMapping.AddFieldMappingsAt("Text", bleve.NewTextFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

// Count returns the number of indexed chunks.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// IndexChunks pages through every stored chunk and indexes it with its
// article's title and URL. Re-indexing a chunk overwrites it.
// Returns the number of chunks indexed.
func (i *Index) IndexChunks(ctx context.Context, store Store, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	articles := make(map[core.ID]*core.Article)
	var after core.ID
	var total int
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		chunks, err := store.Chunks().ListChunks(ctx, after, batchSize)
		if err != nil {
			return total, fmt.Errorf("list chunks after %d: %w", after, err)
		}
		if len(chunks) == 0 {
			break
		}

		batch := i.index.NewBatch()
		for _, c := range chunks {
			article, ok := articles[c.ArticleID]
			if !ok {
				article, err = store.Articles().GetArticle(ctx, c.ArticleID)
				if err != nil {
					return total, fmt.Errorf("article %d of chunk %d: %w", c.ArticleID, c.ID, err)
				}
				articles[c.ArticleID] = article
			}
			doc := &chunkDocument{
				ArticleID: float64(c.ArticleID),
				Title:     article.Title,
				URL:       article.CanonicalURL,
				Text:      c.ChunkText,
			}
			if err := batch.Index(docID(c.ID), doc); err != nil {
				return total, fmt.Errorf("batch index chunk %d: %w", c.ID, err)
			}
		}
		if err := i.index.Batch(batch); err != nil {
			return total, fmt.Errorf("commit batch: %w", err)
		}

		total += len(chunks)
		after = chunks[len(chunks)-1].ID
		i.logger.Debug("indexed batch", "chunks", len(chunks), "through", after)
	}

	i.logger.Info("indexing complete", "chunks", total)
	return total, nil
}

// Search runs a query string query and returns up to limit hits, best first.
func (i *Index) Search(queryStr string, limit int) ([]*Hit, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlightWithStyle("html")
	search.Fields = []string{"ArticleID", "Title", "URL"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	hits := make([]*Hit, 0, len(results.Hits))
	for _, match := range results.Hits {
		id, err := strconv.ParseUint(match.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed chunk id %q: %w", match.ID, err)
		}
		hit := &Hit{
			ChunkID:   core.ID(id),
			Score:     match.Score,
			Fragments: match.Fragments,
		}
		if articleID, ok := match.Fields["ArticleID"].(float64); ok {
			hit.ArticleID = core.ID(articleID)
		}
		if title, ok := match.Fields["Title"].(string); ok {
			hit.Title = title
		}
		if url, ok := match.Fields["URL"].(string); ok {
			hit.URL = url
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func docID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
