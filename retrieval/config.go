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

package retrieval

import (
	"fmt"

	"github.com/poiesic/newsrag/ai"
)

const (
	// DefaultPrefix marks queries for E5-style models.
	DefaultPrefix = "query: "

	// DefaultTopK is the number of results returned.
	DefaultTopK = 10

	// DefaultWindow is the number of embeddings loaded per search.
	DefaultWindow = 5000

	// DefaultSnippetChars is the snippet length in code points.
	DefaultSnippetChars = 350
)

// Config holds search settings.
type Config struct {
	Model  string
	Prefix string
	TopK   int
	// Window caps the embeddings loaded from the store.
	Window int
	// NormalizeQuery scales the query vector to unit length before scoring.
	NormalizeQuery bool
	SnippetChars   int
}

// DefaultConfig returns the search defaults for the default model.
func DefaultConfig() *Config {
	return &Config{
		Model:        ai.DefaultEmbeddingModel,
		Prefix:       DefaultPrefix,
		TopK:         DefaultTopK,
		Window:       DefaultWindow,
		SnippetChars: DefaultSnippetChars,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: topk must be positive, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %d", ErrInvalidConfig, c.Window)
	}
	if c.SnippetChars < 0 {
		return fmt.Errorf("%w: snippet chars must not be negative, got %d", ErrInvalidConfig, c.SnippetChars)
	}
	return nil
}
