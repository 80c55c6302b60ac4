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

package embedding

import (
	"fmt"

	"github.com/poiesic/newsrag/ai"
	"github.com/poiesic/newsrag/retry"
)

const (
	// DefaultPrefix marks indexed passages for E5-style models.
	DefaultPrefix = "passage: "

	// DefaultBatchSize is the number of texts per model call.
	DefaultBatchSize = 32

	// DefaultLimit is the number of chunks a job embeds per run.
	DefaultLimit = 500
)

// Config holds embedding job settings.
type Config struct {
	// Model names the embedding model. Stored embeddings are keyed by it.
	Model string

	// Prefix is prepended to every chunk text before embedding.
	Prefix string

	// BatchSize is the number of texts sent per model call and stored per transaction.
	BatchSize int

	// Normalize scales every vector to unit length before it is stored.
	Normalize bool

	// Retry governs model calls.
	Retry retry.Policy
}

// DefaultConfig returns the job defaults for the default model.
func DefaultConfig() *Config {
	return &Config{
		Model:     ai.DefaultEmbeddingModel,
		Prefix:    DefaultPrefix,
		BatchSize: DefaultBatchSize,
		Retry:     retry.DefaultPolicy,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.Retry.Attempts <= 0 {
		return fmt.Errorf("%w: retry attempts must be positive, got %d", ErrInvalidConfig, c.Retry.Attempts)
	}
	return nil
}
