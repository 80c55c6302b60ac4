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

package core

import (
	"fmt"
	"net/url"
)

// ValidateURL validates a URL record according to domain rules.
//
// Validation rules:
//   - URL must parse as an absolute http or https URL with a host
//   - Status must be a known URLStatus
//
// NOT validated (assigned by the store):
//   - ID
//   - URLHash (derived from URL on insert)
func ValidateURL(u *URL) error {
	if u == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidURL)
	}
	if u.URL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidURL, ErrEmptyContent)
	}
	parsed, err := url.Parse(u.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) url", ErrInvalidURL, u.URL)
	}
	if err := ValidateURLStatus(u.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return nil
}

// ValidateURLStatus validates that a URLStatus has a known value.
func ValidateURLStatus(status URLStatus) error {
	switch status {
	case URLStatusQueued, URLStatusFetching, URLStatusFetched:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
}

// ValidateChunk validates a Chunk according to domain rules.
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if c.ChunkIndex < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, c.ChunkIndex)
	}
	if c.ChunkText == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	return nil
}

// ValidateEmbedding validates an Embedding according to domain rules.
//
// Validation rules:
//   - Model must not be empty
//   - Dims must be positive
//   - Vector must hold exactly Dims float32 values
func ValidateEmbedding(e *Embedding) error {
	if e == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidEmbedding)
	}
	if e.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidEmbedding)
	}
	if e.Dims <= 0 {
		return fmt.Errorf("%w: dims must be positive, got %d", ErrInvalidEmbedding, e.Dims)
	}
	if len(e.Vector) != 4*e.Dims {
		return fmt.Errorf("%w: %w: expected %d bytes, got %d", ErrInvalidEmbedding, ErrDimsMismatch, 4*e.Dims, len(e.Vector))
	}
	return nil
}
