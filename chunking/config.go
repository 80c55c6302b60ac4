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

package chunking

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid chunking config")

// Config holds the size bounds of the chunker. Lengths count Unicode code points.
type Config struct {
	// TargetChars is the soft threshold: a buffer reaching it is flushed.
	TargetChars int

	// MaxChars is the hard cap no chunk may exceed.
	MaxChars int

	// OverlapParas is the number of trailing items of a flushed chunk that
	// start the next one. Zero disables overlap.
	OverlapParas int
}

// DefaultConfig returns the default chunk bounds.
func DefaultConfig() *Config {
	return &Config{
		TargetChars:  1500,
		MaxChars:     2200,
		OverlapParas: 1,
	}
}

// Validate checks that the bounds are usable.
func (c *Config) Validate() error {
	if c.TargetChars <= 0 {
		return fmt.Errorf("%w: target chars must be positive, got %d", ErrInvalidConfig, c.TargetChars)
	}
	if c.MaxChars < c.TargetChars {
		return fmt.Errorf("%w: max chars %d below target chars %d", ErrInvalidConfig, c.MaxChars, c.TargetChars)
	}
	if c.OverlapParas < 0 {
		return fmt.Errorf("%w: overlap paragraphs must not be negative, got %d", ErrInvalidConfig, c.OverlapParas)
	}
	return nil
}
