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

package crawl

import "errors"

var (
	// ErrInvalidConfig is returned when a crawler configuration is unusable.
	ErrInvalidConfig = errors.New("invalid crawl config")

	// ErrFrontierRequired is returned when no frontier is provided.
	ErrFrontierRequired = errors.New("frontier required")

	// ErrFetcherRequired is returned when no fetcher is provided.
	ErrFetcherRequired = errors.New("fetcher required")
)
