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

// Package crawl runs the frontier as a pool of workers.
//
// Each worker repeatedly claims a URL, fetches it and completes it. A run
// ends when no URL is eligible and no worker is mid-unit, when the page
// limit is reached, when the context is cancelled or when a completion
// fails.
//
// Basic usage:
//
//	f := frontier.New(store)
//	c, err := crawl.New(f, fetch.New(nil), crawl.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	stats, err := c.Run(ctx)
package crawl
