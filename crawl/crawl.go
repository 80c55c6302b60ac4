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

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/fetch"
	"github.com/poiesic/newsrag/frontier"
)

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Response, error)
}

// Config holds crawler settings.
type Config struct {
	// Workers is the number of concurrent claim-fetch-complete loops.
	Workers int

	// Poll is how long an idle worker waits while a peer is still busy.
	Poll time.Duration

	// MaxPages bounds the number of claims in one run. Zero means unbounded.
	MaxPages int
}

// DefaultConfig returns a single worker polling every second with no page limit.
func DefaultConfig() *Config {
	return &Config{
		Workers: 1,
		Poll:    time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if c.Poll <= 0 {
		return fmt.Errorf("%w: poll must be positive, got %s", ErrInvalidConfig, c.Poll)
	}
	if c.MaxPages < 0 {
		return fmt.Errorf("%w: max pages must not be negative, got %d", ErrInvalidConfig, c.MaxPages)
	}
	return nil
}

// Stats summarizes a crawl run.
type Stats struct {
	Claimed     int
	Fetched     int
	Failed      int
	Quarantined int
	Articles    int
	Discovered  int
}

// Crawler drives a frontier with a fetcher.
type Crawler struct {
	frontier *frontier.Frontier
	fetcher  Fetcher
	config   Config
	logger   *slog.Logger
}

// New creates a crawler. A nil config uses DefaultConfig.
func New(f *frontier.Frontier, fetcher Fetcher, config *Config) (*Crawler, error) {
	if f == nil {
		return nil, ErrFrontierRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Crawler{
		frontier: f,
		fetcher:  fetcher,
		config:   *config,
		logger:   slog.Default().With("component", "crawler"),
	}, nil
}

// Run recovers abandoned URLs and crawls until nothing is eligible.
// A completion failure stops every worker and is returned with the
// stats gathered so far.
func (c *Crawler) Run(ctx context.Context) (Stats, error) {
	if _, err := c.frontier.Recover(ctx); err != nil {
		return Stats{}, err
	}

	pool, err := ants.NewPool(c.config.Workers)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{crawler: c, cancel: cancel}
	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			r.work(runCtx)
		}); err != nil {
			wg.Done()
			r.fail(fmt.Errorf("failed to start worker: %w", err))
			break
		}
	}
	wg.Wait()

	stats, err := r.result()
	if err == nil {
		err = ctx.Err()
	}
	c.logger.Info("crawl finished",
		"claimed", stats.Claimed,
		"fetched", stats.Fetched,
		"failed", stats.Failed,
		"quarantined", stats.Quarantined,
		"articles", stats.Articles,
		"discovered", stats.Discovered)
	return stats, err
}

// run is the shared state of the workers of one Run call.
type run struct {
	crawler *Crawler
	cancel  context.CancelFunc

	mu       sync.Mutex
	stats    Stats
	err      error
	inFlight int
	pages    int
}

func (r *run) work(ctx context.Context) {
	c := r.crawler
	for ctx.Err() == nil {
		if !r.reserve() {
			return
		}

		u, err := c.frontier.Claim(ctx)
		if err != nil {
			r.release(false)
			if ctx.Err() == nil {
				r.fail(err)
			}
			return
		}
		if u == nil {
			if !r.release(false) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.config.Poll):
			}
			continue
		}

		err = r.process(ctx, u)
		r.release(true)
		if err != nil {
			r.fail(err)
			return
		}
	}
}

// process fetches and completes one claimed URL.
func (r *run) process(ctx context.Context, u *core.URL) error {
	c := r.crawler
	resp, err := c.fetcher.Fetch(ctx, u.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("fetch failed", "url", u.URL, "attempts", u.Attempts, "err", err)
		r.update(func(s *Stats) { s.Failed++ })
		return nil
	}

	outcome, err := c.frontier.Complete(ctx, u, resp)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to complete %s: %w", u.URL, err)
	}

	r.update(func(s *Stats) {
		if outcome.Quarantined {
			s.Quarantined++
			return
		}
		s.Fetched++
		s.Discovered += outcome.Discovered
		if outcome.Article != nil {
			s.Articles++
		}
	})
	return nil
}

// reserve marks the worker busy and takes a page from the budget.
// Reports false when the budget is spent.
func (r *run) reserve() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := r.crawler.config.MaxPages
	if limit > 0 && r.pages >= limit {
		return false
	}
	r.pages++
	r.inFlight++
	return true
}

// release marks the worker idle. A reservation that claimed nothing
// returns its page to the budget. Reports whether any peer is still busy.
func (r *run) release(claimed bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight--
	if claimed {
		r.stats.Claimed++
	} else {
		r.pages--
	}
	return r.inFlight > 0
}

func (r *run) update(fn func(*Stats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.stats)
}

// fail records the first error and stops every worker.
func (r *run) fail(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
	r.cancel()
}

func (r *run) result() (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats, r.err
}
