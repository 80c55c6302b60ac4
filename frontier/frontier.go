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

// Package frontier owns the lifecycle of crawl URLs: which URL is fetched
// next, what happens after a fetch and which links enter the queue.
//
// A URL moves from queued to fetching when claimed and from fetching to
// fetched when completed. Entrypoints, URLs at or above the policy's
// entrypoint priority, go back to queued with a delay instead, so section
// front pages are re-crawled periodically. Recover returns URLs abandoned
// in fetching by an earlier run to the queue.
//
// Claims are compare-and-transition: a URL is only moved to fetching if it is
// still queued, so several workers can claim from one store concurrently.
package frontier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/newsrag/core"
	"github.com/poiesic/newsrag/extract"
	"github.com/poiesic/newsrag/fetch"
	"github.com/poiesic/newsrag/storage"
)

const (
	// DefaultSeedPriority makes seeds entrypoints under the default policy.
	DefaultSeedPriority = 10

	// MaxBodyChars caps the stored body of a fetch, in code points.
	MaxBodyChars = 200_000

	// claimBatch is how many candidates one claim round considers.
	claimBatch = 8
)

// Store is the storage surface the frontier needs.
type Store interface {
	storage.Transactor
	URLs() storage.URLRepository
	Fetches() storage.FetchRepository
	Articles() storage.ArticleRepository
}

// Extractor parses a fetched page.
type Extractor interface {
	Extract(finalURL string, body io.Reader) (*extract.Document, error)
}

// Outcome describes what Complete did with one fetched URL.
type Outcome struct {
	// Quarantined is set when the final URL failed the whitelist. Nothing
	// else was recorded.
	Quarantined bool
	// Requeued is set when the URL is an entrypoint and was queued again.
	Requeued bool
	Fetch    *core.Fetch
	// Links is the number of whitelisted links found; Discovered how many were new.
	Links      int
	Discovered int
	// Article is the upserted article, nil when the page is not one.
	Article *core.Article
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithPolicy replaces the default whitelist policy.
func WithPolicy(p Policy) Option {
	return func(f *Frontier) {
		f.policy = p
	}
}

// WithExtractor replaces the default HTML extractor.
func WithExtractor(e Extractor) Option {
	return func(f *Frontier) {
		f.extractor = e
	}
}

// WithClock replaces the time source used for due checks and requeue delays.
func WithClock(now func() time.Time) Option {
	return func(f *Frontier) {
		f.now = now
	}
}

// Frontier implements the crawl queue over a Store. It is safe for concurrent use.
type Frontier struct {
	store     Store
	extractor Extractor
	policy    Policy
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a frontier. Unless replaced, pages are parsed by an
// extract.Extractor whose links are filtered by the policy's discovery check.
func New(store Store, opts ...Option) *Frontier {
	f := &Frontier{
		store:  store,
		policy: DefaultPolicy(),
		now:    storage.Now,
		logger: slog.Default().With("component", "frontier"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.extractor == nil {
		f.extractor = extract.New(extract.WithLinkFilter(f.policy.AllowDiscovered))
	}
	return f
}

// Policy returns the frontier's whitelist policy.
func (f *Frontier) Policy() Policy {
	return f.policy
}

// Recover moves every URL left in fetching back to queued and returns how many moved.
// It must run before any worker claims, since it cannot tell abandoned claims from live ones.
func (f *Frontier) Recover(ctx context.Context) (int, error) {
	n, err := f.store.URLs().ResetFetching(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset fetching urls: %w", err)
	}
	if n > 0 {
		f.logger.Info("recovered urls left in fetching", "count", n)
	}
	return n, nil
}

// Claim selects the highest-priority, lowest-id queued URL that is due and
// under an allowed root, and moves it to fetching with one more attempt.
// A candidate taken by a concurrent claimer is skipped. Returns nil when
// no URL is eligible.
func (f *Frontier) Claim(ctx context.Context) (*core.URL, error) {
	for {
		candidates, err := f.store.URLs().NextQueued(ctx, f.now(), f.policy.Roots, claimBatch)
		if err != nil {
			return nil, fmt.Errorf("failed to select queued urls: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		for _, u := range candidates {
			if !f.policy.AllowClaim(u.URL) {
				continue
			}
			n, err := f.store.URLs().TransitionToFetching(ctx, u.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to claim url %d: %w", u.ID, err)
			}
			if n == 0 {
				f.logger.Debug("lost claim race", "url", u.URL)
				continue
			}
			u.Status = core.URLStatusFetching
			u.Attempts++
			return u, nil
		}
	}
}

// Enqueue inserts the whitelisted urls not yet known as queued, priority 0,
// discovered from the URL with ID from. Zero from records no origin.
// Returns the number inserted; known URLs are skipped without error.
func (f *Frontier) Enqueue(ctx context.Context, from core.ID, urls []string) (int, error) {
	seen := make(map[string]struct{}, len(urls))
	var records []*core.URL
	for _, address := range urls {
		if !f.policy.AllowDiscovered(address) {
			continue
		}
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}

		u := &core.URL{URL: address, Status: core.URLStatusQueued}
		if from != 0 {
			origin := from
			u.DiscoveredFrom = &origin
		}
		records = append(records, u)
	}
	if len(records) == 0 {
		return 0, nil
	}

	n, err := f.store.URLs().InsertURLs(ctx, records...)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue urls: %w", err)
	}
	return n, nil
}

// Seed inserts entrypoint URLs with the given priority. Every seed must pass
// the discovery whitelist; otherwise nothing is inserted and the error wraps
// ErrOutsideWhitelist. Returns the number of new URLs.
func (f *Frontier) Seed(ctx context.Context, urls []string, priority int) (int, error) {
	records := make([]*core.URL, 0, len(urls))
	for _, address := range urls {
		address = strings.TrimSpace(address)
		if !f.policy.AllowDiscovered(address) {
			return 0, fmt.Errorf("seed %q: %w", address, ErrOutsideWhitelist)
		}
		records = append(records, &core.URL{URL: address, Status: core.URLStatusQueued, Priority: priority})
	}

	n, err := f.store.URLs().InsertURLs(ctx, records...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert seeds: %w", err)
	}
	f.logger.Info("seeded frontier", "urls", len(urls), "inserted", n, "priority", priority)
	return n, nil
}

// RecordFetch appends a fetch row for a claimed URL, capping the stored body at MaxBodyChars.
func (f *Frontier) RecordFetch(ctx context.Context, urlID core.ID, resp *fetch.Response) (*core.Fetch, error) {
	record := &core.Fetch{
		URLID:       urlID,
		HTTPStatus:  resp.Status,
		ContentType: resp.ContentType,
		FinalURL:    resp.FinalURL,
		ResponseMS:  resp.ResponseMS,
		Body:        truncate(resp.Body, MaxBodyChars),
	}
	saved, err := f.store.Fetches().AddFetch(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to record fetch of url %d: %w", urlID, err)
	}
	return saved, nil
}

// Complete finishes a claimed URL in one transaction.
//
// A response whose final URL fails the whitelist only marks the URL fetched.
// Otherwise the fetch is recorded, the URL is marked fetched (or requeued if
// it is an entrypoint), its whitelisted links are enqueued and, if the page
// looks like an article, the article is upserted. Any failure rolls back the
// whole completion.
func (f *Frontier) Complete(ctx context.Context, claimed *core.URL, resp *fetch.Response) (*Outcome, error) {
	if !f.policy.AllowDiscovered(resp.FinalURL) {
		f.logger.Info("quarantined out-of-whitelist response", "url", claimed.URL, "final", resp.FinalURL)
		err := f.store.URLs().UpdateStatus(ctx, claimed.ID, core.URLStatusFetched, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to quarantine url %d: %w", claimed.ID, err)
		}
		return &Outcome{Quarantined: true}, nil
	}

	doc, err := f.extractor.Extract(resp.FinalURL, strings.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", resp.FinalURL, err)
	}

	outcome := &Outcome{}
	err = f.store.WithTransaction(ctx, func(ctx context.Context) error {
		*outcome = Outcome{}

		saved, err := f.RecordFetch(ctx, claimed.ID, resp)
		if err != nil {
			return err
		}
		outcome.Fetch = saved

		if outcome.Requeued, err = f.finish(ctx, claimed.ID); err != nil {
			return err
		}

		outcome.Links = len(doc.Links)
		if outcome.Discovered, err = f.Enqueue(ctx, claimed.ID, doc.Links); err != nil {
			return err
		}

		if doc.IsArticle {
			article, err := f.store.Articles().UpsertArticle(ctx, &core.Article{
				SourceID:     claimed.SourceID,
				URLID:        claimed.ID,
				CanonicalURL: resp.FinalURL,
				Title:        doc.Title,
				PublishedAt:  doc.PublishedAt,
				Author:       doc.Author,
				Text:         doc.Text,
			})
			if err != nil {
				return fmt.Errorf("failed to upsert article of url %d: %w", claimed.ID, err)
			}
			outcome.Article = article
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f.logger.Debug("completed url",
		"url", claimed.URL,
		"requeued", outcome.Requeued,
		"links", outcome.Links,
		"discovered", outcome.Discovered,
		"article", outcome.Article != nil)
	return outcome, nil
}

// finish applies the status rule: entrypoints are requeued after the
// policy delay, every other URL is fetched. Reports whether it requeued.
func (f *Frontier) finish(ctx context.Context, id core.ID) (bool, error) {
	current, err := f.store.URLs().GetURL(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to read url %d: %w", id, err)
	}
	if f.policy.IsEntrypoint(current.Priority) {
		next := f.now().Add(f.policy.RequeueDelay)
		return true, f.store.URLs().UpdateStatus(ctx, id, core.URLStatusQueued, &next)
	}
	return false, f.store.URLs().UpdateStatus(ctx, id, core.URLStatusFetched, nil)
}

// truncate cuts s to at most n code points.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
