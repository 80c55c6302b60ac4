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

// Package fetch downloads pages over HTTP with a timeout, bounded retries and
// a politeness rate limit shared by every caller of one Fetcher.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/newsrag/retry"
	"golang.org/x/time/rate"
)

// DefaultUserAgent identifies the crawler to the source site.
const DefaultUserAgent = "newsrag/1.0 (+https://github.com/poiesic/newsrag)"

// ErrStatus is wrapped by StatusError.
var ErrStatus = errors.New("unexpected http status")

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: %d", e.URL, ErrStatus, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config holds fetcher settings.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds one request attempt, redirects and body included.
	Timeout time.Duration

	// Attempts is the total number of tries on transport errors, 5xx and 429.
	Attempts int

	// RetryDelay is the base backoff, doubled after each failed attempt.
	RetryDelay time.Duration

	// RatePerSecond caps requests per second across all callers. Zero or less disables the limit.
	RatePerSecond float64

	// MaxBodyBytes caps how much of a body is read.
	MaxBodyBytes int64
}

// DefaultConfig returns the crawler defaults.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:     DefaultUserAgent,
		Timeout:       20 * time.Second,
		Attempts:      3,
		RetryDelay:    500 * time.Millisecond,
		RatePerSecond: 2,
		MaxBodyBytes:  8 << 20,
	}
}

// Response is a fetched page.
type Response struct {
	Status      int
	ContentType string
	// FinalURL is the address after redirects.
	FinalURL string
	// ResponseMS is the duration of the successful attempt in milliseconds.
	ResponseMS int64
	Body       string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. The fetcher uses a copy whose
// timeout is Config.Timeout; client itself is left untouched.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// Fetcher performs HTTP GETs. It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	config  Config
	logger  *slog.Logger
}

// New creates a fetcher. A nil config uses DefaultConfig.
func New(config *Config, opts ...Option) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	f := &Fetcher{
		client: &http.Client{},
		config: *config,
		logger: slog.Default().With("component", "fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	client := *f.client
	client.Timeout = f.config.Timeout
	f.client = &client

	limit := rate.Inf
	if f.config.RatePerSecond > 0 {
		limit = rate.Limit(f.config.RatePerSecond)
	}
	f.limiter = rate.NewLimiter(limit, 1)
	return f
}

// Fetch downloads url. Transport errors, 5xx and 429 responses are retried
// with exponential backoff; other non-2xx responses fail at once with a *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	policy := retry.Policy{
		Attempts:  f.config.Attempts,
		BaseDelay: f.config.RetryDelay,
		Retryable: retryable,
	}

	var resp *Response
	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		var err error
		resp, err = f.once(ctx, url)
		if err != nil {
			f.logger.Debug("fetch attempt failed", "url", url, "attempt", attempt, "err", err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("fetched", "url", url, "final", resp.FinalURL, "status", resp.Status, "ms", resp.ResponseMS)
	return resp, nil
}

func (f *Fetcher) once(ctx context.Context, url string) (*Response, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))
		return nil, &StatusError{URL: url, Code: res.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		Status:      res.StatusCode,
		ContentType: res.Header.Get("Content-Type"),
		FinalURL:    res.Request.URL.String(),
		ResponseMS:  time.Since(start).Milliseconds(),
		Body:        string(body),
	}, nil
}

// retryable reports whether a failed attempt may succeed on a later try.
// Caller cancellation is final; an expired caller deadline is caught by retry.Do.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code >= 500 || status.Code == http.StatusTooManyRequests
	}
	return true
}
