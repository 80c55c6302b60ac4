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

package extract

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Defaults of the LRT source.
const (
	DefaultAuthor     = "LRT.lt"
	DefaultMinTextLen = 300
)

// nonArticlePaths mark pages that never hold article text even inside an <article> element.
var nonArticlePaths = []string{"/fotogalerija", "/video", "/tiesiogiai", "/live"}

// dateLayouts are the ISO-8601 forms accepted for publish dates.
// Dates without a zone are taken as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Document is the normalized result of extracting one page.
type Document struct {
	// IsArticle reports whether the page looks like a news article.
	// The article fields are only set when it does.
	IsArticle   bool
	Title       string
	Author      string
	PublishedAt *time.Time
	Text        string

	// Links are the absolute, fragment-free links of the page in first-seen
	// order, filtered by the extractor's link filter.
	Links []string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLinkFilter keeps only links for which allow returns true.
func WithLinkFilter(allow func(string) bool) Option {
	return func(e *Extractor) {
		e.allowLink = allow
	}
}

// WithMinTextLen sets the minimum body length, in code points, of an article.
func WithMinTextLen(n int) Option {
	return func(e *Extractor) {
		e.minTextLen = n
	}
}

// WithDefaultAuthor sets the author used when a page names none.
func WithDefaultAuthor(author string) Option {
	return func(e *Extractor) {
		e.defaultAuthor = author
	}
}

// Extractor parses HTML pages. It is safe for concurrent use.
type Extractor struct {
	allowLink     func(string) bool
	minTextLen    int
	defaultAuthor string
	logger        *slog.Logger
}

// New creates an extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		minTextLen:    DefaultMinTextLen,
		defaultAuthor: DefaultAuthor,
		logger:        slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses body, the page served at finalURL.
// Relative links are resolved against finalURL.
func (e *Extractor) Extract(finalURL string, body io.Reader) (*Document, error) {
	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url %q: %w", finalURL, err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html of %s: %w", finalURL, err)
	}

	result := &Document{Links: e.links(doc, base)}

	title, text, ok := e.article(doc, finalURL)
	if !ok {
		e.logger.Debug("page is not an article", "url", finalURL, "links", len(result.Links))
		return result, nil
	}

	ld := linkedDataObjects(doc)
	result.IsArticle = true
	result.Title = title
	result.Text = text
	result.Author = author(doc, ld).OrElse(e.defaultAuthor)
	if published, ok := publishedAt(doc, ld).Get(); ok {
		result.PublishedAt = &published
	}
	return result, nil
}

// ExtractString is Extract over an in-memory page.
func (e *Extractor) ExtractString(finalURL, body string) (*Document, error) {
	return e.Extract(finalURL, strings.NewReader(body))
}

// article applies the article heuristics and returns title and body text.
func (e *Extractor) article(doc *goquery.Document, pageURL string) (string, string, bool) {
	for _, p := range nonArticlePaths {
		if strings.Contains(pageURL, p) {
			return "", "", false
		}
	}
	if doc.Find("article").Length() == 0 {
		return "", "", false
	}

	title := strings.TrimSpace(doc.Find("article h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var paras []string
	doc.Find("article p").Each(func(_ int, s *goquery.Selection) {
		if p := strings.TrimSpace(s.Text()); p != "" {
			paras = append(paras, p)
		}
	})
	text := strings.Join(paras, "\n\n")

	if title == "" || text == "" || utf8.RuneCountInString(text) < e.minTextLen {
		return "", "", false
	}
	return title, text, true
}

func (e *Extractor) links(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawFragment = ""
		link := abs.String()

		if e.allowLink != nil && !e.allowLink(link) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		out = append(out, link)
	})
	return out
}

// author tries the author meta tag, then the JSON-LD objects in page order.
func author(doc *goquery.Document, ld []linkedData) Field[string] {
	sources := []Source[string]{
		func() Field[string] { return metaContent(doc, `meta[name="author"]`) },
	}
	for _, obj := range ld {
		sources = append(sources, func() Field[string] { return obj.Author.Field })
	}
	return First(sources...)
}

// publishedAt tries the article:published_time meta tag, then the
// datePublished and dateCreated properties of each JSON-LD object.
func publishedAt(doc *goquery.Document, ld []linkedData) Field[time.Time] {
	sources := []Source[time.Time]{
		func() Field[time.Time] { return Then(metaContent(doc, `meta[property="article:published_time"]`), parseDate) },
	}
	for _, obj := range ld {
		sources = append(sources,
			func() Field[time.Time] { return Then(obj.DatePublished, parseDate) },
			func() Field[time.Time] { return Then(obj.DateCreated, parseDate) },
		)
	}
	return First(sources...)
}

func metaContent(doc *goquery.Document, selector string) Field[string] {
	content, ok := doc.Find(selector).First().Attr("content")
	if !ok {
		return Absent[string]()
	}
	return nonBlank(content)
}

// parseDate parses an ISO-8601 timestamp and converts it to UTC.
func parseDate(s string) Field[time.Time] {
	s = strings.TrimSpace(s)
	if s == "" {
		return Absent[time.Time]()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Present(t.UTC())
		}
	}
	return Absent[time.Time]()
}
