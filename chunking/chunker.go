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
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	blankLines     = regexp.MustCompile(`\n{3,}`)
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
)

// Separator costs charged to the running length per appended item.
const (
	paragraphSep = 2
	sentenceSep  = 1
)

// Normalize unifies line endings, collapses runs of three or more newlines
// into one blank line and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// SplitParagraphs splits text on blank lines. Paragraphs are trimmed and empty ones dropped.
func SplitParagraphs(text string) []string {
	var paras []string
	for _, p := range paragraphBreak.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// SplitSentences splits text after '.', '!' or '?' where whitespace follows.
// The whitespace run is consumed; sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	var sentences []string
	start := 0
	prev := rune(0)
	for i, r := range text {
		if unicode.IsSpace(r) && isTerminal(prev) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				sentences = append(sentences, s)
			}
			start = i
		}
		prev = r
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// Chunk splits normalized text into ordered chunk texts.
// The position of a chunk in the result is its chunk index.
func Chunk(text string, cfg Config) []string {
	b := &builder{cfg: cfg}
	for _, para := range SplitParagraphs(text) {
		if runeLen(para) <= cfg.MaxChars {
			b.add(para, paragraphSep)
			continue
		}
		for _, s := range SplitSentences(para) {
			if runeLen(s) <= cfg.MaxChars {
				b.add(s, sentenceSep)
				continue
			}
			for _, piece := range windows(s, cfg.MaxChars) {
				b.add(piece, sentenceSep)
			}
		}
	}
	b.finish()
	return b.chunks
}

// builder accumulates items into chunks.
type builder struct {
	cfg    Config
	chunks []string
	cur    []string
	curLen int
}

func (b *builder) add(item string, sep int) {
	n := runeLen(item)
	if b.curLen+n+sep > b.cfg.MaxChars && len(b.cur) > 0 {
		b.flush()
	}
	// The overlap seed alone may leave no room for the item.
	if b.joinedLen()+n > b.cfg.MaxChars {
		b.cur = nil
		b.curLen = 0
	}
	b.cur = append(b.cur, item)
	b.curLen += n + sep
	if b.curLen >= b.cfg.TargetChars {
		b.flush()
	}
}

// flush emits the buffer and seeds the next one with the trailing overlap items.
func (b *builder) flush() {
	if len(b.cur) == 0 {
		return
	}
	b.emit()

	var seed []string
	if b.cfg.OverlapParas > 0 {
		from := max(len(b.cur)-b.cfg.OverlapParas, 0)
		seed = append(seed, b.cur[from:]...)
	}
	b.cur = seed
	b.curLen = 0
	for _, s := range seed {
		b.curLen += runeLen(s) + 1
	}
}

// joinedLen is the code point length of the buffer once joined with the
// next item: every buffered item plus its newline separator.
func (b *builder) joinedLen() int {
	n := len(b.cur)
	for _, s := range b.cur {
		n += runeLen(s)
	}
	return n
}

func (b *builder) finish() {
	if len(b.cur) > 0 {
		b.emit()
	}
	b.cur = nil
	b.curLen = 0
}

func (b *builder) emit() {
	if chunk := strings.TrimSpace(strings.Join(b.cur, "\n")); chunk != "" {
		b.chunks = append(b.chunks, chunk)
	}
}

// windows cuts s into consecutive pieces of size code points; the last may be shorter.
func windows(s string, size int) []string {
	size = max(size, 1)
	var pieces []string
	for s != "" {
		end := len(s)
		count := 0
		for i := range s {
			if count == size {
				end = i
				break
			}
			count++
		}
		pieces = append(pieces, s[:end])
		s = s[end:]
	}
	return pieces
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
