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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/newsrag/core"
)

// codec is the subset of a mus-go serializer used by the record codecs.
type codec[T any] interface {
	Marshal(v T, bs []byte) (n int)
	Unmarshal(bs []byte) (v T, n int, err error)
	Size(v T) (size int)
}

type encoder struct {
	buf []byte
}

func put[T any](e *encoder, c codec[T], v T) {
	off := len(e.buf)
	e.buf = append(e.buf, make([]byte, c.Size(v))...)
	c.Marshal(v, e.buf[off:])
}

func (e *encoder) id(v core.ID) { put(e, varint.Uint64, uint64(v)) }
func (e *encoder) int(v int) { put(e, varint.Int, v) }
func (e *encoder) int64(v int64) { put(e, varint.Int64, v) }
func (e *encoder) str(v string) { put(e, ord.String, v) }
func (e *encoder) flag(v bool) { put(e, ord.Bool, v) }
func (e *encoder) hash(h core.Hash) { e.buf = append(e.buf, h[:]...) }

func (e *encoder) bytes(v []byte) {
	e.int(len(v))
	e.buf = append(e.buf, v...)
}

// Times are stored as Unix microseconds in UTC.
func (e *encoder) time(t time.Time) { e.int64(t.UnixMicro()) }

func (e *encoder) optTime(t *time.Time) {
	e.flag(t != nil)
	if t != nil {
		e.time(*t)
	}
}

func (e *encoder) optID(id *core.ID) {
	e.flag(id != nil)
	if id != nil {
		e.id(*id)
	}
}

type decoder struct {
	bs  []byte
	err error
}

func get[T any](d *decoder, c codec[T]) (v T) {
	if d.err != nil {
		return v
	}
	v, n, err := c.Unmarshal(d.bs)
	if err != nil {
		d.err = err
		return v
	}
	d.bs = d.bs[n:]
	return v
}

func (d *decoder) id() core.ID { return core.ID(get(d, varint.Uint64)) }
func (d *decoder) int() int { return get(d, varint.Int) }
func (d *decoder) int64() int64 { return get(d, varint.Int64) }
func (d *decoder) str() string { return get(d, ord.String) }
func (d *decoder) flag() bool { return get(d, ord.Bool) }

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.bs) {
		d.err = ErrTruncatedData
		return nil
	}
	b := d.bs[:n:n]
	d.bs = d.bs[n:]
	return b
}

func (d *decoder) hash() core.Hash {
	var h core.Hash
	copy(h[:], d.take(core.HashSize))
	return h
}

func (d *decoder) bytes() []byte {
	n := d.int()
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) time() time.Time {
	return time.UnixMicro(d.int64()).UTC()
}

func (d *decoder) optTime() *time.Time {
	if !d.flag() {
		return nil
	}
	t := d.time()
	if d.err != nil {
		return nil
	}
	return &t
}

func (d *decoder) optID() *core.ID {
	if !d.flag() {
		return nil
	}
	id := d.id()
	if d.err != nil {
		return nil
	}
	return &id
}

func (d *decoder) finish(kind string) error {
	if d.err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSerializationFailed, kind, d.err)
	}
	return nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	var e encoder
	e.id(id)
	return e.buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	d := decoder{bs: data}
	id := d.id()
	return id, d.finish("id")
}

// MarshalURL serializes a URL record to bytes.
func MarshalURL(u *core.URL) []byte {
	var e encoder
	e.id(u.ID)
	e.int(u.SourceID)
	e.str(u.URL)
	e.hash(u.URLHash)
	e.str(string(u.Status))
	e.int(u.Priority)
	e.int(u.Attempts)
	e.optTime(u.NextFetchAt)
	e.optID(u.DiscoveredFrom)
	e.time(u.InsertedAt)
	return e.buf
}

// UnmarshalURL deserializes a URL record from bytes.
func UnmarshalURL(data []byte) (*core.URL, error) {
	d := decoder{bs: data}
	u := &core.URL{
		ID:       d.id(),
		SourceID: d.int(),
		URL:      d.str(),
		URLHash:  d.hash(),
		Status:   core.URLStatus(d.str()),
		Priority: d.int(),
		Attempts: d.int(),
	}
	u.NextFetchAt = d.optTime()
	u.DiscoveredFrom = d.optID()
	u.InsertedAt = d.time()
	if err := d.finish("url"); err != nil {
		return nil, err
	}
	return u, nil
}

// MarshalFetch serializes a Fetch to bytes.
func MarshalFetch(f *core.Fetch) []byte {
	var e encoder
	e.id(f.ID)
	e.id(f.URLID)
	e.int(f.HTTPStatus)
	e.str(f.ContentType)
	e.str(f.FinalURL)
	e.int64(f.ResponseMS)
	e.str(f.Body)
	e.time(f.FetchedAt)
	return e.buf
}

// UnmarshalFetch deserializes a Fetch from bytes.
func UnmarshalFetch(data []byte) (*core.Fetch, error) {
	d := decoder{bs: data}
	f := &core.Fetch{
		ID:          d.id(),
		URLID:       d.id(),
		HTTPStatus:  d.int(),
		ContentType: d.str(),
		FinalURL:    d.str(),
		ResponseMS:  d.int64(),
		Body:        d.str(),
		FetchedAt:   d.time(),
	}
	if err := d.finish("fetch"); err != nil {
		return nil, err
	}
	return f, nil
}

// MarshalArticle serializes an Article to bytes.
func MarshalArticle(a *core.Article) []byte {
	var e encoder
	e.id(a.ID)
	e.int(a.SourceID)
	e.id(a.URLID)
	e.str(a.CanonicalURL)
	e.str(a.Title)
	e.optTime(a.PublishedAt)
	e.str(a.Author)
	e.str(a.Text)
	e.hash(a.TextHash)
	e.time(a.InsertedAt)
	e.time(a.UpdatedAt)
	return e.buf
}

// UnmarshalArticle deserializes an Article from bytes.
func UnmarshalArticle(data []byte) (*core.Article, error) {
	d := decoder{bs: data}
	a := &core.Article{
		ID:           d.id(),
		SourceID:     d.int(),
		URLID:        d.id(),
		CanonicalURL: d.str(),
		Title:        d.str(),
	}
	a.PublishedAt = d.optTime()
	a.Author = d.str()
	a.Text = d.str()
	a.TextHash = d.hash()
	a.InsertedAt = d.time()
	a.UpdatedAt = d.time()
	if err := d.finish("article"); err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(c *core.Chunk) []byte {
	var e encoder
	e.id(c.ID)
	e.id(c.ArticleID)
	e.int(c.ChunkIndex)
	e.str(c.ChunkText)
	e.hash(c.ChunkHash)
	return e.buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	d := decoder{bs: data}
	c := &core.Chunk{
		ID:         d.id(),
		ArticleID:  d.id(),
		ChunkIndex: d.int(),
		ChunkText:  d.str(),
		ChunkHash:  d.hash(),
	}
	if err := d.finish("chunk"); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalEmbedding serializes an Embedding to bytes.
func MarshalEmbedding(emb *core.Embedding) []byte {
	var e encoder
	e.id(emb.ID)
	e.id(emb.ChunkID)
	e.str(emb.Model)
	e.int(emb.Dims)
	e.bytes(emb.Vector)
	return e.buf
}

// UnmarshalEmbedding deserializes an Embedding from bytes.
// The vector is returned as stored; dimensionality is checked by the reader.
func UnmarshalEmbedding(data []byte) (*core.Embedding, error) {
	d := decoder{bs: data}
	emb := &core.Embedding{
		ID:      d.id(),
		ChunkID: d.id(),
		Model:   d.str(),
		Dims:    d.int(),
	}
	emb.Vector = d.bytes()
	if err := d.finish("embedding"); err != nil {
		return nil, err
	}
	return emb, nil
}
