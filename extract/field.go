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
	"bytes"
	"encoding/json"
)

// Field is an optional value: either present with a value or absent.
type Field[T any] struct {
	value T
	ok    bool
}

// Present returns a field holding v.
func Present[T any](v T) Field[T] {
	return Field[T]{value: v, ok: true}
}

// Absent returns an empty field.
func Absent[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.ok
}

// OK reports whether the field is present.
func (f Field[T]) OK() bool {
	return f.ok
}

// OrElse returns the value, or fallback when the field is absent.
func (f Field[T]) OrElse(fallback T) T {
	if f.ok {
		return f.value
	}
	return fallback
}

// UnmarshalJSON decodes a JSON value into the field. null and values of the
// wrong type leave the field absent instead of failing the enclosing object.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	*f = Field[T]{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil
	}
	*f = Present(v)
	return nil
}

// Source produces a candidate field value.
type Source[T any] func() Field[T]

// First returns the first present field among sources, trying them in order.
func First[T any](sources ...Source[T]) Field[T] {
	for _, source := range sources {
		if f := source(); f.ok {
			return f
		}
	}
	return Absent[T]()
}

// Then maps a present value through fn, which may still report it absent.
func Then[T, U any](f Field[T], fn func(T) Field[U]) Field[U] {
	if !f.ok {
		return Absent[U]()
	}
	return fn(f.value)
}
