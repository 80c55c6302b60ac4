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

package core

import (
	"testing"
	"time"
)

func TestHashContent_Deterministic(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "simple string", content: "test content"},
		{name: "empty string", content: ""},
		{name: "unicode", content: "Lietuvos naujienos: ąčęėįšųūž"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := HashContent(tt.content)
			h2 := HashContent(tt.content)
			if h1 != h2 {
				t.Errorf("HashContent() produced different hashes for same content: %s vs %s", h1, h2)
			}
			if h1.IsZero() {
				t.Errorf("HashContent() produced zero hash")
			}
		})
	}
}

func TestHashURL_Different(t *testing.T) {
	h1 := HashURL("https://www.lrt.lt/naujienos/lietuvoje/1")
	h2 := HashURL("https://www.lrt.lt/naujienos/lietuvoje/2")
	if h1 == h2 {
		t.Errorf("HashURL() produced same hash for different urls")
	}
}

func TestChunkHash_IncludesArticleAndIndex(t *testing.T) {
	text := "Identical paragraph text."

	base := ChunkHash(1, 0, text)
	if other := ChunkHash(2, 0, text); other == base {
		t.Errorf("ChunkHash() collided across articles")
	}
	if other := ChunkHash(1, 1, text); other == base {
		t.Errorf("ChunkHash() collided across indexes")
	}
	if again := ChunkHash(1, 0, text); again != base {
		t.Errorf("ChunkHash() not deterministic")
	}
	// "1:0:" + text must not equal "10:" + text with a shifted separator.
	if ChunkHash(1, 0, "x") == ChunkHash(10, 0, "x") {
		t.Errorf("ChunkHash() collided on id prefix")
	}
}

func TestHashFromBytes(t *testing.T) {
	h := HashContent("abc")
	got, ok := HashFromBytes(h[:])
	if !ok || got != h {
		t.Errorf("HashFromBytes() = %v, %v; want %v, true", got, ok, h)
	}
	if _, ok := HashFromBytes([]byte{1, 2, 3}); ok {
		t.Errorf("HashFromBytes() accepted short input")
	}
}

func TestURL_IsDue(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		next *time.Time
		want bool
	}{
		{name: "no schedule", next: nil, want: true},
		{name: "past", next: &past, want: true},
		{name: "exactly now", next: &now, want: true},
		{name: "future", next: &future, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &URL{NextFetchAt: tt.next}
			if got := u.IsDue(now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}
