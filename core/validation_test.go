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
	"errors"
	"math"
	"testing"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		record  *URL
		wantErr error
	}{
		{
			name:    "valid queued url",
			record:  &URL{URL: "https://www.lrt.lt/naujienos/verslas/1", Status: URLStatusQueued},
			wantErr: nil,
		},
		{
			name:    "nil record",
			record:  nil,
			wantErr: ErrInvalidURL,
		},
		{
			name:    "empty url",
			record:  &URL{Status: URLStatusQueued},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "relative url",
			record:  &URL{URL: "/naujienos/verslas/1", Status: URLStatusQueued},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unsupported scheme",
			record:  &URL{URL: "ftp://www.lrt.lt/file", Status: URLStatusQueued},
			wantErr: ErrInvalidURL,
		},
		{
			name:    "unknown status",
			record:  &URL{URL: "https://www.lrt.lt/", Status: "failed"},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.record)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateURL() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateURL() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	tests := []struct {
		name    string
		chunk   *Chunk
		wantErr error
	}{
		{name: "valid chunk", chunk: &Chunk{ArticleID: 1, ChunkIndex: 0, ChunkText: "text"}},
		{name: "nil chunk", chunk: nil, wantErr: ErrInvalidChunk},
		{name: "negative index", chunk: &Chunk{ChunkIndex: -1, ChunkText: "text"}, wantErr: ErrInvalidChunk},
		{name: "empty text", chunk: &Chunk{ChunkIndex: 0}, wantErr: ErrEmptyContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmbedding(t *testing.T) {
	vec := EncodeVector([]float32{0.1, 0.2, 0.3})

	tests := []struct {
		name      string
		embedding *Embedding
		wantErr   error
	}{
		{name: "valid", embedding: &Embedding{ChunkID: 1, Model: "m", Dims: 3, Vector: vec}},
		{name: "nil", embedding: nil, wantErr: ErrInvalidEmbedding},
		{name: "missing model", embedding: &Embedding{Dims: 3, Vector: vec}, wantErr: ErrInvalidEmbedding},
		{name: "zero dims", embedding: &Embedding{Model: "m", Vector: vec}, wantErr: ErrInvalidEmbedding},
		{name: "dims disagree with bytes", embedding: &Embedding{Model: "m", Dims: 4, Vector: vec}, wantErr: ErrDimsMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmbedding(tt.embedding)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateEmbedding() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateEmbedding() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{1.5, -2.25, 0, float32(math.Pi)}
	b := EncodeVector(in)
	if len(b) != 16 {
		t.Fatalf("EncodeVector() produced %d bytes, want 16", len(b))
	}
	// 1.5 is 0x3FC00000, stored little-endian.
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0xC0 || b[3] != 0x3F {
		t.Errorf("EncodeVector() byte order = % x, want little-endian", b[:4])
	}

	out, err := DecodeVector(b, len(in))
	if err != nil {
		t.Fatalf("DecodeVector() error = %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("DecodeVector()[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecodeVector_DimsMismatch(t *testing.T) {
	b := EncodeVector([]float32{1, 2, 3})

	if _, err := DecodeVector(b, 4); !errors.Is(err, ErrDimsMismatch) {
		t.Errorf("DecodeVector() error = %v, want ErrDimsMismatch", err)
	}
	if _, err := DecodeVector(b[:5], 1); !errors.Is(err, ErrDimsMismatch) {
		t.Errorf("DecodeVector() on ragged bytes error = %v, want ErrDimsMismatch", err)
	}
}

func TestNormalizeVector(t *testing.T) {
	got := NormalizeVector([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Errorf("NormalizeVector() = %v, want [0.6 0.8]", got)
	}

	zero := NormalizeVector([]float32{0, 0, 0})
	for i, v := range zero {
		if v != 0 {
			t.Errorf("NormalizeVector(zero)[%d] = %v, want 0", i, v)
		}
	}
}
