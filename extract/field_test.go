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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestField_UnmarshalJSON(t *testing.T) {
	var obj struct {
		A Field[string] `json:"a"`
		B Field[string] `json:"b"`
		C Field[string] `json:"c"`
		D Field[int]    `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":null,"d":{"nested":true}}`), &obj))

	v, ok := obj.A.Get()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	assert.False(t, obj.B.OK())
	assert.False(t, obj.C.OK())
	assert.False(t, obj.D.OK())
	assert.Equal(t, 7, obj.D.OrElse(7))
}

func TestFirst(t *testing.T) {
	calls := 0
	source := func(f Field[string]) Source[string] {
		return func() Field[string] {
			calls++
			return f
		}
	}

	got := First(source(Absent[string]()), source(Present("b")), source(Present("c")))
	assert.Equal(t, "b", got.OrElse(""))
	assert.Equal(t, 2, calls)

	assert.False(t, First[string]().OK())
}

func TestThen(t *testing.T) {
	double := func(n int) Field[int] { return Present(2 * n) }
	assert.Equal(t, 4, Then(Present(2), double).OrElse(0))
	assert.False(t, Then(Absent[int](), double).OK())
}
