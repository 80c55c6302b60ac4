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

package frontier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		url        string
		claim      bool
		discovered bool
	}{
		{"https://www.lrt.lt/naujienos/lietuvoje/2/1/a", true, true},
		{"https://www.lrt.lt/naujienos/mokslas-ir-it", true, true},
		{"https://www.lrt.lt/naujienos/verslas/video/1", true, false},
		{"https://www.lrt.lt/naujienos/pasaulyje/2/1/apie-nuomones", true, true},
		{"https://www.lrt.lt/naujienos/pasaulyje/nuomones/1", true, false},
		{"https://www.lrt.lt/naujienos/sportas/1", false, false},
		{"https://www.lrt.lt/mediateka", false, false},
		{"http://www.lrt.lt/naujienos/lietuvoje/1", false, false},
		{"https://example.com/naujienos/lietuvoje", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.claim, p.AllowClaim(tt.url))
			assert.Equal(t, tt.discovered, p.AllowDiscovered(tt.url))
		})
	}
}

func TestPolicy_IsEntrypoint(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.IsEntrypoint(10))
	assert.True(t, p.IsEntrypoint(50))
	assert.False(t, p.IsEntrypoint(9))
	assert.False(t, p.IsEntrypoint(0))
}
