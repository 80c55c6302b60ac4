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

package retrieval

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode/utf8"
)

// Epsilon keeps cosine similarity finite for zero vectors.
const Epsilon = 1e-12

// Cosine returns (v·q) / ((|v|+Epsilon)(|q|+Epsilon)). The vectors must have equal length.
func Cosine(v, q []float32) float64 {
	var dot, vv, qq float64
	for i := range v {
		dot += float64(v[i]) * float64(q[i])
		vv += float64(v[i]) * float64(v[i])
		qq += float64(q[i]) * float64(q[i])
	}
	return dot / ((math.Sqrt(vv) + Epsilon) * (math.Sqrt(qq) + Epsilon))
}

// normalizeQuery divides q by its norm plus Epsilon.
func normalizeQuery(q []float32) []float32 {
	var sum float64
	for _, x := range q {
		sum += float64(x) * float64(x)
	}
	n := math.Sqrt(sum) + Epsilon
	out := make([]float32, len(q))
	for i, x := range q {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// TopK returns the indices of the k highest scores, highest first.
// Candidates are narrowed by quickselect and only the survivors are sorted,
// so equal scores come back in no particular order.
func TopK(scores []float64, k int) []int {
	k = min(k, len(scores))
	if k <= 0 {
		return nil
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}

	lo, hi := 0, len(idx)-1
	for lo < hi {
		p := partition(scores, idx, lo, hi)
		if p == k-1 {
			break
		}
		if p < k-1 {
			lo = p + 1
		} else {
			hi = p - 1
		}
	}

	top := idx[:k]
	slices.SortFunc(top, func(a, b int) int {
		return cmp.Compare(scores[b], scores[a])
	})
	return top
}

// partition moves higher scores than the middle pivot of idx[lo..hi] to its
// left and returns the pivot's final position.
func partition(scores []float64, idx []int, lo, hi int) int {
	mid := lo + (hi-lo)/2
	idx[mid], idx[hi] = idx[hi], idx[mid]
	pivot := scores[idx[hi]]
	store := lo
	for i := lo; i < hi; i++ {
		if scores[idx[i]] > pivot {
			idx[store], idx[i] = idx[i], idx[store]
			store++
		}
	}
	idx[store], idx[hi] = idx[hi], idx[store]
	return store
}

// Snippet trims text, turns newlines into spaces and cuts it to n code
// points, marking a cut with an ellipsis.
func Snippet(text string, n int) string {
	s := strings.ReplaceAll(strings.TrimSpace(text), "\n", " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
