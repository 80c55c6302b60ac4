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
	"fmt"
	"io"
	"time"
)

// Monitor observes the stages of one search.
type Monitor interface {
	Start(query string)
	AfterLoad(rows, dims int)
	AfterQueryEmbedding(dims int)
	Finish(results []*Result)
}

// noopMonitor is a no-op implementation of Monitor
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)            {}
func (n *noopMonitor) AfterLoad(_, _ int)        {}
func (n *noopMonitor) AfterQueryEmbedding(_ int) {}
func (n *noopMonitor) Finish(_ []*Result)        {}

// TimingMonitor writes the elapsed time of every stage to a writer.
type TimingMonitor struct {
	w     io.Writer
	start time.Time
	last  time.Time
}

var _ Monitor = (*TimingMonitor)(nil)

// NewTimingMonitor creates a monitor writing to w.
func NewTimingMonitor(w io.Writer) *TimingMonitor {
	return &TimingMonitor{w: w}
}

func (m *TimingMonitor) Start(query string) {
	m.start = time.Now()
	m.last = m.start
	fmt.Fprintf(m.w, "[search] query=%q\n", query)
}

func (m *TimingMonitor) AfterLoad(rows, dims int) {
	fmt.Fprintf(m.w, "[search] loaded %d embeddings dims=%d in %s\n", rows, dims, m.lap())
}

func (m *TimingMonitor) AfterQueryEmbedding(dims int) {
	fmt.Fprintf(m.w, "[search] embedded query dims=%d in %s\n", dims, m.lap())
}

func (m *TimingMonitor) Finish(results []*Result) {
	m.lap()
	fmt.Fprintf(m.w, "[search] ranked %d results, total %s\n", len(results), time.Since(m.start).Round(time.Millisecond))
}

func (m *TimingMonitor) lap() time.Duration {
	now := time.Now()
	d := now.Sub(m.last).Round(time.Millisecond)
	m.last = now
	return d
}
