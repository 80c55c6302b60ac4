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

// Package progress reports the advance of batch jobs on a terminal line.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Tracker reports processed-item counts for a job of known size.
// A nil *Tracker is valid and reports nothing, so jobs can take one unconditionally.
type Tracker struct {
	writer       io.Writer
	label        string
	total        int
	every        int
	current      int
	lastReported int
	startTime    time.Time
	started      bool
	mu           sync.Mutex
}

// New creates a tracker that writes "label: n/total" to w every `every` items.
func New(w io.Writer, label string, total, every int) *Tracker {
	if every < 1 {
		every = 1
	}
	return &Tracker{
		writer: w,
		label:  label,
		total:  total,
		every:  every,
	}
}

// Start begins tracking progress.
func (p *Tracker) Start() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// Add advances progress by delta items, capped at the total.
func (p *Tracker) Add(delta int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current += delta
	if p.current > p.total {
		p.current = p.total
	}
	if p.current-p.lastReported >= p.every {
		p.report()
		p.lastReported = p.current
	}
}

// Finish prints the final count and ends the line. The count is what was
// actually added, which can be below the total when a job stops early.
func (p *Tracker) Finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report()
	fmt.Fprintln(p.writer)
	p.started = false
}

// Elapsed returns the time elapsed since Start was called.
func (p *Tracker) Elapsed() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// report prints the current progress. Must be called with lock held.
func (p *Tracker) report() {
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.current) / elapsed
	}

	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\r%s: %d/%d (%.1f%%) - %.1f/s", p.label, p.current, p.total, percentage, rate)
}
