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
	"strings"
	"time"
)

// Policy is the whitelist and requeue policy of the frontier.
type Policy struct {
	// Roots are the allowed URL prefixes. A URL must start with one of them
	// to be claimed or discovered.
	Roots []string

	// HostPrefix is the required prefix of every discovered URL.
	HostPrefix string

	// Blacklist holds substrings that exclude a discovered URL.
	Blacklist []string

	// EntrypointPriority is the priority at and above which a URL is an
	// entrypoint, requeued after every completion instead of finishing.
	EntrypointPriority int

	// RequeueDelay is how long an entrypoint waits before its next fetch.
	RequeueDelay time.Duration
}

// DefaultPolicy returns the LRT news whitelist.
func DefaultPolicy() Policy {
	return Policy{
		Roots: []string{
			"https://www.lrt.lt/naujienos/lietuvoje",
			"https://www.lrt.lt/naujienos/verslas",
			"https://www.lrt.lt/naujienos/pasaulyje",
			"https://www.lrt.lt/naujienos/mokslas-ir-it",
		},
		HostPrefix: "https://www.lrt.lt/",
		Blacklist: []string{
			"/sportas", "/kultura", "/gyvenimas", "/pramogos",
			"/video", "/fotogalerija", "/tiesiogiai", "/live", "/muzika",
			"/tavo-lrt", "/eismas", "/verslo-pozicija", "/sveikata",
			"/laisvalaikis", "/svietimas", "/nuomones",
		},
		EntrypointPriority: 10,
		RequeueDelay:       15 * time.Minute,
	}
}

// AllowClaim reports whether url starts with an allowed root.
func (p Policy) AllowClaim(url string) bool {
	for _, root := range p.Roots {
		if strings.HasPrefix(url, root) {
			return true
		}
	}
	return false
}

// AllowDiscovered reports whether url may enter the frontier: it must carry
// the host prefix, contain no blacklisted substring and start with an allowed root.
func (p Policy) AllowDiscovered(url string) bool {
	if !strings.HasPrefix(url, p.HostPrefix) {
		return false
	}
	for _, bad := range p.Blacklist {
		if strings.Contains(url, bad) {
			return false
		}
	}
	return p.AllowClaim(url)
}

// IsEntrypoint reports whether a URL of the given priority is periodically re-crawled.
func (p Policy) IsEntrypoint(priority int) bool {
	return priority >= p.EntrypointPriority
}
