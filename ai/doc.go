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

// Package ai provides the embedding abstraction used by newsrag.
//
// The embedding orchestrator and the retrieval engine depend on the
// Embedder interface rather than on a concrete client, so the model
// service can be swapped and tests can run without one.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding endpoints via langchaingo
//   - ai/mock: deterministic test double
//
// Public constructors (openai.NewEmbedder) return the ai.Embedder interface.
// The test double constructor (mock.NewMockEmbedder) returns the concrete
// type so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingHost("http://localhost:8080"))
//	embedder, err := openai.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vectors, err := embedder.EmbedTexts(ctx, []string{"passage: Seimas priėmė biudžetą"})
package ai
