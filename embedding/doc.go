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

// Package embedding generates and stores vector embeddings for chunks.
//
// A Job selects chunks that have no embedding under its model, sends their
// prefixed texts to an ai.Embedder in batches and stores each vector as
// little-endian float32 bytes with its dimensionality. Inserts are keyed by
// (chunk, model), so re-running a job never duplicates work already stored.
// Every vector of one run must share a dimensionality.
package embedding
