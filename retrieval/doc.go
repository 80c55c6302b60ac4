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

// Package retrieval ranks stored chunk embeddings against a query.
//
// An Engine loads a bounded window of embeddings for one model, lowest
// embedding ID first, embeds the query with the same model and scores every
// loaded vector by cosine similarity. The top K are found by partial
// selection and only those are sorted. The window is a fixed slice of the
// store, not an index: embeddings beyond it are never considered.
//
// Stored vectors must decode to their recorded dimensionality and share it
// with the rest of the window; any violation fails the whole search with
// core.ErrDimsMismatch.
package retrieval
