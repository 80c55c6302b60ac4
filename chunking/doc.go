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

// Package chunking splits article text into bounded, overlapping windows and
// persists them as chunks.
//
// Chunk is a pure function: identical text and Config always yield the same
// sequence. Text is grouped by paragraph into a buffer that is flushed once it
// reaches Config.TargetChars, and never allowed to grow past Config.MaxChars.
// Paragraphs longer than MaxChars are split into sentences, and sentences
// longer than MaxChars into fixed windows of MaxChars code points. After each
// flush the last Config.OverlapParas items of the flushed buffer seed the next
// one, so neighbouring chunks share their boundary paragraphs.
//
// Job applies Chunk to stored articles that have no chunks yet and writes the
// output through a storage.ChunkRepository, one transaction per article.
package chunking
