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

package badger

import (
	"encoding/binary"

	"github.com/poiesic/newsrag/core"
)

// Key prefixes for different data types
const (
	urlPrefix            = "url:"
	urlHashPrefix        = "urlhash:"
	urlQueuePrefix       = "urlq:"
	urlFetchingPrefix    = "urlf:"
	fetchPrefix          = "fetch:"
	fetchURLPrefix       = "fetchurl:"
	articlePrefix        = "art:"
	articleURLPrefix     = "arturl:"
	chunkPrefix          = "chunk:"
	chunkHashPrefix      = "chunkhash:"
	chunkArticlePrefix   = "chunkart:"
	embeddingPrefix      = "emb:"
	embeddingKeyPrefix   = "embkey:"
	embeddingModelPrefix = "embmodel:"

	urlIDSeq       = "seq:url"
	fetchIDSeq     = "seq:fetch"
	articleIDSeq   = "seq:art"
	chunkIDSeq     = "seq:chunk"
	embeddingIDSeq = "seq:emb"
)

// Model names are separated from the IDs that follow them by a NUL byte.
const modelTerminator = 0x00

// appendUint64 appends v in BigEndian order so lexicographic sort matches numeric sort.
func appendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// makeIDKey generates a key for a record by ID. Format: prefix + id
func makeIDKey(prefix string, id core.ID) []byte {
	return appendUint64([]byte(prefix), uint64(id))
}

// makePairKey generates a composite key of two IDs. Format: prefix + a + b
func makePairKey(prefix string, a, b uint64) []byte {
	return appendUint64(appendUint64([]byte(prefix), a), b)
}

// makeHashKey generates a key for a dedup hash. Format: prefix + hash
func makeHashKey(prefix string, h core.Hash) []byte {
	return append([]byte(prefix), h[:]...)
}

// queueRank maps a priority to a value that sorts higher priorities first.
func queueRank(priority int) uint64 {
	return ^(uint64(int64(priority)) ^ (1 << 63))
}

// makeQueueKey generates a key for the queued index.
// Format: prefix + rank(priority) + id, so iteration yields priority desc then id asc.
func makeQueueKey(priority int, id core.ID) []byte {
	return makePairKey(urlQueuePrefix, queueRank(priority), uint64(id))
}

// makeModelPrefix generates the shared prefix of every key for a model. Format: prefix + model + NUL
func makeModelPrefix(prefix, model string) []byte {
	buf := make([]byte, 0, len(prefix)+len(model)+9)
	buf = append(buf, prefix...)
	buf = append(buf, model...)
	return append(buf, modelTerminator)
}

// makeEmbeddingKey generates the uniqueness key of an embedding. Format: prefix + model + NUL + chunkID
func makeEmbeddingKey(model string, chunkID core.ID) []byte {
	return appendUint64(makeModelPrefix(embeddingKeyPrefix, model), uint64(chunkID))
}

// makeEmbeddingModelKey generates the per-model ordering key. Format: prefix + model + NUL + embeddingID
func makeEmbeddingModelKey(model string, id core.ID) []byte {
	return appendUint64(makeModelPrefix(embeddingModelPrefix, model), uint64(id))
}

// trailingID reads the ID stored in the last 8 bytes of a key.
func trailingID(key []byte) core.ID {
	if len(key) < 8 {
		return 0
	}
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}
