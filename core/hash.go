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

package core

import (
	"encoding/hex"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// HashSize is the digest length used for dedup keys.
const HashSize = 16

// Hash is a BLAKE2b-128 digest used as a dedup key.
type Hash [HashSize]byte

// String returns the hex form of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// HashFromBytes copies a raw digest into a Hash.
// Returns false if b has the wrong length.
func HashFromBytes(b []byte) (Hash, bool) {
	var h Hash
	if len(b) != HashSize {
		return h, false
	}
	copy(h[:], b)
	return h, true
}

// HashContent hashes arbitrary text. Identical content produces identical hashes.
func HashContent(text string) Hash {
	d, _ := blake2b.New(HashSize, nil)
	d.Write([]byte(text))
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

// HashURL returns the dedup key of a URL.
func HashURL(url string) Hash {
	return HashContent(url)
}

// ChunkHash returns the dedup key of a chunk. The article ID and chunk index
// are part of the input so byte-identical chunks of different articles do not collide.
func ChunkHash(articleID ID, chunkIndex int, text string) Hash {
	key := strconv.FormatUint(uint64(articleID), 10) + ":" + strconv.Itoa(chunkIndex) + ":" + text
	return HashContent(key)
}
