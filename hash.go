// Copyright 2024 The Cockroach Authors
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

package htable

import (
	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// hashMultiplier is the string hash multiplier used by CPython.
const hashMultiplier = 1000003

// Hash is the default hash function of a Table. It is the classic CPython
// string hash: the accumulator is seeded with the first byte shifted left 7
// bits, each byte is folded in with h = (1000003*h) ^ b, and the length is
// xor'ed in at the end. The arithmetic is 64-bit and wraps on overflow. A
// negative accumulator is negated, so the result always fits in 63 bits
// except for the single wrapping case math.MinInt64, which maps to 1<<63.
//
// Hash("") is 0.
func Hash(key string) uint64 {
	var h int64
	if len(key) > 0 {
		h = int64(key[0]) << 7
	}
	for i := 0; i < len(key); i++ {
		h = (hashMultiplier * h) ^ int64(key[i])
	}
	h ^= int64(len(key))
	if h < 0 {
		h = -h
	}
	return uint64(h)
}

// XXHash hashes key with 64-bit xxHash. It can be passed to WithHash when
// the key distribution defeats the default hash.
func XXHash(key string) uint64 {
	return xxhash.Sum64String(key)
}

// XXH3 hashes key with the 64-bit XXH3 variant. It can be passed to WithHash.
func XXH3(key string) uint64 {
	return xxh3.HashString(key)
}
