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
	"strings"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/xxh3"
	"golang.org/x/exp/rand"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want uint64
	}{
		{
			name: "empty",
			key:  "",
			want: 0,
		},
		{
			// 97<<7 = 12416; 12416*1000003 ^ 97 ^ 1
			name: "single byte a",
			key:  "a",
			want: 12416037344,
		},
		{
			name: "single byte b",
			key:  "b",
			want: 12544037731,
		},
		{
			name: "single zero byte",
			key:  "\x00",
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Hash(tt.key))
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	buf := make([]byte, 64)
	for i := 0; i < 1000; i++ {
		b := buf[:r.Intn(len(buf))]
		_, _ = r.Read(b)

		// Hash a fresh copy so equal content, not identity, is what matters.
		h := Hash(string(b))
		require.Equal(t, h, Hash(strings.Clone(string(b))))
		require.True(t, h <= 1<<63, "hash %x out of range", h)
	}
}

func TestHashWraps(t *testing.T) {
	// Long keys overflow the accumulator many times over; the result must
	// still be the wrapped value, not a saturated one.
	key := strings.Repeat("\xff", 1024)
	h := Hash(key)
	require.NotEqual(t, uint64(1<<63-1), h)
	require.Equal(t, h, Hash(key))
}

func TestAlternativeHashes(t *testing.T) {
	for _, k := range []string{"", "a", "hello world"} {
		require.Equal(t, xxhash.Sum64String(k), XXHash(k))
		require.Equal(t, xxh3.HashString(k), XXH3(k))
	}
}
