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
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func genSeq(n int, hash uint64, mask uint64) []uint64 {
	seq := makeProbeSeq(hash, mask)
	vals := make([]uint64, n)
	for i := 0; i < n; i++ {
		vals[i] = seq.index
		seq = seq.next()
	}
	return vals
}

func TestProbeSeq(t *testing.T) {
	// With perturb already zero the walk is i = 5*i+1 (mod 8).
	require.Equal(t, []uint64{0, 1, 6, 7, 4, 5, 2, 3, 0}, genSeq(9, 0, 7))

	// 37 = 0b100101: start at 5, then perturb feeds in 37 and 1 before
	// dropping to zero.
	require.Equal(t, []uint64{5, 7, 5, 2, 3, 0}, genSeq(6, 37, 7))

	seq := makeProbeSeq(37, 7).next()
	require.Equal(t, "mask=7 index=7 perturb=1", seq.String())
}

func TestProbeSeqVisitsAll(t *testing.T) {
	// A 64-bit perturb is exhausted after 13 shifts of 5 bits, after which
	// the walk has full period over the index.
	const shifts = (64 + perturbShift - 1) / perturbShift

	r := rand.New(rand.NewSource(7))
	for _, size := range []uint64{8, 32, 128, 1024} {
		for i := 0; i < 20; i++ {
			h := r.Uint64()
			vals := genSeq(2*shifts+int(size), h, size-1)
			seen := make(map[uint64]bool)
			for _, v := range vals {
				require.Less(t, v, size)
				seen[v] = true
			}
			require.EqualValues(t, size, len(seen), "hash=%x size=%d", h, size)
		}
	}
}

func TestIndexEntry(t *testing.T) {
	var e indexEntry
	require.True(t, e.isEmpty())
	require.False(t, e.isTombstone())
	require.False(t, e.isOccupied())
	require.Equal(t, "empty", e.String())

	e = indexTombstone
	require.False(t, e.isEmpty())
	require.True(t, e.isTombstone())
	require.False(t, e.isOccupied())
	require.Equal(t, "tombstone", e.String())

	for _, pos := range []int{0, 1, 41, 1 << 30} {
		e = occupied(pos)
		require.False(t, e.isEmpty())
		require.False(t, e.isTombstone())
		require.True(t, e.isOccupied())
		require.Equal(t, pos, e.position())
	}
	require.Equal(t, "slot(3)", occupied(3).String())
}
