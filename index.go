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

import "fmt"

// Each entry of the index array is in one of three states: empty, a
// tombstone left behind by a delete, or occupied by the position of a live
// slot. They are encoded as:
//
//	    empty: 0
//	tombstone: 1
//	 occupied: position + 2
//
// Empty is the zero value so a freshly allocated index array is all empty.
type indexEntry uint64

const (
	indexEmpty     indexEntry = 0
	indexTombstone indexEntry = 1
	indexOccupied  indexEntry = 2
)

func occupied(pos int) indexEntry {
	return indexEntry(pos) + indexOccupied
}

func (e indexEntry) isEmpty() bool {
	return e == indexEmpty
}

func (e indexEntry) isTombstone() bool {
	return e == indexTombstone
}

func (e indexEntry) isOccupied() bool {
	return e >= indexOccupied
}

// position returns the slot position of an occupied entry. It must not be
// called on an empty entry or a tombstone.
func (e indexEntry) position() int {
	return int(e - indexOccupied)
}

func (e indexEntry) String() string {
	switch e {
	case indexEmpty:
		return "empty"
	case indexTombstone:
		return "tombstone"
	default:
		return fmt.Sprintf("slot(%d)", e.position())
	}
}

// perturbShift is the number of bits perturb is shifted by at each probe
// step. Together with the 5*i+1 recurrence it fixes the probe order.
const perturbShift = 5

// probeSeq maintains the state for a probe sequence over an index array of
// mask+1 entries. The sequence is
//
//	i(0)   = hash & mask
//	i(n+1) = (5*i(n) + 1 + perturb(n)) & mask
//	perturb(0) = hash, perturb(n+1) = perturb(n) >> 5
//
// While perturb is non-zero the higher bits of the hash take part in
// choosing the next index. Once it has been shifted down to zero the
// recurrence i = 5*i+1 (mod 2^k) remains, which has full period, so every
// index is eventually visited.
type probeSeq struct {
	mask    uint64
	index   uint64
	perturb uint64
}

func makeProbeSeq(hash uint64, mask uint64) probeSeq {
	return probeSeq{
		mask:    mask,
		index:   hash & mask,
		perturb: hash,
	}
}

func (s probeSeq) next() probeSeq {
	s.index = (5*s.index + 1 + s.perturb) & s.mask
	s.perturb >>= perturbShift
	return s
}

func (s probeSeq) String() string {
	return fmt.Sprintf("mask=%d index=%d perturb=%d", s.mask, s.index, s.perturb)
}
