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

// package htable is a Go implementation of the compact, ordered hash table
// used by CPython's dict since 3.6. See
// https://code.activestate.com/recipes/578375/ for the original proposal.
//
// # Layout
//
// A Table keeps two arrays. The index array is sparse: its size is a power
// of two and each entry is either empty, a tombstone, or the position of an
// entry in the slot array. The slot array is dense: entries occupy positions
// [0, Len()) with no holes, and each holds the key's hash, the key and the
// value.
//
//	index:  [ -  3  -  x  0  -  1  2 ]     - empty, x tombstone
//	slots:  [ (h,"a",1) (h,"b",2) (h,"c",3) (h,"d",4) ]
//
// Because entries live in the slot array the index array can be kept sparse
// cheaply (one word per entry), and iteration only touches live entries.
//
// # Probing
//
// A key is located by walking a probe sequence over the index array that
// starts at hash&mask and continues with i = 5*i + 1 + perturb, shifting
// perturb right by 5 bits at each step. See probeSeq. Empty index entries
// terminate the walk. Tombstones do not, so that chains passing through a
// deleted entry stay intact, but the first tombstone seen is reused when the
// key turns out to be absent.
//
// # Growth
//
// The table counts used entries (live) and filled entries (live plus
// tombstones). An insert that consumes an empty index entry and pushes
// filled above 2/3 of the index size triggers a resize: the index array is
// rebuilt at the smallest power of two greater than 4*used, dropping all
// tombstones, and the slot array is grown to 1 + 2/3 of the new index size.
// Slot positions never change during a resize.
//
// # Deletion
//
// Delete leaves a tombstone in the index array and keeps the slot array
// dense by moving the last entry into the vacated position, then pointing
// that entry's index entry at its new position. Iteration order is thus
// insertion order only until the first delete.
//
// # Ownership
//
// Keys are copied on insert. Values are handed to the destructor passed to
// New whenever the table drops them (Set overwriting, Delete, Clear and
// Close), unless the caller takes them back with Swap or LoadAndDelete.
// Every replaced or removed value has exactly one of those two fates.
package htable

import (
	"fmt"
	"math/bits"
	"strings"
)

const (
	debug = false

	initialIndexSize = 8
	initialSlotsSize = 6
)

// Slot holds a key, its hash, and a value.
type Slot[V any] struct {
	hash  uint64
	key   string
	value V
}

// Table is a map from string keys to values of type V with Get, Set, Swap,
// Delete, LoadAndDelete and All operations. Iteration follows slot order.
//
// A Table is NOT goroutine-safe, and must not be mutated from within All.
type Table[V any] struct {
	// The hash function for keys. Hash unless overridden by WithHash.
	hash func(key string) uint64
	// The allocator to use for the index and slots slices.
	allocator Allocator[V]
	// free releases values dropped by the table. May be nil.
	free func(V)
	// index is the sparse index array. Its length is always a power of two.
	index []indexEntry
	// slots is the dense slot array. Entries [0, used) are live.
	slots []Slot[V]
	// The number of live entries.
	used int
	// The number of non-empty index entries (live entries and tombstones).
	filled int
}

// New constructs an empty Table. free is called with every value the table
// drops; it may be nil if values need no release. The zero value for a
// Table is not usable.
func New[V any](free func(V), options ...option[V]) *Table[V] {
	t := &Table[V]{
		hash:      Hash,
		allocator: defaultAllocator[V]{},
		free:      free,
	}

	for _, op := range options {
		op.apply(t)
	}

	t.init()
	return t
}

func (t *Table[V]) init() {
	t.used = 0
	t.filled = 0
	t.index = t.allocIndex(initialIndexSize)
	t.slots = t.allocSlots(initialSlotsSize)
	t.checkInvariants()
}

// Close destroys every value in the table, drops every key and releases
// memory back to the configured allocator. It is invalid to use a Table
// after it has been closed, though Close itself is idempotent.
func (t *Table[V]) Close() {
	t.release()
	t.allocator = nil
}

// Clear destroys every value and drops every key, leaving the table empty
// and at its initial capacity. The destructor, hash function and allocator
// are retained.
func (t *Table[V]) Clear() {
	t.release()
	t.init()
}

func (t *Table[V]) release() {
	if t.index == nil {
		return
	}
	if debug {
		fmt.Printf("release: used=%d filled=%d capacity=%d\n", t.used, t.filled, len(t.index))
	}
	for i := 0; i < t.used; i++ {
		t.dispose(t.slots[i].value)
	}
	clear(t.slots[:t.used])
	t.allocator.FreeSlots(t.slots)
	t.allocator.FreeIndex(unsafeConvertSlice[uint64](t.index))
	t.index = nil
	t.slots = nil
	t.used = 0
	t.filled = 0
}

// Len returns the number of entries in the table.
func (t *Table[V]) Len() int {
	return t.used
}

// capacity returns the size of the index array.
func (t *Table[V]) capacity() int {
	return len(t.index)
}

// Get retrieves the value from the table for the specified key, return
// ok=false if the key is not present. The table retains ownership of the
// value.
func (t *Table[V]) Get(key string) (value V, ok bool) {
	h := t.hash(key)
	e, _ := t.lookup(key, h)
	if !e.isOccupied() {
		return value, false
	}
	return t.slots[e.position()].value, true
}

// Set inserts an entry into the table, overwriting an existing value if an
// entry with the same key already exists. An overwritten value is passed to
// the destructor.
func (t *Table[V]) Set(key string, value V) {
	if previous, loaded := t.put(key, value); loaded {
		t.dispose(previous)
	}
}

// Swap inserts an entry into the table like Set, but returns the value it
// overwrote instead of destroying it. loaded reports whether the key was
// present.
func (t *Table[V]) Swap(key string, value V) (previous V, loaded bool) {
	return t.put(key, value)
}

// Delete deletes the entry corresponding to the specified key from the
// table, passing its value to the destructor. It reports whether the key was
// present; deleting a non-existent key is a noop.
func (t *Table[V]) Delete(key string) bool {
	value, ok := t.remove(key)
	if ok {
		t.dispose(value)
	}
	return ok
}

// LoadAndDelete deletes the entry for key like Delete, but returns its value
// instead of destroying it.
func (t *Table[V]) LoadAndDelete(key string) (value V, loaded bool) {
	return t.remove(key)
}

// All calls yield sequentially for each key and value present in the table,
// in slot order. If yield returns false, All stops the iteration. The table
// must not be mutated during iteration.
//
// The signature matches iter.Seq2, so with Go 1.23 the table can be ranged
// over directly:
//
//	for k, v := range t.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (t *Table[V]) All(yield func(key string, value V) bool) {
	for i := 0; i < t.used; i++ {
		s := &t.slots[i]
		if !yield(s.key, s.value) {
			return
		}
	}
}

func (t *Table[V]) dispose(v V) {
	if t.free != nil {
		t.free(v)
	}
}

// lookup walks the probe sequence for key. If the key is present it returns
// its occupied index entry and that entry's index. Otherwise it returns
// indexEmpty or indexTombstone along with the index at which the key should
// be inserted: the first tombstone on the walk if there was one, else the
// empty entry that ended it.
func (t *Table[V]) lookup(key string, h uint64) (indexEntry, uint64) {
	if t.filled >= len(t.index) {
		panic(fmt.Sprintf("invariant failed: probing a full index (filled=%d capacity=%d)\n%s",
			t.filled, len(t.index), t.debugString()))
	}

	seq := makeProbeSeq(h, uint64(len(t.index)-1))
	if debug {
		fmt.Printf("lookup(%q): %s\n", key, seq)
	}

	var freeIndex uint64
	var haveFree bool
	for ; ; seq = seq.next() {
		e := t.index[seq.index]
		switch {
		case e.isEmpty():
			if haveFree {
				if debug {
					fmt.Printf("lookup(not-found): reuse tombstone index=%d\n", freeIndex)
				}
				return indexTombstone, freeIndex
			}
			if debug {
				fmt.Printf("lookup(not-found): empty index=%d\n", seq.index)
			}
			return indexEmpty, seq.index

		case e.isTombstone():
			if !haveFree {
				freeIndex, haveFree = seq.index, true
			}

		default:
			s := &t.slots[e.position()]
			if s.hash == h && s.key == key {
				if debug {
					fmt.Printf("lookup(found): index=%d pos=%d\n", seq.index, e.position())
				}
				return e, seq.index
			}
		}
	}
}

func (t *Table[V]) put(key string, value V) (previous V, loaded bool) {
	h := t.hash(key)
	e, i := t.lookup(key, h)

	if e.isOccupied() {
		s := &t.slots[e.position()]
		previous, s.value = s.value, value
		if debug {
			fmt.Printf("put(updating): index=%d pos=%d key=%q\n", i, e.position(), key)
		}
		return previous, true
	}

	if t.used >= len(t.slots) {
		panic(fmt.Sprintf("invariant failed: no free slot (used=%d slots=%d)\n%s",
			t.used, len(t.slots), t.debugString()))
	}
	t.index[i] = occupied(t.used)
	t.slots[t.used] = Slot[V]{
		hash:  h,
		key:   strings.Clone(key),
		value: value,
	}
	t.used++
	if debug {
		fmt.Printf("put(inserting): index=%d pos=%d used=%d filled=%d\n", i, t.used-1, t.used, t.filled)
	}

	// Reusing a tombstone does not change filled, so only an insert into an
	// empty index entry can push the load factor over 2/3.
	if e.isEmpty() {
		t.filled++
		if t.filled*3 > len(t.index)*2 {
			t.resize()
		}
	}

	t.checkInvariants()
	return previous, false
}

func (t *Table[V]) remove(key string) (value V, ok bool) {
	h := t.hash(key)
	e, i := t.lookup(key, h)
	if !e.isOccupied() {
		return value, false
	}

	pos := e.position()
	value = t.slots[pos].value
	t.index[i] = indexTombstone
	t.used--
	if debug {
		fmt.Printf("delete(%q): index=%d pos=%d used=%d\n", key, i, pos, t.used)
	}

	if pos != t.used {
		// Move the last entry into the hole and repoint its index entry.
		last := t.slots[t.used]
		le, li := t.lookup(last.key, last.hash)
		if !le.isOccupied() || le.position() != t.used || li == i {
			panic(fmt.Sprintf("invariant failed: relocating %q from %d to %d: lookup returned %s at %d\n%s",
				last.key, t.used, pos, le, li, t.debugString()))
		}
		t.index[li] = occupied(pos)
		t.slots[pos] = last
		if debug {
			fmt.Printf("delete(compacting): %q pos=%d->%d index=%d\n", last.key, t.used, pos, li)
		}
	}
	t.slots[t.used] = Slot[V]{}

	t.checkInvariants()
	return value, true
}

// resize rebuilds the index array at the smallest power of two greater than
// 4*used, dropping all tombstones, and grows the slot array to match. Slots
// keep their positions; only the index array is re-probed.
func (t *Table[V]) resize() {
	newIndexSize := 1 << bits.Len(uint(4*t.used))
	newSlotsSize := 1 + newIndexSize*2/3
	if debug {
		fmt.Printf("resize: capacity=%d->%d slots=%d->%d used=%d filled=%d\n",
			len(t.index), newIndexSize, len(t.slots), newSlotsSize, t.used, t.filled)
	}

	oldIndex := t.index
	t.index = t.allocIndex(newIndexSize)
	mask := uint64(newIndexSize - 1)
	for pos := 0; pos < t.used; pos++ {
		seq := makeProbeSeq(t.slots[pos].hash, mask)
		for !t.index[seq.index].isEmpty() {
			seq = seq.next()
		}
		t.index[seq.index] = occupied(pos)
	}
	t.filled = t.used
	t.allocator.FreeIndex(unsafeConvertSlice[uint64](oldIndex))

	oldSlots := t.slots
	t.slots = t.allocSlots(newSlotsSize)
	copy(t.slots, oldSlots[:t.used])
	clear(oldSlots)
	t.allocator.FreeSlots(oldSlots)
}

func (t *Table[V]) allocIndex(n int) []indexEntry {
	v := t.allocator.AllocIndex(n)
	if len(v) != n {
		panic(fmt.Sprintf("allocation failed: index of %d entries, got %d", n, len(v)))
	}
	index := unsafeConvertSlice[indexEntry](v)
	clear(index)
	return index
}

func (t *Table[V]) allocSlots(n int) []Slot[V] {
	v := t.allocator.AllocSlots(n)
	if len(v) != n {
		panic(fmt.Sprintf("allocation failed: %d slots, got %d", n, len(v)))
	}
	return v
}

func (t *Table[V]) checkInvariants() {
	if invariants {
		n := len(t.index)
		if n == 0 || n&(n-1) != 0 {
			panic(fmt.Sprintf("invariant failed: capacity %d is not a power of two\n%s", n, t.debugString()))
		}
		if t.used > t.filled || t.filled > n {
			panic(fmt.Sprintf("invariant failed: used=%d filled=%d capacity=%d\n%s",
				t.used, t.filled, n, t.debugString()))
		}
		if t.used > len(t.slots) {
			panic(fmt.Sprintf("invariant failed: used=%d exceeds %d slots\n%s",
				t.used, len(t.slots), t.debugString()))
		}
		if t.filled*3 > n*2 {
			panic(fmt.Sprintf("invariant failed: load factor filled=%d capacity=%d\n%s",
				t.filled, n, t.debugString()))
		}

		// Every occupied index entry must reference a distinct live slot,
		// and every live slot must be reachable through lookup.
		seen := make([]bool, t.used)
		var used, tombstones int
		for i, e := range t.index {
			switch {
			case e.isEmpty():
			case e.isTombstone():
				tombstones++
			default:
				p := e.position()
				if p >= t.used || seen[p] {
					panic(fmt.Sprintf("invariant failed: index(%d): bad or duplicate %s\n%s",
						i, e, t.debugString()))
				}
				seen[p] = true
				used++
			}
		}
		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d occupied entries, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
		if used+tombstones != t.filled {
			panic(fmt.Sprintf("invariant failed: found %d filled entries, but filled count is %d\n%s",
				used+tombstones, t.filled, t.debugString()))
		}
		for p := 0; p < t.used; p++ {
			s := &t.slots[p]
			if h := t.hash(s.key); h != s.hash {
				panic(fmt.Sprintf("invariant failed: slot(%d): %q stored hash %x, expected %x\n%s",
					p, s.key, s.hash, h, t.debugString()))
			}
			if e, _ := t.lookup(s.key, s.hash); !e.isOccupied() || e.position() != p {
				panic(fmt.Sprintf("invariant failed: slot(%d): %q not found\n%s", p, s.key, t.debugString()))
			}
		}
	}
}

func (t *Table[V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  filled=%d  slots=%d\n",
		len(t.index), t.used, t.filled, len(t.slots))
	for i, e := range t.index {
		if e.isOccupied() && e.position() < t.used {
			s := &t.slots[e.position()]
			fmt.Fprintf(&buf, "  %4d: %s %q [hash=%016x]\n", i, e, s.key, s.hash)
		} else {
			fmt.Fprintf(&buf, "  %4d: %s\n", i, e)
		}
	}
	return buf.String()
}
