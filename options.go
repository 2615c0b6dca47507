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

import "unsafe"

// option provide an interface to do work on Table while it is being created.
type option[V any] interface {
	apply(t *Table[V])
}

type hashOption[V any] struct {
	hash func(key string) uint64
}

func (op hashOption[V]) apply(t *Table[V]) {
	t.hash = op.hash
}

// WithHash is an option to specify the hash function to use for a Table[V].
// The default is Hash. The function must be deterministic.
func WithHash[V any](hash func(key string) uint64) option[V] {
	return hashOption[V]{hash}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Table. The default allocator utilizes Go's builtin make() and allows
// the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots and
// index arrays be freed then Table.Close must be called in order to ensure
// FreeSlots and FreeIndex are called.
type Allocator[V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[V], n).
	AllocSlots(n int) []Slot[V]

	// AllocIndex should return a slice equivalent to make([]uint64, n).
	AllocIndex(n int) []uint64

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[V])

	// FreeIndex can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocIndex.
	FreeIndex(v []uint64)
}

type defaultAllocator[V any] struct{}

func (defaultAllocator[V]) AllocSlots(n int) []Slot[V] {
	return make([]Slot[V], n)
}

func (defaultAllocator[V]) AllocIndex(n int) []uint64 {
	return make([]uint64, n)
}

func (defaultAllocator[V]) FreeSlots(v []Slot[V]) {
}

func (defaultAllocator[V]) FreeIndex(v []uint64) {
}

type allocatorOption[V any] struct {
	allocator Allocator[V]
}

func (op allocatorOption[V]) apply(t *Table[V]) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Table[V].
func WithAllocator[V any](allocator Allocator[V]) option[V] {
	return allocatorOption[V]{allocator}
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}
