// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"unsafe"

	"github.com/daviszhen/udo/pkg/util"
)

const (
	// chunkMinBytes is the smallest allocation for a chunk.
	chunkMinBytes = 1024
	// chunkMaxBytes caps the allocation for a single chunk.
	chunkMaxBytes = 32 << 20
)

// chunk is one slab of a ChunkedStorage. Chunks form a doubly linked
// list; elems never reallocates, so element addresses are stable.
type chunk[T any] struct {
	prev  *chunk[T]
	next  *chunk[T]
	elems []T
	num   int
}

func (c *chunk[T]) capacity() int {
	return cap(c.elems)
}

// ChunkedStorage is an append-only container with stable references,
// constant time insertion at the end and geometrically growing chunks.
// It must only be mutated by its single owner.
type ChunkedStorage[T any] struct {
	frontChunk *chunk[T]
	backChunk  *chunk[T]
	numElems   uint64
}

func elemSize[T any]() int {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	if sz == 0 {
		sz = 1
	}
	return sz
}

// minNumElems gives the element count of the first chunk so that its
// byte size reaches chunkMinBytes.
func minNumElems[T any]() int {
	sz := elemSize[T]()
	if sz >= chunkMinBytes {
		return 1
	}
	return (chunkMinBytes-1)/sz + 1
}

// maxNumElems clips chunk growth so a chunk stays under chunkMaxBytes.
func maxNumElems[T any]() int {
	n := chunkMaxBytes / elemSize[T]()
	if n < 1 {
		return 1
	}
	return n
}

func (cs *ChunkedStorage[T]) addChunk() {
	newElems := int(cs.numElems / 4)
	newElems = max(newElems, minNumElems[T]())
	newElems = min(newElems, maxNumElems[T]())

	c := &chunk[T]{
		elems: make([]T, 0, newElems),
	}
	if cs.backChunk != nil {
		cs.backChunk.next = c
		c.prev = cs.backChunk
	} else {
		cs.frontChunk = c
	}
	cs.backChunk = c
}

// Append stores v at the end and returns a pointer to the stored element.
// The pointer stays valid until the storage is cleared or destroyed.
func (cs *ChunkedStorage[T]) Append(v T) *T {
	if cs.backChunk == nil || cs.backChunk.num == cs.backChunk.capacity() {
		cs.addChunk()
	}
	bc := cs.backChunk
	util.AssertFunc(bc.num < bc.capacity())
	bc.elems = append(bc.elems, v)
	ptr := &bc.elems[bc.num]
	bc.num++
	cs.numElems++
	return ptr
}

func (cs *ChunkedStorage[T]) Size() uint64 {
	return cs.numElems
}

func (cs *ChunkedStorage[T]) Empty() bool {
	return cs.numElems == 0
}

// Clear drops all elements and chunks.
func (cs *ChunkedStorage[T]) Clear() {
	cs.frontChunk = nil
	cs.backChunk = nil
	cs.numElems = 0
}

// TakeFrom moves the contents of other into cs. other is left empty.
func (cs *ChunkedStorage[T]) TakeFrom(other *ChunkedStorage[T]) {
	if cs == other {
		return
	}
	cs.frontChunk = other.frontChunk
	cs.backChunk = other.backChunk
	cs.numElems = other.numElems
	other.Clear()
}

// Merge splices other onto the tail of cs in constant time. After the
// call other is empty. Iteration yields cs's elements, then other's.
func (cs *ChunkedStorage[T]) Merge(other *ChunkedStorage[T]) {
	if other.frontChunk == nil {
		return
	}
	if cs.backChunk == nil {
		cs.TakeFrom(other)
		return
	}
	cs.backChunk.next = other.frontChunk
	other.frontChunk.prev = cs.backChunk
	cs.backChunk = other.backChunk
	cs.numElems += other.numElems
	other.Clear()
}

// Iterator walks all elements in insertion order, skipping empty chunks.
type Iterator[T any] struct {
	chunk   *chunk[T]
	elemIdx int
}

func (it *Iterator[T]) forward() {
	for it.chunk != nil && it.chunk.num == 0 {
		it.chunk = it.chunk.next
	}
}

func (it *Iterator[T]) Valid() bool {
	return it.chunk != nil
}

func (it *Iterator[T]) Value() *T {
	return &it.chunk.elems[it.elemIdx]
}

func (it *Iterator[T]) Next() {
	it.elemIdx++
	if it.elemIdx == it.chunk.num {
		it.chunk = it.chunk.next
		it.elemIdx = 0
		it.forward()
	}
}

func (cs *ChunkedStorage[T]) Iter() Iterator[T] {
	it := Iterator[T]{chunk: cs.frontChunk}
	it.forward()
	return it
}

// ForEach visits every stored element in insertion order.
func (cs *ChunkedStorage[T]) ForEach(fn func(v *T)) {
	for it := cs.Iter(); it.Valid(); it.Next() {
		fn(it.Value())
	}
}
