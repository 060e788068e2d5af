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
	"sync/atomic"
)

const invalidThreadIndex = ^uint64(0)

// localEntry is one per-worker chunked storage in the intrusive list.
type localEntry[T any] struct {
	storage  ChunkedStorage[T]
	threadId uint32
	// index is unique per instance but not necessarily consistent with
	// the order of the next pointers.
	index uint64
	next  *localEntry[T]
}

// LocalStorageRef is the handle a worker appends through. Only the
// registering worker may mutate the referenced storage.
type LocalStorageRef[T any] struct {
	storage *ChunkedStorage[T]
	index   uint64
}

func (ref LocalStorageRef[T]) Valid() bool {
	return ref.storage != nil
}

func (ref LocalStorageRef[T]) Storage() *ChunkedStorage[T] {
	return ref.storage
}

// ParallelChunkedStorage is a collection of per-worker ChunkedStorage
// entries with lock-free registration and parallel whole-chunk iteration.
// Entries are never removed individually; the collection is iterated,
// cleared, or moved as a whole.
type ParallelChunkedStorage[T any] struct {
	frontEntry atomic.Pointer[localEntry[T]]
	numEntries atomic.Uint64
}

// CreateLocalStorage registers a new per-worker storage. Safe to call
// concurrently; makes lock-free progress.
func (ps *ParallelChunkedStorage[T]) CreateLocalStorage(threadId uint32) LocalStorageRef[T] {
	entry := &localEntry[T]{
		threadId: threadId,
		index:    ps.numEntries.Add(1) - 1,
	}
	for {
		entry.next = ps.frontEntry.Load()
		if ps.frontEntry.CompareAndSwap(entry.next, entry) {
			break
		}
	}
	return LocalStorageRef[T]{
		storage: &entry.storage,
		index:   entry.index,
	}
}

// Size sums the sizes of all local storages. Not thread-safe and linear
// in the number of entries.
func (ps *ParallelChunkedStorage[T]) Size() uint64 {
	var numElems uint64
	for entry := ps.frontEntry.Load(); entry != nil; entry = entry.next {
		numElems += entry.storage.Size()
	}
	return numElems
}

// Clear removes all entries.
func (ps *ParallelChunkedStorage[T]) Clear() {
	ps.frontEntry.Store(nil)
	ps.numEntries.Store(0)
}

// TakeFrom moves the entries of other into ps. other is left empty.
func (ps *ParallelChunkedStorage[T]) TakeFrom(other *ParallelChunkedStorage[T]) {
	if ps == other {
		return
	}
	ps.frontEntry.Store(other.frontEntry.Load())
	ps.numEntries.Store(other.numEntries.Load())
	other.Clear()
}

// ForEach visits every element of every non-empty local storage in list
// order. Not safe against concurrent appends.
func (ps *ParallelChunkedStorage[T]) ForEach(fn func(v *T)) {
	for entry := ps.frontEntry.Load(); entry != nil; entry = entry.next {
		entry.storage.ForEach(fn)
	}
}

// Range is one chunk's worth of elements claimed exclusively by one
// caller. Element order inside a Range is the insertion order.
type Range[T any] struct {
	chunk *chunk[T]
}

func (r Range[T]) Len() int {
	if r.chunk == nil {
		return 0
	}
	return r.chunk.num
}

func (r Range[T]) At(i int) *T {
	return &r.chunk.elems[i]
}

// Elems exposes the claimed elements as a slice for range loops.
func (r Range[T]) Elems() []T {
	if r.chunk == nil {
		return nil
	}
	return r.chunk.elems[:r.chunk.num]
}

// iterationEntry is the claim state for one local storage inside a
// ParallelIterator snapshot.
type iterationEntry[T any] struct {
	// nextChunk starts at the last chunk; claiming walks backwards via
	// prev so the cursor terminates at nil.
	nextChunk atomic.Pointer[chunk[T]]
	// nextThreadIndex is a hint to skip over known drained entries. It is
	// normally touched only by the caller owning this slot, but callers
	// with unknown thread ids share slot 0, so it stays atomic.
	nextThreadIndex atomic.Uint64
}

// ParallelIterator is a single-use snapshot over all chunks of a
// ParallelChunkedStorage. Each chunk is handed out exactly once across
// all concurrent callers.
type ParallelIterator[T any] struct {
	threadIdMap      map[uint32]uint64
	iterationEntries []iterationEntry[T]
}

// ParallelIter builds a snapshot iterator. The underlying storages must
// not be appended to while the snapshot is in use.
func (ps *ParallelChunkedStorage[T]) ParallelIter() *ParallelIterator[T] {
	iter := &ParallelIterator[T]{
		threadIdMap:      make(map[uint32]uint64),
		iterationEntries: make([]iterationEntry[T], ps.numEntries.Load()),
	}
	for entry := ps.frontEntry.Load(); entry != nil; entry = entry.next {
		iter.threadIdMap[entry.threadId] = entry.index
		iterEntry := &iter.iterationEntries[entry.index]
		iterEntry.nextChunk.Store(entry.storage.backChunk)
		iterEntry.nextThreadIndex.Store(entry.index)
	}
	return iter
}

func (iter *ParallelIterator[T]) nextImpl(threadIndex uint64) (Range[T], bool) {
	if len(iter.iterationEntries) == 0 {
		return Range[T]{}, false
	}
	threadEntry := &iter.iterationEntries[threadIndex]
	nextIndex := threadEntry.nextThreadIndex.Load()
	if nextIndex == invalidThreadIndex {
		return Range[T]{}, false
	}

	for nextIndex != invalidThreadIndex {
		entry := &iter.iterationEntries[nextIndex]
		c := entry.nextChunk.Load()
		for c != nil {
			// Chunks are claimed newest first, so the cursor moves to prev.
			if entry.nextChunk.CompareAndSwap(c, c.prev) {
				threadEntry.nextThreadIndex.Store(nextIndex)
				return Range[T]{chunk: c}, true
			}
			c = entry.nextChunk.Load()
		}

		nextIndex++
		if nextIndex >= uint64(len(iter.iterationEntries)) {
			nextIndex = 0
		}
		threadEntry.nextThreadIndex.Store(nextIndex)
		if nextIndex == threadIndex {
			break
		}
	}

	// Went through the whole list without claiming anything.
	threadEntry.nextThreadIndex.Store(invalidThreadIndex)
	return Range[T]{}, false
}

// Next claims the next unclaimed chunk, preferring the entry registered
// by the given thread id. Returns ok=false once everything is claimed.
func (iter *ParallelIterator[T]) Next(threadId uint32) (Range[T], bool) {
	if idx, ok := iter.threadIdMap[threadId]; ok {
		return iter.nextImpl(idx)
	}
	return iter.nextImpl(0)
}

// NextForRef claims the next unclaimed chunk, preferring the entry of
// the given local storage ref.
func (iter *ParallelIterator[T]) NextForRef(ref LocalStorageRef[T]) (Range[T], bool) {
	return iter.nextImpl(ref.index)
}
