package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParallelStorageRegistration(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]

	const numWorkers = 8
	refs := make([]LocalStorageRef[uint64], numWorkers)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			refs[w] = ps.CreateLocalStorage(uint32(w))
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, ref := range refs {
		require.True(t, ref.Valid())
		assert.False(t, seen[ref.index], "indexes must be unique")
		seen[ref.index] = true
	}
	assert.Equal(t, uint64(numWorkers), ps.numEntries.Load())
}

func TestParallelStorageSizeAndForEach(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]

	a := ps.CreateLocalStorage(0)
	b := ps.CreateLocalStorage(1)
	// An empty registration must be skipped by iteration.
	ps.CreateLocalStorage(2)

	for i := 0; i < 100; i++ {
		a.Storage().Append(uint64(i))
	}
	for i := 100; i < 150; i++ {
		b.Storage().Append(uint64(i))
	}

	assert.Equal(t, uint64(150), ps.Size())

	got := make(map[uint64]bool)
	ps.ForEach(func(v *uint64) {
		got[*v] = true
	})
	assert.Equal(t, 150, len(got))
}

func TestParallelIteratorExclusivity(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]

	const numEntries = 4
	var total uint64
	for e := 0; e < numEntries; e++ {
		ref := ps.CreateLocalStorage(uint32(e))
		// Enough elements per entry for several chunks.
		for i := 0; i < 40000; i++ {
			ref.Storage().Append(total)
			total++
		}
	}

	iter := ps.ParallelIter()

	const numCallers = 8
	var mu sync.Mutex
	claimed := make(map[uint64]int)
	var claimedRanges int

	var wg sync.WaitGroup
	for c := 0; c < numCallers; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for {
				rng, ok := iter.Next(uint32(c % numEntries))
				if !ok {
					break
				}
				mu.Lock()
				claimedRanges++
				for _, v := range rng.Elems() {
					claimed[v]++
				}
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	// Every element appears in exactly one claimed range.
	require.Equal(t, int(total), len(claimed))
	for v, count := range claimed {
		require.Equal(t, 1, count, "element %d claimed %d times", v, count)
	}
	assert.Greater(t, claimedRanges, numEntries)

	// After exhaustion every caller keeps observing none.
	for c := 0; c < numCallers; c++ {
		_, ok := iter.Next(uint32(c))
		assert.False(t, ok)
	}
}

func TestParallelIteratorUnknownThreadId(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]
	ref := ps.CreateLocalStorage(42)
	ref.Storage().Append(7)

	iter := ps.ParallelIter()
	// An unknown thread id falls back to entry 0.
	rng, ok := iter.Next(999)
	require.True(t, ok)
	require.Equal(t, 1, rng.Len())
	assert.Equal(t, uint64(7), *rng.At(0))

	_, ok = iter.Next(999)
	assert.False(t, ok)
}

func TestParallelIteratorEmptyStorage(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]
	iter := ps.ParallelIter()
	_, ok := iter.Next(0)
	assert.False(t, ok)

	ps.CreateLocalStorage(0)
	iter = ps.ParallelIter()
	_, ok = iter.Next(0)
	assert.False(t, ok)
}

func TestParallelIteratorRangeOrder(t *testing.T) {
	var ps ParallelChunkedStorage[uint64]
	ref := ps.CreateLocalStorage(0)
	for i := 0; i < 1000; i++ {
		ref.Storage().Append(uint64(i))
	}

	iter := ps.ParallelIter()
	for {
		rng, ok := iter.NextForRef(ref)
		if !ok {
			break
		}
		elems := rng.Elems()
		for i := 1; i < len(elems); i++ {
			// Within a range the insertion order is preserved.
			require.Equal(t, elems[i-1]+1, elems[i])
		}
	}
}
