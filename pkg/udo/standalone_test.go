package udo

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/udo/pkg/storage"
)

type passInput struct {
	a uint64
}

// passThrough copies its input to the output.
type passThrough struct {
}

func (op *passThrough) Accept(exec *ExecutionState[passInput], input *passInput) {
	exec.Emit(*input)
}

func (op *passThrough) Process(exec *ExecutionState[passInput]) bool {
	return true
}

func makeInput(numEntries int, perEntry int) *storage.ParallelChunkedStorage[passInput] {
	input := &storage.ParallelChunkedStorage[passInput]{}
	v := uint64(0)
	for e := 0; e < numEntries; e++ {
		ref := input.CreateLocalStorage(uint32(e))
		for i := 0; i < perEntry; i++ {
			ref.Storage().Append(passInput{a: v})
			v++
		}
	}
	return input
}

func TestStandalonePassThrough(t *testing.T) {
	for _, numThreads := range []int{0, 1, 4} {
		input := makeInput(4, 2500)
		s := NewStandalone[passInput, passInput](numThreads, 1000)
		out := s.Run(&passThrough{}, input)

		require.Equal(t, uint64(10000), out.Size())
		seen := make(map[uint64]bool)
		out.ForEach(func(v *passInput) {
			seen[v.a] = true
		})
		// The output is a permutation of the input.
		assert.Equal(t, 10000, len(seen))
	}
}

// phaseTracker checks that no Accept call overlaps ExtraWork or Process
// and that ExtraWork sub-steps advance in lockstep across workers.
type phaseTracker struct {
	numWorkers    int
	acceptCalls   atomic.Uint64
	frozenAccepts atomic.Uint64
	stepWorkers   [3]atomic.Uint64
	processCalls  atomic.Uint64
}

func (op *phaseTracker) Accept(exec *ExecutionState[passInput], input *passInput) {
	op.acceptCalls.Add(1)
}

func (op *phaseTracker) ExtraWork(exec *ExecutionState[passInput], step uint32) uint32 {
	if step == 0 {
		// Input must have fully finished on every worker.
		op.frozenAccepts.Store(op.acceptCalls.Load())
	} else {
		// Every worker finished the previous sub-step before any worker
		// entered this one.
		prev := op.stepWorkers[step-1].Load()
		if prev != uint64(op.numWorkers) {
			panic("sub-step entered before barrier")
		}
	}
	op.stepWorkers[step].Add(1)
	if step == 2 {
		return ExtraWorkDone
	}
	return step + 1
}

func (op *phaseTracker) Process(exec *ExecutionState[passInput]) bool {
	op.processCalls.Add(1)
	return true
}

func TestStandalonePhaseBarrier(t *testing.T) {
	const numThreads = 8
	input := makeInput(numThreads, 1000)

	op := &phaseTracker{numWorkers: numThreads}
	s := NewStandalone[passInput, passInput](numThreads, 1000)
	out := s.Run(op, input)

	assert.Equal(t, uint64(0), out.Size())
	assert.Equal(t, uint64(numThreads*1000), op.acceptCalls.Load())
	// No Accept happened after the first ExtraWork call.
	assert.Equal(t, op.acceptCalls.Load(), op.frozenAccepts.Load())
	for i := 0; i < 3; i++ {
		assert.Equal(t, uint64(numThreads), op.stepWorkers[i].Load())
	}
	assert.Equal(t, uint64(numThreads), op.processCalls.Load())
}

// localStateProbe verifies the scratch slot arrives zeroed in each phase.
type localStateProbe struct {
	failures atomic.Uint64
}

func (op *localStateProbe) Accept(exec *ExecutionState[passInput], input *passInput) {
	ls := exec.LocalState()
	if ls.Ptr == nil && ls.Extra == 0 {
		ls.Extra = 1
	}
}

func (op *localStateProbe) ExtraWork(exec *ExecutionState[passInput], step uint32) uint32 {
	ls := exec.LocalState()
	if step == 0 && ls.Extra != 0 {
		// The coordinator must have cleared the Input-phase value.
		op.failures.Add(1)
	}
	ls.Extra = 2
	return ExtraWorkDone
}

func (op *localStateProbe) Process(exec *ExecutionState[passInput]) bool {
	if exec.LocalState().Extra != 0 {
		op.failures.Add(1)
	}
	return true
}

func TestStandaloneLocalStateCleared(t *testing.T) {
	input := makeInput(4, 100)
	op := &localStateProbe{}
	s := NewStandalone[passInput, passInput](4, 1000)
	s.Run(op, input)
	assert.Equal(t, uint64(0), op.failures.Load())
}

// emitter checks per-worker output merging: every worker emits its
// thread id once during Process.
type emitter struct {
	once [16]atomic.Bool
}

func (op *emitter) Accept(exec *ExecutionState[passInput], input *passInput) {
}

func (op *emitter) Process(exec *ExecutionState[passInput]) bool {
	if !op.once[exec.ThreadId()].Swap(true) {
		exec.Emit(passInput{a: uint64(exec.ThreadId())})
	}
	return true
}

func TestStandaloneOutputMerging(t *testing.T) {
	const numThreads = 8
	input := makeInput(2, 10)
	op := &emitter{}
	s := NewStandalone[passInput, passInput](numThreads, 1000)
	out := s.Run(op, input)

	require.Equal(t, uint64(numThreads), out.Size())
	got := make(map[uint64]bool)
	out.ForEach(func(v *passInput) {
		got[v.a] = true
	})
	assert.Equal(t, numThreads, len(got))
}

func TestStandaloneEmptyInput(t *testing.T) {
	input := &storage.ParallelChunkedStorage[passInput]{}
	s := NewStandalone[passInput, passInput](4, 1000)
	out := s.Run(&passThrough{}, input)
	assert.Equal(t, uint64(0), out.Size())
}
