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

package udo

import (
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/udo/pkg/storage"
)

// The execution phases. The phase word packs (phase << 32) | subStep.
const (
	phaseInput uint64 = iota
	phaseExtraWork
	phaseProcess
	// phaseEnd is never published through the phase word: a worker that
	// finishes Process returns directly instead of taking the barrier.
	phaseEnd
)

func packPhase(phase uint64, step uint32) uint64 {
	return phase<<32 | uint64(step)
}

func phaseOf(info uint64) uint64 {
	return info >> 32
}

func stepOf(info uint64) uint32 {
	return uint32(info)
}

// workerOutput collects one worker's output tuples. Workers push their
// node onto an intrusive list; the coordinator drains it after join.
type workerOutput[O any] struct {
	output storage.ChunkedStorage[O]
	next   *workerOutput[O]
}

// Standalone drives an operator over a tuple stream with a pool of
// workers that move through Input, ExtraWork, Process, and End phases
// separated by a global barrier.
type Standalone[I any, O any] struct {
	numThreads int
	morselSize int

	inputIter  *storage.ParallelIterator[I]
	outputList atomic.Pointer[workerOutput[O]]

	// phaseInfo is read lock-free and written only by the last worker
	// arriving at the barrier, under executionMu.
	phaseInfo   atomic.Uint64
	numWaiting  int
	executionMu sync.Mutex
	executionCv *sync.Cond
}

// NewStandalone creates a runner. numThreads == 0 means one worker;
// morselSize is advisory.
func NewStandalone[I any, O any](numThreads int, morselSize int) *Standalone[I, O] {
	s := &Standalone[I, O]{
		numThreads: numThreads,
		morselSize: morselSize,
	}
	s.executionCv = sync.NewCond(&s.executionMu)
	return s
}

func (s *Standalone[I, O]) workerMain(op Operator[I, O], extra ExtraWorker[I, O], numWorkers int, threadId uint32) {
	out := &workerOutput[O]{}
	for {
		out.next = s.outputList.Load()
		if s.outputList.CompareAndSwap(out.next, out) {
			break
		}
	}

	exec := &ExecutionState[O]{
		output:   &out.output,
		threadId: threadId,
	}

	for {
		last := s.phaseInfo.Load()
		next := last

		switch phaseOf(last) {
		case phaseInput:
			rng, ok := s.inputIter.Next(threadId)
			if ok {
				elems := rng.Elems()
				for i := range elems {
					op.Accept(exec, &elems[i])
				}
			} else if extra != nil {
				next = packPhase(phaseExtraWork, 0)
			} else {
				next = packPhase(phaseProcess, 0)
			}

		case phaseExtraWork:
			if extra != nil {
				step := stepOf(last)
				if step != ExtraWorkDone {
					step = extra.ExtraWork(exec, step)
				}
				if step == ExtraWorkDone {
					next = packPhase(phaseProcess, 0)
				} else {
					next = packPhase(phaseExtraWork, step)
				}
			} else {
				next = packPhase(phaseProcess, 0)
			}

		case phaseProcess:
			for !op.Process(exec) {
			}
			// This worker is done; End follows Process directly.
			return
		}

		if next != last {
			exec.local.Reset()

			s.executionMu.Lock()
			s.numWaiting++
			if s.numWaiting == numWorkers {
				// Only the last worker of the current phase gets here. It
				// publishes the next phase and wakes everyone else.
				s.phaseInfo.Store(next)
				s.numWaiting = 0
				s.executionCv.Broadcast()
			} else {
				for s.phaseInfo.Load() == last {
					s.executionCv.Wait()
				}
			}
			s.executionMu.Unlock()
		}
	}
}

// Run executes the operator over the given input and returns the merged
// output of all workers.
func (s *Standalone[I, O]) Run(op Operator[I, O], input *storage.ParallelChunkedStorage[I]) *storage.ChunkedStorage[O] {
	s.inputIter = input.ParallelIter()
	s.phaseInfo.Store(packPhase(phaseInput, 0))
	s.numWaiting = 0
	s.outputList.Store(nil)

	numWorkers := s.numThreads
	if numWorkers == 0 {
		numWorkers = 1
	}

	extra, _ := op.(ExtraWorker[I, O])

	g := new(errgroup.Group)
	for i := 0; i < numWorkers; i++ {
		threadId := uint32(i)
		g.Go(func() error {
			s.workerMain(op, extra, numWorkers, threadId)
			return nil
		})
	}
	_ = g.Wait()

	output := &storage.ChunkedStorage[O]{}
	for ws := s.outputList.Load(); ws != nil; ws = ws.next {
		output.Merge(&ws.output)
	}
	s.outputList.Store(nil)

	return output
}
