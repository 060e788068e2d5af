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
	"unsafe"

	"github.com/daviszhen/udo/pkg/storage"
)

// ExtraWorkDone is returned by ExtraWork when the operator wants to
// advance to the Process phase.
const ExtraWorkDone = ^uint32(0)

// LocalState is the 16-byte per-worker scratch slot visible to an
// operator. It is zeroed by the coordinator before every phase
// transition. Operators needing more state store a pointer to a heap
// node here and additionally push that node onto an intrusive list they
// own, so a leader can drain it later.
type LocalState struct {
	Ptr   unsafe.Pointer
	Extra uint64
}

func (ls *LocalState) Reset() {
	ls.Ptr = nil
	ls.Extra = 0
}

// ExecutionState is the per-worker handle passed into every operator
// call. It carries the worker id, the scratch slot and the worker's
// private output sink.
type ExecutionState[O any] struct {
	local    LocalState
	output   *storage.ChunkedStorage[O]
	threadId uint32
}

func (exec *ExecutionState[O]) ThreadId() uint32 {
	return exec.threadId
}

func (exec *ExecutionState[O]) LocalState() *LocalState {
	return &exec.local
}

// Emit appends an output tuple to this worker's output storage. Safe to
// call from Accept, ExtraWork, and Process.
func (exec *ExecutionState[O]) Emit(output O) {
	exec.output.Append(output)
}

// Operator is a user-defined computation over a tuple stream. Accept is
// called concurrently by all workers during the Input phase; it must not
// block. Process is called concurrently during the Process phase until
// it returns true for a worker.
type Operator[I any, O any] interface {
	Accept(exec *ExecutionState[O], input *I)
	Process(exec *ExecutionState[O]) bool
}

// ExtraWorker is implemented by operators that need barrier-synchronized
// work between Input and Process. The returned step becomes the next
// step passed to ExtraWork, possibly on another worker; returning
// ExtraWorkDone advances to Process.
type ExtraWorker[I any, O any] interface {
	Operator[I, O]
	ExtraWork(exec *ExecutionState[O], step uint32) uint32
}

// LocalPtr reads the scratch pointer as a typed node pointer.
func LocalPtr[T any](ls *LocalState) *T {
	return (*T)(ls.Ptr)
}

// SetLocalPtr stores a typed node pointer into the scratch slot.
func SetLocalPtr[T any](ls *LocalState, ptr *T) {
	ls.Ptr = unsafe.Pointer(ptr)
}
