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

package operators

import (
	"sync/atomic"

	"github.com/daviszhen/udo/pkg/sample"
	"github.com/daviszhen/udo/pkg/storage"
	"github.com/daviszhen/udo/pkg/udo"
)

type KMeansInput struct {
	X       float64
	Y       float64
	Payload uint64
}

type KMeansOutput struct {
	X         float64
	Y         float64
	Payload   uint64
	ClusterId uint16
}

// The sub-steps of the ExtraWork state machine. WriteOutput is the done
// marker: once reached, output streaming happens in Process.
const (
	stepPrepareInitializeClusters uint32 = iota
	stepFinishInitializeClusters
	stepPrepareAssociatePoints
	stepAssociatePoints
	stepFinishAssociatePoints
	stepPrepareRecalculateMeans
	stepRecalculateMeans
	stepFinishRecalculateMeans
	stepPrepareWriteOutput
	stepWriteOutput = udo.ExtraWorkDone
)

// ClusterCenter is one k-means center.
type ClusterCenter struct {
	X float64
	Y float64
}

// localClusterCenter additionally tracks the number of member points.
type localClusterCenter struct {
	numPoints uint64
	x         float64
	y         float64
}

// acceptLocalState is the per-worker state of the Input phase: the
// worker's tuple storage plus a reservoir of pointers into it.
type acceptLocalState struct {
	tuplesRef storage.LocalStorageRef[KMeansOutput]
	sample    *sample.Reservoir[*KMeansOutput]
	next      *acceptLocalState
}

// localClustersEntry holds one worker's partial centers during
// RecalculateMeans.
type localClustersEntry struct {
	centers []localClusterCenter
	next    *localClustersEntry
}

func distanceSq(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return dx*dx + dy*dy
}

// KMeans clusters 2D points. All input is collected first, initial
// centers are drawn by merging per-worker reservoir samples, then
// assignment and mean recomputation alternate for a fixed number of
// iterations before the labeled points stream out.
type KMeans struct {
	numClusters   int
	maxIterations int

	tuples           storage.ParallelChunkedStorage[KMeansOutput]
	numTuples        uint64
	acceptStateList  atomic.Pointer[acceptLocalState]
	centers          []ClusterCenter
	localCentersList atomic.Pointer[localClustersEntry]
	// prepareMutex elects the leader of each Prepare sub-step; the Finish
	// sub-steps clear it.
	prepareMutex     atomic.Bool
	numIterations    int
	numChangedPoints atomic.Uint64
	tuplesIter       *storage.ParallelIterator[KMeansOutput]
}

// NewKMeans creates the operator with the default eight clusters and
// ten refinement iterations.
func NewKMeans() *KMeans {
	return NewKMeansWith(8, 10)
}

func NewKMeansWith(numClusters int, maxIterations int) *KMeans {
	op := &KMeans{
		numClusters:   numClusters,
		maxIterations: maxIterations,
	}
	op.centers = make([]ClusterCenter, numClusters)
	return op
}

// Centers returns the cluster centers of the last finished iteration.
func (op *KMeans) Centers() []ClusterCenter {
	return op.centers
}

// ChangedPoints returns how many points switched clusters in the last
// assignment round.
func (op *KMeans) ChangedPoints() uint64 {
	return op.numChangedPoints.Load()
}

func (op *KMeans) Accept(exec *udo.ExecutionState[KMeansOutput], input *KMeansInput) {
	ls := exec.LocalState()
	state := udo.LocalPtr[acceptLocalState](ls)
	if state == nil {
		state = &acceptLocalState{
			sample: sample.NewReservoir[*KMeansOutput](uint64(op.numClusters), udo.Random()),
		}
		for {
			state.next = op.acceptStateList.Load()
			if op.acceptStateList.CompareAndSwap(state.next, state) {
				break
			}
		}
		state.tuplesRef = op.tuples.CreateLocalStorage(exec.ThreadId())
		udo.SetLocalPtr(ls, state)
	}

	inserted := state.tuplesRef.Storage().Append(KMeansOutput{
		X:       input.X,
		Y:       input.Y,
		Payload: input.Payload,
	})

	if numTuples := state.tuplesRef.Storage().Size(); numTuples <= uint64(op.numClusters) {
		state.sample.Sample()[numTuples-1] = inserted
	} else if slot := state.sample.Slot(); slot < uint64(op.numClusters) {
		state.sample.Sample()[slot] = inserted
	}
}

// prepareInitializeClusters merges the per-worker samples into the
// initial cluster centers.
func (op *KMeans) prepareInitializeClusters() uint32 {
	if !op.prepareMutex.Swap(true) {
		op.numTuples = 0

		merged := sample.NewReservoir[*KMeansOutput](uint64(op.numClusters), 0)
		for state := op.acceptStateList.Swap(nil); state != nil; state = state.next {
			localNumTuples := state.tuplesRef.Storage().Size()
			op.numTuples += localNumTuples
			state.sample.SetElementsSeen(localNumTuples)
			state.sample.MergeInto(merged)
		}

		if op.numTuples < uint64(op.numClusters) {
			udo.Abort("less points than clusters, aborting")
		}

		for i := 0; i < op.numClusters; i++ {
			s := merged.Sample()[i]
			op.centers[i] = ClusterCenter{X: s.X, Y: s.Y}
		}
	}
	return stepFinishInitializeClusters
}

func (op *KMeans) finishInitializeClusters() uint32 {
	op.prepareMutex.Store(false)
	return stepPrepareAssociatePoints
}

func (op *KMeans) prepareAssociatePoints() uint32 {
	if !op.prepareMutex.Swap(true) {
		op.numChangedPoints.Store(0)
		op.tuplesIter = op.tuples.ParallelIter()
	}
	return stepAssociatePoints
}

// associatePoints relabels each point with its nearest center.
func (op *KMeans) associatePoints(exec *udo.ExecutionState[KMeansOutput]) uint32 {
	rng, ok := op.tuplesIter.Next(exec.ThreadId())
	if !ok {
		return stepFinishAssociatePoints
	}

	var localNumChanged uint64
	elems := rng.Elems()
	for i := range elems {
		tuple := &elems[i]
		bestClusterId := uint16(0)
		currentDistance := distanceSq(tuple.X, tuple.Y, op.centers[0].X, op.centers[0].Y)
		for c := 1; c < op.numClusters; c++ {
			newDistance := distanceSq(tuple.X, tuple.Y, op.centers[c].X, op.centers[c].Y)
			if newDistance < currentDistance {
				bestClusterId = uint16(c)
				currentDistance = newDistance
			}
		}
		if bestClusterId != tuple.ClusterId {
			tuple.ClusterId = bestClusterId
			localNumChanged++
		}
	}
	op.numChangedPoints.Add(localNumChanged)
	return stepAssociatePoints
}

func (op *KMeans) finishAssociatePoints() uint32 {
	op.prepareMutex.Store(false)
	if op.numIterations == op.maxIterations {
		return stepPrepareWriteOutput
	}
	return stepPrepareRecalculateMeans
}

func (op *KMeans) prepareRecalculateMeans() uint32 {
	if !op.prepareMutex.Swap(true) {
		op.tuplesIter = op.tuples.ParallelIter()
		op.numIterations++
	}
	return stepRecalculateMeans
}

// recalculateMeans accumulates per-worker sums per cluster.
func (op *KMeans) recalculateMeans(exec *udo.ExecutionState[KMeansOutput]) uint32 {
	ls := exec.LocalState()
	localClusters := udo.LocalPtr[localClustersEntry](ls)
	if localClusters == nil {
		localClusters = &localClustersEntry{
			centers: make([]localClusterCenter, op.numClusters),
		}
		for {
			localClusters.next = op.localCentersList.Load()
			if op.localCentersList.CompareAndSwap(localClusters.next, localClusters) {
				break
			}
		}
		udo.SetLocalPtr(ls, localClusters)
	}

	rng, ok := op.tuplesIter.Next(exec.ThreadId())
	if !ok {
		return stepFinishRecalculateMeans
	}

	elems := rng.Elems()
	for i := range elems {
		tuple := &elems[i]
		cluster := &localClusters.centers[tuple.ClusterId]
		cluster.numPoints++
		cluster.x += tuple.X
		cluster.y += tuple.Y
	}
	return stepRecalculateMeans
}

// finishRecalculateMeans folds the partial centers; only the worker that
// wins the list drains it and writes the new centers.
func (op *KMeans) finishRecalculateMeans() uint32 {
	localEntry := op.localCentersList.Swap(nil)
	if localEntry == nil {
		return stepPrepareAssociatePoints
	}

	op.prepareMutex.Store(false)

	mergedClusters := make([]localClusterCenter, op.numClusters)
	for ; localEntry != nil; localEntry = localEntry.next {
		for i := 0; i < op.numClusters; i++ {
			merged := &mergedClusters[i]
			local := &localEntry.centers[i]
			merged.numPoints += local.numPoints
			merged.x += local.x
			merged.y += local.y
		}
	}

	for i := 0; i < op.numClusters; i++ {
		merged := &mergedClusters[i]
		op.centers[i] = ClusterCenter{
			X: merged.x / float64(merged.numPoints),
			Y: merged.y / float64(merged.numPoints),
		}
	}

	return stepPrepareAssociatePoints
}

func (op *KMeans) prepareWriteOutput() uint32 {
	if !op.prepareMutex.Swap(true) {
		op.numIterations++
		op.tuplesIter = op.tuples.ParallelIter()
	}
	return stepWriteOutput
}

func (op *KMeans) ExtraWork(exec *udo.ExecutionState[KMeansOutput], step uint32) uint32 {
	switch step {
	case stepPrepareInitializeClusters:
		return op.prepareInitializeClusters()
	case stepFinishInitializeClusters:
		return op.finishInitializeClusters()
	case stepPrepareAssociatePoints:
		return op.prepareAssociatePoints()
	case stepAssociatePoints:
		return op.associatePoints(exec)
	case stepFinishAssociatePoints:
		return op.finishAssociatePoints()
	case stepPrepareRecalculateMeans:
		return op.prepareRecalculateMeans()
	case stepRecalculateMeans:
		return op.recalculateMeans(exec)
	case stepFinishRecalculateMeans:
		return op.finishRecalculateMeans()
	case stepPrepareWriteOutput:
		return op.prepareWriteOutput()
	}
	return stepWriteOutput
}

// Process streams out the labeled tuples chunk by chunk.
func (op *KMeans) Process(exec *udo.ExecutionState[KMeansOutput]) bool {
	rng, ok := op.tuplesIter.Next(exec.ThreadId())
	if !ok {
		return true
	}
	elems := rng.Elems()
	for i := range elems {
		exec.Emit(elems[i])
	}
	return false
}
