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

package sample

import (
	"math"
	"math/rand/v2"
)

// Reservoir keeps a fixed-capacity uniform random sample of a stream.
// Skips between insertions follow Li's algorithm L
// (https://doi.org/10.1145/198429.198435).
//
// Caller protocol: store the first Limit() elements directly into
// Sample()[0..Limit()); for every later element call Slot() and store it
// only when the returned slot is < Limit().
type Reservoir[T any] struct {
	sample       []T
	limit        uint64
	elementsSeen uint64
	rng          *rand.Rand
	skip         uint64
	w            float64
}

// NewReservoir creates a reservoir for sampleSize elements.
func NewReservoir[T any](sampleSize uint64, seed uint64) *Reservoir[T] {
	r := &Reservoir[T]{
		sample: make([]T, sampleSize),
		limit:  sampleSize,
		rng:    rand.New(rand.NewPCG(seed, seed)),
	}
	r.w = math.Exp(math.Log(r.rng.Float64()) / float64(r.limit))
	r.skip = uint64(math.Floor(math.Log(r.rng.Float64()) / math.Log(1.0-r.w)))
	return r
}

func (r *Reservoir[T]) Limit() uint64 {
	return r.limit
}

// SetElementsSeen records how many stream elements this sample covers.
func (r *Reservoir[T]) SetElementsSeen(n uint64) {
	r.elementsSeen = n
}

func (r *Reservoir[T]) ElementsSeen() uint64 {
	return r.elementsSeen
}

func (r *Reservoir[T]) Sample() []T {
	return r.sample
}

// Slot returns the reservoir slot for the next candidate. Values >= the
// sample size mean the candidate is skipped.
func (r *Reservoir[T]) Slot() uint64 {
	if r.skip == 0 {
		r.w *= math.Exp(math.Log(r.rng.Float64()) / float64(r.limit))
		r.skip = uint64(math.Floor(math.Log(r.rng.Float64()) / math.Log(1.0-r.w)))
		return r.rng.Uint64N(r.limit)
	}
	r.skip--
	return r.limit + r.skip
}

// MergeInto combines r into target while keeping the merged sample
// uniform over both underlying streams. r is consumed.
func (r *Reservoir[T]) MergeInto(target *Reservoir[T]) {
	if r.elementsSeen == 0 {
		return
	}

	if target.elementsSeen < r.limit && r.elementsSeen < r.limit {
		// Two incomplete samples: complete the target by treating the
		// source elements as individual tuples.
		copySamples := min(r.limit-target.elementsSeen, r.elementsSeen)
		copy(target.sample[target.elementsSeen:target.elementsSeen+copySamples], r.sample[:copySamples])
		target.elementsSeen += copySamples
		r.elementsSeen -= copySamples

		if r.elementsSeen == 0 {
			return
		}
		// Move the source elements that were not copied to the front.
		copy(r.sample, r.sample[copySamples:copySamples+r.elementsSeen])
	}

	if target.elementsSeen < r.limit || r.elementsSeen < r.limit {
		mergeSource := r
		mergeTarget := target

		// When the source is full but the target is not, merging the
		// target into the source keeps uniformity; the result is copied
		// back below.
		swapped := target.elementsSeen < r.limit && r.elementsSeen >= r.limit
		if swapped {
			mergeSource = target
			mergeTarget = r
		}

		// The merge target is full here, so ordinary reservoir insertion
		// (algorithm R) adds the remaining source elements.
		for i := uint64(0); i < mergeSource.elementsSeen; i++ {
			sampleIndex := r.rng.Uint64N(mergeTarget.elementsSeen + i + 1)
			if sampleIndex < r.limit {
				mergeTarget.sample[sampleIndex] = mergeSource.sample[i]
			}
		}

		if swapped {
			copy(mergeSource.sample, mergeTarget.sample)
		}
	} else {
		// Regular merge of two full samples.
		total := r.elementsSeen + target.elementsSeen
		for i := uint64(0); i < r.limit; i++ {
			if r.rng.Uint64N(total)+1 <= r.elementsSeen {
				target.sample[i] = r.sample[i]
			}
		}
	}

	target.elementsSeen += r.elementsSeen
}
