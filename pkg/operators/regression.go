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

	"github.com/daviszhen/udo/pkg/udo"
)

type RegressionInput struct {
	X float64
	Y float64
}

type RegressionOutput struct {
	A float64
	B float64
	C float64
}

// partialSums holds one worker's running sums. Eight float64 values
// fill exactly one 64-byte cache line; regressionLocalState pads each
// node to 128 bytes, so the sums of two worker nodes do not share lines.
type partialSums struct {
	sum1   float64
	sumx   float64
	sumx2  float64
	sumx3  float64
	sumx4  float64
	sumy   float64
	sumxy  float64
	sumx2y float64
}

type regressionLocalState struct {
	sums partialSums
	next *regressionLocalState
	_    [56]byte
}

// LinearRegression fits y = a + bx + cx^2 by least squares. Setting the
// partial derivatives of the squared error to zero gives
//
//	| Sum 1    Sum x    Sum x^2 |   | a |   | Sum y    |
//	| Sum x    Sum x^2  Sum x^3 | * | b | = | Sum xy   |
//	| Sum x^2  Sum x^3  Sum x^4 |   | c |   | Sum x^2y |
//
// which is solved by the closed-form inverse of the 3x3 matrix. All
// terms are sums, so each worker accumulates partial sums and a single
// worker folds them at the end.
type LinearRegression struct {
	localStateList atomic.Pointer[regressionLocalState]
	resultMutex    atomic.Bool
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

func (op *LinearRegression) Accept(exec *udo.ExecutionState[RegressionOutput], input *RegressionInput) {
	ls := exec.LocalState()
	state := udo.LocalPtr[regressionLocalState](ls)
	if state == nil {
		state = &regressionLocalState{}
		for {
			state.next = op.localStateList.Load()
			if op.localStateList.CompareAndSwap(state.next, state) {
				break
			}
		}
		udo.SetLocalPtr(ls, state)
	}

	x := input.X
	y := input.Y

	x2 := x * x
	x3 := x2 * x
	x4 := x2 * x2
	xy := x * y
	x2y := x2 * y

	sums := &state.sums
	sums.sum1 += 1
	sums.sumx += x
	sums.sumx2 += x2
	sums.sumx3 += x3
	sums.sumx4 += x4
	sums.sumy += y
	sums.sumxy += xy
	sums.sumx2y += x2y
}

func (op *LinearRegression) Process(exec *udo.ExecutionState[RegressionOutput]) bool {
	if op.resultMutex.Swap(true) {
		return true
	}

	var sums partialSums
	for state := op.localStateList.Load(); state != nil; state = state.next {
		lsums := &state.sums
		sums.sum1 += lsums.sum1
		sums.sumx += lsums.sumx
		sums.sumx2 += lsums.sumx2
		sums.sumx3 += lsums.sumx3
		sums.sumx4 += lsums.sumx4
		sums.sumy += lsums.sumy
		sums.sumxy += lsums.sumxy
		sums.sumx2y += lsums.sumx2y
	}

	detInv := 1 / (sums.sum1*sums.sumx2*sums.sumx4 +
		2*sums.sumx*sums.sumx2*sums.sumx3 -
		sums.sumx2*sums.sumx2*sums.sumx2 -
		sums.sum1*sums.sumx3*sums.sumx3 -
		sums.sumx*sums.sumx*sums.sumx4)

	a := detInv * (sums.sumy*(sums.sumx2*sums.sumx4-sums.sumx3*sums.sumx3) +
		sums.sumxy*(sums.sumx2*sums.sumx3-sums.sumx*sums.sumx4) +
		sums.sumx2y*(sums.sumx*sums.sumx3-sums.sumx2*sums.sumx2))
	b := detInv * (sums.sumy*(sums.sumx2*sums.sumx3-sums.sumx*sums.sumx4) +
		sums.sumxy*(sums.sum1*sums.sumx4-sums.sumx2*sums.sumx2) +
		sums.sumx2y*(sums.sumx*sums.sumx2-sums.sum1*sums.sumx3))
	c := detInv * (sums.sumy*(sums.sumx*sums.sumx3-sums.sumx2*sums.sumx2) +
		sums.sumxy*(sums.sumx*sums.sumx2-sums.sum1*sums.sumx3) +
		sums.sumx2y*(sums.sum1*sums.sumx2-sums.sumx*sums.sumx))

	exec.Emit(RegressionOutput{A: a, B: b, C: c})

	return true
}
