package operators

import (
	"sync/atomic"

	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/udo"
)

type WordCountTuple struct {
	Word      common.String
	WordCount uint64
}

// CountLifestyle counts how many input words equal "lifestyle" and how
// many do not. A single elected worker emits the two result tuples.
type CountLifestyle struct {
	lifestyle   atomic.Uint64
	other       atomic.Uint64
	outputMutex atomic.Bool
}

func (op *CountLifestyle) Accept(exec *udo.ExecutionState[WordCountTuple], input *WordTuple) {
	if input.Word.EqualStr("lifestyle") {
		op.lifestyle.Add(1)
	} else {
		op.other.Add(1)
	}
}

func (op *CountLifestyle) Process(exec *udo.ExecutionState[WordCountTuple]) bool {
	if op.outputMutex.Swap(true) {
		return true
	}

	exec.Emit(WordCountTuple{Word: common.MakeStringFrom("lifestyle"), WordCount: op.lifestyle.Load()})
	exec.Emit(WordCountTuple{Word: common.MakeStringFrom("other"), WordCount: op.other.Load()})

	return true
}
