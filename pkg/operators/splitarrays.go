package operators

import (
	"strconv"

	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/udo"
)

type ArrayTuple struct {
	Name   common.String
	Values common.String
}

type ArrayValueTuple struct {
	Name  common.String
	Value int64
}

// SplitArrays splits the comma-separated values field into one output
// tuple per parseable integer. Empty and non-numeric fields are dropped.
type SplitArrays struct {
}

func (op *SplitArrays) Accept(exec *udo.ExecutionState[ArrayValueTuple], input *ArrayTuple) {
	output := ArrayValueTuple{Name: input.Name}

	values := input.Values.Bytes()
	begin := 0
	for it := 0; it <= len(values); it++ {
		if it == len(values) || values[it] == ',' {
			if begin != it {
				field := string(values[begin:it])
				if value, err := strconv.ParseInt(field, 10, 64); err == nil {
					output.Value = value
					exec.Emit(output)
				}
			}
			begin = it + 1
		}
	}
}

func (op *SplitArrays) Process(exec *udo.ExecutionState[ArrayValueTuple]) bool {
	return true
}
