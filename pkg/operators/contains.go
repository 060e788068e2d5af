package operators

import (
	"github.com/daviszhen/udo/pkg/common"
	"github.com/daviszhen/udo/pkg/udo"
)

type WordTuple struct {
	Word common.String
}

const (
	databaseLower = "database"
	databaseUpper = "DATABASE"
)

// ContainsDatabase forwards tuples whose word contains "database",
// case-insensitively, using a KMP search.
type ContainsDatabase struct {
}

func (op *ContainsDatabase) Accept(exec *udo.ExecutionState[WordTuple], input *WordTuple) {
	word := input.Word.Bytes()

	currentIndex := 0
	patternIndex := 0

	for currentIndex < len(word) {
		if word[currentIndex] == databaseLower[patternIndex] || word[currentIndex] == databaseUpper[patternIndex] {
			currentIndex++
			patternIndex++

			if patternIndex == len(databaseLower) {
				exec.Emit(*input)
				break
			}
		} else {
			// No substring of "database" is a prefix of the word itself,
			// so there is no failure table; just reset the pattern.
			if patternIndex == 0 {
				currentIndex++
			}
			patternIndex = 0
		}
	}
}

func (op *ContainsDatabase) Process(exec *udo.ExecutionState[WordTuple]) bool {
	return true
}
