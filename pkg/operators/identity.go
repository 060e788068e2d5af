package operators

import (
	"github.com/daviszhen/udo/pkg/udo"
)

type IdentityTuple struct {
	A uint64
}

// Identity forwards every input tuple unchanged.
type Identity struct {
}

func (op *Identity) Accept(exec *udo.ExecutionState[IdentityTuple], input *IdentityTuple) {
	exec.Emit(*input)
}

func (op *Identity) Process(exec *udo.ExecutionState[IdentityTuple]) bool {
	return true
}
