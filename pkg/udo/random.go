package udo

import (
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/daviszhen/udo/pkg/util"
)

// Random returns a process-local random seed source for operators.
func Random() uint64 {
	return rand.Uint64()
}

// Debug prints an operator diagnostic.
func Debug(msg string) {
	util.Info(msg)
}

// Abort reports an unrecoverable operator precondition violation and
// terminates the process. The computation has no defined result.
func Abort(msg string, fields ...zap.Field) {
	util.Fatal(msg, fields...)
}
