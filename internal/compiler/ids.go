package compiler

import (
	"sync/atomic"

	"github.com/funvibe/optijit/internal/ast"
)

// IDAllocator hands out function ids above every id of a source tree.
// Allocation is deterministic, so recompiling the same tree yields the
// same ids for the functions the pipeline synthesizes.
type IDAllocator struct {
	next atomic.Int64
}

func NewIDAllocator(root *ast.FunctionNode) *IDAllocator {
	a := &IDAllocator{}
	a.next.Store(int64(ast.MaxFunctionID(root)))
	return a
}

func (a *IDAllocator) NextFunctionID() int {
	return int(a.next.Add(1))
}
