// Package programpoint tags every optimistic expression with a program
// point unique within its function.
package programpoint

import "github.com/funvibe/optijit/internal/ast"

// Assign numbers the optimistic expressions of every function in the tree,
// starting at ast.FirstProgramPoint in each function. It panics with an
// *ast.InvariantError when a function needs more than max points.
func Assign(fn *ast.FunctionNode, max int) *ast.FunctionNode {
	if max <= 0 || max > ast.MaxProgramPoint {
		max = ast.MaxProgramPoint
	}
	return ast.RewriteFunction(fn, &assigner{max: max})
}

type assigner struct {
	ast.BaseVisitor
	max       int
	nextPoint []int
}

func (a *assigner) Enter(_ *ast.LexicalContext, n ast.Node) bool {
	if _, ok := n.(*ast.FunctionNode); ok {
		a.nextPoint = append(a.nextPoint, ast.FirstProgramPoint)
	}
	return true
}

func (a *assigner) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.FunctionNode:
		a.nextPoint = a.nextPoint[:len(a.nextPoint)-1]
		return n.WithState(ast.ProgramPointsAssigned)
	case ast.Optimistic:
		if !n.CanBeOptimistic() {
			return n
		}
		top := len(a.nextPoint) - 1
		pp := a.nextPoint[top]
		if pp > a.max {
			panic(ast.NewInvariantError("function %s has more than %d program points",
				lc.CurrentFunction().DisplayName(), a.max))
		}
		a.nextPoint[top]++
		return n.WithProgramPoint(pp)
	}
	return n
}

// Collect returns the program points of fn's own optimistic expressions,
// excluding nested functions, in visiting order.
func Collect(fn *ast.FunctionNode) []int {
	var pps []int
	ast.InspectFunction(fn, func(n ast.Node) bool {
		if o, ok := n.(ast.Optimistic); ok && o.ProgramPoint() != ast.InvalidProgramPoint {
			pps = append(pps, o.ProgramPoint())
		}
		return true
	})
	return pps
}
