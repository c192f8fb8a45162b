package symbols

import "github.com/funvibe/optijit/internal/ast"

// ComputeScopeDepths records, for every function, how many scopes enclose
// it and how many hops separate it from each scope symbol it reads. A
// program sits at depth 0; any other compilation root is taken to be
// nested directly in the global scope. Split functions share the depth of
// the function they were taken from.
//
// Hop counts for symbols owned outside the tree (an on-demand compile of
// a nested function) are kept from the previous computation.
func ComputeScopeDepths(fn *ast.FunctionNode) *ast.FunctionNode {
	return ast.RewriteFunction(fn, &depthCalculator{depthOf: map[int]int{0: 0}})
}

type depthFrame struct {
	id       int
	depth    int
	external map[string]int
}

type depthCalculator struct {
	ast.BaseVisitor
	depthOf map[int]int
	frames  []*depthFrame
}

func (d *depthCalculator) Enter(_ *ast.LexicalContext, n ast.Node) bool {
	fn, ok := n.(*ast.FunctionNode)
	if !ok {
		return true
	}
	var depth int
	switch {
	case len(d.frames) == 0 && fn.Is(ast.IsProgram):
		depth = 0
	case len(d.frames) == 0:
		depth = fn.ScopeDepth
		if depth == 0 {
			depth = 1
		}
	case fn.Is(ast.IsSplit):
		depth = d.frames[len(d.frames)-1].depth
	default:
		depth = d.frames[len(d.frames)-1].depth + 1
	}
	d.depthOf[fn.ID] = depth
	external := make(map[string]int, len(fn.ExternalDepths))
	for k, v := range fn.ExternalDepths {
		external[k] = v
	}
	d.frames = append(d.frames, &depthFrame{id: fn.ID, depth: depth, external: external})
	return true
}

func (d *depthCalculator) Leave(_ *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.IdentNode:
		sym := n.Symbol
		if sym == nil || !sym.Is(ast.SymScope) || len(d.frames) == 0 {
			return n
		}
		f := d.frames[len(d.frames)-1]
		if sym.Owner == f.id {
			return n
		}
		if owner, ok := d.depthOf[sym.Owner]; ok {
			f.external[sym.Name] = f.depth - owner
		}
	case *ast.FunctionNode:
		f := d.frames[len(d.frames)-1]
		d.frames = d.frames[:len(d.frames)-1]
		c := *n
		c.ScopeDepth = f.depth
		c.ExternalDepths = f.external
		c.State = c.State.With(ast.ScopeDepthsComputed)
		return &c
	}
	return n
}
