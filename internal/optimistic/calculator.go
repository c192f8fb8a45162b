package optimistic

import (
	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// InvalidationSource holds the invalidation map of every function. Split
// functions share the map of the function they were taken from.
type InvalidationSource interface {
	Invalidations(functionID int) typesystem.InvalidationMap
}

// Maps is an InvalidationSource backed by a plain map.
type Maps map[int]typesystem.InvalidationMap

func (m Maps) Invalidations(id int) typesystem.InvalidationMap {
	im, ok := m[id]
	if !ok {
		im = typesystem.InvalidationMap{}
		m[id] = im
	}
	return im
}

type Options struct {
	Invalidations InvalidationSource
	// Evaluator is set on recompilation, when a live scope exists.
	Evaluator *TypeEvaluator
	// RecordEvaluatedTypes stores an evaluated type that is wider than the
	// most optimistic one as an invalidation, so later compiles start
	// from it without evaluating again.
	RecordEvaluatedTypes bool
}

// Calculate assigns a speculative type to every optimistic expression
// that may speculate.
//
// An expression whose exact value must be observed anyway never
// speculates: assignment targets, operands of instanceof and strict
// comparisons, tests, callees, bases of property accesses, operands of
// !, and expression statements whose value is discarded. Nor do reads of
// bytecode locals, whose types are computed statically, and parameters of
// variable arity functions.
func Calculate(fn *ast.FunctionNode, opts Options) *ast.FunctionNode {
	if opts.Invalidations == nil {
		opts.Invalidations = Maps{}
	}
	c := &calculator{opts: opts, never: make(map[ast.Node]bool)}
	return ast.RewriteFunction(fn, c)
}

type calculator struct {
	ast.BaseVisitor
	opts      Options
	never     map[ast.Node]bool
	decisions []bool
}

func (c *calculator) tagNeverOptimistic(n ast.Node) {
	if n != nil {
		c.never[n] = true
	}
}

func (c *calculator) Enter(lc *ast.LexicalContext, n ast.Node) bool {
	switch n := n.(type) {
	case *ast.ExpressionStatement:
		if !isSelfModifying(n.Expression) {
			c.tagNeverOptimistic(n.Expression)
		}
	case *ast.IfNode:
		c.tagNeverOptimistic(n.Test)
	case *ast.WhileNode:
		c.tagNeverOptimistic(n.Test)
	case *ast.ForNode:
		c.tagNeverOptimistic(n.Test)
	case *ast.TernaryNode:
		c.tagNeverOptimistic(n.Test)
	case *ast.BinaryNode:
		switch {
		case n.IsAssignment():
			if n.Op == token.ASSIGN {
				c.tagNeverOptimistic(n.Left)
			}
			if id, ok := n.Left.(*ast.IdentNode); ok && (id.Symbol.Is(ast.SymInternal) || ast.IsInternalName(id.Name)) {
				c.tagNeverOptimistic(n.Right)
			}
		case n.Op == token.INSTANCEOF, n.Op == token.EQ_STRICT, n.Op == token.NE_STRICT:
			c.tagNeverOptimistic(n.Left)
			c.tagNeverOptimistic(n.Right)
		}
	case *ast.UnaryNode:
		if n.Op == token.NOT {
			c.tagNeverOptimistic(n.Operand)
		}
	case *ast.CallNode:
		c.tagNeverOptimistic(n.Function)
	case *ast.AccessNode:
		c.tagNeverOptimistic(n.Base)
	case *ast.IndexNode:
		c.tagNeverOptimistic(n.Base)
	}
	if o, ok := n.(ast.Optimistic); ok {
		c.decisions = append(c.decisions, c.canSpeculate(lc, o))
	}
	return true
}

func isSelfModifying(e ast.Expression) bool {
	b, ok := e.(*ast.BinaryNode)
	return ok && b.IsAssignment() && b.Op != token.ASSIGN
}

func (c *calculator) canSpeculate(lc *ast.LexicalContext, o ast.Optimistic) bool {
	if c.never[o] || !o.CanBeOptimistic() || o.ProgramPoint() == ast.InvalidProgramPoint {
		return false
	}
	if lc.InSplitNode() {
		return false
	}
	if id, ok := o.(*ast.IdentNode); ok {
		if id.Symbol.IsBytecodeLocal() {
			return false
		}
		if id.Symbol.Is(ast.SymParam) {
			if fn := lc.CurrentNonSplitFunction(); fn != nil && fn.Is(ast.IsVarArg) {
				return false
			}
		}
	}
	return true
}

func (c *calculator) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.FunctionNode:
		return n.WithState(ast.OptimisticTypesAssigned)
	case ast.Optimistic:
		top := len(c.decisions) - 1
		speculate := c.decisions[top]
		c.decisions = c.decisions[:top]
		if !speculate {
			return n
		}
		return n.WithType(c.optimisticType(lc, n))
	}
	return n
}

func (c *calculator) optimisticType(lc *ast.LexicalContext, o ast.Optimistic) typesystem.Type {
	most := o.MostOptimisticType()
	owner := lc.CurrentNonSplitFunction()
	im := c.opts.Invalidations.Invalidations(owner.ID)
	pp := o.ProgramPoint()
	if t, ok := im.Get(pp); ok {
		return typesystem.Widest(most, t)
	}
	if c.opts.Evaluator != nil {
		if t, ok := c.opts.Evaluator.Evaluate(o); ok && t.WiderThan(most) {
			t = typesystem.OptimisticOf(t)
			if c.opts.RecordEvaluatedTypes {
				im.Add(pp, t)
			}
			return t
		}
	}
	return most
}
