// Package weigh estimates the size of the code a subtree compiles to.
// Weights are additive: a block weighs exactly the sum of its statements.
package weigh

import (
	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

// Node weights.
const (
	FunctionWeight   = 40
	AAStoreWeight    = 2
	AccessWeight     = 4
	AddWeight        = 10
	BreakWeight      = 1
	CallWeight       = 10
	CatchWeight      = 10
	CompareWeight    = 6
	ConstWeight      = 2
	CaseWeight       = 8
	IfWeight         = 2
	LiteralWeight    = 10
	LoopWeight       = 4
	NewWeight        = 6
	FuncExprWeight   = 20
	ReturnWeight     = 2
	SplitWeight      = 40
	SwitchWeight     = 8
	ThrowWeight      = 2
	VarWeight        = 40
	ObjectWeight     = 16
	SetPropWeight    = 5
	LocalStoreWeight = 2
)

// Cache remembers weights by node identity. Nodes are immutable, so an
// entry stays valid for as long as the node is reachable.
type Cache map[ast.Node]int

// Weigher computes weights relative to one function: that function's body
// is weighed, every other function counts as a function expression.
type Weigher struct {
	top   *ast.FunctionNode
	cache Cache
}

// New returns a weigher for top. A nil cache disables caching.
func New(top *ast.FunctionNode, cache Cache) *Weigher {
	return &Weigher{top: top, cache: cache}
}

// Weigh is a convenience for an uncached weigh of n relative to top.
func Weigh(top *ast.FunctionNode, n ast.Node) int {
	return New(top, nil).Weigh(n)
}

// Weigh returns the weight of n.
func (w *Weigher) Weigh(n ast.Node) int {
	if n == nil {
		return 0
	}
	// A function's weight depends on which function is on top.
	if _, ok := n.(*ast.FunctionNode); ok {
		return w.weigh(n)
	}
	if w.cache != nil {
		if v, ok := w.cache[n]; ok {
			return v
		}
	}
	v := w.weigh(n)
	if w.cache != nil {
		w.cache[n] = v
	}
	return v
}

func (w *Weigher) expr(e ast.Expression) int {
	if e == nil {
		return 0
	}
	return w.Weigh(e)
}

func (w *Weigher) block(b *ast.Block) int {
	if b == nil {
		return 0
	}
	return w.Weigh(b)
}

func (w *Weigher) weigh(n ast.Node) int {
	switch n := n.(type) {
	case *ast.FunctionNode:
		if n != w.top {
			return FuncExprWeight
		}
		return w.block(n.Body)
	case *ast.Block:
		sum := 0
		for _, s := range n.Statements {
			sum += w.Weigh(s)
		}
		return sum
	case *ast.SplitNode:
		return SplitWeight
	case *ast.VarNode:
		if n.Init == nil {
			return 0
		}
		return VarWeight + w.expr(n.Init)
	case *ast.ExpressionStatement:
		return w.expr(n.Expression)
	case *ast.IfNode:
		return IfWeight + w.expr(n.Test) + w.block(n.Pass) + w.block(n.Fail)
	case *ast.ForNode:
		return LoopWeight + w.expr(n.Init) + w.expr(n.Test) + w.expr(n.Modify) + w.block(n.Body)
	case *ast.WhileNode:
		return LoopWeight + w.expr(n.Test) + w.block(n.Body)
	case *ast.LabelNode:
		return w.block(n.Body)
	case *ast.BreakNode, *ast.ContinueNode, *ast.JumpToInlinedFinally:
		return BreakWeight
	case *ast.ReturnNode:
		return ReturnWeight + w.expr(n.Expression)
	case *ast.ThrowNode:
		return ThrowWeight + w.expr(n.Expression)
	case *ast.TryNode:
		v := ThrowWeight + w.block(n.Body) + w.block(n.Finally)
		if n.Catch != nil {
			v += w.Weigh(n.Catch)
		}
		return v
	case *ast.CatchNode:
		return CatchWeight + w.block(n.Body)
	case *ast.SwitchNode:
		v := SwitchWeight + w.expr(n.Discriminant)
		for _, c := range n.Cases {
			v += w.Weigh(c)
		}
		return v
	case *ast.CaseNode:
		return CaseWeight + w.expr(n.Test) + w.block(n.Body)
	case *ast.SetSplitState:
		return ConstWeight
	case *ast.GetSplitState:
		return ConstWeight
	case *ast.LiteralNode:
		return ConstWeight
	case *ast.IdentNode:
		return AccessWeight
	case *ast.AccessNode:
		return AccessWeight + w.expr(n.Base)
	case *ast.IndexNode:
		return AccessWeight + w.expr(n.Base) + w.expr(n.Index)
	case *ast.BinaryNode:
		return w.binaryWeight(n) + w.expr(n.Left) + w.expr(n.Right)
	case *ast.UnaryNode:
		v := AddWeight
		switch n.Op {
		case token.NOT:
			v = CompareWeight
		case token.TYPEOF, token.VOID:
			v = CallWeight
		}
		return v + w.expr(n.Operand)
	case *ast.CallNode:
		v := CallWeight
		if n.IsNew {
			v = NewWeight
		}
		v += w.expr(n.Function)
		for _, a := range n.Args {
			v += w.expr(a)
		}
		return v
	case *ast.TernaryNode:
		return IfWeight + w.expr(n.Test) + w.expr(n.True) + w.expr(n.False)
	case *ast.ArrayLiteralNode:
		if len(n.Units) > 0 {
			// Already split: the elements live in their own units.
			return LiteralWeight
		}
		v := LiteralWeight
		for _, e := range n.Elements {
			v += AAStoreWeight + w.expr(e)
		}
		return v
	case *ast.ObjectLiteralNode:
		v := ObjectWeight
		for _, p := range n.Properties {
			v += SetPropWeight + w.expr(p.Value)
		}
		return v
	}
	return 0
}

func (w *Weigher) binaryWeight(n *ast.BinaryNode) int {
	switch {
	case n.Op == token.ASSIGN:
		switch n.Left.(type) {
		case *ast.AccessNode, *ast.IndexNode:
			return SetPropWeight
		}
		return LocalStoreWeight
	case n.Op.IsAssignment(), n.Op.IsArithmetic(), n.Op.IsBitwise(), n.Op == token.SHR:
		return AddWeight
	case n.Op.IsComparison(), n.Op == token.INSTANCEOF, n.Op == token.IN:
		return CompareWeight
	case n.Op == token.AND, n.Op == token.OR:
		return IfWeight
	}
	return ConstWeight
}

// ElementWeight is the weight one array literal element adds.
func (w *Weigher) ElementWeight(e ast.Expression) int {
	return AAStoreWeight + w.expr(e)
}
