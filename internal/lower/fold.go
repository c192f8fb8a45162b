// Package lower holds the tree simplification phases that run before
// program points are assigned: constant folding and lowering.
package lower

import (
	"math"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

// FoldConstants evaluates operators over literal operands and removes
// branches whose test is a literal.
func FoldConstants(fn *ast.FunctionNode) *ast.FunctionNode {
	return ast.RewriteFunction(fn, folder{})
}

type folder struct{ ast.BaseVisitor }

func (folder) Leave(_ *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.BinaryNode:
		if v, ok := foldBinary(n); ok {
			return &ast.LiteralNode{Token: n.Token, Value: v}
		}
	case *ast.UnaryNode:
		if v, ok := foldUnary(n); ok {
			return &ast.LiteralNode{Token: n.Token, Value: v}
		}
	case *ast.TernaryNode:
		if lit, ok := n.Test.(*ast.LiteralNode); ok {
			if Truthy(lit.Value) {
				return n.True
			}
			return n.False
		}
	case *ast.IfNode:
		lit, ok := n.Test.(*ast.LiteralNode)
		if !ok {
			return n
		}
		kept, dropped := n.Pass, n.Fail
		if !Truthy(lit.Value) {
			kept, dropped = n.Fail, n.Pass
		}
		var stmts []ast.Statement
		if kept != nil {
			stmts = append(stmts, kept.Statements...)
		}
		// Declarations in the dead branch still declare their names.
		stmts = append(stmts, declarationsOf(dropped)...)
		return &ast.Block{Token: n.Token, Statements: stmts}
	}
	return n
}

// declarationsOf returns the var declarations of b, stripped of their
// initializers, without looking into nested functions.
func declarationsOf(b *ast.Block) []ast.Statement {
	if b == nil {
		return nil
	}
	var out []ast.Statement
	ast.Inspect(b, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FunctionNode:
			return false
		case *ast.VarNode:
			if n.IsFunctionDeclaration {
				out = append(out, n)
				return false
			}
			if !n.IsBlockScoped() {
				c := *n
				c.Init = nil
				out = append(out, &c)
			}
		}
		return true
	})
	return out
}

// Truthy is the boolean conversion of a literal value.
func Truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int32:
		return x != 0
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	case ast.UndefinedValue, ast.NullValue, nil:
		return false
	}
	return true
}

func foldUnary(n *ast.UnaryNode) (any, bool) {
	lit, ok := n.Operand.(*ast.LiteralNode)
	if !ok {
		return nil, false
	}
	switch n.Op {
	case token.NOT:
		return !Truthy(lit.Value), true
	case token.NEG:
		if f, ok := lit.Number(); ok {
			return ast.NormalizeNumber(-f), true
		}
	case token.POS:
		if f, ok := lit.Number(); ok {
			return ast.NormalizeNumber(f), true
		}
	case token.BIT_NOT:
		if f, ok := lit.Number(); ok {
			return ^ToInt32(f), true
		}
	}
	return nil, false
}

func foldBinary(n *ast.BinaryNode) (any, bool) {
	if n.IsAssignment() {
		return nil, false
	}
	l, ok := n.Left.(*ast.LiteralNode)
	if !ok {
		return nil, false
	}
	r, ok := n.Right.(*ast.LiteralNode)
	if !ok {
		return nil, false
	}

	if ls, ok := l.Value.(string); ok {
		if rs, ok := r.Value.(string); ok {
			switch n.Op {
			case token.ADD:
				return ls + rs, true
			case token.EQ, token.EQ_STRICT:
				return ls == rs, true
			case token.NE, token.NE_STRICT:
				return ls != rs, true
			}
		}
		return nil, false
	}

	if lb, ok := l.Value.(bool); ok {
		if rb, ok := r.Value.(bool); ok {
			switch n.Op {
			case token.AND:
				return lb && rb, true
			case token.OR:
				return lb || rb, true
			case token.EQ, token.EQ_STRICT:
				return lb == rb, true
			case token.NE, token.NE_STRICT:
				return lb != rb, true
			}
		}
		return nil, false
	}

	a, ok := l.Number()
	if !ok {
		return nil, false
	}
	b, ok := r.Number()
	if !ok {
		return nil, false
	}
	switch n.Op {
	case token.ADD:
		return ast.NormalizeNumber(a + b), true
	case token.SUB:
		return ast.NormalizeNumber(a - b), true
	case token.MUL:
		return ast.NormalizeNumber(a * b), true
	case token.DIV:
		return ast.NormalizeNumber(a / b), true
	case token.MOD:
		return ast.NormalizeNumber(math.Mod(a, b)), true
	case token.LT:
		return a < b, true
	case token.LE:
		return a <= b, true
	case token.GT:
		return a > b, true
	case token.GE:
		return a >= b, true
	case token.EQ, token.EQ_STRICT:
		return a == b, true
	case token.NE, token.NE_STRICT:
		return a != b, true
	case token.BIT_AND:
		return ToInt32(a) & ToInt32(b), true
	case token.BIT_OR:
		return ToInt32(a) | ToInt32(b), true
	case token.BIT_XOR:
		return ToInt32(a) ^ ToInt32(b), true
	case token.SHL:
		return ToInt32(a) << (uint32(ToInt32(b)) & 31), true
	case token.SAR:
		return ToInt32(a) >> (uint32(ToInt32(b)) & 31), true
	case token.SHR:
		return ast.NormalizeNumber(float64(uint32(ToInt32(a)) >> (uint32(ToInt32(b)) & 31))), true
	}
	return nil, false
}

// ToInt32 is the modular int32 conversion of a number.
func ToInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	f = math.Trunc(f)
	m := math.Mod(f, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(m))
}
