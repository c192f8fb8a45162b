package symbols

import (
	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// LocalTypes maps bytecode-local symbols to the widest type ever stored
// into them.
type LocalTypes map[*ast.Symbol]typesystem.Type

// store is one write to a local: either an expression or a fixed type.
type store struct {
	sym   *ast.Symbol
	value ast.Expression
	op    token.Type
	fixed typesystem.Type
}

// InferLocalTypes computes the type of every bytecode-local symbol in the
// tree. The analysis is flow-insensitive: a declaration without
// initializer contributes undefined, parameters and catch bindings are
// unknown at compile time and contribute object.
func InferLocalTypes(fn *ast.FunctionNode) LocalTypes {
	var stores []store
	addFixed := func(id *ast.IdentNode, t typesystem.Type) {
		if id != nil && id.Symbol.IsBytecodeLocal() {
			stores = append(stores, store{sym: id.Symbol, fixed: t})
		}
	}
	ast.Inspect(fn, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FunctionNode:
			for _, p := range n.Params {
				addFixed(p, typesystem.Object)
			}
		case *ast.CatchNode:
			addFixed(n.Param, typesystem.Object)
		case *ast.VarNode:
			switch {
			case n.IsFunctionDeclaration, n.Init == nil:
				addFixed(n.Name, typesystem.Object)
			case n.Name.Symbol.IsBytecodeLocal():
				stores = append(stores, store{sym: n.Name.Symbol, value: n.Init, op: token.ASSIGN})
			}
		case *ast.BinaryNode:
			if id, ok := n.Left.(*ast.IdentNode); ok && n.IsAssignment() && id.Symbol.IsBytecodeLocal() {
				stores = append(stores, store{sym: id.Symbol, value: n, op: n.Op})
			}
		}
		return true
	})

	types := make(LocalTypes)
	for changed := true; changed; {
		changed = false
		for _, s := range stores {
			t := s.fixed
			if s.value != nil {
				t = types.exprType(s.value)
			}
			if w := typesystem.Widest(types[s.sym], t); w != types[s.sym] {
				types[s.sym] = w
				changed = true
			}
		}
	}
	return types
}

// exprType is the static type of e given the local types known so far.
func (lt LocalTypes) exprType(e ast.Expression) typesystem.Type {
	switch e := e.(type) {
	case *ast.LiteralNode:
		switch e.Value.(type) {
		case int32, float64, bool:
			return typesystem.OfValue(e.Value)
		}
		return typesystem.Object
	case *ast.IdentNode:
		if e.Symbol.IsBytecodeLocal() {
			return lt[e.Symbol]
		}
		return typesystem.Object
	case *ast.BinaryNode:
		if e.Op == token.ASSIGN {
			return lt.exprType(e.Right)
		}
		return lt.binaryType(e.Op, lt.exprType(e.Left), lt.exprType(e.Right))
	case *ast.UnaryNode:
		switch e.Op {
		case token.NOT:
			return typesystem.Boolean
		case token.NEG, token.POS:
			return typesystem.Number
		case token.BIT_NOT:
			return typesystem.Int
		}
		return typesystem.Object
	case *ast.TernaryNode:
		return typesystem.Widest(lt.exprType(e.True), lt.exprType(e.False))
	}
	return typesystem.Object
}

func (lt LocalTypes) binaryType(op token.Type, l, r typesystem.Type) typesystem.Type {
	switch {
	case op.IsComparison(), op == token.INSTANCEOF, op == token.IN:
		return typesystem.Boolean
	case op.IsBitwise():
		return typesystem.Int
	case op == token.AND, op == token.OR:
		return typesystem.Widest(l, r)
	case op == token.COMMA:
		return r
	}
	switch op.BinaryOf() {
	case token.ADD:
		switch {
		case l == typesystem.Object || r == typesystem.Object:
			return typesystem.Object
		case l == typesystem.Unknown || r == typesystem.Unknown:
			return typesystem.Unknown
		}
		return typesystem.Number
	case token.SUB, token.MUL, token.DIV, token.MOD, token.SHR:
		return typesystem.Number
	}
	return typesystem.Object
}

// CalculateLocalTypes annotates every read of a bytecode-local symbol with
// the symbol's inferred type. Such reads never speculate.
func CalculateLocalTypes(fn *ast.FunctionNode) *ast.FunctionNode {
	types := InferLocalTypes(fn)
	return ast.RewriteFunction(fn, &localTyper{types: types})
}

type localTyper struct {
	ast.BaseVisitor
	types LocalTypes
}

func (v *localTyper) Leave(_ *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.IdentNode:
		if n.IsDeclaredHere || !n.Symbol.IsBytecodeLocal() {
			return n
		}
		t, ok := v.types[n.Symbol]
		if !ok || t == typesystem.Unknown {
			t = typesystem.Object
		}
		return n.WithProgramPoint(ast.InvalidProgramPoint).WithType(t)
	case *ast.FunctionNode:
		c := *n.WithState(ast.LocalVariableTypesCalculated)
		c.ReturnType = v.types.returnType(&c)
		return &c
	}
	return n
}

// returnType widens over the values fn returns. A function with split
// fragments returns through them and is left unknown.
func (lt LocalTypes) returnType(fn *ast.FunctionNode) typesystem.Type {
	t := typesystem.Unknown
	split := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FunctionNode:
			split = split || n.Is(ast.IsSplit)
			return false
		case *ast.ReturnNode:
			rt := typesystem.Object
			if n.Expression != nil {
				rt = lt.returnedType(n.Expression)
			}
			t = typesystem.Widest(t, rt)
		}
		return true
	})
	if split {
		return typesystem.Unknown
	}
	return t
}

func (lt LocalTypes) returnedType(e ast.Expression) typesystem.Type {
	if o, ok := e.(ast.Optimistic); ok && o.CanBeOptimistic() && !o.OptimisticType().IsUnknown() {
		return o.OptimisticType()
	}
	return lt.exprType(e)
}
