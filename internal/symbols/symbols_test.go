package symbols

import (
	"testing"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idents returns the identifiers named name directly in fn.
func idents(fn *ast.FunctionNode, name string) []*ast.IdentNode {
	var out []*ast.IdentNode
	ast.InspectFunction(fn, func(n ast.Node) bool {
		if id, ok := n.(*ast.IdentNode); ok && id.Name == name {
			out = append(out, id)
		}
		return true
	})
	return out
}

func function(root *ast.FunctionNode, name string) *ast.FunctionNode {
	for _, fn := range ast.Functions(root) {
		if fn.Name == name {
			return fn
		}
	}
	return nil
}

func TestAssignLocalsAndCaptures(t *testing.T) {
	h := ast.Func("h", nil, ast.Return(ast.Ident("a")))
	g := ast.Func("g", []string{"p"},
		ast.VarDecl("a", ast.Int(1)),
		ast.VarDecl("b", ast.Ident("p")),
		ast.FuncDecl(h),
		ast.Return(ast.Ident("b")))
	f, _ := ast.NumberFunctions(g, 1)

	out := Assign(f)
	require.True(t, out.HasState(ast.SymbolsAssigned))

	a := idents(function(out, "h"), "a")[0].Symbol
	require.NotNil(t, a)
	assert.True(t, a.Is(ast.SymScope))
	assert.False(t, a.IsBytecodeLocal())
	assert.Equal(t, -1, a.Slot)
	assert.Equal(t, out.ID, a.Owner)

	b := idents(out, "b")
	require.Len(t, b, 2)
	assert.Same(t, b[0].Symbol, b[1].Symbol)
	assert.True(t, b[0].Symbol.IsBytecodeLocal())

	p := out.Params[0].Symbol
	assert.True(t, p.Is(ast.SymParam))
	assert.Equal(t, 0, p.Slot)
	assert.Equal(t, 1, b[0].Symbol.Slot)

	assert.True(t, function(out, "h").Is(ast.UsesAncestorScope))
	assert.False(t, out.Is(ast.UsesAncestorScope))
}

func TestAssignGlobals(t *testing.T) {
	f := ast.Func("f", nil, ast.Return(ast.Bin(token.ADD, ast.Ident("x"), ast.Ident("y"))))
	prog := ast.Program(ast.VarDecl("x", ast.Int(1)), ast.FuncDecl(f))
	out := Assign(prog)

	x := idents(function(out, "f"), "x")[0].Symbol
	assert.True(t, x.Is(ast.SymGlobal))
	assert.False(t, x.Is(ast.SymScope))
	y := idents(function(out, "f"), "y")[0].Symbol
	assert.True(t, y.Is(ast.SymGlobal))
	assert.Equal(t, prog.ID, y.Owner)
}

func TestAssignFlagsArgumentsOnRealFunction(t *testing.T) {
	frag := ast.Func("", nil, ast.Return(ast.Index(ast.Ident(ast.ArgumentsName), ast.Int(0))))
	frag.Flags |= ast.IsSplit | ast.UsesAncestorScope
	f := ast.Func("f", nil,
		ast.VarDecl("v", ast.Int(1)),
		ast.ExprStmt(ast.Call(ast.Access(frag, ast.CallName), ast.This())),
		ast.ExprStmt(ast.Call(ast.Access(ast.Ident("g"), "apply"), ast.This(), ast.Ident("v"))))
	f, _ = ast.NumberFunctions(f, 1)
	out := Assign(f)

	assert.True(t, out.Is(ast.UsesArguments))
	assert.True(t, out.Is(ast.HasApplyToCall))
	assert.False(t, ast.Functions(out)[1].Is(ast.UsesArguments))
}

func TestAssignSplitFunctionUsesScope(t *testing.T) {
	frag := ast.Func("", nil, ast.ExprStmt(ast.Assign(ast.Ident("v"), ast.Int(2))))
	frag.Flags |= ast.IsSplit | ast.UsesAncestorScope
	f := ast.Func("f", nil,
		ast.VarDecl("v", nil),
		ast.VarDecl("w", ast.Int(1)),
		ast.ExprStmt(ast.Call(ast.Access(frag, ast.CallName), ast.This())),
		ast.Return(ast.Bin(token.ADD, ast.Ident("v"), ast.Ident("w"))))
	f, _ = ast.NumberFunctions(f, 1)
	out := Assign(f)

	assert.True(t, idents(out, "v")[0].Symbol.Is(ast.SymScope))
	assert.True(t, idents(out, "w")[0].Symbol.IsBytecodeLocal())
	assert.Equal(t, 0, idents(out, "w")[0].Symbol.Slot)
}

func TestScopeDepths(t *testing.T) {
	inner := ast.Func("inner", nil, ast.Return(ast.Bin(token.ADD, ast.Ident("a"), ast.Ident("b"))))
	mid := ast.Func("mid", nil, ast.VarDecl("b", ast.Int(2)), ast.FuncDecl(inner), ast.Return(ast.Call(ast.Ident("inner"))))
	outer := ast.Func("outer", nil, ast.VarDecl("a", ast.Int(1)), ast.FuncDecl(mid), ast.Return(ast.Call(ast.Ident("mid"))))
	f, _ := ast.NumberFunctions(outer, 1)

	out := ComputeScopeDepths(Assign(f))
	assert.Equal(t, 1, out.ScopeDepth)
	assert.True(t, out.HasState(ast.ScopeDepthsComputed))
	in := function(out, "inner")
	assert.Equal(t, 3, in.ScopeDepth)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, in.ExternalDepths)
	assert.Equal(t, map[string]int{}, function(out, "mid").ExternalDepths)
}

func TestInferLocalTypes(t *testing.T) {
	f := ast.Func("f", []string{"p"},
		ast.VarDecl("i", ast.Int(0)),
		ast.VarDecl("s", ast.Int(1)),
		ast.VarDecl("flag", ast.Bool(true)),
		ast.VarDecl("u", nil),
		ast.ExprStmt(ast.Assign(ast.Ident("s"), ast.Bin(token.MUL, ast.Ident("s"), ast.Num(1.5)))),
		ast.ExprStmt(ast.Bin(token.ASSIGN_ADD, ast.Ident("i"), ast.Ident("p"))),
		ast.Return(ast.Ident("i")))
	f, _ = ast.NumberFunctions(f, 1)
	out := Assign(f)
	types := InferLocalTypes(out)

	sym := func(name string) *ast.Symbol { return idents(out, name)[0].Symbol }
	assert.Equal(t, typesystem.Object, types[sym("i")])
	assert.Equal(t, typesystem.Number, types[sym("s")])
	assert.Equal(t, typesystem.Boolean, types[sym("flag")])
	assert.Equal(t, typesystem.Object, types[sym("u")])

	typed := CalculateLocalTypes(out)
	assert.True(t, typed.HasState(ast.LocalVariableTypesCalculated))
	ret := typed.Body.Last().(*ast.ReturnNode).Expression.(*ast.IdentNode)
	assert.Equal(t, typesystem.Object, ret.OptimisticType())
	assert.Equal(t, ast.InvalidProgramPoint, ret.ProgramPoint())
}

func TestInferLocalTypesIntLoop(t *testing.T) {
	f := ast.Func("f", nil,
		ast.VarDecl("i", ast.Int(0)),
		ast.VarDecl("m", ast.Int(0)),
		ast.While(ast.Bin(token.LT, ast.Ident("i"), ast.Int(10)), ast.NewBlock(
			ast.ExprStmt(ast.Assign(ast.Ident("m"), ast.Bin(token.BIT_OR, ast.Ident("i"), ast.Int(1)))),
			ast.ExprStmt(ast.Assign(ast.Ident("i"), ast.Bin(token.ADD, ast.Ident("i"), ast.Int(1)))),
		)),
		ast.Return(ast.Ident("m")))
	f, _ = ast.NumberFunctions(f, 1)
	out := Assign(f)
	types := InferLocalTypes(out)
	assert.Equal(t, typesystem.Number, types[idents(out, "i")[0].Symbol])
	assert.Equal(t, typesystem.Int, types[idents(out, "m")[0].Symbol])
}

func TestCalculateLocalTypesRecordsReturnType(t *testing.T) {
	g := ast.Func("g", nil,
		ast.VarDecl("m", ast.Int(0)),
		ast.Return(ast.Bin(token.BIT_OR, ast.Ident("m"), ast.Int(1))))
	f := ast.Func("f", nil,
		ast.VarDecl("m", ast.Int(0)),
		ast.FuncDecl(g),
		ast.If(ast.Bin(token.LT, ast.Ident("m"), ast.Int(1)), ast.NewBlock(ast.Return(ast.Ident("m"))), nil),
		ast.Return(ast.Bool(true)))
	f, _ = ast.NumberFunctions(f, 1)
	out := CalculateLocalTypes(Assign(f))

	assert.Equal(t, typesystem.Object, out.ReturnType)
	assert.Equal(t, typesystem.Int, function(out, "g").ReturnType)
}
