package lower

import (
	"strings"
	"testing"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/prettyprinter"
	"github.com/funvibe/optijit/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct{ next int }

func (c *counter) NextFunctionID() int {
	c.next++
	return c.next
}

func TestFoldArithmetic(t *testing.T) {
	prog := ast.Program(ast.Return(ast.Bin(token.ADD, ast.Int(1), ast.Bin(token.MUL, ast.Int(2), ast.Int(3)))))
	out := FoldConstants(prog)
	ret := out.Body.Statements[0].(*ast.ReturnNode)
	lit, ok := ret.Expression.(*ast.LiteralNode)
	require.True(t, ok)
	assert.Equal(t, int32(7), lit.Value)
}

func TestFoldKeepsNonConstant(t *testing.T) {
	expr := ast.Bin(token.ADD, ast.Ident("x"), ast.Int(1))
	prog := ast.Program(ast.Return(expr))
	out := FoldConstants(prog)
	assert.Same(t, prog, out)
}

func TestFoldValues(t *testing.T) {
	tests := []struct {
		name string
		expr ast.Expression
		want any
	}{
		{"division", ast.Bin(token.DIV, ast.Int(1), ast.Int(2)), 0.5},
		{"concat", ast.Bin(token.ADD, ast.Str("a"), ast.Str("b")), "ab"},
		{"compare", ast.Bin(token.LT, ast.Int(1), ast.Int(2)), true},
		{"not", ast.Unary(token.NOT, ast.Bool(true)), false},
		{"negate", ast.Unary(token.NEG, ast.Int(4)), int32(-4)},
		{"shift", ast.Bin(token.SHL, ast.Int(1), ast.Int(33)), int32(2)},
		{"ternary", ast.Ternary(ast.Bool(false), ast.Int(1), ast.Int(2)), int32(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FoldConstants(ast.Program(ast.Return(tt.expr)))
			lit, ok := out.Body.Statements[0].(*ast.ReturnNode).Expression.(*ast.LiteralNode)
			require.True(t, ok)
			assert.Equal(t, tt.want, lit.Value)
		})
	}
}

func TestFoldDeadBranchKeepsDeclarations(t *testing.T) {
	prog := ast.Program(ast.If(ast.Bool(false),
		ast.NewBlock(ast.VarDecl("x", ast.Int(1)), ast.ExprStmt(ast.Call(ast.Ident("f")))),
		ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("g"))))))
	out := FoldConstants(prog)
	assert.Equal(t, "{\n    g();\n    var x;\n}\n", prettyprinter.Print(out.Body.Statements[0]))
}

func TestLowerProgramResult(t *testing.T) {
	prog := ast.Program(ast.ExprStmt(ast.Int(1)), ast.ExprStmt(ast.Int(2)))
	out := Lower(prog, &counter{next: 10})
	assert.Equal(t, "var :return;\n:return = 1;\n:return = 2;\nreturn :return;\n", prettyprinter.Print(out))
	assert.True(t, out.HasState(ast.Lowered))
}

func TestLowerDropsDeadCode(t *testing.T) {
	f := ast.Func("f", nil,
		ast.Return(ast.Int(1)),
		ast.ExprStmt(ast.Call(ast.Ident("g"))),
		ast.VarDecl("y", ast.Int(2)),
	)
	prog := ast.Program(ast.FuncDecl(f))
	out := Lower(prog, &counter{next: 10})
	lowered := ast.Functions(out)[1]
	assert.Equal(t, "{\n    var y;\n    return 1;\n}\n", prettyprinter.Print(lowered.Body))
}

func TestLowerAppendsReturn(t *testing.T) {
	f := ast.Func("f", nil, ast.ExprStmt(ast.Call(ast.Ident("g"))))
	out := Lower(ast.Program(ast.FuncDecl(f)), &counter{})
	lowered := ast.Functions(out)[1]
	_, ok := lowered.Body.Last().(*ast.ReturnNode)
	assert.True(t, ok)
}

func TestInlineFinally(t *testing.T) {
	f := ast.Func("f", nil, ast.Try(
		ast.NewBlock(ast.Return(ast.Int(1))),
		nil,
		ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("side")))),
	))
	out := Lower(ast.Program(ast.FuncDecl(f)), &counter{next: 10})
	text := prettyprinter.Print(ast.Functions(out)[1].Body)

	assert.Equal(t, 2, strings.Count(text, "side()"), text)
	for _, frag := range []string{
		"var :return;",
		"var :fstate$1;",
		":fstate$1 = -1;",
		":fin$1: {",
		":return = 1;",
		":fstate$1 = 0;",
		":jumpToFinally :fin$1;",
		"catch (:exception$1)",
		"throw :exception$1;",
		"if (:fstate$1 === 0) {",
		"return :return;",
	} {
		assert.Contains(t, text, frag)
	}
	assert.NotContains(t, text, "finally")
}

func TestInlineFinallyOnlyConvertsExternalJumps(t *testing.T) {
	loop := ast.While(ast.Ident("c"), ast.NewBlock(
		ast.Try(
			ast.NewBlock(
				ast.While(ast.Ident("d"), ast.NewBlock(ast.Break(""))),
				ast.Break(""),
			),
			nil,
			ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("side")))),
		),
	))
	f := ast.Func("f", nil, loop)
	out := Lower(ast.Program(ast.FuncDecl(f)), &counter{next: 10})
	text := prettyprinter.Print(ast.Functions(out)[1].Body)

	assert.Equal(t, 1, strings.Count(text, ":jumpToFinally"), text)
	assert.Contains(t, text, "if (:fstate$1 === 0) {\n                break;")
	assert.NotContains(t, text, ":return", "no return crosses the finally")
}

func TestInlineFinallyRenumbersCopiedFunctions(t *testing.T) {
	inner := ast.Func("", nil, ast.Return(nil))
	f := ast.Func("f", nil, ast.Try(
		ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("g")))),
		nil,
		ast.NewBlock(ast.ExprStmt(ast.Call(inner))),
	))
	prog := ast.Program(ast.FuncDecl(f))
	out := Lower(prog, &counter{next: 100})

	ids := map[int]bool{}
	for _, fn := range ast.Functions(out) {
		assert.False(t, ids[fn.ID], "duplicate id %d", fn.ID)
		ids[fn.ID] = true
	}
}
