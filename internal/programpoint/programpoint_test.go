package programpoint

import (
	"testing"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *ast.FunctionNode {
	g := ast.Func("g", []string{"p"},
		ast.Return(ast.Bin(token.MUL, ast.Ident("p"), ast.Access(ast.This(), "k"))),
	)
	return ast.Program(
		ast.VarDecl("a", ast.Bin(token.ADD, ast.Ident("b"), ast.Index(ast.Ident("arr"), ast.Int(0)))),
		ast.FuncDecl(g),
		ast.ExprStmt(ast.Call(ast.Ident("g"), ast.Unary(token.NEG, ast.Ident("a")))),
		ast.If(ast.Bin(token.LT, ast.Ident("a"), ast.Int(3)), ast.NewBlock(), nil),
	)
}

func TestProgramPointsUniquePerFunction(t *testing.T) {
	out := Assign(sample(), ast.MaxProgramPoint)
	for _, fn := range ast.Functions(out) {
		assert.True(t, fn.HasState(ast.ProgramPointsAssigned))
		pps := Collect(fn)
		require.NotEmpty(t, pps)
		seen := map[int]bool{}
		for _, pp := range pps {
			assert.False(t, seen[pp], "duplicate program point %d in %s", pp, fn.DisplayName())
			assert.GreaterOrEqual(t, pp, ast.FirstProgramPoint)
			assert.LessOrEqual(t, pp, ast.MaxProgramPoint)
			seen[pp] = true
		}
	}
	g := ast.Functions(out)[1]
	assert.ElementsMatch(t, []int{1, 2, 3}, Collect(g), "points restart in every function")
}

func TestProgramPointsSkipIneligibleNodes(t *testing.T) {
	out := Assign(sample(), ast.MaxProgramPoint)
	ast.Inspect(out, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.IdentNode:
			if n.IsDeclaredHere || n.IsThis() {
				assert.Equal(t, ast.InvalidProgramPoint, n.ProgramPoint(), n.Name)
			}
		case *ast.BinaryNode:
			if n.Op == token.LT {
				assert.Equal(t, ast.InvalidProgramPoint, n.ProgramPoint())
			}
		}
		return true
	})
}

func TestProgramPointBudget(t *testing.T) {
	var stmts []ast.Statement
	for i := 0; i < 5; i++ {
		stmts = append(stmts, ast.ExprStmt(ast.Ident("x")))
	}
	assert.NotPanics(t, func() { Assign(ast.Program(stmts...), 5) })

	stmts = append(stmts, ast.ExprStmt(ast.Ident("y")))
	assert.PanicsWithError(t, "internal invariant violated: function :program has more than 5 program points", func() {
		Assign(ast.Program(stmts...), 5)
	})
}
