package interp

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/lower"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/programpoint"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/split"
	"github.com/funvibe/optijit/internal/symbols"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

type counter struct{ next int }

func (c *counter) NextFunctionID() int {
	c.next++
	return c.next
}

// compile runs every tree-level phase, splitting at threshold.
func compile(fn *ast.FunctionNode, threshold int) *ast.FunctionNode {
	ids := &counter{next: ast.MaxFunctionID(fn)}
	fn = lower.Lower(lower.FoldConstants(fn), ids)
	fn = programpoint.Assign(fn, 0)
	pool := split.NewUnitPool("test", threshold)
	fn = split.NewSplitter(pool, zerolog.Nop()).Split(fn, true)
	fn = split.SplitIntoFunctions(fn, ids)
	fn = symbols.Assign(fn)
	fn = symbols.ComputeScopeDepths(fn)
	fn = optimistic.Calculate(fn, optimistic.Options{})
	return symbols.CalculateLocalTypes(fn)
}

func run(t *testing.T, fn *ast.FunctionNode, options ...Option) runtime.Object {
	t.Helper()
	res, err := New(options...).Run(fn)
	require.NoError(t, err)
	return res
}

// runBoth runs the source tree and its split compilation and requires the
// same result from both.
func runBoth(t *testing.T, prog *ast.FunctionNode, threshold int) runtime.Object {
	t.Helper()
	raw := run(t, prog)
	compiled := compile(prog, threshold)
	require.True(t, compiled.HasState(ast.Split))
	got := run(t, compiled)
	assert.Equal(t, raw.Inspect(), got.Inspect())
	return got
}

func increments(name string, n int) []ast.Statement {
	out := make([]ast.Statement, n)
	for i := range out {
		out[i] = ast.ExprStmt(ast.Assign(ast.Ident(name), ast.Bin(token.ADD, ast.Ident(name), ast.Int(1))))
	}
	return out
}

func assign(name string, e ast.Expression) ast.Statement {
	return ast.ExprStmt(ast.Assign(ast.Ident(name), e))
}

func countFragments(fn *ast.FunctionNode) int {
	n := 0
	for _, f := range ast.Functions(fn) {
		if f.Is(ast.IsSplit) {
			n++
		}
	}
	return n
}

func TestArithmeticAndPrecedence(t *testing.T) {
	prog := ast.Program(
		ast.VarDecl("a", ast.Int(7)),
		ast.VarDecl("b", ast.Int(2)),
		ast.Return(ast.Array(
			ast.Bin(token.DIV, ast.Ident("a"), ast.Ident("b")),
			ast.Bin(token.MOD, ast.Ident("a"), ast.Ident("b")),
			ast.Bin(token.ADD, ast.Str("n"), ast.Ident("a")),
			ast.Bin(token.SHR, ast.Unary(token.NEG, ast.Int(1)), ast.Int(28)),
			ast.Unary(token.TYPEOF, ast.Ident("nowhere")),
			ast.Bin(token.EQ, ast.Null(), ast.Undefined()),
			ast.Bin(token.EQ_STRICT, ast.Null(), ast.Undefined()),
		)))
	res := run(t, prog)
	assert.Equal(t, `[3.5, 1, "n7", 15, "undefined", true, false]`, res.Inspect())
}

func TestSplitProgramMatchesSource(t *testing.T) {
	body := append(increments("x", 200), ast.If(ast.Bin(token.GT, ast.Ident("x"), ast.Int(50)), ast.NewBlock(ast.Break("")), nil))
	prog := ast.Program(
		ast.VarDecl("x", ast.Int(0)),
		ast.While(ast.Bool(true), ast.NewBlock(body...)),
		ast.Return(ast.Ident("x")))

	assert.Greater(t, countFragments(compile(prog, 1000)), 1)
	assert.Equal(t, runtime.NewInt(200), runBoth(t, prog, 1000))
}

func TestSplitLabelledJumpsMatchSource(t *testing.T) {
	bump := ast.Func("bump", []string{"n"},
		assign("hits", ast.Bin(token.ADD, ast.Ident("hits"), ast.Ident("n"))),
		ast.Return(ast.Ident("hits")))
	body := append(increments("x", 120),
		ast.If(ast.Bin(token.EQ_STRICT, ast.Ident("i"), ast.Int(1)), ast.NewBlock(ast.Continue("outer")), nil),
		ast.If(ast.Bin(token.EQ_STRICT, ast.Ident("i"), ast.Int(3)), ast.NewBlock(ast.Break("outer")), nil),
		ast.ExprStmt(ast.Call(ast.Ident("bump"), ast.Ident("i"))))
	loop := ast.For(
		ast.Assign(ast.Ident("i"), ast.Int(0)),
		ast.Bin(token.LT, ast.Ident("i"), ast.Int(4)),
		ast.Assign(ast.Ident("i"), ast.Bin(token.ADD, ast.Ident("i"), ast.Int(1))),
		ast.NewBlock(body...))
	prog := ast.Program(
		ast.VarDecl("x", ast.Int(0)),
		ast.VarDecl("hits", ast.Int(0)),
		ast.VarDecl("i", nil),
		ast.FuncDecl(bump),
		ast.Label("outer", ast.NewBlock(loop)),
		ast.Return(ast.Bin(token.ADD, ast.Bin(token.MUL, ast.Ident("x"), ast.Int(10)), ast.Ident("hits"))))

	assert.Equal(t, runtime.NewInt(4802), runBoth(t, prog, 1000))
}

func TestSplitFunctionReturnMatchesSource(t *testing.T) {
	body := append(increments("y", 150),
		ast.If(ast.Bin(token.GT, ast.Ident("y"), ast.Int(100)), ast.NewBlock(ast.Return(ast.Ident("y"))), nil))
	body = append(body, increments("y", 150)...)
	body = append(body, ast.Return(ast.Unary(token.NEG, ast.Int(1))))
	f := ast.Func("f", []string{"y"}, body...)
	prog := ast.Program(ast.FuncDecl(f), ast.Return(ast.Call(ast.Ident("f"), ast.Int(0))))

	assert.Equal(t, runtime.NewInt(150), runBoth(t, prog, 1000))
}

func TestFinallyRunsExactlyOnce(t *testing.T) {
	side := ast.Func("side", nil, assign("count", ast.Bin(token.ADD, ast.Ident("count"), ast.Int(1))))
	returns := ast.Func("returns", nil,
		ast.Try(ast.NewBlock(ast.Return(ast.Ident("count"))), nil, ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("side"))))))
	throws := ast.Func("throws", nil,
		ast.Try(ast.NewBlock(ast.Throw(ast.Str("boom"))), nil, ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("side"))))))
	prog := ast.Program(
		ast.VarDecl("count", ast.Int(0)),
		ast.VarDecl("caught", ast.Null()),
		ast.FuncDecl(side),
		ast.FuncDecl(returns),
		ast.FuncDecl(throws),
		ast.VarDecl("r", ast.Call(ast.Ident("returns"))),
		ast.VarDecl("afterReturn", ast.Ident("count")),
		ast.Try(ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("throws")))),
			ast.Catch("e", ast.NewBlock(assign("caught", ast.Ident("e")))), nil),
		ast.Return(ast.Array(ast.Ident("r"), ast.Ident("afterReturn"), ast.Ident("caught"), ast.Ident("count"))))

	// The returned value is read before the finally block runs.
	assert.Equal(t, `[0, 1, "boom", 2]`, runBoth(t, prog, 32768).Inspect())
}

func TestUncaughtThrow(t *testing.T) {
	prog := ast.Program(ast.Throw(ast.Str("bad")))
	_, err := New().Run(prog)
	var te *ThrowError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "uncaught exception: bad", err.Error())
}

func TestDeoptOnIntOverflow(t *testing.T) {
	prog := compile(ast.Program(
		ast.VarDecl("x", ast.Num(2147483647)),
		ast.Return(ast.Bin(token.ADD, ast.Ident("x"), ast.Int(1)))), 32768)

	var events []Deopt
	res := run(t, prog, WithDeoptHandler(func(d Deopt) { events = append(events, d) }))
	assert.Equal(t, "2147483648", res.Inspect())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, prog.ID, last.FunctionID)
	assert.Equal(t, typesystem.Int, last.Expected)
	assert.Equal(t, typesystem.Number, last.Actual)
	assert.NotEqual(t, ast.InvalidProgramPoint, last.ProgramPoint)
}

func TestDeoptOnBoolean(t *testing.T) {
	id := ast.Func("id", []string{"a"}, ast.Return(ast.Ident("a")))
	prog := compile(ast.Program(ast.FuncDecl(id), ast.Return(ast.Call(ast.Ident("id"), ast.Bool(true)))), 32768)

	var actual []typesystem.Type
	res := run(t, prog, WithDeoptHandler(func(d Deopt) { actual = append(actual, d.Actual) }))
	assert.Equal(t, runtime.TRUE, res)
	assert.Contains(t, actual, typesystem.Boolean)
}

func TestNoDeoptWhenSpeculationHolds(t *testing.T) {
	prog := compile(ast.Program(
		ast.VarDecl("x", ast.Int(1)),
		ast.Return(ast.Bin(token.ADD, ast.Ident("x"), ast.Int(1)))), 32768)

	called := false
	res := run(t, prog, WithDeoptHandler(func(Deopt) { called = true }))
	assert.Equal(t, runtime.NewInt(2), res)
	assert.False(t, called)
}

func TestLabelledContinue(t *testing.T) {
	inner := ast.For(
		ast.Assign(ast.Ident("j"), ast.Int(0)),
		ast.Bin(token.LT, ast.Ident("j"), ast.Int(3)),
		ast.Assign(ast.Ident("j"), ast.Bin(token.ADD, ast.Ident("j"), ast.Int(1))),
		ast.NewBlock(
			ast.If(ast.Bin(token.EQ_STRICT, ast.Ident("j"), ast.Int(1)), ast.NewBlock(ast.Continue("rows")), nil),
			assign("n", ast.Bin(token.ADD, ast.Ident("n"), ast.Int(1)))))
	outer := ast.For(
		ast.Assign(ast.Ident("i"), ast.Int(0)),
		ast.Bin(token.LT, ast.Ident("i"), ast.Int(4)),
		ast.Assign(ast.Ident("i"), ast.Bin(token.ADD, ast.Ident("i"), ast.Int(1))),
		ast.NewBlock(inner))
	prog := ast.Program(
		ast.VarDecl("n", ast.Int(0)),
		ast.VarDecl("i", nil),
		ast.VarDecl("j", nil),
		ast.Label("rows", ast.NewBlock(outer)),
		ast.Return(ast.Ident("n")))

	assert.Equal(t, runtime.NewInt(4), runBoth(t, prog, 32768))
}

func TestSwitchFallthroughAndDefault(t *testing.T) {
	classify := ast.Func("classify", []string{"v"},
		ast.VarDecl("out", ast.Str("")),
		ast.Switch(ast.Ident("v"),
			ast.Case(ast.Int(1), assign("out", ast.Bin(token.ADD, ast.Ident("out"), ast.Str("one")))),
			ast.Case(ast.Int(2), assign("out", ast.Bin(token.ADD, ast.Ident("out"), ast.Str("two"))), ast.Break("")),
			ast.Case(nil, assign("out", ast.Str("other")))),
		ast.Return(ast.Ident("out")))
	prog := ast.Program(ast.FuncDecl(classify), ast.Return(ast.Array(
		ast.Call(ast.Ident("classify"), ast.Int(1)),
		ast.Call(ast.Ident("classify"), ast.Int(2)),
		ast.Call(ast.Ident("classify"), ast.Int(9)))))

	assert.Equal(t, `["onetwo", "two", "other"]`, runBoth(t, prog, 32768).Inspect())
}

func TestClosuresCaptureTheirScope(t *testing.T) {
	inc := ast.Func("", nil,
		assign("n", ast.Bin(token.ADD, ast.Ident("n"), ast.Int(1))),
		ast.Return(ast.Ident("n")))
	makeCounter := ast.Func("makeCounter", nil, ast.VarDecl("n", ast.Int(0)), ast.Return(inc))
	prog := ast.Program(
		ast.FuncDecl(makeCounter),
		ast.VarDecl("a", ast.Call(ast.Ident("makeCounter"))),
		ast.VarDecl("b", ast.Call(ast.Ident("makeCounter"))),
		ast.ExprStmt(ast.Call(ast.Ident("a"))),
		ast.ExprStmt(ast.Call(ast.Ident("a"))),
		ast.Return(ast.Array(ast.Call(ast.Ident("a")), ast.Call(ast.Ident("b")))))

	assert.Equal(t, "[3, 1]", runBoth(t, prog, 32768).Inspect())
}

func TestConstructorsAndInstanceof(t *testing.T) {
	point := ast.Func("Point", []string{"x"}, ast.ExprStmt(ast.Assign(ast.Access(ast.This(), "x"), ast.Ident("x"))))
	prog := ast.Program(
		ast.FuncDecl(point),
		ast.VarDecl("p", ast.New(ast.Ident("Point"), ast.Int(4))),
		ast.Return(ast.Array(
			ast.Access(ast.Ident("p"), "x"),
			ast.Bin(token.INSTANCEOF, ast.Ident("p"), ast.Ident("Point")),
			ast.Bin(token.IN, ast.Str("x"), ast.Ident("p")))))

	assert.Equal(t, "[4, true, true]", run(t, prog).Inspect())
}

func TestGlobalAccessor(t *testing.T) {
	globals := runtime.NewEnvironment()
	calls := 0
	globals.DefineAccessor("tick", &runtime.Builtin{Name: "tick", Fn: func(runtime.Object, []runtime.Object) (runtime.Object, error) {
		calls++
		return runtime.NewInt(int32(calls)), nil
	}})
	prog := ast.Program(ast.Return(ast.Bin(token.ADD, ast.Ident("tick"), ast.Ident("tick"))))

	assert.Equal(t, runtime.NewInt(3), run(t, prog, WithGlobals(globals)))
}

func TestReferenceAndTypeErrors(t *testing.T) {
	_, err := New().Run(ast.Program(ast.Return(ast.Ident("missing"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ReferenceError: missing is not defined")

	_, err = New().Run(ast.Program(ast.Return(ast.Access(ast.Undefined(), "p"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError")
}

func TestCallDepthLimit(t *testing.T) {
	loop := ast.Func("loop", nil, ast.Return(ast.Call(ast.Ident("loop"))))
	prog := ast.Program(ast.FuncDecl(loop), ast.Return(ast.Call(ast.Ident("loop"))))

	_, err := New(WithMaxDepth(50)).Run(prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum call depth 50")
}

type stubs map[int]*ast.FunctionNode

func (s stubs) Function(id int) (*ast.FunctionNode, error) { return s[id], nil }

func TestInstalledFunctionsReplaceClosureTrees(t *testing.T) {
	prog := ast.Program(
		ast.FuncDecl(ast.Func("f", nil, ast.Return(ast.Int(1)))),
		ast.Return(ast.Call(ast.Ident("f"))))
	f := ast.Functions(prog)[1]
	replaced := f.WithBody(ast.NewBlock(ast.Return(ast.Int(2))))

	assert.Equal(t, runtime.NewInt(2), run(t, prog, WithFunctions(stubs{f.ID: replaced})))

	_, err := New(WithFunctions(stubs{f.ID: f.WithFlags(ast.IsLazyStub)})).Run(prog)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not compiled")
}
