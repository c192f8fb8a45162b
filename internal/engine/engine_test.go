package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/compiler"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/persist"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

func withDouble() *ast.FunctionNode {
	double := ast.Func("double", []string{"a"}, ast.Return(ast.Bin(token.MUL, ast.Ident("a"), ast.Int(2))))
	return ast.Program(ast.FuncDecl(double), ast.Return(ast.Call(ast.Ident("double"), ast.Int(3))))
}

// overflowing calls add with ints, then with a sum that overflows int32,
// then with ints again.
func overflowing() *ast.FunctionNode {
	add := ast.Func("add", []string{"a", "b"}, ast.Return(ast.Bin(token.ADD, ast.Ident("a"), ast.Ident("b"))))
	call := func(a, b float64) ast.Expression { return ast.Call(ast.Ident("add"), ast.Num(a), ast.Num(b)) }
	return ast.Program(
		ast.FuncDecl(add),
		ast.VarDecl("r1", call(1, 2)),
		ast.VarDecl("r2", call(2147483647, 1)),
		ast.VarDecl("r3", call(1, 2)),
		ast.Return(ast.Array(ast.Ident("r1"), ast.Ident("r2"), ast.Ident("r3"))))
}

func newEngine(t *testing.T, opts config.Options, options ...Option) *Engine {
	t.Helper()
	e, err := New(opts, []byte("test source"), options...)
	require.NoError(t, err)
	return e
}

func fileCache(t *testing.T) *persist.Cache {
	t.Helper()
	store, err := persist.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return persist.New(store, zerolog.Nop(), time.Minute)
}

func TestRunEager(t *testing.T) {
	e := newEngine(t, config.Default())
	prog := withDouble()
	res, err := e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, runtime.NewInt(6), res)

	double := ast.Functions(prog)[1]
	installed, ok := e.Registry().Function(double.ID)
	require.True(t, ok)
	assert.True(t, installed.HasState(ast.BytecodeInstalled))
	assert.NotEmpty(t, e.Registry().Units())
	root, ok := e.Registry().Root(prog.ID)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(root, "main$cu"))

	st := e.Stats()
	assert.Equal(t, 1, st.Compiles)
	assert.Zero(t, st.OnDemand)
	assert.Zero(t, st.Deopts)
}

func TestRegistryReportsReturnTypes(t *testing.T) {
	e := newEngine(t, config.Default())
	prog := withDouble()
	double := ast.Functions(prog)[1]
	_, err := e.Run(prog)
	require.NoError(t, err)

	rt, digest, ok := e.Registry().ReturnType(double.ID)
	require.True(t, ok)
	assert.False(t, rt.IsUnknown())
	assert.Equal(t, double.Digest(), digest)

	_, _, ok = e.Registry().ReturnType(9999)
	assert.False(t, ok)
}

func TestRunLazyCompilesStubsOnFirstCall(t *testing.T) {
	opts := config.Default()
	opts.LazyCompilation = true
	e := newEngine(t, opts)
	prog := withDouble()
	double := ast.Functions(prog)[1]

	_, err := e.Load(prog)
	require.NoError(t, err)
	_, ok := e.Registry().Function(double.ID)
	assert.False(t, ok)

	res, err := e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, runtime.NewInt(6), res)
	assert.Equal(t, 1, e.Stats().OnDemand)

	installed, ok := e.Registry().Function(double.ID)
	require.True(t, ok)
	assert.False(t, installed.Is(ast.IsLazyStub))

	_, err = e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Stats().OnDemand)
}

func TestLazyStubsSurviveSmallFunctionStore(t *testing.T) {
	opts := config.Default()
	opts.LazyCompilation = true
	opts.FunctionStoreSize = 4
	e := newEngine(t, opts)

	var stmts []ast.Statement
	for i := 0; i < 300; i++ {
		f := ast.Func(fmt.Sprintf("f%d", i), []string{"a"}, ast.Return(ast.Bin(token.ADD, ast.Ident("a"), ast.Int(i))))
		stmts = append(stmts, ast.FuncDecl(f))
	}
	stmts = append(stmts, ast.Return(ast.Call(ast.Ident("f0"), ast.Int(3))))
	prog := ast.Program(stmts...)

	res, err := e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, runtime.NewInt(3), res)
	assert.Equal(t, 1, e.Stats().OnDemand)
	assert.Equal(t, 299, e.store.Pinned())
}

func TestDeoptRecompilesBeforeNextCall(t *testing.T) {
	e := newEngine(t, config.Default())
	prog := overflowing()
	add := ast.Functions(prog)[1]

	res, err := e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, "[3, 2147483648, 3]", res.Inspect())

	st := e.Stats()
	assert.Equal(t, 1, st.Recompiles)
	assert.GreaterOrEqual(t, st.Deopts, 2)
	rest, ok := e.Result(add.ID)
	require.True(t, ok)
	assert.True(t, rest.Function.HasState(ast.BytecodeInstalled))

	// The program itself recompiles before its next run and then holds.
	res, err = e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, "[3, 2147483648, 3]", res.Inspect())
	assert.Equal(t, 2, e.Stats().Recompiles)
	assert.Equal(t, st.Deopts, e.Stats().Deopts)
}

func TestInvalidationsPersistAcrossEngines(t *testing.T) {
	cache := fileCache(t)
	prog := overflowing()
	add := ast.Functions(prog)[1]

	first := newEngine(t, config.Default(), WithCache(cache))
	_, err := first.Run(prog)
	require.NoError(t, err)
	require.Positive(t, first.Stats().Deopts)

	key := genericKey([]byte("test source"), add.ID)
	assert.Empty(t, key.Params)
	m, ok := cache.Load(key)
	require.True(t, ok)
	require.NotEmpty(t, m.Points())
	for _, typ := range m {
		assert.Equal(t, typesystem.Number, typ)
	}
	_, ok = cache.Load(persist.NewKey([]byte("test source"), add.ID, []typesystem.Type{typesystem.Int, typesystem.Int}))
	assert.False(t, ok, "a specialized key must not see the generic entry")

	second := newEngine(t, config.Default(), WithCache(cache))
	res, err := second.Run(overflowing())
	require.NoError(t, err)
	assert.Equal(t, "[3, 2147483648, 3]", res.Inspect())
	assert.Zero(t, second.Stats().Deopts)
	assert.Zero(t, second.Stats().Recompiles)
}

func TestPrintBuiltin(t *testing.T) {
	var out bytes.Buffer
	e := newEngine(t, config.Default(), WithOutput(&out))
	prog := ast.Program(ast.ExprStmt(ast.Call(ast.Ident("print"), ast.Str("hi"), ast.Int(1))))
	_, err := e.Run(prog)
	require.NoError(t, err)
	assert.Equal(t, "hi 1\n", out.String())
}

func TestCompileErrorsSurface(t *testing.T) {
	opts := config.Default()
	opts.MaxProgramPoint = 1
	e := newEngine(t, opts)
	_, err := e.Run(overflowing())
	var ce *compiler.CompilationError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, "program-points", ce.Phase)
}

func TestCompileAll(t *testing.T) {
	jobs := []Job{
		{Name: "a", Source: []byte("a"), Program: withDouble()},
		{Name: "b", Source: []byte("b"), Program: overflowing()},
	}
	results, err := CompileAll(context.Background(), config.Default(), zerolog.Nop(), nil, compiler.RecipeBytecodeOnly, jobs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.True(t, strings.HasPrefix(res.Root, jobs[i].Name+"$cu"), res.Root)
		assert.Contains(t, res.Bytecode, res.Root)
		assert.True(t, res.Function.HasState(ast.BytecodeGenerated))
		assert.False(t, res.Function.HasState(ast.BytecodeInstalled))
	}
}

func TestCompileAllFailsFast(t *testing.T) {
	opts := config.Default()
	opts.MaxProgramPoint = 1
	_, err := CompileAll(context.Background(), opts, zerolog.Nop(), nil, compiler.RecipeEager,
		[]Job{{Program: overflowing()}})
	require.Error(t, err)
}
