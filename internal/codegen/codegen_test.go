package codegen

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/lower"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/programpoint"
	"github.com/funvibe/optijit/internal/split"
	"github.com/funvibe/optijit/internal/symbols"
	"github.com/funvibe/optijit/internal/token"
)

type counter struct{ next int }

func (c *counter) NextFunctionID() int {
	c.next++
	return c.next
}

// prepare runs the phases preceding code generation.
func prepare(t *testing.T, fn *ast.FunctionNode, threshold int) (*ast.FunctionNode, []string) {
	t.Helper()
	ids := &counter{next: ast.MaxFunctionID(fn)}
	fn = lower.Lower(lower.FoldConstants(fn), ids)
	fn = programpoint.Assign(fn, 0)
	pool := split.NewUnitPool("test", threshold)
	fn = split.NewSplitter(pool, zerolog.Nop()).Split(fn, true)
	fn = split.SplitIntoFunctions(fn, ids)
	fn = symbols.Assign(fn)
	fn = symbols.ComputeScopeDepths(fn)
	fn = optimistic.Calculate(fn, optimistic.Options{})
	fn = symbols.CalculateLocalTypes(fn)
	var units []string
	for _, u := range pool.Units() {
		units = append(units, u.Name)
	}
	return fn, units
}

func generate(t *testing.T, fn *ast.FunctionNode, threshold int, opts ...Option) (map[string]*Unit, string) {
	t.Helper()
	fn, names := prepare(t, fn, threshold)
	units, root, err := NewReference(opts...).GenerateUnits(fn, names)
	require.NoError(t, err)
	for name, u := range units {
		require.NoError(t, Verify(u), "unit %s:\n%s", name, Disassemble(u))
	}
	return units, root
}

func increments(n int) []ast.Statement {
	out := make([]ast.Statement, n)
	for i := range out {
		out[i] = ast.ExprStmt(ast.Assign(ast.Ident("x"), ast.Bin(token.ADD, ast.Ident("x"), ast.Int(1))))
	}
	return out
}

func TestGenerateSimpleProgram(t *testing.T) {
	prog := ast.Program(
		ast.VarDecl("x", ast.Int(1)),
		ast.Return(ast.Bin(token.ADD, ast.Ident("x"), ast.Ident("y"))))
	units, root := generate(t, prog, 32768)

	require.Contains(t, units, root)
	text := Disassemble(units[root])
	assert.Regexp(t, `FUNCTION\s+:program \(id 1`, text)
	assert.Contains(t, text, "GET_GLOBAL")
	assert.Regexp(t, `OPTIMISTIC\s+int pp \d+`, text)
	assert.Regexp(t, `BINARY\s+\+`, text)
	assert.Contains(t, text, "RETURN")
	assert.Contains(t, text, "END_FUNCTION")
}

func TestGenerateControlFlow(t *testing.T) {
	// function f(a, o) {
	//   var s = 0;
	//   outer: for (var i = 0; i < a; i += 1) {
	//     for (;;) { if (i > 3) continue outer; break; }
	//     switch (i) { case 1: s += 1; case 2: s -= 1; break; default: s = s * 2; }
	//     do { s += 1; } while (s < 10);
	//   }
	//   try { o.p += 1; o[i] -= 1; throw new E(s); } catch (e) { s = e.m(s) ? -s : s && 1; } finally { g(); }
	//   return { k: [s, , i] };
	// }
	inner := ast.For(nil, nil, nil, ast.NewBlock(
		ast.If(ast.Bin(token.GT, ast.Ident("i"), ast.Int(3)), ast.NewBlock(ast.Continue("outer")), nil),
		ast.Break("")))
	sw := ast.Switch(ast.Ident("i"),
		ast.Case(ast.Int(1), ast.ExprStmt(ast.Bin(token.ASSIGN_ADD, ast.Ident("s"), ast.Int(1)))),
		ast.Case(ast.Int(2), ast.ExprStmt(ast.Bin(token.ASSIGN_SUB, ast.Ident("s"), ast.Int(1))), ast.Break("")),
		ast.Case(nil, ast.ExprStmt(ast.Assign(ast.Ident("s"), ast.Bin(token.MUL, ast.Ident("s"), ast.Int(2))))))
	doWhile := ast.While(ast.Bin(token.LT, ast.Ident("s"), ast.Int(10)),
		ast.NewBlock(ast.ExprStmt(ast.Bin(token.ASSIGN_ADD, ast.Ident("s"), ast.Int(1)))))
	doWhile.DoWhile = true
	loop := ast.For(
		ast.Assign(ast.Ident("i"), ast.Int(0)),
		ast.Bin(token.LT, ast.Ident("i"), ast.Ident("a")),
		ast.Bin(token.ASSIGN_ADD, ast.Ident("i"), ast.Int(1)),
		ast.NewBlock(inner, sw, doWhile))
	try := ast.Try(
		ast.NewBlock(
			ast.ExprStmt(ast.Bin(token.ASSIGN_ADD, ast.Access(ast.Ident("o"), "p"), ast.Int(1))),
			ast.ExprStmt(ast.Bin(token.ASSIGN_SUB, ast.Index(ast.Ident("o"), ast.Ident("i")), ast.Int(1))),
			ast.Throw(ast.New(ast.Ident("E"), ast.Ident("s")))),
		ast.Catch("e", ast.NewBlock(ast.ExprStmt(ast.Assign(ast.Ident("s"),
			ast.Ternary(ast.Call(ast.Access(ast.Ident("e"), "m"), ast.Ident("s")),
				ast.Unary(token.NEG, ast.Ident("s")),
				ast.Bin(token.AND, ast.Ident("s"), ast.Int(1))))))),
		ast.NewBlock(ast.ExprStmt(ast.Call(ast.Ident("g")))))
	obj := &ast.ObjectLiteralNode{Properties: []ast.PropertyNode{
		{Key: "k", Value: ast.Array(ast.Ident("s"), nil, ast.Ident("i"))},
	}}
	f := ast.Func("f", []string{"a", "o"},
		ast.VarDecl("s", ast.Int(0)),
		ast.VarDecl("i", nil),
		ast.Label("outer", ast.NewBlock(loop)),
		try,
		ast.Return(obj))
	prog := ast.Program(ast.FuncDecl(f), ast.Return(ast.Call(ast.Ident("f"), ast.Int(3), ast.Ident("o"))))

	units, root := generate(t, prog, 32768)
	u := units[root]
	require.Len(t, u.Functions, 2)
	var fi FunctionInfo
	for _, info := range u.Functions {
		if info.Name == "f" {
			fi = info
		}
	}
	require.Equal(t, "f", fi.Name)
	assert.Equal(t, 2, fi.Params)
	// a, o, s, i, e and the finally bookkeeping are all locals.
	assert.GreaterOrEqual(t, fi.Locals, 5)

	text := Disassemble(u)
	for _, want := range []string{"TRY", "END_TRY", "THROW", "LOOP", "JUMP_IF_TRUE", "DUP2", "SWAP", "MAKE_OBJECT", "HOLE", "NEW", "CLOSURE"} {
		assert.Contains(t, text, want)
	}
}

func TestGenerateSplitProgram(t *testing.T) {
	body := append(increments(200), ast.If(ast.Bin(token.GT, ast.Ident("x"), ast.Int(50)), ast.NewBlock(ast.Break("")), nil))
	prog := ast.Program(
		ast.VarDecl("x", ast.Int(0)),
		ast.While(ast.Bool(true), ast.NewBlock(body...)),
		ast.Return(ast.Ident("x")))
	units, root := generate(t, prog, 1000)
	require.Greater(t, len(units), 1)

	rootText := Disassemble(units[root])
	assert.Contains(t, rootText, "CALL_SPLIT")
	assert.Contains(t, rootText, "GET_SPLIT_STATE")

	fragments := 0
	for _, u := range units {
		for _, f := range u.Functions {
			if strings.Contains(f.Name, "$split$") {
				fragments++
				assert.Contains(t, f.Flags, "split")
			}
		}
	}
	assert.Greater(t, fragments, 1)
	assert.Equal(t, []string{root}, Units(units, root)[:1])
}

func TestGenerateArrayUnits(t *testing.T) {
	elems := make([]ast.Expression, 500)
	for i := range elems {
		elems[i] = ast.Int(i)
	}
	units, root := generate(t, ast.Program(ast.Return(ast.Array(elems...))), 1000)
	text := Disassemble(units[root])
	assert.Contains(t, text, "ARRAY_UNIT")
	assert.Regexp(t, `MAKE_ARRAY\s+500\n`, text)

	pieces := 0
	for _, u := range units {
		for _, f := range u.Functions {
			if f.ID == -1 {
				pieces++
			}
		}
	}
	assert.Greater(t, pieces, 1)
}

func TestContinuationEntries(t *testing.T) {
	prog := ast.Program(ast.Return(ast.Bin(token.MUL, ast.Ident("a"), ast.Ident("b"))))
	prepared, _ := prepare(t, prog, 32768)
	points := programpoint.Collect(prepared)
	require.NotEmpty(t, points)

	units, root := generate(t, prog, 32768, WithContinuation(prog.ID, points[:1]))
	info, ok := units[root].Function(prog.ID)
	require.True(t, ok)
	require.Contains(t, info.Entries, points[0])
}

func TestGenerateRejectsUnloweredSplit(t *testing.T) {
	prog := ast.Program(increments(100)...)
	pool := split.NewUnitPool("test", 500)
	prog = split.NewSplitter(pool, zerolog.Nop()).Split(programpoint.Assign(prog, 0), true)
	_, _, err := NewReference().Generate(prog, nil)
	require.Error(t, err)
	var ie *ast.InvariantError
	assert.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), "reached code generation")
}

func TestUnitSerializeRoundtrip(t *testing.T) {
	prog := ast.Program(ast.Return(ast.Bin(token.ADD, ast.Ident("x"), ast.Num(0.5))))
	fn, names := prepare(t, prog, 32768)
	blobs, root, err := NewReference().Generate(fn, names)
	require.NoError(t, err)

	units, err := DeserializeAll(blobs)
	require.NoError(t, err)
	u := units[root]
	require.NoError(t, Verify(u))
	assert.Contains(t, u.Chunk.Constants, 0.5)
	assert.True(t, strings.HasPrefix(root, "test$cu"))
}

func TestDeserializeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"too short", []byte{0x01}, "too short"},
		{"magic", []byte{0, 0, 0, 0, 1, 0}, "invalid magic"},
		{"version", []byte{'O', 'J', 'C', 'B', 9, 0}, "unsupported unit version"},
		{"payload", []byte{'O', 'J', 'C', 'B', unitVersion, 0xff}, "gob decoding failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// handUnit assembles a one-function unit around body.
func handUnit(body ...byte) *Unit {
	u := newUnit("hand")
	code := append([]byte{byte(OP_FUNCTION), 0, 0}, body...)
	code = append(code, byte(OP_END_FUNCTION))
	u.Chunk.Code = code
	u.Chunk.Lines = make([]int, len(code))
	u.Chunk.Columns = make([]int, len(code))
	u.Functions = []FunctionInfo{{ID: 1, Name: "f", Start: 0, End: len(code)}}
	return u
}

func TestVerify(t *testing.T) {
	ok := handUnit(byte(OP_UNDEFINED), byte(OP_RETURN))
	require.NoError(t, Verify(ok))

	unclosed := handUnit(byte(OP_UNDEFINED), byte(OP_RETURN))
	unclosed.Chunk.Code = unclosed.Chunk.Code[:len(unclosed.Chunk.Code)-1]
	unclosed.Chunk.Lines = unclosed.Chunk.Lines[:len(unclosed.Chunk.Code)]
	unclosed.Chunk.Columns = unclosed.Chunk.Columns[:len(unclosed.Chunk.Code)]

	outside := handUnit()
	outside.Chunk.Code = append(outside.Chunk.Code, byte(OP_POP))
	outside.Chunk.Lines = append(outside.Chunk.Lines, 0)
	outside.Chunk.Columns = append(outside.Chunk.Columns, 0)

	truncated := handUnit()
	truncated.Chunk.Code = append(truncated.Chunk.Code, byte(OP_GET_LOCAL), 0)
	truncated.Chunk.Lines = append(truncated.Chunk.Lines, 0, 0)
	truncated.Chunk.Columns = append(truncated.Chunk.Columns, 0, 0)

	tests := []struct {
		name string
		unit *Unit
		want string
	}{
		{"invalid opcode", handUnit(0xfe), "invalid opcode"},
		{"truncated operand", truncated, "run past the end"},
		{"constant", handUnit(byte(OP_CONST), 0, 3, byte(OP_RETURN)), "constant 3 of 0"},
		{"jump mid instruction", handUnit(byte(OP_JUMP), 0, 1, byte(OP_GET_LOCAL), 0, 0), "instruction boundary"},
		{"unclosed", unclosed, "not closed"},
		{"outside", outside, "outside a function"},
		{"line table", func() *Unit { u := handUnit(byte(OP_POP)); u.Chunk.Lines = nil; return u }(), "line table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(tt.unit)
			require.Error(t, err)
			var ve *VerifyError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "hand", ve.Unit)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
