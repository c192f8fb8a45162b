package ast

import (
	"testing"

	"github.com/funvibe/optijit/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renamer struct {
	BaseVisitor
	from, to string
}

func (r renamer) Leave(_ *LexicalContext, n Node) Node {
	if id, ok := n.(*IdentNode); ok && id.Name == r.from {
		c := *id
		c.Name = r.to
		return &c
	}
	return n
}

func TestRewriteSharesUnchangedSubtrees(t *testing.T) {
	untouched := ExprStmt(Call(Ident("f"), Int(1)))
	changed := ExprStmt(Assign(Ident("x"), Int(2)))
	prog := Program(untouched, changed)

	out := RewriteFunction(prog, renamer{from: "x", to: "y"})

	require.NotSame(t, prog, out)
	assert.Same(t, untouched, out.Body.Statements[0])
	assert.NotSame(t, changed, out.Body.Statements[1])
	assert.Equal(t, "x", changed.Expression.(*BinaryNode).Left.(*IdentNode).Name, "input must not be modified")
	assert.Equal(t, "y", out.Body.Statements[1].(*ExpressionStatement).Expression.(*BinaryNode).Left.(*IdentNode).Name)

	same := RewriteFunction(prog, renamer{from: "nope", to: "z"})
	assert.Same(t, prog, same)
}

type dropper struct{ BaseVisitor }

func (dropper) Leave(_ *LexicalContext, n Node) Node {
	if _, ok := n.(*ThrowNode); ok {
		return nil
	}
	return n
}

func TestRewriteRemovesStatements(t *testing.T) {
	prog := Program(ExprStmt(Int(1)), Throw(Str("x")), ExprStmt(Int(2)))
	out := RewriteFunction(prog, dropper{})
	assert.Len(t, out.Body.Statements, 2)
	assert.Len(t, prog.Body.Statements, 3)
}

type targetRecorder struct {
	BaseVisitor
	targets map[Statement]Node
	split   *SplitNode
	extern  map[Statement]bool
}

func (v *targetRecorder) Enter(lc *LexicalContext, n Node) bool {
	if s, ok := n.(Statement); ok && IsJump(s) {
		target := lc.JumpTarget(s)
		v.targets[s] = target
		if v.split != nil && target != nil {
			v.extern[s] = lc.IsExternalTarget(v.split, target)
		}
	}
	return true
}

func TestJumpTargets(t *testing.T) {
	inner := Continue("outer")
	plainBreak := Break("")
	labelledBreak := Break("outer")
	innerLoop := While(Bool(true), NewBlock(inner, plainBreak))
	outerLoop := For(nil, Bool(true), nil, NewBlock(innerLoop, labelledBreak))
	label := Label("outer", NewBlock(outerLoop))
	prog := Program(label)

	v := &targetRecorder{targets: map[Statement]Node{}, extern: map[Statement]bool{}}
	Rewrite(prog, v)

	assert.Same(t, outerLoop, v.targets[inner])
	assert.Same(t, innerLoop, v.targets[plainBreak])
	assert.Same(t, label, v.targets[labelledBreak])
}

func TestJumpTargetsStopAtFunctionBoundary(t *testing.T) {
	brk := Break("")
	fn := Func("f", nil, brk)
	prog := Program(While(Bool(true), NewBlock(ExprStmt(fn))))

	v := &targetRecorder{targets: map[Statement]Node{}, extern: map[Statement]bool{}}
	Rewrite(prog, v)
	assert.Nil(t, v.targets[brk])
}

func TestIsExternalTarget(t *testing.T) {
	internal := Break("")
	external := Break("")
	loopInSplit := While(Bool(true), NewBlock(internal))
	split := &SplitNode{Name: "split$1", Body: NewBlock(loopInSplit, external)}
	outer := While(Bool(true), NewBlock(split))
	prog := Program(outer)

	v := &targetRecorder{targets: map[Statement]Node{}, extern: map[Statement]bool{}, split: split}
	Rewrite(prog, v)

	assert.False(t, v.extern[internal])
	assert.True(t, v.extern[external])
	assert.Same(t, outer, v.targets[external])
}

func TestNumberFunctionsPreOrder(t *testing.T) {
	g := Func("g", nil)
	f := Func("f", []string{"a"}, ExprStmt(g))
	h := Func("h", nil)
	prog := Program(FuncDecl(f), ExprStmt(h))

	fns := Functions(prog)
	require.Len(t, fns, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{fns[0].ID, fns[1].ID, fns[2].ID, fns[3].ID})
	assert.Equal(t, []string{":program", "f", "g", "h"}, []string{fns[0].Name, fns[1].Name, fns[2].Name, fns[3].Name})
	assert.Equal(t, 4, MaxFunctionID(prog))
}

func TestSetFunctionFlagAppliesToRebuiltFunction(t *testing.T) {
	prog := Program(ExprStmt(Func("f", nil, ExprStmt(Ident(ArgumentsName)))))
	out := RewriteFunction(prog, flagger{})
	f := out.Body.Statements[0].(*ExpressionStatement).Expression.(*FunctionNode)
	assert.True(t, f.Is(UsesArguments))
	assert.False(t, out.Is(UsesArguments))
}

type flagger struct{ BaseVisitor }

func (flagger) Leave(lc *LexicalContext, n Node) Node {
	if id, ok := n.(*IdentNode); ok && id.Name == ArgumentsName {
		lc.SetFunctionFlag(UsesArguments)
	}
	return n
}

func TestDeepCopySharesNothing(t *testing.T) {
	body := NewBlock(ExprStmt(Call(Ident("side"))), If(Ident("c"), NewBlock(Return(Int(1))), nil))
	cp := DeepCopyBlock(body)

	orig := map[Node]bool{}
	Inspect(body, func(n Node) bool { orig[n] = true; return true })
	Inspect(cp, func(n Node) bool {
		assert.False(t, orig[n], "shared node %T", n)
		return true
	})
	assert.Len(t, cp.Statements, 2)
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(Return(nil)))
	assert.True(t, IsTerminal(NewBlock(ExprStmt(Int(1)), Throw(Int(2)))))
	assert.True(t, IsTerminal(If(Ident("c"), NewBlock(Return(nil)), NewBlock(Break("")))))
	assert.False(t, IsTerminal(If(Ident("c"), NewBlock(Return(nil)), nil)))
	assert.False(t, IsTerminal(ExprStmt(Int(1))))
}

func TestOptimisticEligibility(t *testing.T) {
	assert.True(t, Bin(token.MUL, Ident("a"), Ident("b")).CanBeOptimistic())
	assert.False(t, Bin(token.LT, Ident("a"), Ident("b")).CanBeOptimistic())
	assert.False(t, This().CanBeOptimistic())
	assert.False(t, Ident(ReturnName).CanBeOptimistic())
	assert.False(t, New(Ident("C")).CanBeOptimistic())
	assert.Equal(t, InvalidProgramPoint, Ident("x").ProgramPoint())
}
