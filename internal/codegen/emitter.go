package codegen

import (
	"github.com/funvibe/optijit/internal/ast"
)

// emitter writes one function body, or one array unit, into a chunk.
type emitter struct {
	g      *generation
	fn     *ast.FunctionNode
	realID int
	unit   *Unit
	c      *Chunk
	info   int

	line, col int

	targets  []*target
	tryDepth int
	locals   int

	cont    map[int]bool
	entries map[int]int
}

// target is a statement break or continue may leave or resume.
type target struct {
	node      ast.Node
	label     string
	isLoop    bool
	breaks    []int
	continues []int
	// continueAt is the loop offset continue jumps back to, -1 while it is
	// still ahead.
	continueAt int
	tries      int
}

func (e *emitter) at(n ast.Node) {
	if n == nil {
		return
	}
	if tok := n.GetToken(); tok.Line > 0 {
		e.line, e.col = tok.Line, tok.Column
	}
}

func (e *emitter) op(op Opcode) {
	e.c.WriteOp(op, e.line, e.col)
}

func (e *emitter) byte(b byte) {
	e.c.WriteWithCol(b, e.line, e.col)
}

func (e *emitter) short(v int) {
	if v < 0 || v > 0xffff {
		panic(ast.NewInvariantError("operand %d does not fit in 16 bits in %s", v, e.fn.DisplayName()))
	}
	e.c.WriteShort(v, e.line, e.col)
}

func (e *emitter) constant(v any) int {
	return e.c.AddConstant(v)
}

func (e *emitter) opConst(op Opcode, v any) {
	e.op(op)
	e.short(e.constant(v))
}

func (e *emitter) emitJump(op Opcode) int {
	e.op(op)
	e.short(0xffff)
	return e.c.Len() - 2
}

func (e *emitter) patchJump(at int) {
	off := e.c.Len() - (at + 2)
	if off > 0xffff {
		panic(ast.NewInvariantError("jump of %d bytes in %s", off, e.fn.DisplayName()))
	}
	e.c.Code[at] = byte(off >> 8)
	e.c.Code[at+1] = byte(off)
}

func (e *emitter) emitLoop(start int) {
	e.op(OP_LOOP)
	e.short(e.c.Len() + 2 - start)
}

func (e *emitter) noteSlot(sym *ast.Symbol) {
	if sym.IsBytecodeLocal() && sym.Slot+1 > e.locals {
		e.locals = sym.Slot + 1
	}
}

func (e *emitter) push(t *target) {
	t.tries = e.tryDepth
	e.targets = append(e.targets, t)
}

func (e *emitter) pop() *target {
	t := e.targets[len(e.targets)-1]
	e.targets = e.targets[:len(e.targets)-1]
	return t
}

func (e *emitter) block(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		e.statement(s)
	}
}

func (e *emitter) statement(s ast.Statement) {
	e.at(s)
	switch n := s.(type) {
	case *ast.Block:
		e.block(n)
	case *ast.ExpressionStatement:
		e.expression(n.Expression)
		e.op(OP_POP)
	case *ast.VarNode:
		e.noteSlot(n.Name.Symbol)
		if n.Init != nil {
			e.expression(n.Init)
			e.store(n.Name)
			e.op(OP_POP)
		}
	case *ast.IfNode:
		e.ifStatement(n)
	case *ast.WhileNode:
		if n.DoWhile {
			e.doWhile(n)
		} else {
			e.while(n)
		}
	case *ast.ForNode:
		e.forLoop(n)
	case *ast.LabelNode:
		t := &target{node: n, label: n.Label, continueAt: -1}
		e.push(t)
		e.block(n.Body)
		e.pop()
		e.patchAll(t.breaks)
	case *ast.BreakNode:
		e.jumpOut(e.breakTarget(n.Label), false, n)
	case *ast.ContinueNode:
		e.jumpOut(e.continueTarget(n.Label), true, n)
	case *ast.JumpToInlinedFinally:
		e.jumpOut(e.labelTarget(n.Label), false, n)
	case *ast.ReturnNode:
		if n.Expression != nil {
			e.expression(n.Expression)
		} else {
			e.op(OP_UNDEFINED)
		}
		e.op(OP_RETURN)
	case *ast.ThrowNode:
		e.expression(n.Expression)
		e.op(OP_THROW)
	case *ast.TryNode:
		e.tryStatement(n)
	case *ast.SwitchNode:
		e.switchStatement(n)
	case *ast.SetSplitState:
		code := n.State.Code
		if code < -128 || code > 127 {
			panic(ast.NewInvariantError("split state %s out of range", n.State))
		}
		e.op(OP_SET_SPLIT_STATE)
		e.byte(byte(int8(code)))
	case *ast.SplitNode:
		panic(ast.NewInvariantError("split node %s reached code generation", n.Name))
	default:
		panic(ast.NewInvariantError("cannot generate code for %T", s))
	}
}

func (e *emitter) patchAll(at []int) {
	for _, a := range at {
		e.patchJump(a)
	}
}

func (e *emitter) ifStatement(n *ast.IfNode) {
	e.expression(n.Test)
	elseJump := e.emitJump(OP_JUMP_IF_FALSE)
	e.block(n.Pass)
	if n.Fail == nil {
		e.patchJump(elseJump)
		return
	}
	endJump := e.emitJump(OP_JUMP)
	e.patchJump(elseJump)
	e.block(n.Fail)
	e.patchJump(endJump)
}

func (e *emitter) while(n *ast.WhileNode) {
	start := e.c.Len()
	t := &target{node: n, isLoop: true, continueAt: start}
	e.push(t)
	exit := -1
	if n.Test != nil {
		e.expression(n.Test)
		exit = e.emitJump(OP_JUMP_IF_FALSE)
	}
	e.block(n.Body)
	e.emitLoop(start)
	e.pop()
	if exit >= 0 {
		e.patchJump(exit)
	}
	e.patchAll(t.breaks)
}

func (e *emitter) doWhile(n *ast.WhileNode) {
	start := e.c.Len()
	t := &target{node: n, isLoop: true, continueAt: -1}
	e.push(t)
	e.block(n.Body)
	e.patchAll(t.continues)
	e.expression(n.Test)
	exit := e.emitJump(OP_JUMP_IF_FALSE)
	e.emitLoop(start)
	e.pop()
	e.patchJump(exit)
	e.patchAll(t.breaks)
}

func (e *emitter) forLoop(n *ast.ForNode) {
	if n.Init != nil {
		e.expression(n.Init)
		e.op(OP_POP)
	}
	start := e.c.Len()
	t := &target{node: n, isLoop: true, continueAt: -1}
	if n.Modify == nil {
		t.continueAt = start
	}
	e.push(t)
	exit := -1
	if n.Test != nil {
		e.expression(n.Test)
		exit = e.emitJump(OP_JUMP_IF_FALSE)
	}
	e.block(n.Body)
	e.patchAll(t.continues)
	if n.Modify != nil {
		e.expression(n.Modify)
		e.op(OP_POP)
	}
	e.emitLoop(start)
	e.pop()
	if exit >= 0 {
		e.patchJump(exit)
	}
	e.patchAll(t.breaks)
}

func (e *emitter) tryStatement(n *ast.TryNode) {
	if n.Finally != nil {
		panic(ast.NewInvariantError("finally block reached code generation in %s", e.fn.DisplayName()))
	}
	handler := e.emitJump(OP_TRY)
	e.tryDepth++
	e.block(n.Body)
	e.tryDepth--
	e.op(OP_END_TRY)
	end := e.emitJump(OP_JUMP)
	e.patchJump(handler)
	if n.Catch != nil {
		e.at(n.Catch)
		e.noteSlot(n.Catch.Param.Symbol)
		e.store(n.Catch.Param)
		e.op(OP_POP)
		e.block(n.Catch.Body)
	} else {
		e.op(OP_THROW)
	}
	e.patchJump(end)
}

// switchStatement tests every case against the discriminant, then lays the
// bodies out in source order so control falls through between them.
func (e *emitter) switchStatement(n *ast.SwitchNode) {
	e.expression(n.Discriminant)
	matched := make([]int, len(n.Cases))
	for i, c := range n.Cases {
		matched[i] = -1
		if c.Test == nil {
			continue
		}
		e.op(OP_DUP)
		e.expression(c.Test)
		e.op(OP_BINARY)
		e.byte(byte(tokenStrictEq))
		matched[i] = e.emitJump(OP_JUMP_IF_TRUE)
	}
	e.op(OP_POP)
	noMatch := e.emitJump(OP_JUMP)

	bodyJumps := make([]int, len(n.Cases))
	for i := range n.Cases {
		bodyJumps[i] = -1
		if matched[i] >= 0 {
			e.patchJump(matched[i])
			e.op(OP_POP)
			bodyJumps[i] = e.emitJump(OP_JUMP)
		}
	}

	t := &target{node: n, continueAt: -1}
	e.push(t)
	hasDefault := false
	for i, c := range n.Cases {
		if bodyJumps[i] >= 0 {
			e.patchJump(bodyJumps[i])
		}
		if c.Test == nil {
			hasDefault = true
			e.patchJump(noMatch)
		}
		e.block(c.Body)
	}
	e.pop()
	if !hasDefault {
		e.patchJump(noMatch)
	}
	e.patchAll(t.breaks)
}

func (e *emitter) breakTarget(label string) *target {
	for i := len(e.targets) - 1; i >= 0; i-- {
		t := e.targets[i]
		if label == "" {
			if _, isLabel := t.node.(*ast.LabelNode); !isLabel {
				return t
			}
		} else if t.label == label {
			return t
		}
	}
	panic(ast.NewInvariantError("break %q has no target in %s", label, e.fn.DisplayName()))
}

func (e *emitter) continueTarget(label string) *target {
	var loop *target
	for i := len(e.targets) - 1; i >= 0; i-- {
		t := e.targets[i]
		if label != "" && t.label == label && loop != nil {
			return loop
		}
		if t.isLoop {
			if label == "" {
				return t
			}
			loop = t
		}
	}
	panic(ast.NewInvariantError("continue %q has no target in %s", label, e.fn.DisplayName()))
}

func (e *emitter) labelTarget(label string) *target {
	for i := len(e.targets) - 1; i >= 0; i-- {
		if t := e.targets[i]; t.label == label {
			return t
		}
	}
	panic(ast.NewInvariantError("finally label %q has no target in %s", label, e.fn.DisplayName()))
}

// jumpOut leaves the handlers installed since t and jumps to it.
func (e *emitter) jumpOut(t *target, isContinue bool, n ast.Node) {
	e.at(n)
	for i := t.tries; i < e.tryDepth; i++ {
		e.op(OP_END_TRY)
	}
	switch {
	case !isContinue:
		t.breaks = append(t.breaks, e.emitJump(OP_JUMP))
	case t.continueAt >= 0:
		e.emitLoop(t.continueAt)
	default:
		t.continues = append(t.continues, e.emitJump(OP_JUMP))
	}
}
