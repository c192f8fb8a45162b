package codegen

import (
	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

const tokenStrictEq = token.EQ_STRICT

// optimistic emits the speculation prefix for n when it carries a type.
func (e *emitter) optimistic(n ast.Node) {
	if !ast.IsOptimistic(n) {
		return
	}
	o := n.(ast.Optimistic)
	pp := o.ProgramPoint()
	if e.cont[pp] {
		if e.entries == nil {
			e.entries = make(map[int]int)
		}
		e.entries[pp] = e.c.Len()
	}
	e.op(OP_OPTIMISTIC)
	e.byte(byte(o.OptimisticType()))
	e.byte(byte(pp >> 16))
	e.byte(byte(pp >> 8))
	e.byte(byte(pp))
}

func (e *emitter) expression(x ast.Expression) {
	e.at(x)
	switch n := x.(type) {
	case *ast.LiteralNode:
		e.literal(n)
	case *ast.IdentNode:
		e.optimistic(n)
		e.load(n)
	case *ast.AccessNode:
		e.expression(n.Base)
		e.optimistic(n)
		e.opConst(OP_GET_PROP, n.Property)
	case *ast.IndexNode:
		e.expression(n.Base)
		e.expression(n.Index)
		e.optimistic(n)
		e.op(OP_GET_INDEX)
	case *ast.BinaryNode:
		e.binary(n)
	case *ast.UnaryNode:
		e.expression(n.Operand)
		e.optimistic(n)
		e.op(OP_UNARY)
		e.byte(byte(n.Op))
	case *ast.CallNode:
		e.call(n)
	case *ast.TernaryNode:
		e.expression(n.Test)
		elseJump := e.emitJump(OP_JUMP_IF_FALSE)
		e.expression(n.True)
		end := e.emitJump(OP_JUMP)
		e.patchJump(elseJump)
		e.expression(n.False)
		e.patchJump(end)
	case *ast.ArrayLiteralNode:
		e.array(n)
	case *ast.ObjectLiteralNode:
		for _, p := range n.Properties {
			e.opConst(OP_CONST, p.Key)
			e.expression(p.Value)
		}
		e.op(OP_MAKE_OBJECT)
		e.short(len(n.Properties))
	case *ast.FunctionNode:
		e.closure(n)
	case *ast.GetSplitState:
		e.op(OP_GET_SPLIT_STATE)
	default:
		panic(ast.NewInvariantError("cannot generate code for %T", x))
	}
}

func (e *emitter) literal(n *ast.LiteralNode) {
	switch v := n.Value.(type) {
	case bool:
		if v {
			e.op(OP_TRUE)
		} else {
			e.op(OP_FALSE)
		}
	case ast.UndefinedValue, nil:
		e.op(OP_UNDEFINED)
	case ast.NullValue:
		e.op(OP_NULL)
	case int32, float64, string:
		e.opConst(OP_CONST, v)
	default:
		panic(ast.NewInvariantError("literal of type %T", n.Value))
	}
}

func (e *emitter) load(id *ast.IdentNode) {
	if id.IsThis() {
		e.op(OP_THIS)
		return
	}
	sym := id.Symbol
	switch {
	case sym == nil && id.Name == ast.ArgumentsName:
		e.op(OP_ARGUMENTS)
	case sym.IsBytecodeLocal():
		e.noteSlot(sym)
		e.op(OP_GET_LOCAL)
		e.short(sym.Slot)
	case sym.Is(ast.SymScope):
		e.opConst(OP_GET_SCOPE, id.Name)
		e.byte(byte(e.depth(sym)))
	case sym.Is(ast.SymGlobal) && id.Name == ast.ArgumentsName:
		e.op(OP_ARGUMENTS)
	default:
		e.opConst(OP_GET_GLOBAL, id.Name)
	}
}

// store assigns the value on top of the stack to id, leaving it there.
func (e *emitter) store(id *ast.IdentNode) {
	sym := id.Symbol
	switch {
	case sym.IsBytecodeLocal():
		e.noteSlot(sym)
		e.op(OP_SET_LOCAL)
		e.short(sym.Slot)
	case sym.Is(ast.SymScope):
		e.opConst(OP_SET_SCOPE, id.Name)
		e.byte(byte(e.depth(sym)))
	default:
		e.opConst(OP_SET_GLOBAL, id.Name)
	}
}

// depth is the number of scopes between the function and the owner of sym.
func (e *emitter) depth(sym *ast.Symbol) int {
	if sym.Owner == e.fn.ID || sym.Owner == e.realID {
		return 0
	}
	d := e.fn.ExternalDepths[sym.Name]
	if d > 0xff {
		panic(ast.NewInvariantError("scope depth %d of %s", d, sym.Name))
	}
	return d
}

func (e *emitter) binary(n *ast.BinaryNode) {
	switch {
	case n.Op.IsAssignment():
		e.assign(n)
	case n.Op == token.AND || n.Op == token.OR:
		e.expression(n.Left)
		e.op(OP_DUP)
		jump := OP_JUMP_IF_FALSE
		if n.Op == token.OR {
			jump = OP_JUMP_IF_TRUE
		}
		end := e.emitJump(jump)
		e.op(OP_POP)
		e.expression(n.Right)
		e.patchJump(end)
	case n.Op == token.COMMA:
		e.expression(n.Left)
		e.op(OP_POP)
		e.expression(n.Right)
	default:
		e.expression(n.Left)
		e.expression(n.Right)
		e.optimistic(n)
		e.op(OP_BINARY)
		e.byte(byte(n.Op))
	}
}

func (e *emitter) assign(n *ast.BinaryNode) {
	compound := n.Op != token.ASSIGN
	operate := func() {
		e.expression(n.Right)
		if compound {
			e.optimistic(n)
			e.op(OP_BINARY)
			e.byte(byte(n.Op.BinaryOf()))
		}
	}
	switch t := n.Left.(type) {
	case *ast.IdentNode:
		if compound {
			e.load(t)
		}
		operate()
		e.store(t)
	case *ast.AccessNode:
		e.expression(t.Base)
		if compound {
			e.op(OP_DUP)
			e.opConst(OP_GET_PROP, t.Property)
		}
		operate()
		e.opConst(OP_SET_PROP, t.Property)
	case *ast.IndexNode:
		e.expression(t.Base)
		e.expression(t.Index)
		if compound {
			e.op(OP_DUP2)
			e.op(OP_GET_INDEX)
		}
		operate()
		e.op(OP_SET_INDEX)
	default:
		panic(ast.NewInvariantError("invalid assignment target %T", n.Left))
	}
}

func (e *emitter) call(n *ast.CallNode) {
	if n.IsNew {
		e.expression(n.Function)
		e.args(n.Args)
		e.optimistic(n)
		e.op(OP_NEW)
		e.byte(byte(len(n.Args)))
		return
	}
	if acc, ok := n.Function.(*ast.AccessNode); ok {
		if fn, ok := acc.Base.(*ast.FunctionNode); ok && fn.Is(ast.IsSplit) && acc.Property == ast.CallName {
			e.splitCall(fn, n.Args)
			return
		}
	}
	switch callee := n.Function.(type) {
	case *ast.AccessNode:
		e.expression(callee.Base)
		e.op(OP_DUP)
		e.opConst(OP_GET_PROP, callee.Property)
		e.op(OP_SWAP)
	case *ast.IndexNode:
		e.expression(callee.Base)
		e.op(OP_DUP)
		e.expression(callee.Index)
		e.op(OP_GET_INDEX)
		e.op(OP_SWAP)
	default:
		e.expression(callee)
		e.op(OP_UNDEFINED)
	}
	e.args(n.Args)
	e.optimistic(n)
	e.op(OP_CALL)
	e.byte(byte(len(n.Args)))
}

func (e *emitter) args(args []ast.Expression) {
	if len(args) > 0xff {
		panic(ast.NewInvariantError("call with %d arguments", len(args)))
	}
	for _, a := range args {
		e.expression(a)
	}
}

// splitCall invokes a split fragment. Its first argument is the receiver.
func (e *emitter) splitCall(fn *ast.FunctionNode, args []ast.Expression) {
	e.g.queue = append(e.g.queue, job{fn: fn, realID: e.realID})
	e.args(args)
	e.opConst(OP_CALL_SPLIT, FunctionRef(unitOf(fn), fn.ID))
	e.byte(byte(len(args) - 1))
}

func (e *emitter) closure(fn *ast.FunctionNode) {
	if !fn.Is(ast.IsLazyStub) {
		realID := fn.ID
		if fn.Is(ast.IsSplit) {
			realID = e.realID
		}
		e.g.queue = append(e.g.queue, job{fn: fn, realID: realID})
	}
	e.opConst(OP_CLOSURE, FunctionRef(unitOf(fn), fn.ID))
}

func (e *emitter) element(el ast.Expression) {
	if el == nil {
		e.op(OP_HOLE)
		return
	}
	e.expression(el)
}

func (e *emitter) array(n *ast.ArrayLiteralNode) {
	if len(n.Elements) > 0xffff {
		panic(ast.NewInvariantError("array literal with %d elements", len(n.Elements)))
	}
	units := n.Units
	for i := 0; i < len(n.Elements); {
		if len(units) > 0 && units[0].Lo == i {
			u := units[0]
			units = units[1:]
			e.g.queue = append(e.g.queue, job{fn: e.fn, realID: e.realID, array: &arrayJob{
				unit: u.Unit, lo: u.Lo, hi: u.Hi, elements: n.Elements[u.Lo:u.Hi],
			}})
			e.opConst(OP_ARRAY_UNIT, u.Unit)
			e.short(u.Lo)
			e.short(u.Hi)
			i = u.Hi
			continue
		}
		e.element(n.Elements[i])
		i++
	}
	e.op(OP_MAKE_ARRAY)
	e.short(len(n.Elements))
}
