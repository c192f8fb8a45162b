package interp

import (
	"math"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/token"
)

// eval evaluates e and checks the result against its speculated type.
// A *Thrown result is an exception in flight.
func (in *Interpreter) eval(e ast.Expression, act *activation) runtime.Object {
	v := in.evalExpr(e, act)
	if !isThrown(v) {
		in.check(e, v, act)
	}
	return v
}

func (in *Interpreter) evalExpr(e ast.Expression, act *activation) runtime.Object {
	switch n := e.(type) {
	case *ast.LiteralNode:
		return literal(n.Value)
	case *ast.IdentNode:
		return in.lookup(n.Name, act)
	case *ast.AccessNode:
		base := in.eval(n.Base, act)
		if isThrown(base) {
			return base
		}
		return in.getProperty(base, n.Property)
	case *ast.IndexNode:
		base := in.eval(n.Base, act)
		if isThrown(base) {
			return base
		}
		idx := in.eval(n.Index, act)
		if isThrown(idx) {
			return idx
		}
		return in.getIndex(base, idx)
	case *ast.BinaryNode:
		return in.evalBinary(n, act)
	case *ast.UnaryNode:
		if id, ok := n.Operand.(*ast.IdentNode); ok && n.Op == token.TYPEOF {
			if _, found := act.env.Lookup(id.Name); !found && !isImplicit(id.Name) {
				return runtime.NewString("undefined")
			}
		}
		v := in.eval(n.Operand, act)
		if isThrown(v) {
			return v
		}
		return unaryOp(n.Op, v)
	case *ast.CallNode:
		return in.evalCall(n, act)
	case *ast.TernaryNode:
		test := in.eval(n.Test, act)
		if isThrown(test) {
			return test
		}
		if runtime.ToBoolean(test) {
			return in.eval(n.True, act)
		}
		return in.eval(n.False, act)
	case *ast.ArrayLiteralNode:
		elems := make([]runtime.Object, len(n.Elements))
		for i, el := range n.Elements {
			if el == nil {
				elems[i] = runtime.UNDEFINED
				continue
			}
			v := in.eval(el, act)
			if isThrown(v) {
				return v
			}
			elems[i] = v
		}
		return runtime.NewArray(elems...)
	case *ast.ObjectLiteralNode:
		obj := runtime.NewObject()
		for _, p := range n.Properties {
			v := in.eval(p.Value, act)
			if isThrown(v) {
				return v
			}
			obj.Put(p.Key, v)
		}
		return obj
	case *ast.FunctionNode:
		return in.newClosure(n, act)
	case *ast.GetSplitState:
		return runtime.NewInt(int32(*act.state))
	}
	return throwError("cannot evaluate %T", e)
}

func literal(v any) runtime.Object {
	switch x := v.(type) {
	case int32:
		return runtime.NewInt(x)
	case float64:
		return runtime.NewNumber(x)
	case bool:
		return runtime.NativeBool(x)
	case string:
		return runtime.NewString(x)
	case ast.NullValue:
		return runtime.NULL
	}
	return runtime.UNDEFINED
}

func isImplicit(name string) bool {
	return name == ast.ThisName || name == ast.ArgumentsName
}

func (in *Interpreter) lookup(name string, act *activation) runtime.Object {
	p, ok := act.env.Lookup(name)
	if !ok {
		switch name {
		case ast.ThisName:
			return act.this
		case ast.ArgumentsName:
			return runtime.NewArray(act.args...)
		}
		return throwError("ReferenceError: %s is not defined", name)
	}
	if p.IsAccessor() {
		if p.Getter == nil {
			return runtime.UNDEFINED
		}
		return in.callValue(p.Getter, runtime.UNDEFINED, nil)
	}
	if p.Value == nil {
		return runtime.UNDEFINED
	}
	return p.Value
}

// setName assigns to the nearest binding of name, creating a global when
// there is none.
func (in *Interpreter) setName(name string, v runtime.Object, act *activation) runtime.Object {
	if p, ok := act.env.Lookup(name); ok && p.IsAccessor() {
		if p.Setter == nil {
			return v
		}
		if res := in.callValue(p.Setter, runtime.UNDEFINED, []runtime.Object{v}); isThrown(res) {
			return res
		}
		return v
	}
	if !act.env.Update(name, v) {
		in.Globals.Set(name, v)
	}
	return v
}

func objectOf(o runtime.Object) (*runtime.JSObject, bool) {
	switch b := o.(type) {
	case *runtime.JSObject:
		return b, true
	case *runtime.Array:
		return &b.JSObject, true
	}
	return nil, false
}

func (in *Interpreter) getProperty(base runtime.Object, name string) runtime.Object {
	switch b := base.(type) {
	case runtime.Undefined, runtime.Null:
		return throwError("TypeError: cannot read property %q of %s", name, b.Inspect())
	case *runtime.Array:
		if name == "length" {
			return runtime.NewInt(int32(b.Len()))
		}
	case *runtime.String:
		if name == "length" {
			return runtime.NewInt(int32(len([]rune(b.Value))))
		}
		return runtime.UNDEFINED
	case *Closure:
		switch name {
		case "prototype":
			return b.Proto
		case ast.CallName:
			return &runtime.Builtin{Name: ast.CallName, Fn: func(_ runtime.Object, args []runtime.Object) (runtime.Object, error) {
				var this runtime.Object = runtime.UNDEFINED
				if len(args) > 0 {
					this, args = args[0], args[1:]
				}
				return b.Call(this, args)
			}}
		}
		return runtime.UNDEFINED
	}
	obj, ok := objectOf(base)
	if !ok {
		return runtime.UNDEFINED
	}
	p, ok := obj.FindProperty(name)
	if !ok {
		return runtime.UNDEFINED
	}
	if p.IsAccessor() {
		if p.Getter == nil {
			return runtime.UNDEFINED
		}
		return in.callValue(p.Getter, base, nil)
	}
	if p.Value == nil {
		return runtime.UNDEFINED
	}
	return p.Value
}

func (in *Interpreter) setProperty(base runtime.Object, name string, v runtime.Object) runtime.Object {
	switch b := base.(type) {
	case runtime.Undefined, runtime.Null:
		return throwError("TypeError: cannot set property %q of %s", name, b.Inspect())
	}
	obj, ok := objectOf(base)
	if !ok {
		return v
	}
	if p, found := obj.FindProperty(name); found && p.IsAccessor() {
		if p.Setter == nil {
			return v
		}
		if res := in.callValue(p.Setter, base, []runtime.Object{v}); isThrown(res) {
			return res
		}
		return v
	}
	obj.Put(name, v)
	return v
}

// arrayIndex reports whether idx addresses an element rather than a named
// property.
func arrayIndex(idx runtime.Object) (int, bool) {
	if !runtime.IsNumber(idx) {
		return 0, false
	}
	f := runtime.ToNumber(idx)
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func (in *Interpreter) getIndex(base, idx runtime.Object) runtime.Object {
	if i, ok := arrayIndex(idx); ok {
		switch b := base.(type) {
		case *runtime.Array:
			return b.Get(i)
		case *runtime.String:
			r := []rune(b.Value)
			if i < len(r) {
				return runtime.NewString(string(r[i]))
			}
			return runtime.UNDEFINED
		}
	}
	return in.getProperty(base, runtime.ToString(idx))
}

func (in *Interpreter) setIndex(base, idx, v runtime.Object) runtime.Object {
	if a, ok := base.(*runtime.Array); ok {
		if i, ok := arrayIndex(idx); ok {
			a.Set(i, v)
			return v
		}
	}
	return in.setProperty(base, runtime.ToString(idx), v)
}

func (in *Interpreter) evalBinary(n *ast.BinaryNode, act *activation) runtime.Object {
	if n.IsAssignment() {
		return in.assign(n, act)
	}
	left := in.eval(n.Left, act)
	if isThrown(left) {
		return left
	}
	switch n.Op {
	case token.AND:
		if !runtime.ToBoolean(left) {
			return left
		}
		return in.eval(n.Right, act)
	case token.OR:
		if runtime.ToBoolean(left) {
			return left
		}
		return in.eval(n.Right, act)
	case token.COMMA:
		return in.eval(n.Right, act)
	}
	right := in.eval(n.Right, act)
	if isThrown(right) {
		return right
	}
	return binaryOp(n.Op, left, right)
}

// assign evaluates the target's base and index once, then stores.
func (in *Interpreter) assign(n *ast.BinaryNode, act *activation) runtime.Object {
	compound := n.Op != token.ASSIGN
	combine := func(old runtime.Object) runtime.Object {
		right := in.eval(n.Right, act)
		if isThrown(right) || !compound {
			return right
		}
		return binaryOp(n.Op.BinaryOf(), old, right)
	}

	switch t := n.Left.(type) {
	case *ast.IdentNode:
		var old runtime.Object
		if compound {
			if old = in.lookup(t.Name, act); isThrown(old) {
				return old
			}
		}
		v := combine(old)
		if isThrown(v) {
			return v
		}
		return in.setName(t.Name, v, act)
	case *ast.AccessNode:
		base := in.eval(t.Base, act)
		if isThrown(base) {
			return base
		}
		var old runtime.Object
		if compound {
			if old = in.getProperty(base, t.Property); isThrown(old) {
				return old
			}
		}
		v := combine(old)
		if isThrown(v) {
			return v
		}
		return in.setProperty(base, t.Property, v)
	case *ast.IndexNode:
		base := in.eval(t.Base, act)
		if isThrown(base) {
			return base
		}
		idx := in.eval(t.Index, act)
		if isThrown(idx) {
			return idx
		}
		var old runtime.Object
		if compound {
			if old = in.getIndex(base, idx); isThrown(old) {
				return old
			}
		}
		v := combine(old)
		if isThrown(v) {
			return v
		}
		return in.setIndex(base, idx, v)
	}
	return throwError("SyntaxError: invalid assignment target %T", n.Left)
}

func (in *Interpreter) evalCall(n *ast.CallNode, act *activation) runtime.Object {
	var fn, this runtime.Object = nil, runtime.UNDEFINED
	switch callee := n.Function.(type) {
	case *ast.AccessNode:
		base := in.eval(callee.Base, act)
		if isThrown(base) {
			return base
		}
		this = base
		fn = in.getProperty(base, callee.Property)
	case *ast.IndexNode:
		base := in.eval(callee.Base, act)
		if isThrown(base) {
			return base
		}
		idx := in.eval(callee.Index, act)
		if isThrown(idx) {
			return idx
		}
		this = base
		fn = in.getIndex(base, idx)
	default:
		fn = in.eval(n.Function, act)
	}
	if isThrown(fn) {
		return fn
	}

	args := make([]runtime.Object, len(n.Args))
	for i, a := range n.Args {
		v := in.eval(a, act)
		if isThrown(v) {
			return v
		}
		args[i] = v
	}

	if n.IsNew {
		return in.construct(fn, args)
	}
	// f.call(this, ...) on a closure skips the builtin wrapper.
	if access, ok := n.Function.(*ast.AccessNode); ok && access.Property == ast.CallName {
		if c, ok := this.(*Closure); ok {
			var self runtime.Object = runtime.UNDEFINED
			if len(args) > 0 {
				self, args = args[0], args[1:]
			}
			return in.callClosure(c, self, args)
		}
	}
	return in.callValue(fn, this, args)
}

func (in *Interpreter) construct(fn runtime.Object, args []runtime.Object) runtime.Object {
	obj := runtime.NewObject()
	c, ok := fn.(*Closure)
	if !ok {
		if _, callable := fn.(runtime.Callable); !callable {
			return throwError("TypeError: %s is not a constructor", runtime.ToString(fn))
		}
		res := in.callValue(fn, obj, args)
		if _, isObj := objectOf(res); isObj || isThrown(res) {
			return res
		}
		return obj
	}
	obj.Proto = c.Proto
	res := in.callClosure(c, obj, args)
	if _, isObj := objectOf(res); isObj || isThrown(res) {
		return res
	}
	return obj
}
