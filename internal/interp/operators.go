package interp

import (
	"math"

	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/token"
)

// Arithmetic runs in float64 and narrows the result, so an int32 overflow
// produces a number and a speculated int expression deoptimizes.
func binaryOp(op token.Type, l, r runtime.Object) runtime.Object {
	switch op {
	case token.ADD:
		if numeric(l) && numeric(r) {
			return runtime.NewNumber(runtime.ToNumber(l) + runtime.ToNumber(r))
		}
		return runtime.NewString(runtime.ToString(l) + runtime.ToString(r))
	case token.SUB:
		return runtime.NewNumber(runtime.ToNumber(l) - runtime.ToNumber(r))
	case token.MUL:
		return runtime.NewNumber(runtime.ToNumber(l) * runtime.ToNumber(r))
	case token.DIV:
		return runtime.NewNumber(runtime.ToNumber(l) / runtime.ToNumber(r))
	case token.MOD:
		return runtime.NewNumber(math.Mod(runtime.ToNumber(l), runtime.ToNumber(r)))

	case token.BIT_AND:
		return runtime.NewInt(runtime.ToInt32(l) & runtime.ToInt32(r))
	case token.BIT_OR:
		return runtime.NewInt(runtime.ToInt32(l) | runtime.ToInt32(r))
	case token.BIT_XOR:
		return runtime.NewInt(runtime.ToInt32(l) ^ runtime.ToInt32(r))
	case token.SHL:
		return runtime.NewInt(runtime.ToInt32(l) << (runtime.ToUint32(r) & 31))
	case token.SAR:
		return runtime.NewInt(runtime.ToInt32(l) >> (runtime.ToUint32(r) & 31))
	case token.SHR:
		return runtime.NewNumber(float64(runtime.ToUint32(l) >> (runtime.ToUint32(r) & 31)))

	case token.EQ:
		return runtime.NativeBool(runtime.LooseEquals(l, r))
	case token.NE:
		return runtime.NativeBool(!runtime.LooseEquals(l, r))
	case token.EQ_STRICT:
		return runtime.NativeBool(runtime.StrictEquals(l, r))
	case token.NE_STRICT:
		return runtime.NativeBool(!runtime.StrictEquals(l, r))
	case token.LT, token.LE, token.GT, token.GE:
		return runtime.NativeBool(compare(op, l, r))

	case token.INSTANCEOF:
		c, ok := r.(*Closure)
		if !ok {
			return throwError("TypeError: right-hand side of instanceof is not callable")
		}
		obj, ok := objectOf(l)
		if !ok {
			return runtime.FALSE
		}
		for p := obj.Proto; p != nil; p = p.Proto {
			if p == c.Proto {
				return runtime.TRUE
			}
		}
		return runtime.FALSE
	case token.IN:
		key := runtime.ToString(l)
		if a, ok := r.(*runtime.Array); ok {
			if i, isIndex := arrayIndex(l); isIndex {
				return runtime.NativeBool(i < a.Len())
			}
			if key == "length" {
				return runtime.TRUE
			}
		}
		obj, ok := objectOf(r)
		if !ok {
			return throwError("TypeError: cannot use 'in' to search for %q in %s", key, runtime.ToString(r))
		}
		_, found := obj.FindProperty(key)
		return runtime.NativeBool(found)
	case token.COMMA:
		return r
	}
	return throwError("unsupported operator %s", op)
}

// numeric reports whether + treats o as a number rather than concatenating.
func numeric(o runtime.Object) bool {
	switch o.(type) {
	case *runtime.Integer, *runtime.Float, *runtime.Boolean, runtime.Undefined, runtime.Null:
		return true
	}
	return false
}

func compare(op token.Type, l, r runtime.Object) bool {
	ls, lok := l.(*runtime.String)
	rs, rok := r.(*runtime.String)
	if lok && rok {
		switch op {
		case token.LT:
			return ls.Value < rs.Value
		case token.LE:
			return ls.Value <= rs.Value
		case token.GT:
			return ls.Value > rs.Value
		}
		return ls.Value >= rs.Value
	}
	a, b := runtime.ToNumber(l), runtime.ToNumber(r)
	switch op {
	case token.LT:
		return a < b
	case token.LE:
		return a <= b
	case token.GT:
		return a > b
	}
	return a >= b
}

func unaryOp(op token.Type, v runtime.Object) runtime.Object {
	switch op {
	case token.NOT:
		return runtime.NativeBool(!runtime.ToBoolean(v))
	case token.NEG:
		return runtime.NewNumber(-runtime.ToNumber(v))
	case token.POS:
		return runtime.NewNumber(runtime.ToNumber(v))
	case token.BIT_NOT:
		return runtime.NewInt(^runtime.ToInt32(v))
	case token.TYPEOF:
		return runtime.NewString(runtime.TypeOf(v))
	case token.VOID:
		return runtime.UNDEFINED
	}
	return throwError("unsupported unary operator %s", op)
}
