package runtime

import (
	"math"
	"strconv"
	"strings"
)

func IsNumber(o Object) bool {
	switch o.(type) {
	case *Integer, *Float:
		return true
	}
	return false
}

// ToNumber converts o following the source language's numeric coercion.
func ToNumber(o Object) float64 {
	switch v := o.(type) {
	case *Integer:
		return float64(v.Value)
	case *Float:
		return v.Value
	case *Boolean:
		if v.Value {
			return 1
		}
		return 0
	case Null:
		return 0
	case *String:
		s := strings.TrimSpace(v.Value)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

// ToBoolean is the truthiness of o.
func ToBoolean(o Object) bool {
	switch v := o.(type) {
	case *Integer:
		return v.Value != 0
	case *Float:
		return v.Value != 0 && !math.IsNaN(v.Value)
	case *Boolean:
		return v.Value
	case *String:
		return v.Value != ""
	case Undefined, Null, nil:
		return false
	}
	return true
}

func ToString(o Object) string {
	if o == nil {
		return "undefined"
	}
	return o.Inspect()
}

func ToInt32(o Object) int32 {
	if i, ok := o.(*Integer); ok {
		return i.Value
	}
	return int32(ToUint32(o))
}

func ToUint32(o Object) uint32 {
	f := ToNumber(o)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Mod(math.Trunc(f), 1<<32)))
}

// StrictEquals is ===.
func StrictEquals(a, b Object) bool {
	if IsNumber(a) && IsNumber(b) {
		return ToNumber(a) == ToNumber(b)
	}
	if a.Type() != b.Type() {
		return false
	}
	switch x := a.(type) {
	case *Boolean:
		return x.Value == b.(*Boolean).Value
	case *String:
		return x.Value == b.(*String).Value
	case Undefined, Null:
		return true
	}
	return a == b
}

// LooseEquals is ==.
func LooseEquals(a, b Object) bool {
	switch {
	case isNullish(a) || isNullish(b):
		return isNullish(a) && isNullish(b)
	case a.Type() == b.Type(), IsNumber(a) && IsNumber(b):
		return StrictEquals(a, b)
	}
	if _, ok := a.(*JSObject); ok {
		return a == b
	}
	if _, ok := b.(*JSObject); ok {
		return false
	}
	return ToNumber(a) == ToNumber(b)
}

func isNullish(o Object) bool {
	switch o.(type) {
	case Undefined, Null:
		return true
	}
	return false
}

// TypeOf is the typeof operator.
func TypeOf(o Object) string {
	switch o.(type) {
	case *Integer, *Float:
		return "number"
	case *Boolean:
		return "boolean"
	case *String:
		return "string"
	case Undefined:
		return "undefined"
	case Callable:
		return "function"
	}
	return "object"
}
