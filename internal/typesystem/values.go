package typesystem

import "math"

// OfValue classifies a runtime value by its unboxed representation: a Go
// int32 is Int, a float64 is Number, a bool is Boolean and everything else
// (strings, objects, undefined, null) is Object. A nil interface is Unknown.
func OfValue(v any) Type {
	switch x := v.(type) {
	case nil:
		return Unknown
	case bool:
		return Boolean
	case int32:
		return Int
	case int:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return Int
		}
		return Number
	case int64:
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			return Int
		}
		return Number
	case float64:
		return Number
	case float32:
		return Number
	}
	return Object
}

// OptimisticOf widens a type for recording into an invalidation map: object
// and boolean results are stored as Object so later compiles do not keep
// speculating on them.
func OptimisticOf(t Type) Type {
	if t == Boolean || t == Object {
		return Object
	}
	return t
}
