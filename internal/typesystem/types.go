// Package typesystem defines the speculative type lattice used by optimistic
// typing: the narrow machine-level types an expression may be assumed to
// produce, and the rules for widening them after a failed assumption.
package typesystem

import "fmt"

// Type is a speculative runtime type. The zero value is Unknown.
type Type uint8

const (
	Unknown Type = iota
	Boolean
	Int
	Number
	Object
)

var typeNames = [...]string{"unknown", "boolean", "int", "number", "object"}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Weight orders types from narrow to wide.
func (t Type) Weight() int { return int(t) }

func (t Type) IsUnknown() bool { return t == Unknown }
func (t Type) IsBoolean() bool { return t == Boolean }
func (t Type) IsObject() bool  { return t == Object }

// IsNumeric reports whether t is int or number.
func (t Type) IsNumeric() bool { return t == Int || t == Number }

// WiderThan reports whether t is strictly wider than other.
func (t Type) WiderThan(other Type) bool {
	return t.Weight() > other.Weight()
}

// NarrowerThan reports whether t is strictly narrower than other.
func (t Type) NarrowerThan(other Type) bool {
	return t.Weight() < other.Weight()
}

// Widest returns the narrowest type that can represent values of both a and
// b. Booleans and numbers have no common primitive representation, so mixing
// them yields Object.
func Widest(a, b Type) Type {
	if a == Unknown {
		return b
	}
	if b == Unknown {
		return a
	}
	if a != b && (a == Boolean || b == Boolean) {
		return Object
	}
	if a.Weight() >= b.Weight() {
		return a
	}
	return b
}

// Descriptor is the one-character signature used in persistence keys and
// serialized invalidation maps.
func (t Type) Descriptor() byte {
	switch t {
	case Boolean:
		return 'Z'
	case Int:
		return 'I'
	case Number:
		return 'D'
	case Object:
		return 'L'
	}
	return 'U'
}

// FromDescriptor is the inverse of Descriptor.
func FromDescriptor(c byte) (Type, bool) {
	switch c {
	case 'Z':
		return Boolean, true
	case 'I':
		return Int, true
	case 'D':
		return Number, true
	case 'L':
		return Object, true
	case 'U':
		return Unknown, true
	}
	return Unknown, false
}

// Signature encodes a parameter type list, e.g. "IDL".
func Signature(params []Type) string {
	if len(params) == 0 {
		return ""
	}
	b := make([]byte, len(params))
	for i, p := range params {
		b[i] = p.Descriptor()
	}
	return string(b)
}

// Accepts reports whether a value whose narrowest type is actual can flow
// through a slot speculated as t without deoptimizing.
func (t Type) Accepts(actual Type) bool {
	switch t {
	case Unknown, Object:
		return true
	case Number:
		return actual == Int || actual == Number
	default:
		return t == actual
	}
}
