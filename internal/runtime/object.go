// Package runtime is the value and object model shared by the interpreter
// and the type evaluator.
package runtime

import (
	"math"
	"strconv"

	"github.com/funvibe/optijit/internal/typesystem"
)

type ObjectType string

const (
	INTEGER_OBJ   = "INTEGER"
	FLOAT_OBJ     = "FLOAT"
	BOOLEAN_OBJ   = "BOOLEAN"
	STRING_OBJ    = "STRING"
	UNDEFINED_OBJ = "UNDEFINED"
	NULL_OBJ      = "NULL"
	OBJECT_OBJ    = "OBJECT"
	ARRAY_OBJ     = "ARRAY"
	FUNCTION_OBJ  = "FUNCTION"
	BUILTIN_OBJ   = "BUILTIN"
	ERROR_OBJ     = "ERROR"
)

type Object interface {
	Type() ObjectType
	Inspect() string
	// RuntimeType is the unboxed speculative type of the value: a boxed
	// small integer reports int, not object.
	RuntimeType() typesystem.Type
}

// Integer is a number that fits an int32.
type Integer struct {
	Value int32
}

func (i *Integer) Type() ObjectType             { return INTEGER_OBJ }
func (i *Integer) Inspect() string              { return strconv.Itoa(int(i.Value)) }
func (i *Integer) RuntimeType() typesystem.Type { return typesystem.Int }

// Float is any other number.
type Float struct {
	Value float64
}

func (f *Float) Type() ObjectType             { return FLOAT_OBJ }
func (f *Float) Inspect() string              { return FormatNumber(f.Value) }
func (f *Float) RuntimeType() typesystem.Type { return typesystem.Number }

type Boolean struct {
	Value bool
}

func (b *Boolean) Type() ObjectType             { return BOOLEAN_OBJ }
func (b *Boolean) Inspect() string              { return strconv.FormatBool(b.Value) }
func (b *Boolean) RuntimeType() typesystem.Type { return typesystem.Boolean }

type String struct {
	Value string
}

func (s *String) Type() ObjectType             { return STRING_OBJ }
func (s *String) Inspect() string              { return s.Value }
func (s *String) RuntimeType() typesystem.Type { return typesystem.Object }

type Undefined struct{}

func (Undefined) Type() ObjectType             { return UNDEFINED_OBJ }
func (Undefined) Inspect() string              { return "undefined" }
func (Undefined) RuntimeType() typesystem.Type { return typesystem.Object }

type Null struct{}

func (Null) Type() ObjectType             { return NULL_OBJ }
func (Null) Inspect() string              { return "null" }
func (Null) RuntimeType() typesystem.Type { return typesystem.Object }

var (
	TRUE      = &Boolean{Value: true}
	FALSE     = &Boolean{Value: false}
	UNDEFINED = Undefined{}
	NULL      = Null{}
)

func NativeBool(b bool) *Boolean {
	if b {
		return TRUE
	}
	return FALSE
}

// NewNumber returns the narrowest representation of f. Negative zero stays
// a float.
func NewNumber(f float64) Object {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f)) {
		return &Integer{Value: int32(f)}
	}
	return &Float{Value: f}
}

func NewInt(i int32) *Integer     { return &Integer{Value: i} }
func NewString(s string) *String { return &String{Value: s} }

// FormatNumber renders a number the way the source language prints it.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Error is a thrown value that did not originate from a throw statement.
type Error struct {
	Message string
}

func (e *Error) Type() ObjectType             { return ERROR_OBJ }
func (e *Error) Inspect() string              { return "Error: " + e.Message }
func (e *Error) RuntimeType() typesystem.Type { return typesystem.Object }

func NewError(msg string) *Error { return &Error{Message: msg} }
