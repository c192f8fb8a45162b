package runtime

import (
	"strings"

	"github.com/funvibe/optijit/internal/typesystem"
)

// Array stores its elements in a backing store whose element type only
// ever widens: int, then number, then object. The store type, not the
// individual elements, decides which element accesses can speculate.
type Array struct {
	JSObject
	elems    []Object
	elemType typesystem.Type
}

func NewArray(elems ...Object) *Array {
	a := &Array{JSObject: JSObject{props: make(map[string]*Property)}, elemType: typesystem.Int}
	for _, e := range elems {
		a.Push(e)
	}
	return a
}

func (a *Array) Type() ObjectType             { return ARRAY_OBJ }
func (a *Array) RuntimeType() typesystem.Type { return typesystem.Object }
func (a *Array) Inspect() string {
	parts := make([]string, len(a.elems))
	for i, e := range a.elems {
		parts[i] = inspectNested(e)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ElementType is the type of the backing store.
func (a *Array) ElementType() typesystem.Type { return a.elemType }

func (a *Array) Len() int { return len(a.elems) }

func (a *Array) Get(i int) Object {
	if i < 0 || i >= len(a.elems) {
		return UNDEFINED
	}
	return a.elems[i]
}

// Set stores v at i, growing the array with undefined as needed.
func (a *Array) Set(i int, v Object) {
	if i < 0 {
		return
	}
	if i > len(a.elems) {
		// Holes read as undefined.
		a.widen(typesystem.Object)
	}
	for len(a.elems) <= i {
		a.elems = append(a.elems, UNDEFINED)
	}
	a.elems[i] = v
	a.widen(storeType(v))
}

func (a *Array) Push(v Object) {
	a.elems = append(a.elems, v)
	a.widen(storeType(v))
}

func (a *Array) widen(t typesystem.Type) {
	a.elemType = typesystem.Widest(a.elemType, t)
}

// storeType is the backing store needed for v. Booleans are boxed.
func storeType(v Object) typesystem.Type {
	return typesystem.OptimisticOf(v.RuntimeType())
}

// Elements returns a copy of the elements.
func (a *Array) Elements() []Object { return append([]Object(nil), a.elems...) }
