package runtime

import (
	"math"
	"testing"

	"github.com/funvibe/optijit/internal/typesystem"
	"github.com/stretchr/testify/assert"
)

func TestNewNumberNarrows(t *testing.T) {
	assert.Equal(t, &Integer{Value: 5}, NewNumber(5))
	assert.Equal(t, &Float{Value: 2.5}, NewNumber(2.5))
	assert.IsType(t, &Float{}, NewNumber(math.Copysign(0, -1)))
	assert.IsType(t, &Float{}, NewNumber(1<<40))
}

func TestRuntimeTypeUnboxes(t *testing.T) {
	assert.Equal(t, typesystem.Int, NewNumber(5).RuntimeType())
	assert.Equal(t, typesystem.Number, NewNumber(0.5).RuntimeType())
	assert.Equal(t, typesystem.Boolean, TRUE.RuntimeType())
	assert.Equal(t, typesystem.Object, NewString("5").RuntimeType())
	assert.Equal(t, typesystem.Object, UNDEFINED.RuntimeType())
}

func TestArrayStoreOnlyWidens(t *testing.T) {
	a := NewArray(NewInt(1), NewInt(2))
	assert.Equal(t, typesystem.Int, a.ElementType())
	a.Set(0, NewNumber(1.5))
	assert.Equal(t, typesystem.Number, a.ElementType())
	a.Set(0, NewInt(1))
	assert.Equal(t, typesystem.Number, a.ElementType())
	a.Push(TRUE)
	assert.Equal(t, typesystem.Object, a.ElementType())
}

func TestArrayHolesAreObjects(t *testing.T) {
	a := NewArray()
	a.Set(3, NewInt(1))
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, UNDEFINED, a.Get(0))
	assert.Equal(t, typesystem.Object, a.ElementType())
}

func TestEquality(t *testing.T) {
	assert.True(t, StrictEquals(NewInt(1), NewNumber(1.0)))
	assert.False(t, StrictEquals(NewInt(1), NewString("1")))
	assert.True(t, LooseEquals(NewInt(1), NewString("1")))
	assert.True(t, LooseEquals(UNDEFINED, NULL))
	assert.False(t, LooseEquals(NULL, NewInt(0)))
	o := NewObject()
	assert.True(t, StrictEquals(o, o))
	assert.False(t, StrictEquals(o, NewObject()))
}

func TestConversions(t *testing.T) {
	assert.Equal(t, int32(-1), ToInt32(NewNumber(4294967295)))
	assert.Equal(t, uint32(4294967295), ToUint32(NewInt(-1)))
	assert.True(t, math.IsNaN(ToNumber(NewString("x"))))
	assert.False(t, ToBoolean(NewString("")))
	assert.Equal(t, "1.5", ToString(NewNumber(1.5)))
	assert.Equal(t, "number", TypeOf(NewInt(1)))
}

func TestEnvironmentChain(t *testing.T) {
	global := NewEnvironment()
	global.Set("x", NewInt(1))
	inner := NewEnclosedEnvironment(global)
	inner.Declare("y", NewInt(2))
	assert.True(t, inner.Update("x", NewInt(3)))
	v, ok := global.Get("x")
	assert.True(t, ok)
	assert.Equal(t, NewInt(3), v)
	_, ok = global.Get("y")
	assert.False(t, ok)
	assert.False(t, inner.Update("z", NULL))
}

func TestObjectPrototypeLookup(t *testing.T) {
	proto := NewObject()
	proto.Put("a", NewInt(1))
	o := NewObject()
	o.Proto = proto
	o.Put("b", NewInt(2))
	p, ok := o.FindProperty("a")
	assert.True(t, ok)
	assert.Equal(t, NewInt(1), p.Value)
	_, own := o.GetOwnProperty("a")
	assert.False(t, own)
	assert.Equal(t, `{b: 2}`, o.Inspect())
}
