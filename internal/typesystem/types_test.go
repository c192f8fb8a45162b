package typesystem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWidest(t *testing.T) {
	tests := []struct {
		a, b, want Type
	}{
		{Unknown, Int, Int},
		{Int, Unknown, Int},
		{Int, Number, Number},
		{Number, Int, Number},
		{Int, Object, Object},
		{Boolean, Boolean, Boolean},
		{Boolean, Int, Object},
		{Number, Boolean, Object},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Widest(tt.a, tt.b), "Widest(%v, %v)", tt.a, tt.b)
	}
}

func TestOfValue(t *testing.T) {
	assert.Equal(t, Int, OfValue(int32(5)))
	assert.Equal(t, Int, OfValue(5))
	assert.Equal(t, Number, OfValue(int64(1)<<40))
	assert.Equal(t, Number, OfValue(2.5))
	assert.Equal(t, Boolean, OfValue(true))
	assert.Equal(t, Object, OfValue("x"))
	assert.Equal(t, Unknown, OfValue(nil))
}

func TestAccepts(t *testing.T) {
	assert.True(t, Number.Accepts(Int))
	assert.False(t, Int.Accepts(Number))
	assert.False(t, Boolean.Accepts(Int))
	assert.True(t, Object.Accepts(Boolean))
}

func TestInvalidationMapNeverNarrows(t *testing.T) {
	m := InvalidationMap{}
	assert.True(t, m.Add(3, Number))
	assert.False(t, m.Add(3, Int))
	got, ok := m.Get(3)
	assert.True(t, ok)
	assert.Equal(t, Number, got)

	assert.True(t, m.Add(3, Object))
	assert.False(t, m.Add(3, Number))
	got, _ = m.Get(3)
	assert.Equal(t, Object, got)
}

func TestSignatureRoundTrip(t *testing.T) {
	sig := Signature([]Type{Int, Number, Object, Boolean})
	assert.Equal(t, "IDLZ", sig)
	for i := 0; i < len(sig); i++ {
		_, ok := FromDescriptor(sig[i])
		assert.True(t, ok)
	}
}
