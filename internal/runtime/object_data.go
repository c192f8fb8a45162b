package runtime

import (
	"sort"
	"strings"
	"sync"

	"github.com/funvibe/optijit/internal/typesystem"
)

// Property is a named slot of an object or scope. A property with a Getter
// is an accessor: reading it runs code.
type Property struct {
	Value  Object
	Getter Callable
	Setter Callable
}

// IsAccessor reports whether reading the property may have side effects.
func (p *Property) IsAccessor() bool { return p.Getter != nil || p.Setter != nil }

// JSObject is a plain object with an optional prototype.
type JSObject struct {
	mu    sync.RWMutex
	props map[string]*Property
	keys  []string
	Proto *JSObject
}

func NewObject() *JSObject {
	return &JSObject{props: make(map[string]*Property)}
}

func (o *JSObject) Type() ObjectType             { return OBJECT_OBJ }
func (o *JSObject) RuntimeType() typesystem.Type { return typesystem.Object }
func (o *JSObject) Inspect() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	parts := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		p := o.props[k]
		if p.IsAccessor() {
			parts = append(parts, k+": [accessor]")
			continue
		}
		parts = append(parts, k+": "+inspectNested(p.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func inspectNested(v Object) string {
	if s, ok := v.(*String); ok {
		return `"` + s.Value + `"`
	}
	return ToString(v)
}

// GetOwnProperty returns the property stored on o itself.
func (o *JSObject) GetOwnProperty(name string) (*Property, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	p, ok := o.props[name]
	return p, ok
}

// FindProperty looks name up along the prototype chain.
func (o *JSObject) FindProperty(name string) (*Property, bool) {
	for cur := o; cur != nil; cur = cur.Proto {
		if p, ok := cur.GetOwnProperty(name); ok {
			return p, true
		}
	}
	return nil, false
}

// Put stores a data property on o, replacing an existing data value.
func (o *JSObject) Put(name string, v Object) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.props[name]; ok && !p.IsAccessor() {
		p.Value = v
		return
	}
	if _, ok := o.props[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.props[name] = &Property{Value: v}
}

// DefineAccessor installs a getter and setter pair under name.
func (o *JSObject) DefineAccessor(name string, getter, setter Callable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.props[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.props[name] = &Property{Getter: getter, Setter: setter}
}

// Keys returns the own property names in insertion order.
func (o *JSObject) Keys() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.keys...)
}

// SortedKeys is Keys in lexical order.
func (o *JSObject) SortedKeys() []string {
	keys := o.Keys()
	sort.Strings(keys)
	return keys
}
