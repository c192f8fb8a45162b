package runtime

import (
	"sync"

	"github.com/funvibe/optijit/internal/typesystem"
)

// Scope is a read-only view of variable bindings, used to evaluate
// expressions at compile time without running code.
type Scope interface {
	Lookup(name string) (*Property, bool)
}

// Callable is implemented by every invokable value.
type Callable interface {
	Object
	Call(this Object, args []Object) (Object, error)
}

// Builtin is a function implemented in Go.
type Builtin struct {
	Name string
	Fn   func(this Object, args []Object) (Object, error)
}

func (b *Builtin) Type() ObjectType             { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string              { return "function " + b.Name + "() { [native code] }" }
func (b *Builtin) RuntimeType() typesystem.Type { return typesystem.Object }
func (b *Builtin) Call(this Object, args []Object) (Object, error) {
	return b.Fn(this, args)
}

func NewEnvironment() *Environment {
	return &Environment{store: make(map[string]*Property)}
}

func NewEnclosedEnvironment(outer *Environment) *Environment {
	env := NewEnvironment()
	env.outer = outer
	return env
}

// Environment is a chain of binding maps. It implements Scope.
type Environment struct {
	mu    sync.RWMutex
	store map[string]*Property
	outer *Environment
}

func (e *Environment) Outer() *Environment { return e.outer }

func (e *Environment) Lookup(name string) (*Property, bool) {
	for env := e; env != nil; env = env.outer {
		env.mu.RLock()
		p, ok := env.store[name]
		env.mu.RUnlock()
		if ok {
			return p, true
		}
	}
	return nil, false
}

func (e *Environment) Get(name string) (Object, bool) {
	p, ok := e.Lookup(name)
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// Declare binds name in this environment, keeping an existing binding.
func (e *Environment) Declare(name string, val Object) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.store[name]; !ok {
		e.store[name] = &Property{Value: val}
	}
}

// Set binds name in this environment, replacing any binding.
func (e *Environment) Set(name string, val Object) Object {
	e.mu.Lock()
	e.store[name] = &Property{Value: val}
	e.mu.Unlock()
	return val
}

// Update assigns to the nearest existing binding of name.
func (e *Environment) Update(name string, val Object) bool {
	for env := e; env != nil; env = env.outer {
		env.mu.Lock()
		p, ok := env.store[name]
		if ok {
			p.Value = val
			env.mu.Unlock()
			return true
		}
		env.mu.Unlock()
	}
	return false
}

// DefineAccessor binds name to a getter, as a global accessor property.
func (e *Environment) DefineAccessor(name string, getter Callable) {
	e.mu.Lock()
	e.store[name] = &Property{Getter: getter}
	e.mu.Unlock()
}
