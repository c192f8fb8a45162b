package engine

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/codegen"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Registry holds what has been installed: the compiled tree of every
// function, by function id, and the generated units, by unit name.
type Registry struct {
	mu        sync.RWMutex
	functions map[int]*ast.FunctionNode
	units     map[string]*codegen.Unit
	roots     map[int]string
}

func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[int]*ast.FunctionNode),
		units:     make(map[string]*codegen.Unit),
		roots:     make(map[int]string),
	}
}

// Install implements compiler.Installer. Every function compiled with fn,
// except split fragments and lazy stubs, is registered under its id.
// Earlier registrations of the same functions are replaced.
func (r *Registry) Install(fn *ast.FunctionNode, units map[string]*codegen.Unit, root string) error {
	if _, ok := units[root]; !ok {
		return errors.Errorf("installing %s: root unit %s is missing", fn.DisplayName(), root)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, u := range units {
		r.units[name] = u
	}
	for _, f := range ast.Functions(fn) {
		if f.Is(ast.IsSplit) || f.Is(ast.IsLazyStub) {
			continue
		}
		r.functions[f.ID] = f
	}
	r.roots[fn.ID] = root
	return nil
}

func (r *Registry) Function(id int) (*ast.FunctionNode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.functions[id]
	return fn, ok
}

// ReturnType implements optimistic.FunctionData from the installed trees.
func (r *Registry) ReturnType(id int) (typesystem.Type, uint64, bool) {
	fn, ok := r.Function(id)
	if !ok {
		return typesystem.Unknown, 0, false
	}
	return fn.ReturnType, fn.Digest(), true
}

func (r *Registry) Unit(name string) (*codegen.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// Root returns the root unit of the last compile started for function id.
func (r *Registry) Root(id int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.roots[id]
	return name, ok
}

// Units returns the installed unit names in lexical order.
func (r *Registry) Units() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.units))
	for name := range r.units {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
