// Package symbols resolves identifiers to symbols, computes scope depths
// and infers the types of function-local variables.
package symbols

import "github.com/funvibe/optijit/internal/ast"

type ScopeType int

const (
	ScopeGlobal   ScopeType = iota // The program, or the implicit global scope
	ScopeFunction                  // A function establishing its own scope
	ScopeSplit                     // A split function sharing its parent's scope
)

// SymbolTable holds the symbols one function declares.
type SymbolTable struct {
	store     map[string]*ast.Symbol
	order     []*ast.Symbol
	outer     *SymbolTable
	scopeType ScopeType
	// owner is the id of the declaring function, 0 for the implicit global scope.
	owner int
}

func NewEmptySymbolTable() *SymbolTable {
	return &SymbolTable{store: make(map[string]*ast.Symbol), scopeType: ScopeGlobal}
}

func NewEnclosedSymbolTable(outer *SymbolTable, scopeType ScopeType, owner int) *SymbolTable {
	st := NewEmptySymbolTable()
	st.outer = outer
	st.scopeType = scopeType
	st.owner = owner
	return st
}

// Outer returns the enclosing symbol table.
func (s *SymbolTable) Outer() *SymbolTable { return s.outer }

func (s *SymbolTable) IsGlobalScope() bool { return s.scopeType == ScopeGlobal }

// Owner is the id of the function declaring this table's symbols.
func (s *SymbolTable) Owner() int { return s.owner }

// Define declares name here. Redeclaring merges the flags into the
// existing symbol, as repeated var declarations do.
func (s *SymbolTable) Define(name string, flags ast.SymbolFlags) *ast.Symbol {
	if sym, ok := s.store[name]; ok {
		sym.Flags |= flags
		return sym
	}
	sym := &ast.Symbol{Name: name, Flags: flags, Owner: s.owner, Slot: -1}
	s.store[name] = sym
	s.order = append(s.order, sym)
	return sym
}

// Find resolves name in this table or an enclosing one.
func (s *SymbolTable) Find(name string) (*ast.Symbol, *SymbolTable, bool) {
	for t := s; t != nil; t = t.outer {
		if sym, ok := t.store[name]; ok {
			return sym, t, true
		}
	}
	return nil, nil, false
}

// IsDefined reports whether name is declared in this very table.
func (s *SymbolTable) IsDefined(name string) bool {
	_, ok := s.store[name]
	return ok
}

// Symbols returns the declared symbols in declaration order.
func (s *SymbolTable) Symbols() []*ast.Symbol { return s.order }

// Global returns the outermost table.
func (s *SymbolTable) Global() *SymbolTable {
	t := s
	for t.outer != nil {
		t = t.outer
	}
	return t
}
