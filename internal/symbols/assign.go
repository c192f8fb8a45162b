package symbols

import "github.com/funvibe/optijit/internal/ast"

// Assign binds every identifier of fn, and of the functions nested in it,
// to a symbol.
//
// Declarations are collected first so that hoisted names resolve
// regardless of order. A symbol read by a function other than its owner
// is promoted to a scope symbol; everything else that is not global
// becomes a bytecode local with a slot in its owner. Split functions
// declare only their parameters and otherwise resolve through the
// function they were split from, so whatever they touch lives in scope.
func Assign(fn *ast.FunctionNode) *ast.FunctionNode {
	a := &assigner{
		tables:  make(map[int]*SymbolTable),
		parents: make(map[int]*ast.FunctionNode),
		flags:   make(map[int]ast.FunctionFlags),
	}
	var global *SymbolTable
	if !fn.Is(ast.IsProgram) {
		global = NewEmptySymbolTable()
	}
	a.declare(fn, global)
	for _, f := range ast.Functions(fn) {
		a.resolve(f)
	}
	a.allocateSlots()
	return ast.RewriteFunction(fn, &binder{a: a})
}

type assigner struct {
	tables  map[int]*SymbolTable
	parents map[int]*ast.FunctionNode
	flags   map[int]ast.FunctionFlags
	order   []*SymbolTable
}

func internalFlag(name string) ast.SymbolFlags {
	if ast.IsInternalName(name) {
		return ast.SymInternal
	}
	return 0
}

func (a *assigner) declare(fn *ast.FunctionNode, outer *SymbolTable) {
	scope := ScopeFunction
	switch {
	case fn.Is(ast.IsProgram) && outer == nil:
		scope = ScopeGlobal
	case fn.Is(ast.IsSplit):
		scope = ScopeSplit
	}
	t := NewEnclosedSymbolTable(outer, scope, fn.ID)
	a.tables[fn.ID] = t
	a.order = append(a.order, t)

	for _, p := range fn.Params {
		t.Define(p.Name, ast.SymParam|internalFlag(p.Name))
	}
	var nested []*ast.FunctionNode
	ast.InspectFunction(fn, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.VarNode:
			t.Define(n.Name.Name, varFlags(t, n))
		case *ast.CatchNode:
			if n.Param != nil {
				t.Define(n.Param.Name, ast.SymVar|ast.SymLet|internalFlag(n.Param.Name))
			}
		case *ast.FunctionNode:
			nested = append(nested, n)
		}
		return true
	})
	for _, nf := range nested {
		a.parents[nf.ID] = fn
		a.declare(nf, t)
	}
}

func varFlags(t *SymbolTable, vn *ast.VarNode) ast.SymbolFlags {
	flags := ast.SymVar | internalFlag(vn.Name.Name)
	if t.IsGlobalScope() && flags&ast.SymInternal == 0 {
		flags |= ast.SymGlobal
	}
	if vn.IsFunctionDeclaration {
		flags |= ast.SymFunctionDecl
	}
	if vn.IsBlockScoped() {
		flags |= ast.SymLet
	}
	return flags
}

// nonSplit returns fn, or the function a split function was taken from.
func (a *assigner) nonSplit(fn *ast.FunctionNode) *ast.FunctionNode {
	for fn.Is(ast.IsSplit) {
		p, ok := a.parents[fn.ID]
		if !ok {
			break
		}
		fn = p
	}
	return fn
}

func (a *assigner) resolve(fn *ast.FunctionNode) {
	t := a.tables[fn.ID]
	ast.InspectFunction(fn, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.IdentNode:
			if n.IsDeclaredHere || n.IsThis() {
				return true
			}
			sym, owner, ok := t.Find(n.Name)
			if !ok {
				if n.Name == ast.ArgumentsName {
					a.flags[a.nonSplit(fn).ID] |= ast.UsesArguments
					return true
				}
				sym, owner = t.Global().Define(n.Name, ast.SymGlobal), t.Global()
			}
			if owner.Owner() != fn.ID && !sym.Is(ast.SymGlobal) {
				sym.Flags |= ast.SymScope
				a.flags[fn.ID] |= ast.UsesAncestorScope
			}
		case *ast.CallNode:
			if acc, ok := n.Function.(*ast.AccessNode); ok && acc.Property == "apply" {
				a.flags[fn.ID] |= ast.HasApplyToCall
			}
		}
		return true
	})
}

func (a *assigner) allocateSlots() {
	for _, t := range a.order {
		slot := 0
		for _, sym := range t.Symbols() {
			if sym.Is(ast.SymScope) || sym.Is(ast.SymGlobal) {
				continue
			}
			sym.Flags |= ast.SymBytecodeLocal
			sym.Slot = slot
			slot++
		}
	}
}

// Table returns the symbol table of the function with the given id.
func (a *assigner) table(id int) *SymbolTable { return a.tables[id] }

type binder struct {
	ast.BaseVisitor
	a *assigner
}

func (b *binder) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.IdentNode:
		if n.IsThis() {
			return n
		}
		fn := lc.CurrentFunction()
		if fn == nil {
			return n
		}
		t := b.a.table(fn.ID)
		if t == nil {
			return n
		}
		if sym, _, ok := t.Find(n.Name); ok {
			return n.WithSymbol(sym)
		}
	case *ast.FunctionNode:
		return n.WithFlags(b.a.flags[n.ID]).WithState(ast.SymbolsAssigned)
	}
	return n
}
