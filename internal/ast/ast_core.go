// Package ast defines the immutable syntax tree the compiler pipeline
// operates on. Nodes are never modified after construction: a pass that
// wants a different tree builds new nodes and shares every unchanged
// subtree with its input.
package ast

import (
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// TokenProvider is an interface for any AST node that can provide its primary token.
// This is useful for error reporting.
type TokenProvider interface {
	GetToken() token.Token
}

// Node is the base interface for all AST nodes.
type Node interface {
	TokenProvider
	TokenLiteral() string
}

// Statement is a Node that represents a statement.
type Statement interface {
	Node
	statementNode()
}

// Expression is a Node that represents an expression.
type Expression interface {
	Node
	expressionNode()
}

// Block is an ordered list of statements. Function bodies, loop bodies and
// branches are blocks.
type Block struct {
	Token      token.Token
	Statements []Statement
	// Scoped marks a block that introduces its own lexical scope (a catch
	// body or a block holding let/const declarations).
	Scoped bool
}

func (b *Block) statementNode()       {}
func (b *Block) TokenLiteral() string { return "{" }
func (b *Block) GetToken() token.Token {
	if b == nil {
		return token.Token{}
	}
	return b.Token
}

// Last returns the final statement or nil.
func (b *Block) Last() Statement {
	if b == nil || len(b.Statements) == 0 {
		return nil
	}
	return b.Statements[len(b.Statements)-1]
}

// WithStatements returns a copy of the block holding stmts.
func (b *Block) WithStatements(stmts []Statement) *Block {
	c := *b
	c.Statements = stmts
	return &c
}

// FunctionFlags are the boolean attributes of a function.
type FunctionFlags uint32

const (
	IsProgram FunctionFlags = 1 << iota
	IsStrict
	// IsSplit marks a function synthesized from a split node.
	IsSplit
	// HasSplits marks a function whose body contains split nodes.
	HasSplits
	UsesAncestorScope
	UsesArguments
	HasApplyToCall
	IsVarArg
	IsDeclared
	IsAnonymous
	HasScopeBlock
	// IsLazyStub marks a function whose body was pruned and must be
	// recompiled on demand from the function store.
	IsLazyStub
)

var functionFlagNames = []struct {
	flag FunctionFlags
	name string
}{
	{IsProgram, "program"},
	{IsStrict, "strict"},
	{IsSplit, "split"},
	{HasSplits, "has-splits"},
	{UsesAncestorScope, "ancestor-scope"},
	{UsesArguments, "arguments"},
	{HasApplyToCall, "apply-to-call"},
	{IsVarArg, "vararg"},
	{IsDeclared, "declared"},
	{IsAnonymous, "anonymous"},
	{HasScopeBlock, "scope-block"},
	{IsLazyStub, "lazy"},
}

// Names lists the set flags, for diagnostics.
func (f FunctionFlags) Names() []string {
	var names []string
	for _, fn := range functionFlagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

// CompilationState is a phase milestone a function has passed.
type CompilationState uint8

const (
	Initialized CompilationState = iota
	Parsed
	ConstantFolded
	Lowered
	ProgramPointsAssigned
	Split
	SymbolsAssigned
	ScopeDepthsComputed
	OptimisticTypesAssigned
	LocalVariableTypesCalculated
	BytecodeGenerated
	BytecodeInstalled
)

var stateNames = [...]string{
	"initialized", "parsed", "constant-folded", "lowered",
	"program-points-assigned", "split", "symbols-assigned",
	"scope-depths-computed", "optimistic-types-assigned",
	"local-variable-types-calculated", "bytecode-generated",
	"bytecode-installed",
}

func (s CompilationState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown-state"
}

// CompilationStates is the set of milestones reached by a function.
type CompilationStates uint32

// Has reports whether s is in the set.
func (cs CompilationStates) Has(s CompilationState) bool { return cs&(1<<s) != 0 }

// With returns the set extended with s.
func (cs CompilationStates) With(s CompilationState) CompilationStates { return cs | 1<<s }

// Without returns the set with s removed.
func (cs CompilationStates) Without(s CompilationState) CompilationStates { return cs &^ (1 << s) }

// List returns the members in pipeline order.
func (cs CompilationStates) List() []CompilationState {
	var out []CompilationState
	for s := Initialized; s <= BytecodeInstalled; s++ {
		if cs.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// FunctionNode is the unit of compilation.
type FunctionNode struct {
	Token      token.Token
	ID         int
	Name       string
	Params     []*IdentNode
	Body       *Block
	Flags      FunctionFlags
	State      CompilationStates
	Finish     int
	ReturnType typesystem.Type
	// CompileUnit is the name of the unit the function body is emitted into.
	CompileUnit string
	// ScopeDepth counts scope-creating ancestors. ExternalDepths maps each
	// symbol the function reads from an enclosing scope to the number of
	// scopes between them. Both are filled by the scope depth phase.
	ScopeDepth     int
	ExternalDepths map[string]int
}

func (f *FunctionNode) expressionNode()      {}
func (f *FunctionNode) TokenLiteral() string { return "function" }
func (f *FunctionNode) GetToken() token.Token {
	if f == nil {
		return token.Token{}
	}
	return f.Token
}

func (f *FunctionNode) Is(flag FunctionFlags) bool { return f.Flags&flag != 0 }

// HasState reports whether the function reached s.
func (f *FunctionNode) HasState(s CompilationState) bool { return f.State.Has(s) }

// WithFlags returns a copy with flags added.
func (f *FunctionNode) WithFlags(flags FunctionFlags) *FunctionNode {
	if f.Flags&flags == flags {
		return f
	}
	c := *f
	c.Flags |= flags
	return &c
}

// WithoutFlags returns a copy with flags cleared.
func (f *FunctionNode) WithoutFlags(flags FunctionFlags) *FunctionNode {
	if f.Flags&flags == 0 {
		return f
	}
	c := *f
	c.Flags &^= flags
	return &c
}

// WithState returns a copy that has reached s.
func (f *FunctionNode) WithState(s CompilationState) *FunctionNode {
	if f.State.Has(s) {
		return f
	}
	c := *f
	c.State = c.State.With(s)
	return &c
}

// WithBody returns a copy with the given body.
func (f *FunctionNode) WithBody(body *Block) *FunctionNode {
	if f.Body == body {
		return f
	}
	c := *f
	c.Body = body
	return &c
}

// WithCompileUnit returns a copy assigned to unit.
func (f *FunctionNode) WithCompileUnit(unit string) *FunctionNode {
	if f.CompileUnit == unit {
		return f
	}
	c := *f
	c.CompileUnit = unit
	return &c
}

// DisplayName is the name used in diagnostics.
func (f *FunctionNode) DisplayName() string {
	switch {
	case f == nil:
		return "<none>"
	case f.Is(IsProgram):
		return ":program"
	case f.Name == "":
		return ":anonymous"
	}
	return f.Name
}

// Digest identifies the source a function was parsed from: its name,
// parameters and source span. It survives lowering and splitting, so every
// compile of one function agrees on it.
func (f *FunctionNode) Digest() uint64 {
	var b strings.Builder
	b.WriteString(f.Name)
	for _, p := range f.Params {
		b.WriteByte(',')
		b.WriteString(p.Name)
	}
	for _, n := range []int{f.Token.Offset, f.Token.Line, f.Token.Column, f.Finish} {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(n))
	}
	return xxh3.HashString(b.String())
}

// SymbolFlags describe where a symbol lives.
type SymbolFlags uint16

const (
	SymParam SymbolFlags = 1 << iota
	SymVar
	SymGlobal
	SymScope
	SymBytecodeLocal
	SymInternal
	SymFunctionDecl
	SymLet
)

// Symbol is the resolved binding of an identifier.
type Symbol struct {
	Name  string
	Flags SymbolFlags
	// Owner is the id of the function that declares the symbol.
	Owner int
	// Slot is the local slot index for bytecode locals, -1 otherwise.
	Slot int
}

func (s *Symbol) Is(flag SymbolFlags) bool { return s != nil && s.Flags&flag != 0 }

// IsBytecodeLocal reports whether the symbol never escapes its function.
func (s *Symbol) IsBytecodeLocal() bool { return s.Is(SymBytecodeLocal) }

// IsInternalName reports whether name is a compiler-generated identifier.
// Internal names start with a colon and cannot be written in source.
func IsInternalName(name string) bool {
	return len(name) > 0 && name[0] == ':'
}

// Internal identifiers used by the lowering and splitting phases.
const (
	ReturnName    = ":return"
	ThisName      = "this"
	ArgumentsName = "arguments"
	CallName      = "call"
)
