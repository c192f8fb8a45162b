package split

import (
	"fmt"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

// IDAllocator hands out ids for the functions synthesized from split nodes.
type IDAllocator interface {
	NextFunctionID() int
}

// SplitIntoFunctions replaces every split node in fn by a call to a new
// function holding the split body, followed by a dispatch on the split
// state that completes any return or jump the body could not perform
// itself. Declarations inside split bodies are hoisted to the enclosing
// real function, because fragments share its scope.
func SplitIntoFunctions(fn *ast.FunctionNode, ids IDAllocator) *ast.FunctionNode {
	return ast.RewriteFunction(fn, &fragmenter{ids: ids})
}

type fnState struct {
	fn           *ast.FunctionNode
	vars         []string
	declared     map[string]bool
	decls        []ast.Statement
	needsReturn  bool
	splitCounter int
}

func (fs *fnState) hoist(name string) {
	if fs.declared[name] {
		return
	}
	fs.declared[name] = true
	fs.vars = append(fs.vars, name)
}

// pendingJump is a jump that leaves a split body and has to be re-emitted
// after the call to the fragment.
type pendingJump struct {
	code   int
	jump   ast.Statement
	target ast.Node
}

type splitState struct {
	split     *ast.SplitNode
	codes     map[string]int
	jumps     []pendingJump
	hasReturn bool
	hasBreak  bool
}

func (ss *splitState) codeFor(key string) (int, bool) {
	if c, ok := ss.codes[key]; ok {
		return c, false
	}
	c := ast.StateFirstJump + len(ss.codes)
	ss.codes[key] = c
	return c, true
}

type fragmenter struct {
	ast.BaseVisitor
	ids    IDAllocator
	fns    []*fnState
	splits []*splitState
}

func (v *fragmenter) fn() *fnState { return v.fns[len(v.fns)-1] }

func (v *fragmenter) split() *splitState {
	if len(v.splits) == 0 {
		return nil
	}
	return v.splits[len(v.splits)-1]
}

// stateOf returns the bookkeeping for the given split node.
func (v *fragmenter) stateOf(s *ast.SplitNode) *splitState {
	for i := len(v.splits) - 1; i >= 0; i-- {
		if v.splits[i].split == s {
			return v.splits[i]
		}
	}
	panic(ast.NewInvariantError("split %s has no state", s.Name))
}

func (v *fragmenter) Enter(lc *ast.LexicalContext, n ast.Node) bool {
	switch n := n.(type) {
	case *ast.FunctionNode:
		v.fns = append(v.fns, &fnState{fn: n, declared: topLevelVars(n)})
	case *ast.SplitNode:
		v.splits = append(v.splits, &splitState{split: n, codes: map[string]int{}})
	}
	return true
}

// topLevelVars collects the names already declared at the top of fn's body.
func topLevelVars(fn *ast.FunctionNode) map[string]bool {
	out := map[string]bool{}
	if fn.Body == nil {
		return out
	}
	for _, s := range fn.Body.Statements {
		if vn, ok := s.(*ast.VarNode); ok {
			out[vn.Name.Name] = true
		}
	}
	return out
}

func (v *fragmenter) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.FunctionNode:
		return v.leaveFunction(n)
	case *ast.SplitNode:
		return v.leaveSplit(lc, n)
	case *ast.VarNode:
		if lc.InSplitNode() {
			return v.leaveVar(n)
		}
	case *ast.ReturnNode:
		if s := lc.CurrentSplit(); s != nil {
			return v.convertReturn(v.stateOf(s), n)
		}
	case *ast.BreakNode, *ast.ContinueNode, *ast.JumpToInlinedFinally:
		s := lc.CurrentSplit()
		if s == nil {
			return n
		}
		jump := n.(ast.Statement)
		target := lc.JumpTarget(jump)
		if target == nil {
			panic(ast.NewInvariantError("%s has no target", jump.TokenLiteral()))
		}
		if !lc.IsExternalTarget(s, target) {
			return n
		}
		return v.convertJump(v.stateOf(s), jump, target)
	}
	return n
}

func (v *fragmenter) leaveFunction(fn *ast.FunctionNode) ast.Node {
	fs := v.fn()
	v.fns = v.fns[:len(v.fns)-1]
	if fs.needsReturn && !fn.Is(ast.IsProgram) {
		fs.hoist(ast.ReturnName)
	}
	if len(fs.vars) == 0 && len(fs.decls) == 0 {
		return fn
	}
	stmts := make([]ast.Statement, 0, len(fs.vars)+len(fs.decls)+len(fn.Body.Statements))
	for _, name := range fs.vars {
		stmts = append(stmts, &ast.VarNode{Token: fn.Token, Name: ast.Ident(name), Kind: ast.Var})
	}
	stmts = append(stmts, fs.decls...)
	stmts = append(stmts, fn.Body.Statements...)
	return fn.WithBody(fn.Body.WithStatements(stmts))
}

func (v *fragmenter) leaveVar(vn *ast.VarNode) ast.Node {
	fs := v.fn()
	if vn.IsFunctionDeclaration {
		fs.declared[vn.Name.Name] = true
		fs.decls = append(fs.decls, vn)
		return nil
	}
	fs.hoist(vn.Name.Name)
	if vn.Init == nil {
		return nil
	}
	target := *vn.Name
	target.IsDeclaredHere = false
	return &ast.ExpressionStatement{Token: vn.Token, Expression: ast.Assign(&target, vn.Init)}
}

// fragmentReturn is the return that ends a fragment early: the program
// threads its completion value through the :return parameter.
func (v *fragmenter) fragmentReturn() *ast.ReturnNode {
	if v.fn().fn.Is(ast.IsProgram) {
		return ast.Return(ast.Ident(ast.ReturnName))
	}
	return ast.Return(nil)
}

func (v *fragmenter) convertReturn(ss *splitState, r *ast.ReturnNode) *ast.Block {
	ss.hasReturn = true
	v.fn().needsReturn = true
	var stmts []ast.Statement
	value := r.Expression
	if value == nil {
		value = ast.Undefined()
	}
	if id, ok := value.(*ast.IdentNode); !ok || id.Name != ast.ReturnName {
		stmts = append(stmts, ast.ExprStmt(ast.Assign(ast.Ident(ast.ReturnName), value)))
	}
	stmts = append(stmts, &ast.SetSplitState{Token: r.Token, State: ast.SplitState{Code: ast.StateReturn}}, v.fragmentReturn())
	return &ast.Block{Token: r.Token, Statements: stmts}
}

func jumpKey(jump ast.Statement) string {
	switch j := jump.(type) {
	case *ast.BreakNode:
		return "break:" + j.Label
	case *ast.ContinueNode:
		return "continue:" + j.Label
	case *ast.JumpToInlinedFinally:
		return "finally:" + j.Label
	}
	panic(ast.NewInvariantError("%T is not a jump", jump))
}

func (v *fragmenter) convertJump(ss *splitState, jump ast.Statement, target ast.Node) *ast.Block {
	var code int
	if b, ok := jump.(*ast.BreakNode); ok && b.Label == "" {
		code = ast.StateBreak
		ss.hasBreak = true
	} else {
		var fresh bool
		code, fresh = ss.codeFor(jumpKey(jump))
		if fresh {
			ss.jumps = append(ss.jumps, pendingJump{code: code, jump: jump, target: target})
		}
	}
	return &ast.Block{Token: jump.GetToken(), Statements: []ast.Statement{
		&ast.SetSplitState{Token: jump.GetToken(), State: ast.SplitState{Code: code}},
		v.fragmentReturn(),
	}}
}

// enclosingSplit returns the split node around the one being left, if any.
func enclosingSplit(lc *ast.LexicalContext) *ast.SplitNode {
	for i := lc.Len() - 2; i >= 0; i-- {
		switch n := lc.At(i).(type) {
		case *ast.SplitNode:
			return n
		case *ast.FunctionNode:
			return nil
		}
	}
	return nil
}

func (v *fragmenter) leaveSplit(lc *ast.LexicalContext, s *ast.SplitNode) ast.Node {
	ss := v.split()
	v.splits = v.splits[:len(v.splits)-1]
	fs := v.fn()
	outer := fs.fn
	program := outer.Is(ast.IsProgram)
	fs.splitCounter++

	body := s.Body
	if !ast.IsTerminal(body) {
		body = body.WithStatements(append(body.Statements[:len(body.Statements):len(body.Statements)], v.fragmentReturn()))
	}
	flags := ast.IsSplit | ast.UsesAncestorScope | ast.IsAnonymous | (outer.Flags & ast.IsStrict)
	var params []*ast.IdentNode
	if program {
		params = []*ast.IdentNode{ast.Ident(ast.ReturnName)}
	}
	fragment := &ast.FunctionNode{
		Token:       s.Token,
		ID:          v.ids.NextFunctionID(),
		Name:        fmt.Sprintf("%s$%s", outer.DisplayName(), s.Name),
		Params:      params,
		Body:        body,
		Flags:       flags,
		State:       outer.State,
		CompileUnit: s.Unit,
		ScopeDepth:  outer.ScopeDepth,
	}

	args := []ast.Expression{ast.This()}
	if program {
		args = append(args, ast.Ident(ast.ReturnName))
	}
	var call ast.Expression = ast.Call(ast.Access(fragment, ast.CallName), args...)
	if program {
		call = ast.Assign(ast.Ident(ast.ReturnName), call)
	}
	stmts := []ast.Statement{&ast.ExpressionStatement{Token: s.Token, Expression: call}}

	outerSplit := enclosingSplit(lc)
	reemit := func(jump ast.Statement, target ast.Node) ast.Statement {
		if outerSplit != nil && lc.IsTargetOutside(outerSplit, target) {
			return v.convertJump(v.stateOf(outerSplit), jump, target)
		}
		return jump
	}
	returnValue := func() ast.Statement {
		r := ast.Return(ast.Ident(ast.ReturnName))
		if outerSplit != nil {
			return v.convertReturn(v.stateOf(outerSplit), r)
		}
		return r
	}
	resetState := func() ast.Statement {
		return &ast.SetSplitState{Token: s.Token, State: ast.SplitState{Code: ast.StateFallthrough}}
	}
	stateIs := func(code int) ast.Expression {
		return ast.Bin(token.EQ_STRICT, &ast.GetSplitState{Token: s.Token}, ast.Int(code))
	}

	if ss.hasBreak {
		brk := ast.Break("")
		target := lc.BreakTarget("")
		stmts = append(stmts, ast.If(stateIs(ast.StateBreak), ast.NewBlock(resetState(), reemit(brk, target)), nil))
	}
	if len(ss.jumps) > 0 {
		var cases []*ast.CaseNode
		if ss.hasReturn {
			cases = append(cases, ast.Case(ast.Int(ast.StateReturn), returnValue()))
		}
		for _, j := range ss.jumps {
			cases = append(cases, ast.Case(ast.Int(j.code), resetState(), reemit(j.jump, j.target)))
		}
		stmts = append(stmts, ast.Switch(&ast.GetSplitState{Token: s.Token}, cases...))
	} else if ss.hasReturn {
		stmts = append(stmts, ast.If(stateIs(ast.StateReturn), ast.NewBlock(returnValue()), nil))
	}
	return &ast.Block{Token: s.Token, Statements: stmts}
}
