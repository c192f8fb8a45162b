package lower

import (
	"fmt"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

// IDAllocator hands out fresh function ids.
type IDAllocator interface {
	NextFunctionID() int
}

// Lower inlines finally blocks, makes the program result explicit and
// guarantees every function body ends in a terminal statement.
func Lower(fn *ast.FunctionNode, ids IDAllocator) *ast.FunctionNode {
	l := &lowerer{ids: ids}
	return ast.RewriteFunction(fn, l)
}

type functionState struct {
	// hoisted names declared at the top of the function on Leave.
	hoisted []string
	seen    map[string]bool
}

func (fs *functionState) hoist(name string) {
	if fs.seen[name] {
		return
	}
	fs.seen[name] = true
	fs.hoisted = append(fs.hoisted, name)
}

type lowerer struct {
	ast.BaseVisitor
	ids       IDAllocator
	functions []*functionState
	finallies int
}

func (l *lowerer) current() *functionState {
	return l.functions[len(l.functions)-1]
}

func (l *lowerer) Enter(_ *ast.LexicalContext, n ast.Node) bool {
	if _, ok := n.(*ast.FunctionNode); ok {
		l.functions = append(l.functions, &functionState{seen: map[string]bool{}})
	}
	return true
}

func (l *lowerer) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.FunctionNode:
		out := l.leaveFunction(n)
		l.functions = l.functions[:len(l.functions)-1]
		return out
	case *ast.Block:
		return dropDeadCode(n)
	case *ast.ExpressionStatement:
		fn := lc.CurrentFunction()
		if fn.Is(ast.IsProgram) && !assignsReturn(n.Expression) && !inFinally(lc) {
			return &ast.ExpressionStatement{
				Token:      n.Token,
				Expression: ast.Assign(ast.Ident(ast.ReturnName), n.Expression),
			}
		}
	case *ast.TryNode:
		if n.Finally != nil {
			return l.inlineFinally(lc, n)
		}
	}
	return n
}

// inFinally reports whether the current node is inside a finally block of
// the current function. A finally block does not produce the program result.
func inFinally(lc *ast.LexicalContext) bool {
	for i := lc.Len() - 1; i > 0; i-- {
		switch n := lc.At(i).(type) {
		case *ast.FunctionNode:
			return false
		case *ast.Block:
			if try, ok := lc.At(i - 1).(*ast.TryNode); ok && try.Finally == n {
				return true
			}
		}
	}
	return false
}

func assignsReturn(e ast.Expression) bool {
	b, ok := e.(*ast.BinaryNode)
	if !ok || b.Op != token.ASSIGN {
		return false
	}
	id, ok := b.Left.(*ast.IdentNode)
	return ok && id.Name == ast.ReturnName
}

func (l *lowerer) leaveFunction(fn *ast.FunctionNode) *ast.FunctionNode {
	fs := l.current()
	body := fn.Body
	stmts := body.Statements
	if fn.Is(ast.IsProgram) {
		fs.hoist(ast.ReturnName)
		if !ast.IsTerminal(body) {
			stmts = append(stmts[:len(stmts):len(stmts)], ast.Return(ast.Ident(ast.ReturnName)))
		}
	} else if !ast.IsTerminal(body) {
		stmts = append(stmts[:len(stmts):len(stmts)], &ast.ReturnNode{Token: fn.Token})
	}
	if len(fs.hoisted) > 0 {
		decls := make([]ast.Statement, 0, len(fs.hoisted)+len(stmts))
		for _, name := range fs.hoisted {
			decls = append(decls, ast.VarDecl(name, nil))
		}
		stmts = append(decls, stmts...)
	}
	if len(stmts) != len(body.Statements) {
		fn = fn.WithBody(body.WithStatements(stmts))
	}
	return fn.WithState(ast.Lowered)
}

// dropDeadCode removes statements following a terminal statement. The
// declarations among them are kept, moved in front of the terminal
// statement so the block still ends in it.
func dropDeadCode(b *ast.Block) *ast.Block {
	for i, s := range b.Statements {
		if !ast.IsTerminal(s) || i == len(b.Statements)-1 {
			continue
		}
		stmts := append([]ast.Statement(nil), b.Statements[:i]...)
		for _, dead := range b.Statements[i+1:] {
			stmts = append(stmts, declarationsOf(ast.NewBlock(dead))...)
		}
		return b.WithStatements(append(stmts, s))
	}
	return b
}

// finallyJump is one distinct jump leaving a try block with a finally.
type finallyJump struct {
	code int
	stmt ast.Statement
}

// inlineFinally rewrites
//
//	try { B } catch (e) { C } finally { F }
//
// into
//
//	:fstate$N = -1;
//	:fin$N: { try { try { B' } catch (e) { C' } } catch (:exception$N) { F; throw :exception$N; } }
//	F
//	if (:fstate$N === k) <jump k>
//
// where every jump leaving B or C records its code in :fstate$N and exits
// the label, so F runs exactly once on every path.
func (l *lowerer) inlineFinally(lc *ast.LexicalContext, try *ast.TryNode) ast.Node {
	l.finallies++
	n := l.finallies
	label := fmt.Sprintf(":fin$%d", n)
	stateVar := fmt.Sprintf(":fstate$%d", n)
	excVar := fmt.Sprintf(":exception$%d", n)
	tok := try.Token

	conv := &jumpConverter{
		boundary: lc.Top(),
		label:    label,
		stateVar: stateVar,
		codes:    map[string]*finallyJump{},
	}
	body := ast.AsBlock(ast.RewriteIn(lc.Snapshot(), try.Body, conv))
	var catch *ast.CatchNode
	if try.Catch != nil {
		c := *try.Catch
		c.Body = ast.AsBlock(ast.RewriteIn(lc.Snapshot(), try.Catch.Body, conv))
		catch = &c
	}
	if conv.usesReturn && !lc.CurrentFunction().Is(ast.IsProgram) {
		l.current().hoist(ast.ReturnName)
	}

	protected := body
	if catch != nil {
		inner := &ast.TryNode{Token: tok, Body: body, Catch: catch}
		protected = &ast.Block{Token: tok, Statements: []ast.Statement{inner}}
	}
	rethrow := ast.Catch(excVar, &ast.Block{Token: tok, Statements: append(
		append([]ast.Statement(nil), try.Finally.Statements...),
		&ast.ThrowNode{Token: tok, Expression: ast.Ident(excVar)},
	)})
	guarded := &ast.TryNode{Token: tok, Body: protected, Catch: rethrow}

	var out []ast.Statement
	if len(conv.jumps) > 0 {
		l.current().hoist(stateVar)
		out = append(out, ast.ExprStmt(ast.Assign(ast.Ident(stateVar), ast.Int(ast.StateFallthrough))))
	}
	out = append(out, &ast.LabelNode{Token: tok, Label: label, Body: &ast.Block{Token: tok, Statements: []ast.Statement{guarded}}})
	out = append(out, l.renumber(ast.DeepCopyBlock(try.Finally)).Statements...)
	for _, j := range conv.jumps {
		test := ast.Bin(token.EQ_STRICT, ast.Ident(stateVar), ast.Int(j.code))
		out = append(out, ast.If(test, ast.NewBlock(j.stmt), nil))
	}
	return &ast.Block{Token: tok, Statements: out}
}

// renumber gives copied nested functions ids of their own.
func (l *lowerer) renumber(b *ast.Block) *ast.Block {
	if l.ids == nil {
		return b
	}
	return ast.AsBlock(ast.Rewrite(b, &idRenumberer{ids: l.ids}))
}

type idRenumberer struct {
	ast.BaseVisitor
	ids IDAllocator
}

func (v *idRenumberer) Enter(lc *ast.LexicalContext, n ast.Node) bool {
	if fn, ok := n.(*ast.FunctionNode); ok {
		c := *fn
		c.ID = v.ids.NextFunctionID()
		lc.Replace(&c)
	}
	return true
}

// jumpConverter rewrites jumps and returns that leave the try boundary.
type jumpConverter struct {
	ast.BaseVisitor
	boundary   ast.Node
	label      string
	stateVar   string
	codes      map[string]*finallyJump
	jumps      []*finallyJump
	usesReturn bool
}

func (c *jumpConverter) Enter(_ *ast.LexicalContext, n ast.Node) bool {
	_, nested := n.(*ast.FunctionNode)
	return !nested
}

func (c *jumpConverter) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch s := n.(type) {
	case *ast.ReturnNode:
		c.usesReturn = true
		value := s.Expression
		if value == nil {
			value = ast.Undefined()
		}
		var stmts []ast.Statement
		if id, ok := value.(*ast.IdentNode); !ok || id.Name != ast.ReturnName {
			stmts = append(stmts, ast.ExprStmt(ast.Assign(ast.Ident(ast.ReturnName), value)))
		}
		return c.exit(s, "return", ast.Return(ast.Ident(ast.ReturnName)), stmts)
	case *ast.BreakNode, *ast.ContinueNode, *ast.JumpToInlinedFinally:
		st := s.(ast.Statement)
		target := lc.JumpTarget(st)
		if target == nil || !lc.IsTargetOutside(c.boundary, target) {
			return n
		}
		return c.exit(st, jumpKey(st), st, nil)
	}
	return n
}

func (c *jumpConverter) exit(orig ast.Statement, key string, reissue ast.Statement, prefix []ast.Statement) ast.Node {
	j, ok := c.codes[key]
	if !ok {
		j = &finallyJump{code: len(c.jumps), stmt: reissue}
		c.codes[key] = j
		c.jumps = append(c.jumps, j)
	}
	tok := orig.GetToken()
	stmts := append(prefix,
		ast.ExprStmt(ast.Assign(ast.Ident(c.stateVar), ast.Int(j.code))),
		&ast.JumpToInlinedFinally{Token: tok, Label: c.label},
	)
	return &ast.Block{Token: tok, Statements: stmts}
}

// jumpKey identifies a jump by kind and label.
func jumpKey(s ast.Statement) string {
	switch j := s.(type) {
	case *ast.BreakNode:
		return "break:" + j.Label
	case *ast.ContinueNode:
		return "continue:" + j.Label
	case *ast.JumpToInlinedFinally:
		return "finally:" + j.Label
	}
	return "?"
}
