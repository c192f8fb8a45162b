package ast

// Visitor is driven by Rewrite. Enter is called before a node's children are
// visited; returning false skips them. Enter may substitute the node it was
// given with LexicalContext.Replace. Leave is called afterwards with the
// node rebuilt from its (possibly rewritten) children, and its result
// replaces the node in the parent. Returning nil from Leave for a statement
// in a statement list removes it.
type Visitor interface {
	Enter(lc *LexicalContext, n Node) bool
	Leave(lc *LexicalContext, n Node) Node
}

// BaseVisitor visits everything and changes nothing. Embed it to override
// only one of the two callbacks.
type BaseVisitor struct{}

func (BaseVisitor) Enter(*LexicalContext, Node) bool   { return true }
func (BaseVisitor) Leave(_ *LexicalContext, n Node) Node { return n }

// Rewrite visits n with a fresh lexical context.
func Rewrite(n Node, v Visitor) Node {
	return RewriteIn(NewLexicalContext(), n, v)
}

// RewriteIn visits n below the ancestors already on lc.
func RewriteIn(lc *LexicalContext, n Node, v Visitor) Node {
	r := &rewriter{lc: lc, v: v}
	return r.visit(n)
}

// RewriteFunction is Rewrite for the common case of a whole function.
func RewriteFunction(fn *FunctionNode, v Visitor) *FunctionNode {
	out := Rewrite(fn, v)
	if out == nil {
		return nil
	}
	return out.(*FunctionNode)
}

type rewriter struct {
	lc *LexicalContext
	v  Visitor
}

func (r *rewriter) visit(n Node) Node {
	r.lc.push(n)
	descend := r.v.Enter(r.lc, n)
	// Enter may have swapped the node through LexicalContext.Replace.
	n = r.lc.Top()
	if descend {
		n = r.children(n)
		r.lc.replaceTop(n)
	}
	if fn, ok := n.(*FunctionNode); ok {
		if flags := r.lc.topFlags(); flags != 0 {
			n = fn.WithFlags(flags)
			r.lc.replaceTop(n)
		}
	}
	out := r.v.Leave(r.lc, n)
	r.lc.pop()
	return out
}

func (r *rewriter) expr(e Expression) Expression {
	if e == nil {
		return nil
	}
	out := r.visit(e)
	if out == nil {
		return nil
	}
	return out.(Expression)
}

func (r *rewriter) exprs(list []Expression) ([]Expression, bool) {
	var out []Expression
	for i, e := range list {
		ne := r.expr(e)
		if ne != e && out == nil {
			out = make([]Expression, i, len(list))
			copy(out, list[:i])
		}
		if out != nil {
			out = append(out, ne)
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

func (r *rewriter) block(b *Block) *Block {
	if b == nil {
		return nil
	}
	return AsBlock(r.visit(b))
}

func (r *rewriter) ident(id *IdentNode) *IdentNode {
	if id == nil {
		return nil
	}
	out := r.visit(id)
	if out == nil {
		return nil
	}
	return out.(*IdentNode)
}

func (r *rewriter) stmts(list []Statement) ([]Statement, bool) {
	var out []Statement
	for i, s := range list {
		ns := r.visit(s)
		if ns != Node(s) && out == nil {
			out = make([]Statement, i, len(list))
			copy(out, list[:i])
		}
		if out != nil && ns != nil {
			out = append(out, ns.(Statement))
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

// AsBlock wraps a non-block statement in a block.
func AsBlock(n Node) *Block {
	switch x := n.(type) {
	case nil:
		return nil
	case *Block:
		return x
	case Statement:
		return &Block{Token: x.GetToken(), Statements: []Statement{x}}
	}
	panic(NewInvariantError("cannot use %T as a block", n))
}

func (r *rewriter) children(n Node) Node {
	switch n := n.(type) {
	case *Block:
		if stmts, changed := r.stmts(n.Statements); changed {
			return n.WithStatements(stmts)
		}
	case *FunctionNode:
		params, pchanged := r.params(n.Params)
		body := r.block(n.Body)
		if pchanged || body != n.Body {
			c := *n
			c.Params = params
			c.Body = body
			return &c
		}
	case *VarNode:
		name := r.ident(n.Name)
		init := r.expr(n.Init)
		if name != n.Name || init != n.Init {
			c := *n
			c.Name, c.Init = name, init
			return &c
		}
	case *ExpressionStatement:
		if e := r.expr(n.Expression); e != n.Expression {
			c := *n
			c.Expression = e
			return &c
		}
	case *IfNode:
		test := r.expr(n.Test)
		pass := r.block(n.Pass)
		fail := r.block(n.Fail)
		if test != n.Test || pass != n.Pass || fail != n.Fail {
			c := *n
			c.Test, c.Pass, c.Fail = test, pass, fail
			return &c
		}
	case *ForNode:
		init := r.expr(n.Init)
		test := r.expr(n.Test)
		modify := r.expr(n.Modify)
		body := r.block(n.Body)
		if init != n.Init || test != n.Test || modify != n.Modify || body != n.Body {
			c := *n
			c.Init, c.Test, c.Modify, c.Body = init, test, modify, body
			return &c
		}
	case *WhileNode:
		var test Expression
		var body *Block
		if n.DoWhile {
			body = r.block(n.Body)
			test = r.expr(n.Test)
		} else {
			test = r.expr(n.Test)
			body = r.block(n.Body)
		}
		if test != n.Test || body != n.Body {
			c := *n
			c.Test, c.Body = test, body
			return &c
		}
	case *LabelNode:
		if body := r.block(n.Body); body != n.Body {
			c := *n
			c.Body = body
			return &c
		}
	case *ReturnNode:
		if e := r.expr(n.Expression); e != n.Expression {
			c := *n
			c.Expression = e
			return &c
		}
	case *ThrowNode:
		if e := r.expr(n.Expression); e != n.Expression {
			c := *n
			c.Expression = e
			return &c
		}
	case *TryNode:
		body := r.block(n.Body)
		var catch *CatchNode
		if n.Catch != nil {
			if out := r.visit(n.Catch); out != nil {
				catch = out.(*CatchNode)
			}
		}
		finally := r.block(n.Finally)
		if body != n.Body || catch != n.Catch || finally != n.Finally {
			c := *n
			c.Body, c.Catch, c.Finally = body, catch, finally
			return &c
		}
	case *CatchNode:
		param := r.ident(n.Param)
		body := r.block(n.Body)
		if param != n.Param || body != n.Body {
			c := *n
			c.Param, c.Body = param, body
			return &c
		}
	case *SwitchNode:
		disc := r.expr(n.Discriminant)
		var cases []*CaseNode
		for i, cn := range n.Cases {
			out := r.visit(cn)
			nc, _ := out.(*CaseNode)
			if nc != cn && cases == nil {
				cases = make([]*CaseNode, i, len(n.Cases))
				copy(cases, n.Cases[:i])
			}
			if cases != nil && nc != nil {
				cases = append(cases, nc)
			}
		}
		if disc != n.Discriminant || cases != nil {
			c := *n
			c.Discriminant = disc
			if cases != nil {
				c.Cases = cases
			}
			return &c
		}
	case *CaseNode:
		test := r.expr(n.Test)
		body := r.block(n.Body)
		if test != n.Test || body != n.Body {
			c := *n
			c.Test, c.Body = test, body
			return &c
		}
	case *SplitNode:
		if body := r.block(n.Body); body != n.Body {
			c := *n
			c.Body = body
			return &c
		}
	case *AccessNode:
		if base := r.expr(n.Base); base != n.Base {
			c := *n
			c.Base = base
			return &c
		}
	case *IndexNode:
		base := r.expr(n.Base)
		index := r.expr(n.Index)
		if base != n.Base || index != n.Index {
			c := *n
			c.Base, c.Index = base, index
			return &c
		}
	case *BinaryNode:
		left := r.expr(n.Left)
		right := r.expr(n.Right)
		if left != n.Left || right != n.Right {
			c := *n
			c.Left, c.Right = left, right
			return &c
		}
	case *UnaryNode:
		if operand := r.expr(n.Operand); operand != n.Operand {
			c := *n
			c.Operand = operand
			return &c
		}
	case *CallNode:
		fn := r.expr(n.Function)
		args, changed := r.exprs(n.Args)
		if fn != n.Function || changed {
			c := *n
			c.Function, c.Args = fn, args
			return &c
		}
	case *TernaryNode:
		test := r.expr(n.Test)
		t := r.expr(n.True)
		f := r.expr(n.False)
		if test != n.Test || t != n.True || f != n.False {
			c := *n
			c.Test, c.True, c.False = test, t, f
			return &c
		}
	case *ArrayLiteralNode:
		if elems, changed := r.exprs(n.Elements); changed {
			c := *n
			c.Elements = elems
			return &c
		}
	case *ObjectLiteralNode:
		var props []PropertyNode
		for i, p := range n.Properties {
			v := r.expr(p.Value)
			if v != p.Value && props == nil {
				props = make([]PropertyNode, i, len(n.Properties))
				copy(props, n.Properties[:i])
			}
			if props != nil {
				props = append(props, PropertyNode{Key: p.Key, Value: v})
			}
		}
		if props != nil {
			c := *n
			c.Properties = props
			return &c
		}
	}
	return n
}

func (r *rewriter) params(list []*IdentNode) ([]*IdentNode, bool) {
	var out []*IdentNode
	for i, p := range list {
		np := r.ident(p)
		if np != p && out == nil {
			out = make([]*IdentNode, i, len(list))
			copy(out, list[:i])
		}
		if out != nil && np != nil {
			out = append(out, np)
		}
	}
	if out == nil {
		return list, false
	}
	return out, true
}

// Children returns the direct children of n in visiting order.
func Children(n Node) []Node {
	var out []Node
	addExpr := func(e Expression) {
		if e != nil {
			out = append(out, e)
		}
	}
	addBlock := func(b *Block) {
		if b != nil {
			out = append(out, b)
		}
	}
	switch n := n.(type) {
	case *Block:
		for _, s := range n.Statements {
			out = append(out, s)
		}
	case *FunctionNode:
		for _, p := range n.Params {
			out = append(out, p)
		}
		addBlock(n.Body)
	case *VarNode:
		out = append(out, n.Name)
		addExpr(n.Init)
	case *ExpressionStatement:
		addExpr(n.Expression)
	case *IfNode:
		addExpr(n.Test)
		addBlock(n.Pass)
		addBlock(n.Fail)
	case *ForNode:
		addExpr(n.Init)
		addExpr(n.Test)
		addExpr(n.Modify)
		addBlock(n.Body)
	case *WhileNode:
		if n.DoWhile {
			addBlock(n.Body)
			addExpr(n.Test)
		} else {
			addExpr(n.Test)
			addBlock(n.Body)
		}
	case *LabelNode:
		addBlock(n.Body)
	case *ReturnNode:
		addExpr(n.Expression)
	case *ThrowNode:
		addExpr(n.Expression)
	case *TryNode:
		addBlock(n.Body)
		if n.Catch != nil {
			out = append(out, n.Catch)
		}
		addBlock(n.Finally)
	case *CatchNode:
		if n.Param != nil {
			out = append(out, n.Param)
		}
		addBlock(n.Body)
	case *SwitchNode:
		addExpr(n.Discriminant)
		for _, c := range n.Cases {
			out = append(out, c)
		}
	case *CaseNode:
		addExpr(n.Test)
		addBlock(n.Body)
	case *SplitNode:
		addBlock(n.Body)
	case *AccessNode:
		addExpr(n.Base)
	case *IndexNode:
		addExpr(n.Base)
		addExpr(n.Index)
	case *BinaryNode:
		addExpr(n.Left)
		addExpr(n.Right)
	case *UnaryNode:
		addExpr(n.Operand)
	case *CallNode:
		addExpr(n.Function)
		for _, a := range n.Args {
			addExpr(a)
		}
	case *TernaryNode:
		addExpr(n.Test)
		addExpr(n.True)
		addExpr(n.False)
	case *ArrayLiteralNode:
		for _, e := range n.Elements {
			addExpr(e)
		}
	case *ObjectLiteralNode:
		for _, p := range n.Properties {
			addExpr(p.Value)
		}
	}
	return out
}

// Inspect traverses the tree in depth-first order. If f returns false the
// children of that node are skipped.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	for _, c := range Children(n) {
		Inspect(c, f)
	}
}

// InspectFunction is Inspect restricted to the body of fn: nested functions
// are reported to f but never descended into.
func InspectFunction(fn *FunctionNode, f func(Node) bool) {
	Inspect(fn.Body, func(n Node) bool {
		if !f(n) {
			return false
		}
		_, nested := n.(*FunctionNode)
		return !nested
	})
}

// MarkState records s on fn and on every function nested in it. Lazy stubs
// are left alone; they reach their states when compiled on demand.
func MarkState(fn *FunctionNode, s CompilationState) *FunctionNode {
	return mapStates(fn, func(cs CompilationStates) CompilationStates { return cs.With(s) })
}

// ClearStates removes states from fn and every non-stub function nested in it.
func ClearStates(fn *FunctionNode, states ...CompilationState) *FunctionNode {
	return mapStates(fn, func(cs CompilationStates) CompilationStates {
		for _, s := range states {
			cs = cs.Without(s)
		}
		return cs
	})
}

func mapStates(fn *FunctionNode, f func(CompilationStates) CompilationStates) *FunctionNode {
	out := RewriteFunction(fn, stateMapper{f: f})
	if cs := f(out.State); cs != out.State {
		c := *out
		c.State = cs
		out = &c
	}
	return out
}

type stateMapper struct {
	BaseVisitor
	f func(CompilationStates) CompilationStates
}

func (m stateMapper) Enter(_ *LexicalContext, n Node) bool {
	fn, ok := n.(*FunctionNode)
	return !ok || !fn.Is(IsLazyStub)
}

func (m stateMapper) Leave(_ *LexicalContext, n Node) Node {
	fn, ok := n.(*FunctionNode)
	if !ok || fn.Is(IsLazyStub) {
		return n
	}
	if cs := m.f(fn.State); cs != fn.State {
		c := *fn
		c.State = cs
		return &c
	}
	return n
}
