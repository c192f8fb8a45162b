package ast

import "github.com/funvibe/optijit/internal/token"

// Constructors for trees built by passes and tests. They leave positions
// zeroed unless noted.

func Ident(name string) *IdentNode {
	return &IdentNode{Name: name, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

// Num builds a numeric literal, integral values becoming int32.
func Num(f float64) *LiteralNode { return &LiteralNode{Value: NormalizeNumber(f)} }

func Int(i int) *LiteralNode      { return &LiteralNode{Value: NormalizeNumber(float64(i))} }
func Str(s string) *LiteralNode   { return &LiteralNode{Value: s} }
func Bool(b bool) *LiteralNode    { return &LiteralNode{Value: b} }
func Undefined() *LiteralNode     { return &LiteralNode{Value: UndefinedValue{}} }
func Null() *LiteralNode          { return &LiteralNode{Value: NullValue{}} }
func This() *IdentNode            { return Ident(ThisName) }
func NewBlock(stmts ...Statement) *Block { return &Block{Statements: stmts} }

func ExprStmt(e Expression) *ExpressionStatement {
	return &ExpressionStatement{Token: e.GetToken(), Expression: e}
}

func Bin(op token.Type, l, r Expression) *BinaryNode {
	return &BinaryNode{Token: l.GetToken(), Op: op, Left: l, Right: r, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

func Assign(l, r Expression) *BinaryNode { return Bin(token.ASSIGN, l, r) }

func Unary(op token.Type, e Expression) *UnaryNode {
	return &UnaryNode{Token: e.GetToken(), Op: op, Operand: e, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

func Call(fn Expression, args ...Expression) *CallNode {
	return &CallNode{Token: fn.GetToken(), Function: fn, Args: args, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

func New(fn Expression, args ...Expression) *CallNode {
	c := Call(fn, args...)
	c.IsNew = true
	return c
}

func Access(base Expression, prop string) *AccessNode {
	return &AccessNode{Token: base.GetToken(), Base: base, Property: prop, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

func Index(base, index Expression) *IndexNode {
	return &IndexNode{Token: base.GetToken(), Base: base, Index: index, optimisticInfo: optimisticInfo{PP: InvalidProgramPoint}}
}

func Ternary(test, t, f Expression) *TernaryNode {
	return &TernaryNode{Token: test.GetToken(), Test: test, True: t, False: f}
}

func Array(elems ...Expression) *ArrayLiteralNode { return &ArrayLiteralNode{Elements: elems} }

// Return builds return e; pass nil for a bare return.
func Return(e Expression) *ReturnNode { return &ReturnNode{Expression: e} }

func Throw(e Expression) *ThrowNode          { return &ThrowNode{Expression: e} }
func Break(label string) *BreakNode          { return &BreakNode{Label: label} }
func Continue(label string) *ContinueNode    { return &ContinueNode{Label: label} }
func Label(name string, body *Block) *LabelNode { return &LabelNode{Label: name, Body: body} }

func If(test Expression, pass, fail *Block) *IfNode {
	return &IfNode{Token: test.GetToken(), Test: test, Pass: pass, Fail: fail}
}

func While(test Expression, body *Block) *WhileNode {
	return &WhileNode{Token: test.GetToken(), Test: test, Body: body}
}

func For(init, test, modify Expression, body *Block) *ForNode {
	return &ForNode{Init: init, Test: test, Modify: modify, Body: body}
}

// VarDecl builds var name [= init]; pass nil for no initializer.
func VarDecl(name string, init Expression) *VarNode {
	id := Ident(name)
	id.IsDeclaredHere = true
	return &VarNode{Token: id.Token, Name: id, Init: init}
}

// FuncDecl builds function name(params) { body } as a declaration.
func FuncDecl(fn *FunctionNode) *VarNode {
	v := VarDecl(fn.Name, fn)
	v.IsFunctionDeclaration = true
	return v
}

func Try(body *Block, catch *CatchNode, finally *Block) *TryNode {
	return &TryNode{Body: body, Catch: catch, Finally: finally}
}

func Catch(param string, body *Block) *CatchNode {
	id := Ident(param)
	id.IsDeclaredHere = true
	return &CatchNode{Param: id, Body: body}
}

func Switch(disc Expression, cases ...*CaseNode) *SwitchNode {
	return &SwitchNode{Token: disc.GetToken(), Discriminant: disc, Cases: cases}
}

// Case builds a case clause; a nil test is the default clause.
func Case(test Expression, body ...Statement) *CaseNode {
	return &CaseNode{Test: test, Body: NewBlock(body...)}
}

// Func builds a function expression. Its id is assigned by NumberFunctions.
func Func(name string, params []string, body ...Statement) *FunctionNode {
	fn := &FunctionNode{Name: name, Body: NewBlock(body...)}
	for _, p := range params {
		id := Ident(p)
		id.IsDeclaredHere = true
		fn.Params = append(fn.Params, id)
	}
	if name == "" {
		fn.Flags |= IsAnonymous
	}
	return fn
}

// Program builds a numbered, parsed program function.
func Program(stmts ...Statement) *FunctionNode {
	fn := &FunctionNode{Name: ":program", Body: NewBlock(stmts...), Flags: IsProgram}
	out, _ := NumberFunctions(fn, 1)
	return out.WithState(Parsed)
}

// NumberFunctions assigns ids in pre-order, starting at next, to every
// function without one, and returns the tree and the next free id.
func NumberFunctions(root *FunctionNode, next int) (*FunctionNode, int) {
	v := &numberer{next: next}
	out := RewriteFunction(root, v)
	return out, v.next
}

type numberer struct {
	BaseVisitor
	next int
}

func (v *numberer) Enter(lc *LexicalContext, n Node) bool {
	if fn, ok := n.(*FunctionNode); ok && fn.ID == 0 {
		c := *fn
		c.ID = v.next
		v.next++
		lc.Replace(&c)
	}
	return true
}

// MaxFunctionID returns the largest function id in the tree.
func MaxFunctionID(n Node) int {
	max := 0
	Inspect(n, func(n Node) bool {
		if fn, ok := n.(*FunctionNode); ok && fn.ID > max {
			max = fn.ID
		}
		return true
	})
	return max
}

// Functions returns every function in the tree in pre-order.
func Functions(n Node) []*FunctionNode {
	var out []*FunctionNode
	Inspect(n, func(n Node) bool {
		if fn, ok := n.(*FunctionNode); ok {
			out = append(out, fn)
		}
		return true
	})
	return out
}
