package ast

import "github.com/funvibe/optijit/internal/token"

// VarKind distinguishes var from block scoped declarations.
type VarKind uint8

const (
	Var VarKind = iota
	Let
	Const
)

func (k VarKind) String() string {
	switch k {
	case Let:
		return "let"
	case Const:
		return "const"
	}
	return "var"
}

// VarNode declares a variable, or a function when IsFunctionDeclaration is
// set and Init holds the FunctionNode.
type VarNode struct {
	Token                 token.Token
	Name                  *IdentNode
	Init                  Expression // optional
	Kind                  VarKind
	IsFunctionDeclaration bool
}

func (vn *VarNode) statementNode()       {}
func (vn *VarNode) TokenLiteral() string { return vn.Kind.String() }
func (vn *VarNode) GetToken() token.Token {
	if vn == nil {
		return token.Token{}
	}
	return vn.Token
}

// IsBlockScoped reports whether this is a let or const declaration.
func (vn *VarNode) IsBlockScoped() bool { return vn.Kind != Var }

// ExpressionStatement is a statement that consists of a single expression.
type ExpressionStatement struct {
	Token      token.Token
	Expression Expression
}

func (es *ExpressionStatement) statementNode()       {}
func (es *ExpressionStatement) TokenLiteral() string { return es.Token.Lexeme }
func (es *ExpressionStatement) GetToken() token.Token {
	if es == nil {
		return token.Token{}
	}
	return es.Token
}

// IfNode is if (Test) Pass else Fail. Fail may be nil.
type IfNode struct {
	Token token.Token
	Test  Expression
	Pass  *Block
	Fail  *Block
}

func (n *IfNode) statementNode()       {}
func (n *IfNode) TokenLiteral() string { return "if" }
func (n *IfNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// ForNode is for (Init; Test; Modify) Body. Every clause is optional.
type ForNode struct {
	Token  token.Token
	Init   Expression
	Test   Expression
	Modify Expression
	Body   *Block
}

func (n *ForNode) statementNode()       {}
func (n *ForNode) TokenLiteral() string { return "for" }
func (n *ForNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// WhileNode is a while loop, or a do-while loop when DoWhile is set.
type WhileNode struct {
	Token   token.Token
	Test    Expression
	Body    *Block
	DoWhile bool
}

func (n *WhileNode) statementNode()       {}
func (n *WhileNode) TokenLiteral() string { return "while" }
func (n *WhileNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// LabelNode names its body for labelled break and continue.
type LabelNode struct {
	Token token.Token
	Label string
	Body  *Block
}

func (n *LabelNode) statementNode()       {}
func (n *LabelNode) TokenLiteral() string { return n.Label }
func (n *LabelNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// BreakNode is break [Label].
type BreakNode struct {
	Token token.Token
	Label string
}

func (n *BreakNode) statementNode()       {}
func (n *BreakNode) TokenLiteral() string { return "break" }
func (n *BreakNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// ContinueNode is continue [Label].
type ContinueNode struct {
	Token token.Token
	Label string
}

func (n *ContinueNode) statementNode()       {}
func (n *ContinueNode) TokenLiteral() string { return "continue" }
func (n *ContinueNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// ReturnNode is return [Expression].
type ReturnNode struct {
	Token      token.Token
	Expression Expression
}

func (n *ReturnNode) statementNode()       {}
func (n *ReturnNode) TokenLiteral() string { return "return" }
func (n *ReturnNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// ThrowNode is throw Expression.
type ThrowNode struct {
	Token      token.Token
	Expression Expression
}

func (n *ThrowNode) statementNode()       {}
func (n *ThrowNode) TokenLiteral() string { return "throw" }
func (n *ThrowNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// TryNode is try Body [catch] [finally]. At least one of Catch and Finally
// is present in source trees; lowering removes Finally.
type TryNode struct {
	Token   token.Token
	Body    *Block
	Catch   *CatchNode
	Finally *Block
}

func (n *TryNode) statementNode()       {}
func (n *TryNode) TokenLiteral() string { return "try" }
func (n *TryNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// CatchNode binds the thrown value to Param inside Body.
type CatchNode struct {
	Token token.Token
	Param *IdentNode
	Body  *Block
}

func (n *CatchNode) statementNode()       {}
func (n *CatchNode) TokenLiteral() string { return "catch" }
func (n *CatchNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// SwitchNode dispatches on Discriminant with strict equality.
type SwitchNode struct {
	Token        token.Token
	Discriminant Expression
	Cases        []*CaseNode
}

func (n *SwitchNode) statementNode()       {}
func (n *SwitchNode) TokenLiteral() string { return "switch" }
func (n *SwitchNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// CaseNode is one clause of a switch; a nil Test is the default clause.
type CaseNode struct {
	Token token.Token
	Test  Expression
	Body  *Block
}

func (n *CaseNode) statementNode()       {}
func (n *CaseNode) TokenLiteral() string { return "case" }
func (n *CaseNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// IsLoop reports whether n is a loop statement.
func IsLoop(n Node) bool {
	switch n.(type) {
	case *ForNode, *WhileNode:
		return true
	}
	return false
}

// IsBreakable reports whether an unlabelled break can target n.
func IsBreakable(n Node) bool {
	switch n.(type) {
	case *ForNode, *WhileNode, *SwitchNode:
		return true
	}
	return false
}

// IsJump reports whether s transfers control to an enclosing statement:
// break, continue or a jump to an inlined finally.
func IsJump(s Node) bool {
	switch s.(type) {
	case *BreakNode, *ContinueNode, *JumpToInlinedFinally:
		return true
	}
	return false
}

// IsTerminal reports whether control never falls off the end of s.
func IsTerminal(s Statement) bool {
	switch n := s.(type) {
	case *ReturnNode, *ThrowNode, *BreakNode, *ContinueNode, *JumpToInlinedFinally:
		return true
	case *Block:
		return n.Last() != nil && IsTerminal(n.Last())
	case *IfNode:
		return n.Fail != nil && IsTerminal(n.Pass) && IsTerminal(n.Fail)
	case *SplitNode:
		return IsTerminal(n.Body)
	}
	return false
}
