package ast

import (
	"strconv"

	"github.com/funvibe/optijit/internal/token"
)

// SplitNode marks a run of statements that will be emitted as a separate
// function in its own compile unit.
type SplitNode struct {
	Token  token.Token
	Name   string
	Body   *Block
	Unit   string
	Weight int
}

func (n *SplitNode) statementNode()       {}
func (n *SplitNode) TokenLiteral() string { return n.Name }
func (n *SplitNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// Split state codes shared between a split function and the dispatcher
// following its call.
const (
	StateFallthrough = -1
	StateReturn      = 0
	StateBreak       = 1
	StateFirstJump   = 2
)

// SplitState is the decoded meaning of a split state code.
type SplitState struct {
	Code int
}

func (s SplitState) IsFallthrough() bool { return s.Code == StateFallthrough }
func (s SplitState) IsReturn() bool      { return s.Code == StateReturn }
func (s SplitState) IsBreak() bool       { return s.Code == StateBreak }
func (s SplitState) IsJump() bool        { return s.Code >= StateFirstJump }

func (s SplitState) String() string {
	switch {
	case s.IsFallthrough():
		return "fallthrough"
	case s.IsReturn():
		return "return"
	case s.IsBreak():
		return "break"
	}
	return "jump(" + strconv.Itoa(s.Code) + ")"
}

// GetSplitState reads the split state of the enclosing non-split function.
type GetSplitState struct {
	Token token.Token
}

func (n *GetSplitState) expressionNode()      {}
func (n *GetSplitState) TokenLiteral() string { return ":getSplitState" }
func (n *GetSplitState) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// SetSplitState stores State into the split state of the enclosing
// non-split function.
type SetSplitState struct {
	Token token.Token
	State SplitState
}

func (n *SetSplitState) statementNode()       {}
func (n *SetSplitState) TokenLiteral() string { return ":setSplitState" }
func (n *SetSplitState) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// JumpToInlinedFinally leaves the labelled block that precedes an inlined
// finally body.
type JumpToInlinedFinally struct {
	Token token.Token
	Label string
}

func (n *JumpToInlinedFinally) statementNode()       {}
func (n *JumpToInlinedFinally) TokenLiteral() string { return ":jumpToFinally" }
func (n *JumpToInlinedFinally) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}
