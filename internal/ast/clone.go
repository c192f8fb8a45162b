package ast

// DeepCopy returns a tree equal to n that shares no node with it. Nested
// functions keep their ids; callers that need distinct ids renumber them.
func DeepCopy(n Node) Node {
	if n == nil {
		return nil
	}
	return Rewrite(n, copier{})
}

// DeepCopyBlock is DeepCopy for blocks.
func DeepCopyBlock(b *Block) *Block {
	if b == nil {
		return nil
	}
	return DeepCopy(b).(*Block)
}

type copier struct{ BaseVisitor }

func (copier) Leave(_ *LexicalContext, n Node) Node {
	return shallowCopy(n)
}

func shallowCopy(n Node) Node {
	switch n := n.(type) {
	case *Block:
		c := *n
		c.Statements = append([]Statement(nil), n.Statements...)
		return &c
	case *FunctionNode:
		c := *n
		c.Params = append([]*IdentNode(nil), n.Params...)
		return &c
	case *VarNode:
		c := *n
		return &c
	case *ExpressionStatement:
		c := *n
		return &c
	case *IfNode:
		c := *n
		return &c
	case *ForNode:
		c := *n
		return &c
	case *WhileNode:
		c := *n
		return &c
	case *LabelNode:
		c := *n
		return &c
	case *BreakNode:
		c := *n
		return &c
	case *ContinueNode:
		c := *n
		return &c
	case *ReturnNode:
		c := *n
		return &c
	case *ThrowNode:
		c := *n
		return &c
	case *TryNode:
		c := *n
		return &c
	case *CatchNode:
		c := *n
		return &c
	case *SwitchNode:
		c := *n
		c.Cases = append([]*CaseNode(nil), n.Cases...)
		return &c
	case *CaseNode:
		c := *n
		return &c
	case *SplitNode:
		c := *n
		return &c
	case *LiteralNode:
		c := *n
		return &c
	case *IdentNode:
		c := *n
		return &c
	case *AccessNode:
		c := *n
		return &c
	case *IndexNode:
		c := *n
		return &c
	case *BinaryNode:
		c := *n
		return &c
	case *UnaryNode:
		c := *n
		return &c
	case *CallNode:
		c := *n
		c.Args = append([]Expression(nil), n.Args...)
		return &c
	case *TernaryNode:
		c := *n
		return &c
	case *ArrayLiteralNode:
		c := *n
		c.Elements = append([]Expression(nil), n.Elements...)
		c.Units = append([]ArrayUnit(nil), n.Units...)
		return &c
	case *ObjectLiteralNode:
		c := *n
		c.Properties = append([]PropertyNode(nil), n.Properties...)
		return &c
	case *GetSplitState:
		c := *n
		return &c
	case *SetSplitState:
		c := *n
		return &c
	case *JumpToInlinedFinally:
		c := *n
		return &c
	}
	panic(NewInvariantError("cannot copy %T", n))
}
