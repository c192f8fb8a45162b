package ast

import "src.elv.sh/pkg/persistent/vector"

type lcEntry struct {
	node  Node
	flags FunctionFlags
}

// LexicalContext is the ancestor stack of a Rewrite. The node being
// visited is on top while its Enter and Leave run. The stack is a
// persistent vector, so Snapshot is O(1) and snapshots never observe
// later pushes.
type LexicalContext struct {
	stack vector.Vector
}

func NewLexicalContext() *LexicalContext {
	return &LexicalContext{stack: vector.Empty}
}

// Snapshot returns a context sharing the current ancestors.
func (lc *LexicalContext) Snapshot() *LexicalContext {
	return &LexicalContext{stack: lc.stack}
}

func (lc *LexicalContext) push(n Node) {
	lc.stack = lc.stack.Conj(lcEntry{node: n})
}

func (lc *LexicalContext) pop() {
	lc.stack = lc.stack.Pop()
}

func (lc *LexicalContext) entry(i int) lcEntry {
	v, ok := lc.stack.Index(i)
	if !ok {
		return lcEntry{}
	}
	return v.(lcEntry)
}

func (lc *LexicalContext) replaceTop(n Node) {
	i := lc.stack.Len() - 1
	e := lc.entry(i)
	e.node = n
	lc.stack = lc.stack.Assoc(i, e)
}

func (lc *LexicalContext) topFlags() FunctionFlags {
	return lc.entry(lc.stack.Len() - 1).flags
}

// Len is the number of ancestors including the current node.
func (lc *LexicalContext) Len() int { return lc.stack.Len() }

// At returns the i-th ancestor counted from the root.
func (lc *LexicalContext) At(i int) Node { return lc.entry(i).node }

// Top returns the node being visited.
func (lc *LexicalContext) Top() Node {
	if lc.stack.Len() == 0 {
		return nil
	}
	return lc.At(lc.stack.Len() - 1)
}

// Parent returns the direct ancestor of the node being visited.
func (lc *LexicalContext) Parent() Node {
	if lc.stack.Len() < 2 {
		return nil
	}
	return lc.At(lc.stack.Len() - 2)
}

// Push and Pop let passes that drive their own traversal maintain a
// context for helpers that expect one.
func (lc *LexicalContext) Push(n Node) { lc.push(n) }
func (lc *LexicalContext) Pop()        { lc.pop() }

// Replace swaps the node being visited for n.
func (lc *LexicalContext) Replace(n Node) { lc.replaceTop(n) }

// Contains reports whether n is an ancestor.
func (lc *LexicalContext) Contains(n Node) bool {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		if lc.At(i) == n {
			return true
		}
	}
	return false
}

// CurrentFunction returns the innermost enclosing function.
func (lc *LexicalContext) CurrentFunction() *FunctionNode {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		if fn, ok := lc.At(i).(*FunctionNode); ok {
			return fn
		}
	}
	return nil
}

// OutermostFunction returns the function at the root of the visit.
func (lc *LexicalContext) OutermostFunction() *FunctionNode {
	for i := 0; i < lc.stack.Len(); i++ {
		if fn, ok := lc.At(i).(*FunctionNode); ok {
			return fn
		}
	}
	return nil
}

// CurrentNonSplitFunction skips split functions, which share the frame
// and program points of the function they were carved out of.
func (lc *LexicalContext) CurrentNonSplitFunction() *FunctionNode {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		if fn, ok := lc.At(i).(*FunctionNode); ok && !fn.Is(IsSplit) {
			return fn
		}
	}
	return nil
}

// ParentFunction returns the function enclosing the current function.
func (lc *LexicalContext) ParentFunction() *FunctionNode {
	seen := false
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		if fn, ok := lc.At(i).(*FunctionNode); ok {
			if seen {
				return fn
			}
			seen = true
		}
	}
	return nil
}

// SetFunctionFlag records flag on the innermost function. The flag is
// applied to the rebuilt function before its Leave runs.
func (lc *LexicalContext) SetFunctionFlag(flag FunctionFlags) {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		e := lc.entry(i)
		if _, ok := e.node.(*FunctionNode); ok {
			e.flags |= flag
			lc.stack = lc.stack.Assoc(i, e)
			return
		}
	}
}

// SetFlagOn records flag on the given ancestor function.
func (lc *LexicalContext) SetFlagOn(fn *FunctionNode, flag FunctionFlags) {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		e := lc.entry(i)
		if e.node == Node(fn) {
			e.flags |= flag
			lc.stack = lc.stack.Assoc(i, e)
			return
		}
	}
}

// CurrentBlock returns the innermost enclosing block.
func (lc *LexicalContext) CurrentBlock() *Block {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		if b, ok := lc.At(i).(*Block); ok {
			return b
		}
	}
	return nil
}

// IsFunctionBody reports whether b is the body of the function enclosing it.
func (lc *LexicalContext) IsFunctionBody(b *Block) bool {
	for i := lc.stack.Len() - 1; i > 0; i-- {
		if lc.At(i) == Node(b) {
			fn, ok := lc.At(i - 1).(*FunctionNode)
			return ok && fn.Body == b
		}
	}
	return false
}

// CurrentSplit returns the innermost SplitNode inside the current function.
func (lc *LexicalContext) CurrentSplit() *SplitNode {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		switch n := lc.At(i).(type) {
		case *SplitNode:
			return n
		case *FunctionNode:
			return nil
		}
	}
	return nil
}

// InSplitNode reports whether the current node lies in a split node of the
// current function.
func (lc *LexicalContext) InSplitNode() bool { return lc.CurrentSplit() != nil }

// BreakTarget resolves the statement a break with label exits. It returns
// nil when no target exists inside the current function.
func (lc *LexicalContext) BreakTarget(label string) Node {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		n := lc.At(i)
		switch x := n.(type) {
		case *FunctionNode:
			return nil
		case *LabelNode:
			if label != "" && x.Label == label {
				return x
			}
		default:
			if label == "" && IsBreakable(n) {
				return n
			}
		}
	}
	return nil
}

// ContinueTarget resolves the loop a continue with label resumes.
func (lc *LexicalContext) ContinueTarget(label string) Node {
	var loop Node
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		n := lc.At(i)
		switch x := n.(type) {
		case *FunctionNode:
			return nil
		case *LabelNode:
			if label != "" && x.Label == label {
				return loop
			}
		default:
			if IsLoop(n) {
				if label == "" {
					return n
				}
				loop = n
			}
		}
	}
	return nil
}

// InlinedFinallyTarget resolves the label block a JumpToInlinedFinally leaves.
func (lc *LexicalContext) InlinedFinallyTarget(label string) Node {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		switch x := lc.At(i).(type) {
		case *FunctionNode:
			return nil
		case *LabelNode:
			if x.Label == label {
				return x
			}
		}
	}
	return nil
}

// JumpTarget resolves the target of a break, continue or inlined finally jump.
func (lc *LexicalContext) JumpTarget(jump Statement) Node {
	switch j := jump.(type) {
	case *BreakNode:
		return lc.BreakTarget(j.Label)
	case *ContinueNode:
		return lc.ContinueTarget(j.Label)
	case *JumpToInlinedFinally:
		return lc.InlinedFinallyTarget(j.Label)
	}
	return nil
}

// IsExternalTarget reports whether target lies outside split, i.e. a jump
// to it from the current node crosses the split boundary.
func (lc *LexicalContext) IsExternalTarget(split *SplitNode, target Node) bool {
	return lc.IsTargetOutside(split, target)
}

// IsTargetOutside reports whether target encloses boundary, walking the
// ancestors from the current node outwards.
func (lc *LexicalContext) IsTargetOutside(boundary, target Node) bool {
	for i := lc.stack.Len() - 1; i >= 0; i-- {
		switch lc.At(i) {
		case target:
			return false
		case boundary:
			return true
		}
	}
	panic(NewInvariantError("%T is not an ancestor of the jump", boundary))
}
