package interp

import (
	"slices"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/runtime"
)

// execBlock runs the statements of b. A nil result is normal completion.
func (in *Interpreter) execBlock(b *ast.Block, act *activation) runtime.Object {
	if b == nil {
		return nil
	}
	for _, s := range b.Statements {
		if res := in.exec(s, act); res != nil {
			return res
		}
	}
	return nil
}

func (in *Interpreter) exec(s ast.Statement, act *activation) runtime.Object {
	switch n := s.(type) {
	case *ast.Block:
		return in.execBlock(n, act)
	case *ast.ExpressionStatement:
		v := in.eval(n.Expression, act)
		if isThrown(v) {
			return v
		}
		act.completion = v
		return nil
	case *ast.VarNode:
		if n.Init == nil || n.IsFunctionDeclaration {
			return nil
		}
		v := in.eval(n.Init, act)
		if isThrown(v) {
			return v
		}
		in.setName(n.Name.Name, v, act)
		return nil
	case *ast.IfNode:
		test := in.eval(n.Test, act)
		if isThrown(test) {
			return test
		}
		if runtime.ToBoolean(test) {
			return in.execBlock(n.Pass, act)
		}
		return in.execBlock(n.Fail, act)
	case *ast.WhileNode:
		return in.execWhile(n, act)
	case *ast.ForNode:
		return in.execFor(n, act)
	case *ast.LabelNode:
		// Only a loop directly under the label can be continued by it.
		if len(n.Body.Statements) == 1 && (ast.IsLoop(n.Body.Statements[0]) || isLabel(n.Body.Statements[0])) {
			in.labels = append(slices.Clip(in.labels), n.Label)
		} else {
			in.labels = nil
		}
		res := in.execBlock(n.Body, act)
		in.labels = nil
		if b, ok := res.(*BreakSignal); ok && b.Label == n.Label {
			return nil
		}
		return res
	case *ast.BreakNode:
		return &BreakSignal{Label: n.Label}
	case *ast.ContinueNode:
		return &ContinueSignal{Label: n.Label}
	case *ast.JumpToInlinedFinally:
		return &BreakSignal{Label: n.Label}
	case *ast.ReturnNode:
		if n.Expression == nil {
			return &ReturnValue{Value: runtime.UNDEFINED}
		}
		v := in.eval(n.Expression, act)
		if isThrown(v) {
			return v
		}
		return &ReturnValue{Value: v}
	case *ast.ThrowNode:
		v := in.eval(n.Expression, act)
		if isThrown(v) {
			return v
		}
		return &Thrown{Value: v}
	case *ast.TryNode:
		return in.execTry(n, act)
	case *ast.SwitchNode:
		return in.execSwitch(n, act)
	case *ast.SetSplitState:
		*act.state = n.State.Code
		return nil
	case *ast.SplitNode:
		// Split nodes not yet turned into functions run in place.
		return in.execBlock(n.Body, act)
	}
	return throwError("cannot execute %T", s)
}

func isLabel(s ast.Statement) bool {
	_, ok := s.(*ast.LabelNode)
	return ok
}

// claimLabels hands the pending labels to the loop about to run.
func (in *Interpreter) claimLabels() []string {
	labels := in.labels
	in.labels = nil
	return labels
}

// loopControl decides what a loop does with the completion of its body.
func loopControl(res runtime.Object, labels []string) (stop bool, out runtime.Object) {
	switch r := res.(type) {
	case nil:
		return false, nil
	case *BreakSignal:
		if r.Label == "" || slices.Contains(labels, r.Label) {
			return true, nil
		}
	case *ContinueSignal:
		if r.Label == "" || slices.Contains(labels, r.Label) {
			return false, nil
		}
	}
	return true, res
}

func (in *Interpreter) execWhile(n *ast.WhileNode, act *activation) runtime.Object {
	labels := in.claimLabels()
	first := n.DoWhile
	for {
		if !first {
			test := in.eval(n.Test, act)
			if isThrown(test) {
				return test
			}
			if !runtime.ToBoolean(test) {
				return nil
			}
		}
		first = false
		if stop, out := loopControl(in.execBlock(n.Body, act), labels); stop {
			return out
		}
	}
}

func (in *Interpreter) execFor(n *ast.ForNode, act *activation) runtime.Object {
	labels := in.claimLabels()
	if n.Init != nil {
		if v := in.eval(n.Init, act); isThrown(v) {
			return v
		}
	}
	for {
		if n.Test != nil {
			test := in.eval(n.Test, act)
			if isThrown(test) {
				return test
			}
			if !runtime.ToBoolean(test) {
				return nil
			}
		}
		if stop, out := loopControl(in.execBlock(n.Body, act), labels); stop {
			return out
		}
		if n.Modify != nil {
			if v := in.eval(n.Modify, act); isThrown(v) {
				return v
			}
		}
	}
}

func (in *Interpreter) execTry(n *ast.TryNode, act *activation) runtime.Object {
	res := in.execBlock(n.Body, act)
	if t, ok := res.(*Thrown); ok && n.Catch != nil {
		saved := act.env
		act.env = runtime.NewEnclosedEnvironment(saved)
		act.env.Set(n.Catch.Param.Name, t.Value)
		res = in.execBlock(n.Catch.Body, act)
		act.env = saved
	}
	if n.Finally != nil {
		if f := in.execBlock(n.Finally, act); f != nil {
			return f
		}
	}
	return res
}

func (in *Interpreter) execSwitch(n *ast.SwitchNode, act *activation) runtime.Object {
	d := in.eval(n.Discriminant, act)
	if isThrown(d) {
		return d
	}
	start := -1
	for i, c := range n.Cases {
		if c.Test == nil {
			continue
		}
		v := in.eval(c.Test, act)
		if isThrown(v) {
			return v
		}
		if runtime.StrictEquals(d, v) {
			start = i
			break
		}
	}
	if start < 0 {
		start = slices.IndexFunc(n.Cases, func(c *ast.CaseNode) bool { return c.Test == nil })
		if start < 0 {
			return nil
		}
	}
	for _, c := range n.Cases[start:] {
		res := in.execBlock(c.Body, act)
		if b, ok := res.(*BreakSignal); ok && b.Label == "" {
			return nil
		}
		if res != nil {
			return res
		}
	}
	return nil
}
