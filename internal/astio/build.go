package astio

import (
	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
)

func statements(docs []*stmtDoc) ([]ast.Statement, error) {
	out := make([]ast.Statement, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		s, err := d.build()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func block(docs []*stmtDoc, tok token.Token) (*ast.Block, error) {
	stmts, err := statements(docs)
	if err != nil {
		return nil, err
	}
	return &ast.Block{Token: tok, Statements: stmts}, nil
}

func optionalBlock(docs []*stmtDoc, tok token.Token) (*ast.Block, error) {
	if docs == nil {
		return nil, nil
	}
	return block(docs, tok)
}

// optional builds e, or returns nil for an absent expression.
func optional(e *exprDoc) (ast.Expression, error) {
	if e == nil {
		return nil, nil
	}
	return e.build()
}

func required(p pos, e *exprDoc, what string) (ast.Expression, error) {
	if e == nil {
		return nil, p.errorf("%s is missing", what)
	}
	return e.build()
}

func (d *stmtDoc) build() (ast.Statement, error) {
	f := &d.f
	tok := d.token(d.kind)
	switch d.kind {
	case "expr":
		e, err := required(d.pos, f.Expr, "expression")
		if err != nil {
			return nil, err
		}
		return &ast.ExpressionStatement{Token: tok, Expression: e}, nil
	case "var", "let", "const":
		name, kind := f.Var, ast.Var
		switch d.kind {
		case "let":
			name, kind = f.Let, ast.Let
		case "const":
			name, kind = f.Const, ast.Const
		}
		if name == "" {
			return nil, d.errorf("%s needs a name", d.kind)
		}
		init, err := optional(f.Init)
		if err != nil {
			return nil, err
		}
		vn := ast.VarDecl(name, init)
		vn.Token, vn.Kind = tok, kind
		vn.Name.Token = d.token(name)
		return vn, nil
	case "function":
		fn, err := function(d.pos, f.Function)
		if err != nil {
			return nil, err
		}
		if fn.Name == "" {
			return nil, d.errorf("function declaration needs a name")
		}
		vn := ast.FuncDecl(fn.WithFlags(ast.IsDeclared))
		vn.Token = tok
		return vn, nil
	case "if":
		test, err := required(d.pos, f.If, "if test")
		if err != nil {
			return nil, err
		}
		pass, err := block(f.Then, tok)
		if err != nil {
			return nil, err
		}
		fail, err := optionalBlock(f.Else, tok)
		if err != nil {
			return nil, err
		}
		return &ast.IfNode{Token: tok, Test: test, Pass: pass, Fail: fail}, nil
	case "while", "do_while":
		cond, doWhile := f.While, false
		if d.kind == "do_while" {
			cond, doWhile = f.DoWhile, true
		}
		test, err := required(d.pos, cond, "loop test")
		if err != nil {
			return nil, err
		}
		body, err := block(f.Body, tok)
		if err != nil {
			return nil, err
		}
		return &ast.WhileNode{Token: tok, Test: test, Body: body, DoWhile: doWhile}, nil
	case "for":
		n := &ast.ForNode{Token: tok}
		if f.For != nil {
			var err error
			if n.Init, err = optional(f.For.Init); err != nil {
				return nil, err
			}
			if n.Test, err = optional(f.For.Test); err != nil {
				return nil, err
			}
			if n.Modify, err = optional(f.For.Update); err != nil {
				return nil, err
			}
		}
		body, err := block(f.Body, tok)
		if err != nil {
			return nil, err
		}
		n.Body = body
		return n, nil
	case "label":
		body, err := block(f.Body, tok)
		if err != nil {
			return nil, err
		}
		return &ast.LabelNode{Token: tok, Label: f.Label, Body: body}, nil
	case "break":
		return &ast.BreakNode{Token: tok, Label: f.Break}, nil
	case "continue":
		return &ast.ContinueNode{Token: tok, Label: f.Continue}, nil
	case "return":
		e, err := optional(f.Return)
		if err != nil {
			return nil, err
		}
		return &ast.ReturnNode{Token: tok, Expression: e}, nil
	case "throw":
		e, err := required(d.pos, f.Throw, "thrown value")
		if err != nil {
			return nil, err
		}
		return &ast.ThrowNode{Token: tok, Expression: e}, nil
	case "try":
		return d.buildTry(tok)
	case "switch":
		disc, err := required(d.pos, f.Switch, "switch value")
		if err != nil {
			return nil, err
		}
		n := &ast.SwitchNode{Token: tok, Discriminant: disc}
		for _, c := range f.Cases {
			test, err := optional(c.Case)
			if err != nil {
				return nil, err
			}
			body, err := block(c.Body, tok)
			if err != nil {
				return nil, err
			}
			n.Cases = append(n.Cases, &ast.CaseNode{Token: tok, Test: test, Body: body})
		}
		return n, nil
	}
	return nil, d.errorf("unknown statement %q", d.kind)
}

func (d *stmtDoc) buildTry(tok token.Token) (ast.Statement, error) {
	f := &d.f
	if f.Catch == nil && f.Finally == nil {
		return nil, d.errorf("try needs a catch or a finally")
	}
	body, err := block(f.Try, tok)
	if err != nil {
		return nil, err
	}
	n := &ast.TryNode{Token: tok, Body: body}
	if f.Catch != nil {
		if f.Catch.Param == "" {
			return nil, d.errorf("catch needs a parameter")
		}
		cb, err := block(f.Catch.Body, tok)
		if err != nil {
			return nil, err
		}
		n.Catch = ast.Catch(f.Catch.Param, cb)
		n.Catch.Token = tok
	}
	if n.Finally, err = optionalBlock(f.Finally, tok); err != nil {
		return nil, err
	}
	return n, nil
}

func function(p pos, fd *funcDoc) (*ast.FunctionNode, error) {
	if fd == nil {
		return nil, p.errorf("function body is missing")
	}
	stmts, err := statements(fd.f.Body)
	if err != nil {
		return nil, err
	}
	fn := ast.Func(fd.f.Name, fd.f.Params, stmts...)
	fn.Token = fd.token("function")
	fn.Body.Token = fn.Token
	if fd.f.Strict {
		fn.Flags |= ast.IsStrict
	}
	return fn, nil
}

func (e *exprDoc) build() (ast.Expression, error) {
	f := &e.f
	if (e.kind == "int" && f.Int == nil) || (e.kind == "num" && f.Num == nil) ||
		(e.kind == "str" && f.Str == nil) || (e.kind == "bool" && f.Bool == nil) {
		return nil, e.errorf("%s needs a value", e.kind)
	}
	switch e.kind {
	case "int":
		return e.literal(ast.Int(int(*f.Int))), nil
	case "num":
		return e.literal(ast.Num(*f.Num)), nil
	case "str":
		return e.literal(ast.Str(*f.Str)), nil
	case "bool":
		return e.literal(ast.Bool(*f.Bool)), nil
	case "undefined":
		return e.literal(ast.Undefined()), nil
	case "null":
		return e.literal(ast.Null()), nil
	case "this":
		n := ast.This()
		n.Token = e.token(ast.ThisName)
		return n, nil
	case "ident":
		n := ast.Ident(f.Ident)
		n.Token = e.token(f.Ident)
		return n, nil
	case "op":
		return e.buildOperator()
	case "call", "new":
		callee := f.Call
		if e.kind == "new" {
			callee = f.New
		}
		fn, err := required(e.pos, callee, "callee")
		if err != nil {
			return nil, err
		}
		args, err := expressions(f.Args, false)
		if err != nil {
			return nil, err
		}
		n := ast.Call(fn, args...)
		n.IsNew = e.kind == "new"
		n.Token = e.token(e.kind)
		return n, nil
	case "get":
		base, err := required(e.pos, f.Get, "property base")
		if err != nil {
			return nil, err
		}
		if f.Prop == "" {
			return nil, e.errorf("property name is missing")
		}
		n := ast.Access(base, f.Prop)
		n.Token = e.token(".")
		return n, nil
	case "index":
		base, err := required(e.pos, f.Index, "indexed value")
		if err != nil {
			return nil, err
		}
		at, err := required(e.pos, f.At, "index")
		if err != nil {
			return nil, err
		}
		n := ast.Index(base, at)
		n.Token = e.token("[")
		return n, nil
	case "cond":
		test, err := required(e.pos, f.Cond, "condition")
		if err != nil {
			return nil, err
		}
		yes, err := required(e.pos, f.Then, "then value")
		if err != nil {
			return nil, err
		}
		no, err := required(e.pos, f.Else, "else value")
		if err != nil {
			return nil, err
		}
		n := ast.Ternary(test, yes, no)
		n.Token = e.token("?")
		return n, nil
	case "array":
		elems, err := expressions(f.Array, true)
		if err != nil {
			return nil, err
		}
		n := ast.Array(elems...)
		n.Token = e.token("[")
		return n, nil
	case "object":
		n := &ast.ObjectLiteralNode{Token: e.token("{")}
		for _, p := range f.Object {
			v, err := required(e.pos, p.Value, "value of "+p.Key)
			if err != nil {
				return nil, err
			}
			n.Properties = append(n.Properties, ast.PropertyNode{Key: p.Key, Value: v})
		}
		return n, nil
	case "function":
		return function(e.pos, f.Function)
	}
	return nil, e.errorf("unknown expression %q", e.kind)
}

func (e *exprDoc) literal(n *ast.LiteralNode) *ast.LiteralNode {
	n.Token = e.token(ast.LiteralString(n.Value))
	return n
}

func (e *exprDoc) buildOperator() (ast.Expression, error) {
	f := &e.f
	if e.keys["operand"] {
		op, ok := token.Lookup(f.Op, true)
		if !ok {
			return nil, e.errorf("unknown unary operator %q", f.Op)
		}
		operand, err := required(e.pos, f.Operand, "operand")
		if err != nil {
			return nil, err
		}
		n := ast.Unary(op, operand)
		n.Token = e.token(f.Op)
		return n, nil
	}
	op, ok := token.Lookup(f.Op, false)
	if !ok {
		return nil, e.errorf("unknown operator %q", f.Op)
	}
	left, err := required(e.pos, f.Left, "left operand")
	if err != nil {
		return nil, err
	}
	right, err := required(e.pos, f.Right, "right operand")
	if err != nil {
		return nil, err
	}
	n := ast.Bin(op, left, right)
	n.Token = e.token(f.Op)
	return n, nil
}

// expressions builds a list. With holes, a null entry is an array hole.
func expressions(docs []*exprDoc, holes bool) ([]ast.Expression, error) {
	out := make([]ast.Expression, len(docs))
	for i, d := range docs {
		if d == nil {
			if !holes {
				return nil, errors.New("null expression in list")
			}
			continue
		}
		e, err := d.build()
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}
