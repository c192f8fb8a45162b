// Package prettyprinter renders syntax trees as JavaScript-like source.
package prettyprinter

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Operator precedence (higher = binds tighter)
var operatorPrecedence = map[token.Type]int{
	token.COMMA:      0,
	token.ASSIGN:     1,
	token.ASSIGN_ADD: 1,
	token.ASSIGN_SUB: 1,
	token.ASSIGN_MUL: 1,
	token.ASSIGN_DIV: 1,
	token.ASSIGN_MOD: 1,
	token.OR:         3,
	token.AND:        4,
	token.BIT_OR:     5,
	token.BIT_XOR:    6,
	token.BIT_AND:    7,
	token.EQ:         8,
	token.NE:         8,
	token.EQ_STRICT:  8,
	token.NE_STRICT:  8,
	token.LT:         9,
	token.LE:         9,
	token.GT:         9,
	token.GE:         9,
	token.INSTANCEOF: 9,
	token.IN:         9,
	token.SHL:        10,
	token.SAR:        10,
	token.SHR:        10,
	token.ADD:        11,
	token.SUB:        11,
	token.MUL:        12,
	token.DIV:        12,
	token.MOD:        12,
}

const (
	ternaryPrec = 2
	unaryPrec   = 13
	postfixPrec = 14
)

func getPrecedence(op token.Type) int {
	if p, ok := operatorPrecedence[op]; ok {
		return p
	}
	return postfixPrec
}

type CodePrinter struct {
	buf bytes.Buffer
	// indent is the current nesting depth.
	indent int
	// Annotate appends program points and speculative types to optimistic
	// expressions, e.g. a@3:int.
	Annotate bool
}

func NewCodePrinter() *CodePrinter {
	return &CodePrinter{}
}

// Print renders n as source.
func Print(n ast.Node) string {
	p := NewCodePrinter()
	p.Node(n)
	return p.String()
}

// PrintAnnotated renders n with program points and types.
func PrintAnnotated(n ast.Node) string {
	p := NewCodePrinter()
	p.Annotate = true
	p.Node(n)
	return p.String()
}

func (p *CodePrinter) String() string {
	return p.buf.String()
}

func (p *CodePrinter) write(s string) {
	p.buf.WriteString(s)
}

func (p *CodePrinter) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.buf.WriteString("    ")
	}
}

func (p *CodePrinter) line(s string) {
	p.writeIndent()
	p.write(s)
	p.write("\n")
}

// Node renders a statement or an expression.
func (p *CodePrinter) Node(n ast.Node) {
	switch n := n.(type) {
	case *ast.FunctionNode:
		if n.Is(ast.IsProgram) {
			p.statements(n.Body)
			return
		}
		p.printExpr(n, 0)
	case ast.Statement:
		p.printStatement(n)
	case ast.Expression:
		p.printExpr(n, 0)
	}
}

func (p *CodePrinter) statements(b *ast.Block) {
	if b == nil {
		return
	}
	for _, s := range b.Statements {
		p.printStatement(s)
	}
}

func (p *CodePrinter) braced(b *ast.Block) {
	p.write("{\n")
	p.indent++
	p.statements(b)
	p.indent--
	p.writeIndent()
	p.write("}")
}

func (p *CodePrinter) printStatement(s ast.Statement) {
	switch s := s.(type) {
	case *ast.Block:
		p.writeIndent()
		p.braced(s)
		p.write("\n")
	case *ast.VarNode:
		p.writeIndent()
		if s.IsFunctionDeclaration {
			if fn, ok := s.Init.(*ast.FunctionNode); ok {
				p.function(fn)
				p.write("\n")
				return
			}
		}
		p.write(s.Kind.String() + " ")
		p.printExpr(s.Name, 0)
		if s.Init != nil {
			p.write(" = ")
			p.printExpr(s.Init, 1)
		}
		p.write(";\n")
	case *ast.ExpressionStatement:
		p.writeIndent()
		p.printExpr(s.Expression, 0)
		p.write(";\n")
	case *ast.IfNode:
		p.writeIndent()
		p.ifChain(s)
		p.write("\n")
	case *ast.ForNode:
		p.writeIndent()
		p.write("for (")
		p.optExpr(s.Init)
		p.write("; ")
		p.optExpr(s.Test)
		p.write("; ")
		p.optExpr(s.Modify)
		p.write(") ")
		p.braced(s.Body)
		p.write("\n")
	case *ast.WhileNode:
		p.writeIndent()
		if s.DoWhile {
			p.write("do ")
			p.braced(s.Body)
			p.write(" while (")
			p.printExpr(s.Test, 0)
			p.write(");\n")
			return
		}
		p.write("while (")
		p.printExpr(s.Test, 0)
		p.write(") ")
		p.braced(s.Body)
		p.write("\n")
	case *ast.LabelNode:
		p.writeIndent()
		p.write(s.Label + ": ")
		p.braced(s.Body)
		p.write("\n")
	case *ast.BreakNode:
		p.line(withLabel("break", s.Label) + ";")
	case *ast.ContinueNode:
		p.line(withLabel("continue", s.Label) + ";")
	case *ast.ReturnNode:
		p.writeIndent()
		p.write("return")
		if s.Expression != nil {
			p.write(" ")
			p.printExpr(s.Expression, 0)
		}
		p.write(";\n")
	case *ast.ThrowNode:
		p.writeIndent()
		p.write("throw ")
		p.printExpr(s.Expression, 0)
		p.write(";\n")
	case *ast.TryNode:
		p.writeIndent()
		p.write("try ")
		p.braced(s.Body)
		if s.Catch != nil {
			p.write(" catch (" + s.Catch.Param.Name + ") ")
			p.braced(s.Catch.Body)
		}
		if s.Finally != nil {
			p.write(" finally ")
			p.braced(s.Finally)
		}
		p.write("\n")
	case *ast.SwitchNode:
		p.writeIndent()
		p.write("switch (")
		p.printExpr(s.Discriminant, 0)
		p.write(") {\n")
		for _, c := range s.Cases {
			p.writeIndent()
			if c.Test == nil {
				p.write("default:\n")
			} else {
				p.write("case ")
				p.printExpr(c.Test, 0)
				p.write(":\n")
			}
			p.indent++
			p.statements(c.Body)
			p.indent--
		}
		p.line("}")
	case *ast.SplitNode:
		p.writeIndent()
		p.write("<split " + s.Name)
		if s.Unit != "" {
			p.write(" unit=" + s.Unit)
		}
		p.write("> ")
		p.braced(s.Body)
		p.write("\n")
	case *ast.SetSplitState:
		p.line(":setSplitState(" + strconv.Itoa(s.State.Code) + ");")
	case *ast.JumpToInlinedFinally:
		p.line(":jumpToFinally " + s.Label + ";")
	default:
		p.line("<???>")
	}
}

func withLabel(kw, label string) string {
	if label == "" {
		return kw
	}
	return kw + " " + label
}

func (p *CodePrinter) ifChain(s *ast.IfNode) {
	p.write("if (")
	p.printExpr(s.Test, 0)
	p.write(") ")
	p.braced(s.Pass)
	if s.Fail == nil {
		return
	}
	p.write(" else ")
	if len(s.Fail.Statements) == 1 {
		if elseIf, ok := s.Fail.Statements[0].(*ast.IfNode); ok {
			p.ifChain(elseIf)
			return
		}
	}
	p.braced(s.Fail)
}

func (p *CodePrinter) optExpr(e ast.Expression) {
	if e != nil {
		p.printExpr(e, 0)
	}
}

// printExpr prints an expression, adding parentheses only if needed
func (p *CodePrinter) printExpr(expr ast.Expression, parentPrec int) {
	if expr == nil {
		p.write("<???>")
		return
	}
	switch e := expr.(type) {
	case *ast.LiteralNode:
		p.write(ast.LiteralString(e.Value))
	case *ast.IdentNode:
		p.write(e.Name)
		p.annotate(e)
	case *ast.AccessNode:
		p.printExpr(e.Base, postfixPrec)
		p.write("." + e.Property)
		p.annotate(e)
	case *ast.IndexNode:
		p.printExpr(e.Base, postfixPrec)
		p.write("[")
		p.printExpr(e.Index, 0)
		p.write("]")
		p.annotate(e)
	case *ast.BinaryNode:
		prec := getPrecedence(e.Op)
		needParens := prec < parentPrec
		if needParens {
			p.write("(")
		}
		// Assignment is right-associative, everything else left.
		leftPrec, rightPrec := prec, prec+1
		if e.IsAssignment() {
			leftPrec, rightPrec = prec+1, prec
		}
		p.printExpr(e.Left, leftPrec)
		if e.Op == token.COMMA {
			p.write(", ")
		} else {
			p.write(" " + e.Op.String() + " ")
		}
		p.printExpr(e.Right, rightPrec)
		if needParens {
			p.write(")")
		}
		p.annotate(e)
	case *ast.UnaryNode:
		if unaryPrec < parentPrec {
			p.write("(")
		}
		op := e.Op.String()
		p.write(op)
		if len(op) > 1 {
			p.write(" ")
		}
		p.printExpr(e.Operand, unaryPrec)
		if unaryPrec < parentPrec {
			p.write(")")
		}
		p.annotate(e)
	case *ast.CallNode:
		if e.IsNew {
			p.write("new ")
		}
		if _, isFn := e.Function.(*ast.FunctionNode); isFn {
			p.write("(")
			p.printExpr(e.Function, 0)
			p.write(")")
		} else {
			p.printExpr(e.Function, postfixPrec)
		}
		p.write("(")
		for i, a := range e.Args {
			if i > 0 {
				p.write(", ")
			}
			p.printExpr(a, 1)
		}
		p.write(")")
		p.annotate(e)
	case *ast.TernaryNode:
		if ternaryPrec < parentPrec {
			p.write("(")
		}
		p.printExpr(e.Test, ternaryPrec+1)
		p.write(" ? ")
		p.printExpr(e.True, 1)
		p.write(" : ")
		p.printExpr(e.False, 1)
		if ternaryPrec < parentPrec {
			p.write(")")
		}
	case *ast.ArrayLiteralNode:
		p.write("[")
		for i, el := range e.Elements {
			if i > 0 {
				p.write(", ")
			}
			if el != nil {
				p.printExpr(el, 1)
			}
		}
		p.write("]")
	case *ast.ObjectLiteralNode:
		p.write("{")
		for i, prop := range e.Properties {
			if i > 0 {
				p.write(", ")
			}
			p.write(prop.Key + ": ")
			p.printExpr(prop.Value, 1)
		}
		p.write("}")
	case *ast.FunctionNode:
		p.function(e)
	case *ast.GetSplitState:
		p.write(":getSplitState()")
	default:
		p.write("<???>")
	}
}

func (p *CodePrinter) function(fn *ast.FunctionNode) {
	p.write("function")
	if fn.Name != "" && !fn.Is(ast.IsAnonymous) {
		p.write(" " + fn.Name)
	} else if fn.Is(ast.IsSplit) {
		p.write(" " + fn.Name)
	}
	params := make([]string, len(fn.Params))
	for i, prm := range fn.Params {
		params[i] = prm.Name
	}
	p.write("(" + strings.Join(params, ", ") + ") ")
	if fn.Is(ast.IsLazyStub) {
		p.write("{ <lazy> }")
		return
	}
	p.braced(fn.Body)
}

func (p *CodePrinter) annotate(o ast.Optimistic) {
	if !p.Annotate || o.ProgramPoint() == ast.InvalidProgramPoint {
		return
	}
	p.write("@" + strconv.Itoa(o.ProgramPoint()))
	if t := o.OptimisticType(); t != typesystem.Unknown {
		p.write(":" + t.String())
	}
}
