package ast

import (
	"fmt"
	"math"
	"strconv"

	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Program point bounds. A program point tags one speculatively typed
// expression within a function.
const (
	InvalidProgramPoint = -1
	FirstProgramPoint   = 1
	// MaxProgramPoint is the default upper bound; the compiler may be
	// configured with a lower one.
	MaxProgramPoint = 1<<21 - 1
)

// Optimistic is implemented by expressions that can carry a speculative
// type guarded by a program point.
type Optimistic interface {
	Expression
	ProgramPoint() int
	// WithProgramPoint returns a copy tagged with pp.
	WithProgramPoint(pp int) Optimistic
	// CanBeOptimistic reports whether this particular node may speculate.
	CanBeOptimistic() bool
	// MostOptimisticType is the narrowest type the node may be assumed to produce.
	MostOptimisticType() typesystem.Type
	// MostPessimisticType is the type the node produces without speculation.
	MostPessimisticType() typesystem.Type
	// OptimisticType returns the type currently assigned, Unknown if none.
	OptimisticType() typesystem.Type
	// WithType returns a copy speculated as t.
	WithType(t typesystem.Type) Optimistic
}

// IsOptimistic reports whether n carries a valid program point and a
// speculative type.
func IsOptimistic(n Node) bool {
	o, ok := n.(Optimistic)
	return ok && o.ProgramPoint() != InvalidProgramPoint && o.OptimisticType() != typesystem.Unknown
}

// Undefined and Null are the literal values of the corresponding source literals.
type (
	UndefinedValue struct{}
	NullValue      struct{}
)

func (UndefinedValue) String() string { return "undefined" }
func (NullValue) String() string      { return "null" }

// LiteralNode is a primitive literal. Value is int32, float64, bool,
// string, UndefinedValue or NullValue.
type LiteralNode struct {
	Token token.Token
	Value any
}

func (n *LiteralNode) expressionNode() {}
func (n *LiteralNode) TokenLiteral() string {
	return LiteralString(n.Value)
}
func (n *LiteralNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// IsNumeric reports whether the literal is a number.
func (n *LiteralNode) IsNumeric() bool {
	switch n.Value.(type) {
	case int32, float64:
		return true
	}
	return false
}

// Number returns the literal as a float64.
func (n *LiteralNode) Number() (float64, bool) {
	switch v := n.Value.(type) {
	case int32:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// LiteralString renders a literal value as source text.
func LiteralString(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case int32:
		return strconv.Itoa(int(x))
	case float64:
		if math.IsInf(x, 1) {
			return "Infinity"
		} else if math.IsInf(x, -1) {
			return "-Infinity"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return "undefined"
	}
	return fmt.Sprint(v)
}

// NormalizeNumber returns an int32 when f is an integral value that fits,
// keeping -0 as a float64.
func NormalizeNumber(f float64) any {
	if f == math.Trunc(f) && f >= math.MinInt32 && f <= math.MaxInt32 && !(f == 0 && math.Signbit(f)) {
		return int32(f)
	}
	return f
}

// ArrayUnit is an index range [Lo, Hi) of an array literal emitted into
// its own compile unit.
type ArrayUnit struct {
	Lo, Hi int
	Unit   string
}

// ArrayLiteralNode is [e0, e1, ...]. Nil elements are holes.
type ArrayLiteralNode struct {
	Token    token.Token
	Elements []Expression
	Units    []ArrayUnit
}

func (n *ArrayLiteralNode) expressionNode()      {}
func (n *ArrayLiteralNode) TokenLiteral() string { return "[" }
func (n *ArrayLiteralNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// WithUnits returns a copy partitioned into units.
func (n *ArrayLiteralNode) WithUnits(units []ArrayUnit) *ArrayLiteralNode {
	c := *n
	c.Units = units
	return &c
}

// PropertyNode is one key: value entry of an object literal.
type PropertyNode struct {
	Key   string
	Value Expression
}

// ObjectLiteralNode is {k: v, ...}.
type ObjectLiteralNode struct {
	Token      token.Token
	Properties []PropertyNode
}

func (n *ObjectLiteralNode) expressionNode()      {}
func (n *ObjectLiteralNode) TokenLiteral() string { return "{" }
func (n *ObjectLiteralNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

// optimisticInfo is shared by all optimistic node kinds.
type optimisticInfo struct {
	PP   int
	Type typesystem.Type
}

func (o optimisticInfo) ProgramPoint() int                 { return o.PP }
func (o optimisticInfo) OptimisticType() typesystem.Type { return o.Type }

// IdentNode references a binding by name.
type IdentNode struct {
	Token  token.Token
	Name   string
	Symbol *Symbol
	optimisticInfo
	// IsDeclaredHere marks the name of a VarNode or a parameter.
	IsDeclaredHere bool
}

func (n *IdentNode) expressionNode()      {}
func (n *IdentNode) TokenLiteral() string { return n.Name }
func (n *IdentNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *IdentNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *IdentNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

// WithSymbol returns a copy bound to sym.
func (n *IdentNode) WithSymbol(sym *Symbol) *IdentNode {
	if n.Symbol == sym {
		return n
	}
	c := *n
	c.Symbol = sym
	return &c
}

func (n *IdentNode) CanBeOptimistic() bool {
	return !n.IsDeclaredHere && !IsInternalName(n.Name) && n.Name != ThisName
}

func (n *IdentNode) MostOptimisticType() typesystem.Type  { return typesystem.Int }
func (n *IdentNode) MostPessimisticType() typesystem.Type { return typesystem.Object }

// IsThis reports whether the identifier is the receiver.
func (n *IdentNode) IsThis() bool { return n.Name == ThisName }

// AccessNode is Base.Property.
type AccessNode struct {
	Token    token.Token
	Base     Expression
	Property string
	optimisticInfo
}

func (n *AccessNode) expressionNode()      {}
func (n *AccessNode) TokenLiteral() string { return "." }
func (n *AccessNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *AccessNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *AccessNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

func (n *AccessNode) CanBeOptimistic() bool                { return true }
func (n *AccessNode) MostOptimisticType() typesystem.Type  { return typesystem.Int }
func (n *AccessNode) MostPessimisticType() typesystem.Type { return typesystem.Object }

// IndexNode is Base[Index].
type IndexNode struct {
	Token token.Token
	Base  Expression
	Index Expression
	optimisticInfo
}

func (n *IndexNode) expressionNode()      {}
func (n *IndexNode) TokenLiteral() string { return "[" }
func (n *IndexNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *IndexNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *IndexNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

func (n *IndexNode) CanBeOptimistic() bool                { return true }
func (n *IndexNode) MostOptimisticType() typesystem.Type  { return typesystem.Int }
func (n *IndexNode) MostPessimisticType() typesystem.Type { return typesystem.Object }

// BinaryNode is Left Op Right, including assignments. Only arithmetic
// operators speculate.
type BinaryNode struct {
	Token token.Token
	Op    token.Type
	Left  Expression
	Right Expression
	optimisticInfo
}

func (n *BinaryNode) expressionNode()      {}
func (n *BinaryNode) TokenLiteral() string { return n.Op.String() }
func (n *BinaryNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *BinaryNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *BinaryNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

// IsAssignment reports whether the node stores into Left.
func (n *BinaryNode) IsAssignment() bool { return n.Op.IsAssignment() }

func (n *BinaryNode) CanBeOptimistic() bool {
	return n.Op.IsArithmetic()
}

func (n *BinaryNode) MostOptimisticType() typesystem.Type { return typesystem.Int }

func (n *BinaryNode) MostPessimisticType() typesystem.Type {
	switch n.Op {
	case token.ADD, token.ASSIGN_ADD:
		return typesystem.Object
	}
	return typesystem.Number
}

// UnaryNode is Op Operand.
type UnaryNode struct {
	Token   token.Token
	Op      token.Type
	Operand Expression
	optimisticInfo
}

func (n *UnaryNode) expressionNode()      {}
func (n *UnaryNode) TokenLiteral() string { return n.Op.String() }
func (n *UnaryNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *UnaryNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *UnaryNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

func (n *UnaryNode) CanBeOptimistic() bool {
	return n.Op == token.NEG || n.Op == token.POS
}

func (n *UnaryNode) MostOptimisticType() typesystem.Type  { return typesystem.Int }
func (n *UnaryNode) MostPessimisticType() typesystem.Type { return typesystem.Number }

// CallNode is Function(Args...), or new Function(Args...) when IsNew is set.
type CallNode struct {
	Token    token.Token
	Function Expression
	Args     []Expression
	IsNew    bool
	optimisticInfo
}

func (n *CallNode) expressionNode() {}
func (n *CallNode) TokenLiteral() string {
	if n.IsNew {
		return "new"
	}
	return "("
}
func (n *CallNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}

func (n *CallNode) WithProgramPoint(pp int) Optimistic {
	c := *n
	c.PP = pp
	return &c
}

func (n *CallNode) WithType(t typesystem.Type) Optimistic {
	if n.Type == t {
		return n
	}
	c := *n
	c.Type = t
	return &c
}

func (n *CallNode) CanBeOptimistic() bool                { return !n.IsNew }
func (n *CallNode) MostOptimisticType() typesystem.Type  { return typesystem.Int }
func (n *CallNode) MostPessimisticType() typesystem.Type { return typesystem.Object }

// TernaryNode is Test ? True : False.
type TernaryNode struct {
	Token token.Token
	Test  Expression
	True  Expression
	False Expression
}

func (n *TernaryNode) expressionNode()      {}
func (n *TernaryNode) TokenLiteral() string { return "?" }
func (n *TernaryNode) GetToken() token.Token {
	if n == nil {
		return token.Token{}
	}
	return n.Token
}
