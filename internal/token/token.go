// Package token defines source positions and operator kinds carried by AST nodes.
package token

import "fmt"

// Type is the kind of a token. For AST nodes it doubles as the operator of
// binary and unary expressions.
type Type int

const (
	ILLEGAL Type = iota
	IDENT
	NUMBER
	STRING
	KEYWORD

	// Arithmetic
	ADD // +
	SUB // -
	MUL // *
	DIV // /
	MOD // %

	// Bitwise
	BIT_AND // &
	BIT_OR  // |
	BIT_XOR // ^
	BIT_NOT // ~
	SHL     // <<
	SAR     // >>
	SHR     // >>>

	// Comparison
	EQ        // ==
	NE        // !=
	EQ_STRICT // ===
	NE_STRICT // !==
	LT        // <
	LE        // <=
	GT        // >
	GE        // >=

	// Logic
	AND // &&
	OR  // ||
	NOT // !

	// Unary only
	NEG    // unary -
	POS    // unary +
	TYPEOF // typeof
	NEW    // new
	VOID   // void

	INSTANCEOF
	IN
	COMMA

	// Assignment
	ASSIGN     // =
	ASSIGN_ADD // +=
	ASSIGN_SUB // -=
	ASSIGN_MUL // *=
	ASSIGN_DIV // /=
	ASSIGN_MOD // %=
)

var names = map[Type]string{
	ILLEGAL: "ILLEGAL", IDENT: "IDENT", NUMBER: "NUMBER", STRING: "STRING", KEYWORD: "KEYWORD",
	ADD: "+", SUB: "-", MUL: "*", DIV: "/", MOD: "%",
	BIT_AND: "&", BIT_OR: "|", BIT_XOR: "^", BIT_NOT: "~", SHL: "<<", SAR: ">>", SHR: ">>>",
	EQ: "==", NE: "!=", EQ_STRICT: "===", NE_STRICT: "!==", LT: "<", LE: "<=", GT: ">", GE: ">=",
	AND: "&&", OR: "||", NOT: "!",
	NEG: "-", POS: "+", TYPEOF: "typeof", NEW: "new", VOID: "void",
	INSTANCEOF: "instanceof", IN: "in", COMMA: ",",
	ASSIGN: "=", ASSIGN_ADD: "+=", ASSIGN_SUB: "-=", ASSIGN_MUL: "*=", ASSIGN_DIV: "/=", ASSIGN_MOD: "%=",
}

func (t Type) String() string {
	if s, ok := names[t]; ok {
		return s
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// Lookup maps an operator spelling to its type. Unary spellings that share a
// binary spelling ("-", "+") resolve to the binary form; callers wanting the
// unary form pass unary=true.
func Lookup(op string, unary bool) (Type, bool) {
	if unary {
		switch op {
		case "-":
			return NEG, true
		case "+":
			return POS, true
		case "!":
			return NOT, true
		case "~":
			return BIT_NOT, true
		case "typeof":
			return TYPEOF, true
		case "void":
			return VOID, true
		case "new":
			return NEW, true
		}
		return ILLEGAL, false
	}
	for t, s := range names {
		if s == op && t >= ADD && t != NEG && t != POS && t != NOT && t != BIT_NOT && t != TYPEOF && t != NEW && t != VOID {
			return t, true
		}
	}
	return ILLEGAL, false
}

// IsAssignment reports whether t is = or a compound assignment.
func (t Type) IsAssignment() bool {
	return t >= ASSIGN && t <= ASSIGN_MOD
}

// IsComparison reports whether t produces a boolean from two operands.
func (t Type) IsComparison() bool {
	return t >= EQ && t <= GE
}

// IsArithmetic reports whether t is one of the operators whose result type
// depends on the runtime types of its operands.
func (t Type) IsArithmetic() bool {
	switch t {
	case ADD, SUB, MUL, DIV, MOD, ASSIGN_ADD, ASSIGN_SUB, ASSIGN_MUL, ASSIGN_DIV, ASSIGN_MOD:
		return true
	}
	return false
}

// IsBitwise reports whether t always produces an int32.
func (t Type) IsBitwise() bool {
	switch t {
	case BIT_AND, BIT_OR, BIT_XOR, BIT_NOT, SHL, SAR:
		return true
	}
	return false
}

// BinaryOf returns the arithmetic operator underlying a compound assignment.
func (t Type) BinaryOf() Type {
	switch t {
	case ASSIGN_ADD:
		return ADD
	case ASSIGN_SUB:
		return SUB
	case ASSIGN_MUL:
		return MUL
	case ASSIGN_DIV:
		return DIV
	case ASSIGN_MOD:
		return MOD
	}
	return t
}

// Token is the source anchor of a node.
type Token struct {
	Type   Type
	Lexeme string
	Line   int
	Column int
	Offset int // start offset in the source
}

// Position formats the token as line:column.
func (t Token) Position() string {
	return fmt.Sprintf("%d:%d", t.Line, t.Column)
}

// Recast returns a copy of the token with another type, keeping its position.
func (t Token) Recast(typ Type) Token {
	t.Type = typ
	t.Lexeme = typ.String()
	return t
}
