package astio

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/optijit/internal/token"
)

type pos struct{ line, column int }

func (p pos) token(lexeme string) token.Token {
	return token.Token{Lexeme: lexeme, Line: p.line, Column: p.column}
}

func (p pos) errorf(format string, args ...any) error {
	return errors.Errorf("line %d: "+format, append([]any{p.line}, args...)...)
}

// mapping records the position and key set of a mapping node.
func mapping(value *yaml.Node, what string) (pos, map[string]bool, error) {
	p := pos{line: value.Line, column: value.Column}
	if value.Kind != yaml.MappingNode {
		return p, nil, p.errorf("%s must be a mapping", what)
	}
	keys := make(map[string]bool, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		keys[value.Content[i].Value] = true
	}
	return p, keys, nil
}

// kindOf returns the single kind key present in keys.
func kindOf(p pos, keys map[string]bool, kinds []string, what string) (string, error) {
	var found []string
	for _, k := range kinds {
		if keys[k] {
			found = append(found, k)
		}
	}
	if len(found) != 1 {
		sort.Strings(found)
		return "", p.errorf("%s needs exactly one of %s, found [%s]", what, strings.Join(kinds, ", "), strings.Join(found, ", "))
	}
	return found[0], nil
}

var stmtKinds = []string{
	"expr", "var", "let", "const", "function", "if", "while", "do_while", "for",
	"label", "break", "continue", "return", "throw", "try", "switch",
}

type stmtDoc struct {
	pos
	kind string
	f    stmtFields
}

type stmtFields struct {
	Expr     *exprDoc   `yaml:"expr"`
	Var      string     `yaml:"var"`
	Let      string     `yaml:"let"`
	Const    string     `yaml:"const"`
	Init     *exprDoc   `yaml:"init"`
	Function *funcDoc   `yaml:"function"`
	If       *exprDoc   `yaml:"if"`
	Then     []*stmtDoc `yaml:"then"`
	Else     []*stmtDoc `yaml:"else"`
	While    *exprDoc   `yaml:"while"`
	DoWhile  *exprDoc   `yaml:"do_while"`
	For      *forDoc    `yaml:"for"`
	Body     []*stmtDoc `yaml:"body"`
	Label    string     `yaml:"label"`
	Break    string     `yaml:"break"`
	Continue string     `yaml:"continue"`
	Return   *exprDoc   `yaml:"return"`
	Throw    *exprDoc   `yaml:"throw"`
	Try      []*stmtDoc `yaml:"try"`
	Catch    *catchDoc  `yaml:"catch"`
	Finally  []*stmtDoc `yaml:"finally"`
	Switch   *exprDoc   `yaml:"switch"`
	Cases    []*caseDoc `yaml:"cases"`
}

func (s *stmtDoc) UnmarshalYAML(value *yaml.Node) error {
	p, keys, err := mapping(value, "statement")
	if err != nil {
		return err
	}
	s.pos = p
	if s.kind, err = kindOf(p, keys, stmtKinds, "statement"); err != nil {
		return err
	}
	return value.Decode(&s.f)
}

type forDoc struct {
	Init   *exprDoc `yaml:"init"`
	Test   *exprDoc `yaml:"test"`
	Update *exprDoc `yaml:"update"`
}

type catchDoc struct {
	Param string     `yaml:"param"`
	Body  []*stmtDoc `yaml:"body"`
}

type caseDoc struct {
	// Case is nil for the default clause.
	Case *exprDoc   `yaml:"case"`
	Body []*stmtDoc `yaml:"body"`
}

type funcDoc struct {
	pos
	f funcFields
}

type funcFields struct {
	Name   string     `yaml:"name"`
	Params []string   `yaml:"params"`
	Strict bool       `yaml:"strict"`
	Body   []*stmtDoc `yaml:"body"`
}

func (fd *funcDoc) UnmarshalYAML(value *yaml.Node) error {
	p, _, err := mapping(value, "function")
	if err != nil {
		return err
	}
	fd.pos = p
	return value.Decode(&fd.f)
}

var exprKinds = []string{
	"int", "num", "str", "bool", "undefined", "null", "this", "ident",
	"op", "call", "new", "get", "index", "cond", "array", "object", "function",
}

type exprDoc struct {
	pos
	kind string
	keys map[string]bool
	f    exprFields
}

type exprFields struct {
	Int      *int64     `yaml:"int"`
	Num      *float64   `yaml:"num"`
	Str      *string    `yaml:"str"`
	Bool     *bool      `yaml:"bool"`
	Ident    string     `yaml:"ident"`
	Op       string     `yaml:"op"`
	Left     *exprDoc   `yaml:"left"`
	Right    *exprDoc   `yaml:"right"`
	Operand  *exprDoc   `yaml:"operand"`
	Call     *exprDoc   `yaml:"call"`
	New      *exprDoc   `yaml:"new"`
	Args     []*exprDoc `yaml:"args"`
	Get      *exprDoc   `yaml:"get"`
	Prop     string     `yaml:"prop"`
	Index    *exprDoc   `yaml:"index"`
	At       *exprDoc   `yaml:"at"`
	Cond     *exprDoc   `yaml:"cond"`
	Then     *exprDoc   `yaml:"then"`
	Else     *exprDoc   `yaml:"else"`
	Array    []*exprDoc `yaml:"array"`
	Object   []propDoc  `yaml:"object"`
	Function *funcDoc   `yaml:"function"`
}

type propDoc struct {
	Key   string   `yaml:"key"`
	Value *exprDoc `yaml:"value"`
}

func (e *exprDoc) UnmarshalYAML(value *yaml.Node) error {
	p, keys, err := mapping(value, "expression")
	if err != nil {
		return err
	}
	e.pos, e.keys = p, keys
	if e.kind, err = kindOf(p, keys, exprKinds, "expression"); err != nil {
		return err
	}
	return value.Decode(&e.f)
}
