// Package astio reads function trees from YAML documents. A document names
// the program and lists its statements:
//
//	name: example
//	program:
//	  - function: {name: double, params: [a], body: [{return: {op: "*", left: {ident: a}, right: {int: 2}}}]}
//	  - expr: {call: {ident: double}, args: [{int: 21}]}
//
// Every statement and expression is a mapping with exactly one key naming
// its kind. Node tokens carry the document line and column.
package astio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/optijit/internal/ast"
)

// Document is a decoded program.
type Document struct {
	Name    string
	Source  []byte
	Program *ast.FunctionNode
}

type fileDoc struct {
	Name    string     `yaml:"name"`
	Program []*stmtDoc `yaml:"program"`
}

// Decode parses a document. The program is numbered and in the Parsed
// state.
func Decode(data []byte) (*Document, error) {
	var f fileDoc
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "decoding AST document")
	}
	stmts, err := statements(f.Program)
	if err != nil {
		return nil, err
	}
	name := f.Name
	if name == "" {
		name = "main"
	}
	return &Document{Name: name, Source: data, Program: ast.Program(stmts...)}, nil
}

// ReadFile decodes the document at path. A document without a name is
// named after its file.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	var probe struct {
		Name string `yaml:"name"`
	}
	_ = yaml.Unmarshal(data, &probe)
	doc, err := Decode(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if probe.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}
