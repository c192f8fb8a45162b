// Package optimistic assigns speculative types to the optimistic
// expressions of a function.
package optimistic

import (
	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/typesystem"
)

// FunctionData reports what earlier compilations learned about a function.
type FunctionData interface {
	// ReturnType is the type the function was last compiled to return,
	// with the digest of the tree that compile started from.
	ReturnType(functionID int) (t typesystem.Type, digest uint64, ok bool)
}

// TypeEvaluator recovers the current runtime type of simple expressions
// from a live scope, during recompilation. It never runs code: anything
// that could, such as an accessor property, is refused.
type TypeEvaluator struct {
	scope     runtime.Scope
	functions FunctionData
}

// NewTypeEvaluator returns an evaluator over scope. functions may be nil.
func NewTypeEvaluator(scope runtime.Scope, functions FunctionData) *TypeEvaluator {
	return &TypeEvaluator{scope: scope, functions: functions}
}

// Evaluate returns the type expr would currently produce. ok is false when
// the evaluator declines to answer.
func (e *TypeEvaluator) Evaluate(expr ast.Expression) (t typesystem.Type, ok bool) {
	if e == nil || e.scope == nil {
		return typesystem.Unknown, false
	}
	switch expr := expr.(type) {
	case *ast.IndexNode:
		base, ok := e.value(expr.Base)
		if !ok {
			return typesystem.Unknown, false
		}
		if arr, isArray := base.(*runtime.Array); isArray {
			// The backing store decides what deoptimizes, not the element.
			return arr.ElementType(), true
		}
	case *ast.CallNode:
		return e.returnType(expr)
	}
	v, ok := e.value(expr)
	if !ok {
		return typesystem.Unknown, false
	}
	return v.RuntimeType(), true
}

// value evaluates identifiers and property chains rooted at identifiers.
func (e *TypeEvaluator) value(expr ast.Expression) (runtime.Object, bool) {
	switch expr := expr.(type) {
	case *ast.IdentNode:
		if expr.IsThis() || ast.IsInternalName(expr.Name) {
			return nil, false
		}
		p, ok := e.scope.Lookup(expr.Name)
		if !ok {
			return nil, false
		}
		return dataValue(p)
	case *ast.AccessNode:
		base, ok := e.value(expr.Base)
		if !ok {
			return nil, false
		}
		return property(base, expr.Property)
	case *ast.IndexNode:
		base, ok := e.value(expr.Base)
		if !ok {
			return nil, false
		}
		lit, isLit := expr.Index.(*ast.LiteralNode)
		if !isLit {
			return nil, false
		}
		if arr, isArray := base.(*runtime.Array); isArray {
			if i, isInt := lit.Value.(int32); isInt {
				return arr.Get(int(i)), true
			}
			return nil, false
		}
		if name, isString := lit.Value.(string); isString {
			return property(base, name)
		}
	}
	return nil, false
}

func dataValue(p *runtime.Property) (runtime.Object, bool) {
	if p.IsAccessor() || p.Value == nil {
		return nil, false
	}
	return p.Value, true
}

func property(base runtime.Object, name string) (runtime.Object, bool) {
	switch b := base.(type) {
	case *runtime.Array:
		if name == "length" {
			return runtime.NewInt(int32(b.Len())), true
		}
		if p, ok := b.FindProperty(name); ok {
			return dataValue(p)
		}
	case *runtime.JSObject:
		if p, ok := b.FindProperty(name); ok {
			return dataValue(p)
		}
	}
	return nil, false
}

// returnType answers for immediately invoked function expressions, whose
// callee is known statically. Data recorded for a different tree under the
// same id is refused.
func (e *TypeEvaluator) returnType(call *ast.CallNode) (typesystem.Type, bool) {
	if e.functions == nil || call.IsNew {
		return typesystem.Unknown, false
	}
	callee := call.Function
	if acc, ok := callee.(*ast.AccessNode); ok && acc.Property == ast.CallName {
		callee = acc.Base
	}
	fn, ok := callee.(*ast.FunctionNode)
	if !ok {
		return typesystem.Unknown, false
	}
	t, digest, ok := e.functions.ReturnType(fn.ID)
	if !ok || digest != fn.Digest() || t == typesystem.Unknown {
		return typesystem.Unknown, false
	}
	return t, true
}
