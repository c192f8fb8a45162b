package interp

import (
	"fmt"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Closure is a function value: a function tree and the environment it was
// created in.
type Closure struct {
	Fn    *ast.FunctionNode
	Env   *runtime.Environment
	Proto *runtime.JSObject

	in *Interpreter
	// act is the activation that created the closure. Split fragments
	// share its split state.
	act *activation
}

func (c *Closure) Type() runtime.ObjectType        { return runtime.FUNCTION_OBJ }
func (c *Closure) RuntimeType() typesystem.Type { return typesystem.Object }
func (c *Closure) Inspect() string {
	return "function " + c.Fn.DisplayName() + "() { [code] }"
}

// Call implements runtime.Callable, so closures can serve as accessors
// and as arguments of builtins.
func (c *Closure) Call(this runtime.Object, args []runtime.Object) (runtime.Object, error) {
	res := c.in.callClosure(c, this, args)
	if t, ok := res.(*Thrown); ok {
		return nil, &ThrowError{Value: t.Value}
	}
	return res, nil
}

// ReturnValue wraps a value that is being returned prematurely
type ReturnValue struct {
	Value runtime.Object
}

// BreakSignal leaves the nearest breakable statement, or the labelled
// statement named Label.
type BreakSignal struct {
	Label string
}

// ContinueSignal starts the next iteration of the nearest loop, or of the
// loop labelled Label.
type ContinueSignal struct {
	Label string
}

// Thrown carries an exception up to the nearest catch.
type Thrown struct {
	Value runtime.Object
}

func (*ReturnValue) Type() runtime.ObjectType    { return "RETURN_VALUE" }
func (*BreakSignal) Type() runtime.ObjectType    { return "BREAK_SIGNAL" }
func (*ContinueSignal) Type() runtime.ObjectType { return "CONTINUE_SIGNAL" }
func (*Thrown) Type() runtime.ObjectType         { return "THROWN" }

func (rv *ReturnValue) Inspect() string  { return rv.Value.Inspect() }
func (*BreakSignal) Inspect() string     { return "Break" }
func (*ContinueSignal) Inspect() string  { return "Continue" }
func (t *Thrown) Inspect() string        { return "Thrown: " + runtime.ToString(t.Value) }

func (*ReturnValue) RuntimeType() typesystem.Type    { return typesystem.Object }
func (*BreakSignal) RuntimeType() typesystem.Type    { return typesystem.Object }
func (*ContinueSignal) RuntimeType() typesystem.Type { return typesystem.Object }
func (*Thrown) RuntimeType() typesystem.Type         { return typesystem.Object }

func isThrown(o runtime.Object) bool {
	_, ok := o.(*Thrown)
	return ok
}

// ThrowError is an exception that left the program.
type ThrowError struct {
	Value runtime.Object
}

func (e *ThrowError) Error() string {
	return "uncaught exception: " + runtime.ToString(e.Value)
}

func throwError(format string, args ...any) *Thrown {
	return &Thrown{Value: runtime.NewError(fmt.Sprintf(format, args...))}
}
