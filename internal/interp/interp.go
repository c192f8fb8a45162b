// Package interp executes function trees directly. It runs trees at any
// stage of the pipeline: source trees, lowered trees and trees whose split
// nodes became functions. Every speculated expression has its value checked
// against its type, and a mismatch is reported as a deoptimization.
package interp

import (
	"github.com/rs/zerolog"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/runtime"
	"github.com/funvibe/optijit/internal/typesystem"
)

// DefaultMaxDepth bounds the call depth.
const DefaultMaxDepth = 2000

// Deopt reports a value that did not fit the type its expression was
// speculated as. FunctionID is the function owning the program point: for
// code in a split fragment, the function it was split from.
type Deopt struct {
	FunctionID   int
	ProgramPoint int
	Expected     typesystem.Type
	Actual       typesystem.Type
}

// Functions supplies the installed tree of a function. The interpreter
// asks before every call, so a recompiled function takes effect on its next
// invocation and a lazy stub is compiled when first called.
type Functions interface {
	Function(id int) (*ast.FunctionNode, error)
}

// Interpreter is not safe for concurrent use.
type Interpreter struct {
	Globals *runtime.Environment

	functions Functions
	onDeopt   func(Deopt)
	log       zerolog.Logger
	maxDepth  int

	depth int
	// labels not yet claimed by a loop.
	labels []string
	hoists map[*ast.FunctionNode]*hoisted
}

// Option configures an Interpreter.
type Option func(*Interpreter)

func WithGlobals(env *runtime.Environment) Option {
	return func(in *Interpreter) { in.Globals = env }
}

func WithFunctions(f Functions) Option {
	return func(in *Interpreter) { in.functions = f }
}

func WithDeoptHandler(h func(Deopt)) Option {
	return func(in *Interpreter) { in.onDeopt = h }
}

func WithLogger(log zerolog.Logger) Option {
	return func(in *Interpreter) { in.log = log }
}

func WithMaxDepth(n int) Option {
	return func(in *Interpreter) { in.maxDepth = n }
}

func New(options ...Option) *Interpreter {
	in := &Interpreter{
		log:      zerolog.Nop(),
		maxDepth: DefaultMaxDepth,
		hoists:   make(map[*ast.FunctionNode]*hoisted),
	}
	for _, opt := range options {
		opt(in)
	}
	if in.Globals == nil {
		in.Globals = runtime.NewEnvironment()
	}
	return in
}

// activation is the frame of one function invocation.
type activation struct {
	fn     *ast.FunctionNode
	realID int
	env    *runtime.Environment
	this   runtime.Object
	args   []runtime.Object
	// state is the split state, owned by the nearest non-split activation.
	state *int
	// completion is the value of the last expression statement, the result
	// of a program that falls off its end.
	completion runtime.Object
}

// Run executes a program function with the global environment as its
// scope and returns its result.
func (in *Interpreter) Run(program *ast.FunctionNode, args ...runtime.Object) (runtime.Object, error) {
	state := ast.StateFallthrough
	act := &activation{
		fn:         program,
		realID:     program.ID,
		env:        in.Globals,
		this:       runtime.UNDEFINED,
		args:       args,
		state:      &state,
		completion: runtime.UNDEFINED,
	}
	in.declareParams(act, program, args)
	res := in.execFunction(act)
	if t, ok := res.(*Thrown); ok {
		return nil, &ThrowError{Value: t.Value}
	}
	return res, nil
}

// Call invokes a function value.
func (in *Interpreter) Call(fn runtime.Object, this runtime.Object, args ...runtime.Object) (runtime.Object, error) {
	res := in.callValue(fn, this, args)
	if t, ok := res.(*Thrown); ok {
		return nil, &ThrowError{Value: t.Value}
	}
	return res, nil
}

func (in *Interpreter) newClosure(fn *ast.FunctionNode, act *activation) *Closure {
	return &Closure{Fn: fn, Env: act.env, Proto: runtime.NewObject(), in: in, act: act}
}

func (in *Interpreter) callValue(fn runtime.Object, this runtime.Object, args []runtime.Object) runtime.Object {
	switch f := fn.(type) {
	case *Closure:
		return in.callClosure(f, this, args)
	case runtime.Callable:
		res, err := f.Call(this, args)
		if err != nil {
			if te, ok := err.(*ThrowError); ok {
				return &Thrown{Value: te.Value}
			}
			return &Thrown{Value: runtime.NewError(err.Error())}
		}
		if res == nil {
			return runtime.UNDEFINED
		}
		return res
	}
	return throwError("TypeError: %s is not a function", runtime.ToString(fn))
}

func (in *Interpreter) callClosure(c *Closure, this runtime.Object, args []runtime.Object) runtime.Object {
	if in.depth >= in.maxDepth {
		return throwError("RangeError: maximum call depth %d exceeded", in.maxDepth)
	}
	in.depth++
	defer func() { in.depth-- }()

	fn := c.Fn
	act := &activation{
		fn:         fn,
		env:        runtime.NewEnclosedEnvironment(c.Env),
		this:       this,
		args:       args,
		completion: runtime.UNDEFINED,
	}
	if fn.Is(ast.IsSplit) {
		// A fragment runs in its parent's frame: same owner of program
		// points, same split state.
		act.realID = c.act.realID
		act.state = c.act.state
		act.args = c.act.args
		*act.state = ast.StateFallthrough
	} else {
		if in.functions != nil {
			installed, err := in.functions.Function(fn.ID)
			if err != nil {
				return throwError("%s: %v", fn.DisplayName(), err)
			}
			if installed != nil {
				fn = installed
				act.fn = fn
			}
		}
		if fn.Is(ast.IsLazyStub) {
			return throwError("function %s is not compiled", fn.DisplayName())
		}
		state := ast.StateFallthrough
		act.realID = fn.ID
		act.state = &state
	}
	in.declareParams(act, fn, args)
	return in.execFunction(act)
}

func (in *Interpreter) declareParams(act *activation, fn *ast.FunctionNode, args []runtime.Object) {
	for i, p := range fn.Params {
		var v runtime.Object = runtime.UNDEFINED
		if i < len(args) {
			v = args[i]
		}
		act.env.Set(p.Name, v)
	}
	h := in.hoist(fn)
	for _, name := range h.vars {
		act.env.Declare(name, runtime.UNDEFINED)
	}
	for _, decl := range h.functions {
		act.env.Set(decl.Name.Name, in.newClosure(decl.Init.(*ast.FunctionNode), act))
	}
}

func (in *Interpreter) execFunction(act *activation) runtime.Object {
	res := in.execBlock(act.fn.Body, act)
	switch r := res.(type) {
	case *ReturnValue:
		return r.Value
	case *Thrown:
		return r
	case *BreakSignal, *ContinueSignal:
		return throwError("SyntaxError: %s outside of its target in %s", r.Inspect(), act.fn.DisplayName())
	}
	if act.fn.Is(ast.IsProgram) {
		return act.completion
	}
	return runtime.UNDEFINED
}

// hoisted are the declarations a function makes on entry.
type hoisted struct {
	vars      []string
	functions []*ast.VarNode
}

func (in *Interpreter) hoist(fn *ast.FunctionNode) *hoisted {
	if h, ok := in.hoists[fn]; ok {
		return h
	}
	h := &hoisted{}
	seen := map[string]bool{}
	ast.InspectFunction(fn, func(n ast.Node) bool {
		vn, ok := n.(*ast.VarNode)
		if !ok {
			return true
		}
		if vn.IsFunctionDeclaration {
			if _, isFn := vn.Init.(*ast.FunctionNode); isFn {
				h.functions = append(h.functions, vn)
			}
		}
		if !seen[vn.Name.Name] {
			seen[vn.Name.Name] = true
			h.vars = append(h.vars, vn.Name.Name)
		}
		return true
	})
	in.hoists[fn] = h
	return h
}

// check reports a deoptimization when v does not fit the speculated type
// of n.
func (in *Interpreter) check(n ast.Expression, v runtime.Object, act *activation) {
	o, ok := n.(ast.Optimistic)
	if !ok || !ast.IsOptimistic(n) {
		return
	}
	expected, actual := o.OptimisticType(), v.RuntimeType()
	if expected.Accepts(actual) {
		return
	}
	d := Deopt{FunctionID: act.realID, ProgramPoint: o.ProgramPoint(), Expected: expected, Actual: actual}
	in.log.Debug().
		Int("function", d.FunctionID).
		Int("pp", d.ProgramPoint).
		Stringer("expected", expected).
		Stringer("actual", actual).
		Msg("deoptimization")
	if in.onDeopt != nil {
		in.onDeopt(d)
	}
}
