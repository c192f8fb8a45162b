// Package engine runs programs: it compiles them, installs the result,
// executes it and recompiles functions whose speculation failed.
package engine

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/compiler"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/interp"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/persist"
	"github.com/funvibe/optijit/internal/runtime"
)

// Stats counts what an engine did.
type Stats struct {
	// Compiles counts compiles started from a program root.
	Compiles int
	// OnDemand counts lazy stubs compiled on their first call.
	OnDemand int
	// Recompiles counts rest-of compiles after deoptimizations.
	Recompiles int
	Deopts     int
}

// Engine runs one program. It is not safe for concurrent use; independent
// programs use independent engines, which may share a persistence cache.
type Engine struct {
	opts   config.Options
	log    zerolog.Logger
	source []byte
	name   string
	cache  *persist.Cache
	out    io.Writer
	timing *compiler.Timing

	registry      *Registry
	store         *compiler.FunctionStore
	ids           *compiler.IDAllocator
	invalidations optimistic.Maps
	globals       *runtime.Environment

	program *ast.FunctionNode
	results map[int]*compiler.Result

	mu sync.Mutex
	// pending maps a function waiting for a rest-of compile to the program
	// points invalidated since its last compile.
	pending map[int][]int
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithCache persists invalidations through c. A nil cache persists nothing.
func WithCache(c *persist.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithOutput sets where the print builtin writes.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) { e.out = w }
}

func WithTiming(t *compiler.Timing) Option {
	return func(e *Engine) { e.timing = t }
}

// WithName sets the base name of the root compile units.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// New returns an engine for programs built from source. source only keys
// persisted invalidations.
func New(opts config.Options, source []byte, options ...Option) (*Engine, error) {
	e := &Engine{
		opts:          opts,
		log:           zerolog.Nop(),
		source:        source,
		name:          "main",
		out:           io.Discard,
		registry:      NewRegistry(),
		invalidations: optimistic.Maps{},
		results:       make(map[int]*compiler.Result),
		pending:       make(map[int][]int),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.timing == nil {
		e.timing = compiler.NewTiming()
	}
	store, err := compiler.NewFunctionStore(opts.FunctionStoreSize)
	if err != nil {
		return nil, err
	}
	e.store = store
	return e, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

func (e *Engine) Timing() *compiler.Timing { return e.timing }

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Result returns the last compile of function id.
func (e *Engine) Result(id int) (*compiler.Result, bool) {
	res, ok := e.results[id]
	return res, ok
}

// Load compiles and installs program. In lazy mode nested functions are
// left as stubs and compiled when first called.
func (e *Engine) Load(program *ast.FunctionNode) (*compiler.Result, error) {
	e.program = program
	e.seed(program)
	res, err := e.compile(program, compiler.RecipeEager, compiler.WithIDs(compiler.NewIDAllocator(program)))
	if err != nil {
		return nil, err
	}
	e.ids = compiler.NewIDAllocator(res.Function)
	e.mu.Lock()
	e.stats.Compiles++
	e.mu.Unlock()
	return res, nil
}

// Run executes program, loading it first unless it is the program already
// loaded. A program that deoptimized during an earlier run is recompiled
// before it runs again.
func (e *Engine) Run(program *ast.FunctionNode, args ...runtime.Object) (runtime.Object, error) {
	if e.program != program {
		if _, err := e.Load(program); err != nil {
			return nil, err
		}
	}
	root, err := e.Function(program.ID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.Errorf("program %s is not installed", program.DisplayName())
	}
	e.globals = e.newGlobals()
	in := interp.New(
		interp.WithGlobals(e.globals),
		interp.WithFunctions(e),
		interp.WithDeoptHandler(e.deoptimized),
		interp.WithLogger(e.log),
	)
	return in.Run(root, args...)
}

// Function implements interp.Functions. It recompiles a function with
// pending invalidations and compiles a lazy stub on its first call.
func (e *Engine) Function(id int) (*ast.FunctionNode, error) {
	e.mu.Lock()
	points, stale := e.pending[id]
	delete(e.pending, id)
	e.mu.Unlock()
	if stale {
		if err := e.recompile(id, points); err != nil {
			return nil, err
		}
	}
	if fn, ok := e.registry.Function(id); ok {
		return fn, nil
	}
	cached, ok := e.store.Get(id)
	if !ok {
		return nil, nil
	}
	e.seed(cached)
	if _, err := e.compile(cached, compiler.RecipeOnDemand, compiler.WithName(cached.DisplayName())); err != nil {
		return nil, err
	}
	e.store.Unpin(id)
	e.mu.Lock()
	e.stats.OnDemand++
	e.mu.Unlock()
	fn, _ := e.registry.Function(id)
	return fn, nil
}

// recompile runs a rest-of compile of function id, resumable at points.
// The program restarts from its source tree; nested functions from their
// stored trees.
func (e *Engine) recompile(id int, points []int) error {
	source, ok := e.store.Get(id)
	options := []compiler.Option{compiler.WithContinuation(id, points)}
	switch {
	case e.program != nil && id == e.program.ID:
		source = e.program
		options = append(options, compiler.WithIDs(compiler.NewIDAllocator(e.program)))
	case !ok:
		return errors.Errorf("function %d has no stored tree to recompile", id)
	default:
		options = append(options, compiler.WithName(source.DisplayName()))
	}
	if prev, ok := e.results[id]; ok {
		options = append(options, compiler.WithCompileUnits(prev.Units, prev.Root))
	}
	if _, err := e.compile(source, compiler.RecipeRestOf, options...); err != nil {
		return err
	}
	e.mu.Lock()
	e.stats.Recompiles++
	e.mu.Unlock()
	e.log.Debug().Int("function", id).Ints("points", points).Msg("recompiled")
	return nil
}

func (e *Engine) compile(fn *ast.FunctionNode, recipe compiler.Recipe, extra ...compiler.Option) (*compiler.Result, error) {
	options := []compiler.Option{
		compiler.WithLogger(e.log),
		compiler.WithName(e.name),
		compiler.WithIDs(e.ids),
		compiler.WithInvalidations(e.invalidations),
		compiler.WithFunctionStore(e.store),
		compiler.WithInstaller(e.registry),
		compiler.WithTiming(e.timing),
	}
	if e.globals != nil {
		options = append(options, compiler.WithEvaluator(optimistic.NewTypeEvaluator(e.globals, e.registry)))
	}
	res, err := compiler.New(e.opts, append(options, extra...)...).Compile(fn, recipe)
	if err != nil {
		return nil, err
	}
	e.results[fn.ID] = res
	return res, nil
}

// seed loads the persisted invalidations of every function in fn that has
// none yet.
func (e *Engine) seed(fn *ast.FunctionNode) {
	if e.cache == nil {
		return
	}
	for _, f := range ast.Functions(fn) {
		if f.Is(ast.IsSplit) {
			continue
		}
		if _, ok := e.invalidations[f.ID]; ok {
			continue
		}
		if m, ok := e.cache.Load(genericKey(e.source, f.ID)); ok {
			e.log.Debug().Int("function", f.ID).Int("points", len(m)).Msg("seeded invalidations")
			e.invalidations[f.ID] = m
		}
	}
}

// deoptimized records the failed speculation, persists the widened map
// and schedules a recompile of the function.
func (e *Engine) deoptimized(d interp.Deopt) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Deopts++
	m := e.invalidations.Invalidations(d.FunctionID)
	if !m.Add(d.ProgramPoint, d.Actual) {
		return
	}
	e.pending[d.FunctionID] = append(e.pending[d.FunctionID], d.ProgramPoint)
	e.cache.Store(genericKey(e.source, d.FunctionID), m.Clone())
}

// genericKey is the persistence key of a function compiled for any
// arguments. The engine never specializes on parameter types, so its keys
// carry no parameter signature and cannot collide with specialized ones.
func genericKey(source []byte, functionID int) persist.Key {
	return persist.NewKey(source, functionID, nil)
}

func (e *Engine) newGlobals() *runtime.Environment {
	env := runtime.NewEnvironment()
	env.Set("print", &runtime.Builtin{Name: "print", Fn: func(_ runtime.Object, args []runtime.Object) (runtime.Object, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = runtime.ToString(a)
		}
		_, err := io.WriteString(e.out, strings.Join(parts, " ")+"\n")
		return runtime.UNDEFINED, err
	}})
	return env
}
