// Package compiler drives a function through the compilation phases and
// owns the state the phases share: compile units, invalidations, the
// generated bytecode and the installation step.
package compiler

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/codegen"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/split"
)

// Installer receives the verified units of a compile.
type Installer interface {
	Install(fn *ast.FunctionNode, units map[string]*codegen.Unit, root string) error
}

// Rejected is a unit that failed verification and was not installed.
type Rejected struct {
	Unit string
	Err  error
}

// Result describes a finished compilation.
type Result struct {
	JobID    string
	Function *ast.FunctionNode
	Units    []split.CompileUnit
	Bytecode map[string][]byte
	Root     string
	Rejected []Rejected
	// Installed lists the units handed to the installer.
	Installed []string
}

// Compiler runs one compilation job. It is not safe for concurrent use;
// independent jobs use independent compilers.
type Compiler struct {
	opts  config.Options
	log   zerolog.Logger
	jobID string
	name  string

	ids           *IDAllocator
	pool          *split.UnitPool
	reuse         []split.CompileUnit
	reuseRoot     string
	invalidations optimistic.InvalidationSource
	evaluator     *optimistic.TypeEvaluator
	generator     codegen.Generator
	continuation  map[int][]int
	store         *FunctionStore
	installer     Installer
	timing        *Timing

	bytecode  map[string][]byte
	root      string
	rejected  []Rejected
	installed []string
}

// Option configures a Compiler.
type Option func(*Compiler)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Compiler) { c.log = log }
}

// WithName sets the base name of the compile units.
func WithName(name string) Option {
	return func(c *Compiler) { c.name = name }
}

func WithIDs(ids *IDAllocator) Option {
	return func(c *Compiler) { c.ids = ids }
}

func WithInvalidations(src optimistic.InvalidationSource) Option {
	return func(c *Compiler) { c.invalidations = src }
}

// WithEvaluator supplies the live scope of a recompilation.
func WithEvaluator(e *optimistic.TypeEvaluator) Option {
	return func(c *Compiler) { c.evaluator = e }
}

func WithGenerator(g codegen.Generator) Option {
	return func(c *Compiler) { c.generator = g }
}

// WithContinuation makes the generated code of function id resumable at
// the given program points.
func WithContinuation(id int, points []int) Option {
	return func(c *Compiler) {
		if c.continuation == nil {
			c.continuation = make(map[int][]int)
		}
		c.continuation[id] = append(c.continuation[id], points...)
	}
}

// WithCompileUnits makes the split phase reuse the units of an earlier
// compile instead of allocating fresh ones.
func WithCompileUnits(units []split.CompileUnit, outermost string) Option {
	return func(c *Compiler) {
		c.reuse = units
		c.reuseRoot = outermost
	}
}

func WithFunctionStore(s *FunctionStore) Option {
	return func(c *Compiler) { c.store = s }
}

func WithInstaller(i Installer) Option {
	return func(c *Compiler) { c.installer = i }
}

func WithTiming(t *Timing) Option {
	return func(c *Compiler) { c.timing = t }
}

// New creates a compiler for one job.
func New(opts config.Options, options ...Option) *Compiler {
	c := &Compiler{
		opts:  opts,
		log:   zerolog.Nop(),
		jobID: uuid.NewString(),
		name:  "main",
	}
	for _, opt := range options {
		opt(c)
	}
	if c.invalidations == nil {
		c.invalidations = optimistic.Maps{}
	}
	if c.timing == nil {
		c.timing = NewTiming()
	}
	if c.generator == nil {
		var gopts []codegen.Option
		for id, points := range c.continuation {
			gopts = append(gopts, codegen.WithContinuation(id, points))
		}
		c.generator = codegen.NewReference(gopts...)
	}
	c.pool = split.NewUnitPool(c.name, opts.SplitThreshold)
	c.log = c.log.With().Str("job", c.jobID).Logger()
	return c
}

func (c *Compiler) JobID() string { return c.jobID }

func (c *Compiler) Timing() *Timing { return c.timing }

// Compile runs recipe over fn.
func (c *Compiler) Compile(fn *ast.FunctionNode, recipe Recipe) (*Result, error) {
	if c.ids == nil {
		c.ids = NewIDAllocator(fn)
	}
	log := c.log.With().Str("function", fn.DisplayName()).Str("recipe", recipe.Name).Logger()
	log.Debug().Msg("compiling")

	out, err := c.run(log, fn, recipe)
	if err != nil {
		log.Debug().Err(err).Msg("compilation failed")
		return nil, err
	}
	res := &Result{
		JobID:     c.jobID,
		Function:  out,
		Units:     c.pool.Units(),
		Bytecode:  c.bytecode,
		Root:      c.root,
		Rejected:  c.rejected,
		Installed: c.installed,
	}
	return res, nil
}
