package compiler

import (
	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/codegen"
	"github.com/funvibe/optijit/internal/lower"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/programpoint"
	"github.com/funvibe/optijit/internal/split"
	"github.com/funvibe/optijit/internal/symbols"
)

// Phase is one step of a recipe. A phase producing Initialized is a
// bookkeeping step that runs every time and leaves the states alone.
type Phase struct {
	Name      string
	Requires  []ast.CompilationState
	Produces  ast.CompilationState
	transform func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error)
}

func (p *Phase) idempotent() bool { return p.Produces != ast.Initialized }

var (
	ConstantFoldingPhase = &Phase{
		Name:     "constant-folding",
		Requires: []ast.CompilationState{ast.Parsed},
		Produces: ast.ConstantFolded,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return lower.FoldConstants(fn), nil
		},
	}

	LoweringPhase = &Phase{
		Name:     "lowering",
		Requires: []ast.CompilationState{ast.ConstantFolded},
		Produces: ast.Lowered,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return lower.Lower(fn, c.ids), nil
		},
	}

	ProgramPointPhase = &Phase{
		Name:     "program-points",
		Requires: []ast.CompilationState{ast.Lowered},
		Produces: ast.ProgramPointsAssigned,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			if !c.opts.OptimisticTypes {
				return fn, nil
			}
			return programpoint.Assign(fn, c.opts.MaxProgramPoint), nil
		},
	}

	// ReuseCompileUnitsPhase seeds the unit pool with the units of the
	// compile being restarted.
	ReuseCompileUnitsPhase = &Phase{
		Name: "reuse-compile-units",
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			units := make([]split.CompileUnit, len(c.reuse))
			for i, u := range c.reuse {
				units[i] = split.CompileUnit{Name: u.Name}
			}
			c.pool.Reuse(units, c.reuseRoot)
			return fn, nil
		},
	}

	SplittingPhase = &Phase{
		Name:     "splitting",
		Requires: []ast.CompilationState{ast.ProgramPointsAssigned},
		Produces: ast.Split,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			fn = split.NewSplitter(c.pool, c.log).Split(fn, true)
			return split.SplitIntoFunctions(fn, c.ids), nil
		},
	}

	SymbolAssignmentPhase = &Phase{
		Name:     "symbol-assignment",
		Requires: []ast.CompilationState{ast.Split},
		Produces: ast.SymbolsAssigned,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return symbols.Assign(fn), nil
		},
	}

	ScopeDepthPhase = &Phase{
		Name:     "scope-depths",
		Requires: []ast.CompilationState{ast.SymbolsAssigned},
		Produces: ast.ScopeDepthsComputed,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return symbols.ComputeScopeDepths(fn), nil
		},
	}

	// CacheASTPhase keeps pruned trees for later on-demand compiles. In
	// lazy mode the compile continues with its nested functions pruned
	// too.
	CacheASTPhase = &Phase{
		Name:     "cache-ast",
		Requires: []ast.CompilationState{ast.ScopeDepthsComputed},
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			if c.store != nil {
				cacheFunctions(c.store, fn, c.opts.LazyCompilation)
			}
			if c.opts.LazyCompilation {
				return Prune(fn), nil
			}
			return fn, nil
		},
	}

	// ReinitializePhase clears the states of the phases an on-demand
	// compile repeats on a cached tree.
	ReinitializePhase = &Phase{
		Name:     "reinitialize-cached",
		Requires: []ast.CompilationState{ast.ScopeDepthsComputed},
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return ast.ClearStates(fn,
				ast.OptimisticTypesAssigned, ast.LocalVariableTypesCalculated,
				ast.BytecodeGenerated, ast.BytecodeInstalled,
			), nil
		},
	}

	OptimisticTypesPhase = &Phase{
		Name:     "optimistic-types",
		Requires: []ast.CompilationState{ast.ScopeDepthsComputed},
		Produces: ast.OptimisticTypesAssigned,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			if !c.opts.OptimisticTypes {
				return fn, nil
			}
			return optimistic.Calculate(fn, optimistic.Options{
				Invalidations:        c.invalidations,
				Evaluator:            c.evaluator,
				RecordEvaluatedTypes: c.opts.RecordEvaluatedTypes,
			}), nil
		},
	}

	LocalVariableTypesPhase = &Phase{
		Name:     "local-variable-types",
		Requires: []ast.CompilationState{ast.OptimisticTypesAssigned},
		Produces: ast.LocalVariableTypesCalculated,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			return symbols.CalculateLocalTypes(fn), nil
		},
	}

	BytecodeGenerationPhase = &Phase{
		Name:     "bytecode-generation",
		Requires: []ast.CompilationState{ast.LocalVariableTypesCalculated},
		Produces: ast.BytecodeGenerated,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			var names []string
			for _, u := range c.pool.Units() {
				names = append(names, u.Name)
			}
			blobs, root, err := c.generator.Generate(fn, names)
			if err != nil {
				return nil, err
			}
			c.bytecode, c.root = blobs, root
			return fn, nil
		},
	}

	// InstallPhase verifies the generated units and installs them. With
	// TolerateBadOutput a unit failing verification is reported and left
	// out; otherwise it fails the compile.
	InstallPhase = &Phase{
		Name:     "install",
		Requires: []ast.CompilationState{ast.BytecodeGenerated},
		Produces: ast.BytecodeInstalled,
		transform: func(c *Compiler, fn *ast.FunctionNode) (*ast.FunctionNode, error) {
			units, err := codegen.DeserializeAll(c.bytecode)
			if err != nil {
				return nil, errors.Wrap(err, "loading generated units")
			}
			if c.opts.Verify {
				for _, name := range codegen.Units(units, c.root) {
					verr := codegen.Verify(units[name])
					if verr == nil {
						continue
					}
					if !c.opts.TolerateBadOutput {
						return nil, errors.WithStack(verr)
					}
					c.log.Warn().Err(verr).Str("unit", name).Msg("unit rejected")
					c.rejected = append(c.rejected, Rejected{Unit: name, Err: verr})
					delete(units, name)
				}
			}
			// Installed code sees its functions as installed.
			fn = ast.MarkState(fn, ast.BytecodeInstalled)
			if c.installer != nil {
				if err := c.installer.Install(fn, units, c.root); err != nil {
					return nil, errors.Wrap(err, "installing")
				}
			}
			c.installed = codegen.Units(units, c.root)
			return fn, nil
		},
	}
)

var eagerPhases = []*Phase{
	ConstantFoldingPhase,
	LoweringPhase,
	ProgramPointPhase,
	SplittingPhase,
	SymbolAssignmentPhase,
	ScopeDepthPhase,
	CacheASTPhase,
	OptimisticTypesPhase,
	LocalVariableTypesPhase,
	BytecodeGenerationPhase,
	InstallPhase,
}

var (
	// RecipeEager compiles a parsed function and installs it.
	RecipeEager = NewRecipe("eager", eagerPhases...)

	// RecipeBytecodeOnly generates bytecode without installing it.
	RecipeBytecodeOnly = NewRecipe("bytecode-only", eagerPhases[:len(eagerPhases)-1]...)

	// RecipeUpToBytecode stops before code generation.
	RecipeUpToBytecode = NewRecipe("up-to-bytecode", eagerPhases[:len(eagerPhases)-2]...)

	// RecipeOnDemand compiles a cached tree of a function that was left
	// uncompiled.
	RecipeOnDemand = NewRecipe("on-demand",
		ReinitializePhase,
		OptimisticTypesPhase,
		LocalVariableTypesPhase,
		BytecodeGenerationPhase,
		InstallPhase,
	)

	// RecipeRestOf recompiles a function after a deoptimization, reusing
	// the compile units of its previous compile.
	RecipeRestOf = NewRecipe("rest-of",
		ConstantFoldingPhase,
		LoweringPhase,
		ProgramPointPhase,
		ReuseCompileUnitsPhase,
		SplittingPhase,
		SymbolAssignmentPhase,
		ScopeDepthPhase,
		CacheASTPhase,
		ReinitializePhase,
		OptimisticTypesPhase,
		LocalVariableTypesPhase,
		BytecodeGenerationPhase,
		InstallPhase,
	)
)
