package compiler

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/funvibe/optijit/internal/ast"
)

// Recipe is a named sequence of phases.
type Recipe struct {
	Name   string
	phases []*Phase
}

// NewRecipe creates a recipe running phases in order.
func NewRecipe(name string, phases ...*Phase) Recipe {
	return Recipe{Name: name, phases: phases}
}

func (r Recipe) Phases() []*Phase { return r.phases }

// run executes the recipe. A phase whose state the tree already has is
// skipped; one whose requirements are missing fails the compile.
func (c *Compiler) run(log zerolog.Logger, fn *ast.FunctionNode, r Recipe) (*ast.FunctionNode, error) {
	for _, p := range r.phases {
		if p.idempotent() && fn.HasState(p.Produces) {
			log.Debug().Str("phase", p.Name).Msg("already done")
			continue
		}
		for _, req := range p.Requires {
			if !fn.HasState(req) {
				err := errors.Wrapf(ErrPreconditionUnmet, "%s requires %s, have %v", p.Name, req, fn.State.List())
				return nil, newCompilationError(p, fn, err)
			}
		}

		start := time.Now()
		out, err := c.runPhase(p, fn)
		elapsed := time.Since(start)
		c.timing.Add(p.Name, elapsed)
		log.Debug().Str("phase", p.Name).Dur("elapsed", elapsed).Msg("phase done")
		if err != nil {
			return nil, newCompilationError(p, fn, err)
		}
		if p.idempotent() {
			out = ast.MarkState(out, p.Produces)
		}
		fn = out
	}
	return fn, nil
}

// runPhase turns an invariant violation raised inside a visitor into an
// error. Any other panic is a bug and propagates.
func (c *Compiler) runPhase(p *Phase, fn *ast.FunctionNode) (out *ast.FunctionNode, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ie, ok := rec.(*ast.InvariantError)
			if !ok {
				panic(rec)
			}
			out, err = nil, errors.WithStack(ie)
		}
	}()
	return p.transform(c, fn)
}
