package engine

import (
	"context"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/compiler"
	"github.com/funvibe/optijit/internal/config"
	"github.com/funvibe/optijit/internal/optimistic"
	"github.com/funvibe/optijit/internal/persist"
)

// Job is one independent compilation.
type Job struct {
	Name    string
	Source  []byte
	Program *ast.FunctionNode
}

// CompileAll compiles jobs concurrently with recipe, each with its own
// compiler and invalidations. Only cache and the extra options are shared.
// Results are in job order; the first failure cancels the jobs not yet
// started.
func CompileAll(ctx context.Context, opts config.Options, log zerolog.Logger, cache *persist.Cache, recipe compiler.Recipe, jobs []Job, extra ...compiler.Option) ([]*compiler.Result, error) {
	results := make([]*compiler.Result, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			maps := optimistic.Maps{}
			for _, f := range ast.Functions(job.Program) {
				if m, ok := cache.Load(genericKey(job.Source, f.ID)); ok {
					maps[f.ID] = m
				}
			}
			name := job.Name
			if name == "" {
				name = "main"
			}
			options := append([]compiler.Option{
				compiler.WithLogger(log.With().Str("job_name", name).Logger()),
				compiler.WithName(name),
				compiler.WithInvalidations(maps),
			}, extra...)
			c := compiler.New(opts, options...)
			res, err := c.Compile(job.Program, recipe)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
