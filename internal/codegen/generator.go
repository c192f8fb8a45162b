package codegen

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
)

// Generator turns a function tree that has been lowered, split and typed
// into named binary units. root names the unit holding fn itself.
type Generator interface {
	Generate(fn *ast.FunctionNode, units []string) (blobs map[string][]byte, root string, err error)
}

// DefaultUnit receives functions that were never assigned a unit.
const DefaultUnit = ":main"

// MaxUnitSize bounds the code of one unit; jump offsets are 16 bits.
const MaxUnitSize = 1<<16 - 1

// Reference is the generator used by the compiler.
type Reference struct {
	continuations map[int]map[int]bool
}

// Option configures a Reference generator.
type Option func(*Reference)

// WithContinuation marks program points of function id where a restarted
// compile must provide an entry.
func WithContinuation(id int, points []int) Option {
	return func(r *Reference) {
		if len(points) == 0 {
			return
		}
		set := r.continuations[id]
		if set == nil {
			set = make(map[int]bool)
			r.continuations[id] = set
		}
		for _, pp := range points {
			set[pp] = true
		}
	}
}

func NewReference(opts ...Option) *Reference {
	r := &Reference{continuations: make(map[int]map[int]bool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Generate implements Generator.
func (r *Reference) Generate(fn *ast.FunctionNode, units []string) (map[string][]byte, string, error) {
	out, root, err := r.GenerateUnits(fn, units)
	if err != nil {
		return nil, "", err
	}
	blobs := make(map[string][]byte, len(out))
	for name, u := range out {
		data, err := u.Serialize()
		if err != nil {
			return nil, "", errors.Wrapf(err, "serializing unit %s", name)
		}
		blobs[name] = data
	}
	return blobs, root, nil
}

// GenerateUnits is Generate without serialization.
func (r *Reference) GenerateUnits(fn *ast.FunctionNode, units []string) (out map[string]*Unit, root string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ie, ok := rec.(*ast.InvariantError)
			if !ok {
				panic(rec)
			}
			out, root, err = nil, "", errors.WithStack(ie)
		}
	}()

	g := &generation{ref: r, units: make(map[string]*Unit)}
	for _, name := range units {
		g.unit(name)
	}
	g.queue = append(g.queue, job{fn: fn, realID: fn.ID})
	for len(g.queue) > 0 {
		j := g.queue[0]
		g.queue = g.queue[1:]
		if j.array != nil {
			g.emitArrayUnit(j)
		} else {
			g.emitFunction(j)
		}
	}
	return g.units, unitOf(fn), nil
}

func unitOf(fn *ast.FunctionNode) string {
	if fn.CompileUnit == "" {
		return DefaultUnit
	}
	return fn.CompileUnit
}

type generation struct {
	ref   *Reference
	units map[string]*Unit
	queue []job
}

type job struct {
	fn *ast.FunctionNode
	// realID is the id of the nearest function that is not a split
	// fragment; program points belong to it.
	realID int
	array  *arrayJob
}

type arrayJob struct {
	unit     string
	lo, hi   int
	elements []ast.Expression
}

func (g *generation) unit(name string) *Unit {
	u, ok := g.units[name]
	if !ok {
		u = newUnit(name)
		g.units[name] = u
	}
	return u
}

func (g *generation) newEmitter(j job, unit *Unit) *emitter {
	return &emitter{
		g:      g,
		fn:     j.fn,
		realID: j.realID,
		unit:   unit,
		c:      unit.Chunk,
		cont:   g.ref.continuations[j.realID],
	}
}

func (g *generation) emitFunction(j job) {
	fn := j.fn
	u := g.unit(unitOf(fn))
	e := g.newEmitter(j, u)
	e.line, e.col = fn.Token.Line, fn.Token.Column

	idx := len(u.Functions)
	u.Functions = append(u.Functions, FunctionInfo{
		ID:     fn.ID,
		Name:   fn.DisplayName(),
		Params: len(fn.Params),
		Flags:  fn.Flags.Names(),
		Start:  e.c.Len(),
	})
	e.info = idx
	e.op(OP_FUNCTION)
	e.short(idx)
	for _, p := range fn.Params {
		e.noteSlot(p.Symbol)
	}
	e.block(fn.Body)
	if !ast.IsTerminal(fn.Body) {
		e.op(OP_UNDEFINED)
		e.op(OP_RETURN)
	}
	e.op(OP_END_FUNCTION)

	info := &u.Functions[idx]
	info.End = e.c.Len()
	info.Locals = max(e.locals, len(fn.Params))
	if len(e.entries) > 0 {
		info.Entries = e.entries
	}
}

func (g *generation) emitArrayUnit(j job) {
	a := j.array
	u := g.unit(a.unit)
	e := g.newEmitter(j, u)
	e.line, e.col = j.fn.Token.Line, j.fn.Token.Column

	idx := len(u.Functions)
	u.Functions = append(u.Functions, FunctionInfo{
		ID:    -1,
		Name:  fmt.Sprintf("%s$array[%d:%d]", j.fn.DisplayName(), a.lo, a.hi),
		Start: e.c.Len(),
	})
	e.info = idx
	e.op(OP_FUNCTION)
	e.short(idx)
	for _, el := range a.elements {
		e.element(el)
	}
	e.op(OP_END_FUNCTION)
	u.Functions[idx].End = e.c.Len()
}

// Units lists unit names in a stable order, root first.
func Units(out map[string]*Unit, root string) []string {
	names := make([]string, 0, len(out))
	for name := range out {
		if name != root {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := out[root]; ok {
		names = append([]string{root}, names...)
	}
	return names
}
