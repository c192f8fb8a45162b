package split

import (
	"fmt"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/weigh"
	"github.com/rs/zerolog"
)

// Splitter partitions function bodies whose weight reaches the threshold.
// One Splitter serves one compilation; split names are unique within it.
type Splitter struct {
	threshold int
	pool      *UnitPool
	cache     weigh.Cache
	log       zerolog.Logger
	splits    int
}

func NewSplitter(pool *UnitPool, log zerolog.Logger) *Splitter {
	return &Splitter{
		threshold: pool.Threshold(),
		pool:      pool,
		cache:     weigh.Cache{},
		log:       log,
	}
}

// Split splits fn and, independently, every function nested in it. top is
// true for the function a compilation was started for; its code goes to
// the pool's outermost unit.
//
// A function is charged to its unit before its nested functions are
// split. Nested functions weigh the same before and after splitting, so
// the charge is final and nested code may share the unit.
func (s *Splitter) Split(fn *ast.FunctionNode, top bool) *ast.FunctionNode {
	w := weigh.New(fn, s.cache)
	weight := w.Weigh(fn)
	if weight+weigh.FunctionWeight >= s.threshold {
		s.log.Debug().Str("function", fn.DisplayName()).Int("weight", weight).Msg("splitting")
		fn = ast.RewriteFunction(fn, &blockSplitter{s: s, fn: fn, w: w})
		weight = weigh.New(fn, s.cache).Weigh(fn)
	}

	var unit *CompileUnit
	if top {
		unit = s.pool.AddToOutermost(weight + weigh.FunctionWeight)
	} else {
		unit = s.pool.FindUnit(weight + weigh.FunctionWeight)
	}
	fn = s.splitNested(fn)
	return fn.WithCompileUnit(unit.Name).WithState(ast.Split)
}

// splitNested replaces every function nested in fn with its split version.
func (s *Splitter) splitNested(fn *ast.FunctionNode) *ast.FunctionNode {
	return ast.RewriteFunction(fn, &nestedSplitter{s: s, root: fn})
}

type nestedSplitter struct {
	ast.BaseVisitor
	s    *Splitter
	root *ast.FunctionNode
}

func (v *nestedSplitter) Enter(lc *ast.LexicalContext, n ast.Node) bool {
	nested, ok := n.(*ast.FunctionNode)
	if !ok || nested == v.root {
		return true
	}
	if !nested.Is(ast.IsLazyStub) {
		lc.Replace(v.s.Split(nested, false))
	}
	return false
}

// blockSplitter splits the blocks of a single function. It never enters
// catch blocks or nested functions.
type blockSplitter struct {
	ast.BaseVisitor
	s  *Splitter
	fn *ast.FunctionNode
	w  *weigh.Weigher
}

func (v *blockSplitter) Enter(_ *ast.LexicalContext, n ast.Node) bool {
	switch n := n.(type) {
	case *ast.FunctionNode:
		return n == v.fn
	case *ast.CatchNode, *ast.SplitNode:
		return false
	}
	return true
}

func (v *blockSplitter) Leave(lc *ast.LexicalContext, n ast.Node) ast.Node {
	switch n := n.(type) {
	case *ast.Block:
		// Every block ends up in a function or a fragment, both of which
		// carry the function overhead.
		if v.w.Weigh(n)+weigh.FunctionWeight >= v.s.threshold {
			lc.SetFunctionFlag(ast.HasSplits)
			return v.splitBlock(n)
		}
	case *ast.ArrayLiteralNode:
		if len(n.Units) == 0 && v.w.Weigh(n) >= v.s.threshold {
			return v.splitArray(n)
		}
	}
	return n
}

// splitBlock groups the statements of b greedily into split nodes. A run
// is closed when the next statement would take its fragment, function
// overhead included, to the threshold, and before terminal statements and block scoped declarations, which are
// kept outside of any split.
func (v *blockSplitter) splitBlock(b *ast.Block) *ast.Block {
	var out, run []ast.Statement
	runWeight := 0
	flush := func() {
		if len(run) > 0 {
			out = append(out, v.createSplit(run, runWeight))
			run, runWeight = nil, 0
		}
	}
	for _, stmt := range b.Statements {
		w := v.w.Weigh(stmt)
		keepOut := ast.IsTerminal(stmt) || isBlockScopedVar(stmt)
		if runWeight+w+weigh.FunctionWeight >= v.s.threshold || keepOut {
			flush()
		}
		if keepOut {
			out = append(out, stmt)
			continue
		}
		run = append(run, stmt)
		runWeight += w
	}
	flush()
	return b.WithStatements(out)
}

func isBlockScopedVar(s ast.Statement) bool {
	vn, ok := s.(*ast.VarNode)
	return ok && vn.IsBlockScoped()
}

func (v *blockSplitter) createSplit(stmts []ast.Statement, weight int) *ast.SplitNode {
	v.s.splits++
	unit := v.s.pool.FindUnit(weight + weigh.FunctionWeight)
	return &ast.SplitNode{
		Token:  stmts[0].GetToken(),
		Name:   fmt.Sprintf("split$%d", v.s.splits),
		Body:   &ast.Block{Token: stmts[0].GetToken(), Statements: stmts},
		Unit:   unit.Name,
		Weight: weight,
	}
}

// splitArray partitions the elements of a large array literal into index
// ranges, each emitted into its own unit.
func (v *blockSplitter) splitArray(n *ast.ArrayLiteralNode) *ast.ArrayLiteralNode {
	var units []ast.ArrayUnit
	lo, acc := 0, 0
	for i, e := range n.Elements {
		w := v.w.ElementWeight(e)
		if acc+w >= v.s.threshold && i > lo {
			units = append(units, ast.ArrayUnit{Lo: lo, Hi: i, Unit: v.s.pool.FindUnit(acc).Name})
			lo, acc = i, 0
		}
		acc += w
	}
	if lo < len(n.Elements) {
		units = append(units, ast.ArrayUnit{Lo: lo, Hi: len(n.Elements), Unit: v.s.pool.FindUnit(acc).Name})
	}
	return n.WithUnits(units)
}
