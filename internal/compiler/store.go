package compiler

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/funvibe/optijit/internal/ast"
)

// FunctionStore keeps pruned function trees for on-demand and rest-of
// compiles, keyed by function id. Least recently used trees are evicted,
// except pinned ones: a function installed as a lazy stub has no other
// source for its body, so its tree stays until Unpin.
type FunctionStore struct {
	cache *lru.Cache[int, *ast.FunctionNode]

	mu     sync.Mutex
	pinned map[int]*ast.FunctionNode
}

func NewFunctionStore(size int) (*FunctionStore, error) {
	cache, err := lru.New[int, *ast.FunctionNode](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating function store")
	}
	return &FunctionStore{cache: cache, pinned: map[int]*ast.FunctionNode{}}, nil
}

// Put stores fn, replacing an earlier tree of the same function. A pinned
// function stays pinned.
func (s *FunctionStore) Put(fn *ast.FunctionNode) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pinned[fn.ID]; ok {
		s.pinned[fn.ID] = fn
		return
	}
	s.cache.Add(fn.ID, fn)
}

// Pin stores fn where eviction cannot reach it.
func (s *FunctionStore) Pin(fn *ast.FunctionNode) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(fn.ID)
	s.pinned[fn.ID] = fn
}

// Unpin hands a pinned tree back to the LRU.
func (s *FunctionStore) Unpin(id int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn, ok := s.pinned[id]
	if !ok {
		return
	}
	delete(s.pinned, id)
	s.cache.Add(id, fn)
}

func (s *FunctionStore) Get(id int) (*ast.FunctionNode, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.Lock()
	fn, ok := s.pinned[id]
	s.mu.Unlock()
	if ok {
		return fn, true
	}
	return s.cache.Get(id)
}

func (s *FunctionStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len() + len(s.pinned)
}

// Pinned reports how many trees are exempt from eviction.
func (s *FunctionStore) Pinned() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pinned)
}

// Prune returns fn with every nested function that is not one of its split
// fragments reduced to a lazy stub. Stubs keep their id, parameters and
// symbols; their bodies are compiled from their own stored tree.
func Prune(fn *ast.FunctionNode) *ast.FunctionNode {
	return ast.RewriteFunction(fn, &pruner{})
}

type pruner struct{ ast.BaseVisitor }

func (p *pruner) Enter(lc *ast.LexicalContext, n ast.Node) bool {
	fn, ok := n.(*ast.FunctionNode)
	if !ok || lc.Len() == 1 || fn.Is(ast.IsSplit) {
		return true
	}
	stub := fn.WithBody(ast.NewBlock()).WithFlags(ast.IsLazyStub)
	lc.Replace(stub)
	return false
}

// cacheFunctions stores a pruned copy of every function in the tree. The
// copies carry the root's states, so a later compile enters the pipeline
// where this one left it. With lazy set the nested functions are about to
// become stubs, so their copies are pinned.
func cacheFunctions(store *FunctionStore, root *ast.FunctionNode, lazy bool) {
	for _, fn := range ast.Functions(root) {
		if fn.Is(ast.IsSplit) || fn.Is(ast.IsLazyStub) {
			continue
		}
		c := *Prune(fn)
		c.State = root.State
		if lazy && fn.ID != root.ID {
			store.Pin(&c)
		} else {
			store.Put(&c)
		}
	}
}
