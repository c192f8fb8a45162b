// Package split keeps compile units below the size threshold: the Splitter
// partitions oversized blocks into split nodes, and SplitIntoFunctions
// turns every split node into a separately compiled function.
package split

import (
	"fmt"
	"sync"
)

// CompileUnit is a weight-bounded bucket of generated code.
type CompileUnit struct {
	Name   string
	Weight int
}

// CanHold reports whether w more weight keeps the unit below threshold.
func (u *CompileUnit) CanHold(w, threshold int) bool {
	return u.Weight+w < threshold
}

// UnitPool allocates compile units first-fit. The outermost unit of a top
// level compile is reserved for the function itself. FindUnit offers it
// only once AddToOutermost has charged the function's weight.
type UnitPool struct {
	mu        sync.Mutex
	base      string
	threshold int
	outermost *CompileUnit
	charged   bool
	units     []*CompileUnit
	byName    map[string]*CompileUnit
}

// NewUnitPool creates a pool whose units are named <base>$cu<N>.
func NewUnitPool(base string, threshold int) *UnitPool {
	return &UnitPool{base: base, threshold: threshold, byName: map[string]*CompileUnit{}}
}

func (p *UnitPool) Threshold() int { return p.threshold }

func (p *UnitPool) newUnit() *CompileUnit {
	u := &CompileUnit{Name: fmt.Sprintf("%s$cu%d", p.base, len(p.byName)+1)}
	p.byName[u.Name] = u
	return u
}

// Outermost returns the reserved unit, creating it on first use.
func (p *UnitPool) Outermost() *CompileUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outermost == nil {
		p.outermost = p.newUnit()
	}
	return p.outermost
}

// AddToOutermost adds weight to the reserved unit.
func (p *UnitPool) AddToOutermost(weight int) *CompileUnit {
	u := p.Outermost()
	p.mu.Lock()
	u.Weight += weight
	p.charged = true
	p.mu.Unlock()
	return u
}

// FindUnit returns the first unit that can still hold weight, allocating a
// new one when none can, and adds weight to it.
func (p *UnitPool) FindUnit(weight int) *CompileUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.charged && p.outermost.CanHold(weight, p.threshold) {
		p.outermost.Weight += weight
		return p.outermost
	}
	for _, u := range p.units {
		if u.CanHold(weight, p.threshold) {
			u.Weight += weight
			return u
		}
	}
	u := p.newUnit()
	u.Weight = weight
	p.units = append(p.units, u)
	return u
}

// Reuse registers units from an earlier compile of the same function so a
// recompile emits into them instead of allocating new ones. The recompile
// regenerates all of their code, so they start out empty.
func (p *UnitPool) Reuse(units []CompileUnit, outermost string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cu := range units {
		u := &CompileUnit{Name: cu.Name}
		p.byName[u.Name] = u
		if u.Name == outermost {
			p.outermost = u
		} else {
			p.units = append(p.units, u)
		}
	}
}

// Get returns the named unit.
func (p *UnitPool) Get(name string) (*CompileUnit, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.byName[name]
	return u, ok
}

// Units returns a snapshot of every unit, the outermost first.
func (p *UnitPool) Units() []CompileUnit {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []CompileUnit
	if p.outermost != nil {
		out = append(out, *p.outermost)
	}
	for _, u := range p.units {
		out = append(out, *u)
	}
	return out
}
