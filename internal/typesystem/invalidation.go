package typesystem

import "sort"

// InvalidationMap records, per program point, the type that a previous
// execution proved the speculation wrong with. Entries only ever widen.
type InvalidationMap map[int]Type

// Get returns the recorded type of pp.
func (m InvalidationMap) Get(pp int) (Type, bool) {
	t, ok := m[pp]
	return t, ok
}

// Add widens the entry for pp to include t and reports whether the map
// changed.
func (m InvalidationMap) Add(pp int, t Type) bool {
	old, ok := m[pp]
	nt := Widest(old, t)
	if ok && nt == old {
		return false
	}
	m[pp] = nt
	return true
}

// Merge widens m with every entry of other and reports whether m changed.
func (m InvalidationMap) Merge(other InvalidationMap) bool {
	changed := false
	for pp, t := range other {
		if m.Add(pp, t) {
			changed = true
		}
	}
	return changed
}

// Clone returns an independent copy.
func (m InvalidationMap) Clone() InvalidationMap {
	c := make(InvalidationMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Points returns the program points in ascending order.
func (m InvalidationMap) Points() []int {
	pps := make([]int, 0, len(m))
	for pp := range m {
		pps = append(pps, pp)
	}
	sort.Ints(pps)
	return pps
}
