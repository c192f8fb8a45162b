package compiler

import (
	"sync"
	"time"
)

// PhaseTime is the accumulated duration of one phase.
type PhaseTime struct {
	Phase    string
	Duration time.Duration
	Runs     int
}

// Timing accumulates phase durations. One Timing may be shared by several
// compilers.
type Timing struct {
	mu     sync.Mutex
	phases map[string]*PhaseTime
	order  []string
}

func NewTiming() *Timing {
	return &Timing{phases: make(map[string]*PhaseTime)}
}

// Add records one run of phase.
func (t *Timing) Add(phase string, d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pt, ok := t.phases[phase]
	if !ok {
		pt = &PhaseTime{Phase: phase}
		t.phases[phase] = pt
		t.order = append(t.order, phase)
	}
	pt.Duration += d
	pt.Runs++
}

// Phases returns the accumulated times in first-run order.
func (t *Timing) Phases() []PhaseTime {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]PhaseTime, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.phases[name])
	}
	return out
}

// Total is the sum of all phase durations.
func (t *Timing) Total() time.Duration {
	var total time.Duration
	for _, pt := range t.Phases() {
		total += pt.Duration
	}
	return total
}
