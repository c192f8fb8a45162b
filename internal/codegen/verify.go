package codegen

import "fmt"

// VerifyError reports generated code that a loader would reject.
type VerifyError struct {
	Unit   string
	Offset int
	Reason string
}

func (e *VerifyError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("unit %s: %s", e.Unit, e.Reason)
	}
	return fmt.Sprintf("unit %s at %04d: %s", e.Unit, e.Offset, e.Reason)
}

// Verify checks that every instruction of u decodes, every operand is in
// range, function markers are balanced and the unit fits the size limit.
func Verify(u *Unit) error {
	fail := func(off int, format string, args ...any) error {
		return &VerifyError{Unit: u.Name, Offset: off, Reason: fmt.Sprintf(format, args...)}
	}
	c := u.Chunk
	if c == nil {
		return fail(-1, "missing chunk")
	}
	if c.Len() > MaxUnitSize {
		return fail(-1, "%d bytes exceeds the unit limit of %d", c.Len(), MaxUnitSize)
	}
	if len(c.Lines) != c.Len() || len(c.Columns) != c.Len() {
		return fail(-1, "line table covers %d of %d bytes", len(c.Lines), c.Len())
	}

	starts := make(map[int]bool)
	type jumpRef struct{ from, to int }
	var jumps []jumpRef
	current := -1
	seen := make(map[int]bool)
	for off := 0; off < c.Len(); {
		op := Opcode(c.Code[off])
		if op >= opCount {
			return fail(off, "invalid opcode %d", op)
		}
		size := InstructionLen(op)
		if off+size > c.Len() {
			return fail(off, "%s operands run past the end", op)
		}
		starts[off] = true
		if current < 0 && op != OP_FUNCTION {
			return fail(off, "%s outside a function", op)
		}
		next := off + size
		pos := off + 1
		for _, k := range operands[op] {
			switch k {
			case opConst:
				if idx := c.ReadShort(pos); idx >= len(c.Constants) {
					return fail(off, "%s constant %d of %d", op, idx, len(c.Constants))
				}
			case opJump:
				jumps = append(jumps, jumpRef{off, next + c.ReadShort(pos)})
			case opLoop:
				jumps = append(jumps, jumpRef{off, next - c.ReadShort(pos)})
			case opFunction:
				idx := c.ReadShort(pos)
				if idx >= len(u.Functions) {
					return fail(off, "function %d of %d", idx, len(u.Functions))
				}
				if seen[idx] {
					return fail(off, "function %d emitted twice", idx)
				}
				if u.Functions[idx].Start != off {
					return fail(off, "function %d starts at %d", idx, u.Functions[idx].Start)
				}
				seen[idx] = true
			}
			pos += k.width()
		}
		switch op {
		case OP_FUNCTION:
			if current >= 0 {
				return fail(off, "function %d starts inside function %d", c.ReadShort(off+1), current)
			}
			current = c.ReadShort(off + 1)
		case OP_END_FUNCTION:
			if u.Functions[current].End != next {
				return fail(off, "function %d ends at %d", current, u.Functions[current].End)
			}
			current = -1
		}
		off = next
	}
	if current >= 0 {
		return fail(c.Len(), "function %d is not closed", current)
	}
	if len(seen) != len(u.Functions) {
		return fail(-1, "%d functions in the table, %d in the code", len(u.Functions), len(seen))
	}
	for _, j := range jumps {
		if j.to < 0 || j.to > c.Len() || (j.to < c.Len() && !starts[j.to]) {
			return fail(j.from, "jump to %d is not an instruction boundary", j.to)
		}
		if fn := functionAt(u, j.from); fn != functionAt(u, j.to) && !(j.to == u.Functions[fn].End) {
			return fail(j.from, "jump to %d leaves the function", j.to)
		}
	}
	for _, f := range u.Functions {
		for pp, off := range f.Entries {
			if !starts[off] || Opcode(c.Code[off]) != OP_OPTIMISTIC || c.ReadPoint(off+2) != pp {
				return fail(off, "entry for program point %d", pp)
			}
		}
	}
	return nil
}

func functionAt(u *Unit, off int) int {
	for i, f := range u.Functions {
		if off >= f.Start && off < f.End {
			return i
		}
	}
	return -1
}
