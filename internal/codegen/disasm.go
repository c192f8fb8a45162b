package codegen

import (
	"fmt"
	"strings"

	"github.com/funvibe/optijit/internal/ast"
	"github.com/funvibe/optijit/internal/token"
	"github.com/funvibe/optijit/internal/typesystem"
)

// Disassemble returns a human-readable representation of the unit
func Disassemble(u *Unit) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("== %s ==\n", u.Name))

	chunk := u.Chunk
	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(&sb, u, offset)
	}

	return sb.String()
}

// disassembleInstruction disassembles a single instruction
func disassembleInstruction(sb *strings.Builder, u *Unit, offset int) int {
	chunk := u.Chunk
	sb.WriteString(fmt.Sprintf("%04d ", offset))

	// Print line number
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		sb.WriteString("   | ")
	} else {
		sb.WriteString(fmt.Sprintf("%4d ", chunk.Lines[offset]))
	}

	op := Opcode(chunk.Code[offset])
	if op >= opCount {
		sb.WriteString(fmt.Sprintf("Unknown opcode %d\n", op))
		return offset + 1
	}
	sb.WriteString(fmt.Sprintf("%-16s", op))

	next := offset + InstructionLen(op)
	pos := offset + 1
	var parts []string
	for _, k := range operands[op] {
		switch k {
		case opByte:
			v := int(chunk.Code[pos])
			switch op {
			case OP_BINARY, OP_UNARY:
				parts = append(parts, token.Type(v).String())
			case OP_OPTIMISTIC:
				parts = append(parts, typesystem.Type(v).String())
			default:
				parts = append(parts, fmt.Sprintf("%d", v))
			}
		case opSByte:
			parts = append(parts, ast.SplitState{Code: int(int8(chunk.Code[pos]))}.String())
		case opShort:
			parts = append(parts, fmt.Sprintf("%d", chunk.ReadShort(pos)))
		case opConst:
			idx := chunk.ReadShort(pos)
			parts = append(parts, fmt.Sprintf("%d '%s'", idx, constantString(chunk, idx)))
		case opJump:
			parts = append(parts, fmt.Sprintf("-> %04d", next+chunk.ReadShort(pos)))
		case opLoop:
			parts = append(parts, fmt.Sprintf("-> %04d", next-chunk.ReadShort(pos)))
		case opPoint:
			parts = append(parts, fmt.Sprintf("pp %d", chunk.ReadPoint(pos)))
		case opFunction:
			idx := chunk.ReadShort(pos)
			if idx < len(u.Functions) {
				f := u.Functions[idx]
				parts = append(parts, fmt.Sprintf("%s (id %d, params %d, locals %d)", f.Name, f.ID, f.Params, f.Locals))
			} else {
				parts = append(parts, fmt.Sprintf("%d", idx))
			}
		}
		pos += k.width()
	}
	sb.WriteString(strings.TrimRight(" "+strings.Join(parts, " "), " "))
	sb.WriteString("\n")
	return next
}

func constantString(chunk *Chunk, idx int) string {
	if idx >= len(chunk.Constants) {
		return "?"
	}
	if s, ok := chunk.Constants[idx].(string); ok {
		return s
	}
	return ast.LiteralString(chunk.Constants[idx])
}
