// Package codegen is the reference code generator: it turns a lowered,
// split and typed function tree into one bytecode unit per compile unit.
package codegen

// Opcode represents a single instruction
type Opcode byte

const (
	// Stack manipulation
	OP_CONST     Opcode = iota // Push constant from pool
	OP_UNDEFINED               // Push undefined
	OP_NULL                    // Push null
	OP_TRUE                    // Push true
	OP_FALSE                   // Push false
	OP_HOLE                    // Push an array hole
	OP_POP                     // Discard top of stack
	OP_DUP                     // Duplicate top of stack
	OP_DUP2                    // Duplicate the top two items: [a, b] -> [a, b, a, b]
	OP_SWAP                    // Swap the top two items

	// Operators. The operand is the token type of the operator.
	OP_BINARY // [a, b] -> [a op b]
	OP_UNARY  // [a] -> [op a]

	// Optimistic prefix: type byte and 3-byte program point. Applies to the
	// value produced by the next instruction.
	OP_OPTIMISTIC

	// Variables
	OP_GET_LOCAL  // Get bytecode local by slot
	OP_SET_LOCAL  // Set bytecode local by slot, keeping the value
	OP_GET_SCOPE  // Get scope variable: name constant, depth byte
	OP_SET_SCOPE  // Set scope variable: name constant, depth byte
	OP_GET_GLOBAL // Get global by name constant
	OP_SET_GLOBAL // Set global by name constant
	OP_THIS       // Push the receiver
	OP_ARGUMENTS  // Push the arguments object

	// Properties
	OP_GET_PROP  // [obj] -> [obj.name]
	OP_SET_PROP  // [obj, v] -> [v]
	OP_GET_INDEX // [obj, i] -> [obj[i]]
	OP_SET_INDEX // [obj, i, v] -> [v]

	// Control flow
	OP_JUMP          // Unconditional forward jump
	OP_JUMP_IF_FALSE // Pop condition, jump forward if falsy
	OP_JUMP_IF_TRUE  // Pop condition, jump forward if truthy
	OP_LOOP          // Jump backward

	// Exceptions
	OP_TRY     // Install handler at forward offset
	OP_END_TRY // Remove the innermost handler
	OP_THROW   // Throw top of stack

	// Functions
	OP_CLOSURE    // Create closure from function reference constant
	OP_CALL       // [fn, this, args...] -> [result]
	OP_NEW        // [fn, args...] -> [object]
	OP_CALL_SPLIT // Call split function reference constant: [this, args...] -> [result]
	OP_RETURN     // Return top of stack

	// Split state
	OP_GET_SPLIT_STATE // Push the split state of the enclosing real function
	OP_SET_SPLIT_STATE // Set the split state to a signed byte

	// Literals
	OP_MAKE_ARRAY  // Create array from n stack items
	OP_ARRAY_UNIT  // Push the elements of an array unit: unit constant, lo, hi
	OP_MAKE_OBJECT // Create object from n key/value pairs

	// Unit structure
	OP_FUNCTION     // Start of a function body: function table index
	OP_END_FUNCTION // End of a function body

	opCount
)

// OpcodeNames maps opcodes to their string names (for debugging)
var OpcodeNames = [...]string{
	OP_CONST:           "CONST",
	OP_UNDEFINED:       "UNDEFINED",
	OP_NULL:            "NULL",
	OP_TRUE:            "TRUE",
	OP_FALSE:           "FALSE",
	OP_HOLE:            "HOLE",
	OP_POP:             "POP",
	OP_DUP:             "DUP",
	OP_DUP2:            "DUP2",
	OP_SWAP:            "SWAP",
	OP_BINARY:          "BINARY",
	OP_UNARY:           "UNARY",
	OP_OPTIMISTIC:      "OPTIMISTIC",
	OP_GET_LOCAL:       "GET_LOCAL",
	OP_SET_LOCAL:       "SET_LOCAL",
	OP_GET_SCOPE:       "GET_SCOPE",
	OP_SET_SCOPE:       "SET_SCOPE",
	OP_GET_GLOBAL:      "GET_GLOBAL",
	OP_SET_GLOBAL:      "SET_GLOBAL",
	OP_THIS:            "THIS",
	OP_ARGUMENTS:       "ARGUMENTS",
	OP_GET_PROP:        "GET_PROP",
	OP_SET_PROP:        "SET_PROP",
	OP_GET_INDEX:       "GET_INDEX",
	OP_SET_INDEX:       "SET_INDEX",
	OP_JUMP:            "JUMP",
	OP_JUMP_IF_FALSE:   "JUMP_IF_FALSE",
	OP_JUMP_IF_TRUE:    "JUMP_IF_TRUE",
	OP_LOOP:            "LOOP",
	OP_TRY:             "TRY",
	OP_END_TRY:         "END_TRY",
	OP_THROW:           "THROW",
	OP_CLOSURE:         "CLOSURE",
	OP_CALL:            "CALL",
	OP_NEW:             "NEW",
	OP_CALL_SPLIT:      "CALL_SPLIT",
	OP_RETURN:          "RETURN",
	OP_GET_SPLIT_STATE: "GET_SPLIT_STATE",
	OP_SET_SPLIT_STATE: "SET_SPLIT_STATE",
	OP_MAKE_ARRAY:      "MAKE_ARRAY",
	OP_ARRAY_UNIT:      "ARRAY_UNIT",
	OP_MAKE_OBJECT:     "MAKE_OBJECT",
	OP_FUNCTION:        "FUNCTION",
	OP_END_FUNCTION:    "END_FUNCTION",
}

func (op Opcode) String() string {
	if op < opCount {
		return OpcodeNames[op]
	}
	return "UNKNOWN"
}

// Operand kinds, in encoding order.
type operand uint8

const (
	opByte     operand = iota // 1 byte
	opSByte                   // 1 byte, signed
	opShort                   // 2 bytes
	opConst                   // 2-byte constant index
	opJump                    // 2-byte forward offset from the next instruction
	opLoop                    // 2-byte backward offset from the next instruction
	opPoint                   // 3-byte program point
	opFunction                // 2-byte function table index
)

func (k operand) width() int {
	switch k {
	case opByte, opSByte:
		return 1
	case opPoint:
		return 3
	}
	return 2
}

var operands = [opCount][]operand{
	OP_CONST:           {opConst},
	OP_BINARY:          {opByte},
	OP_UNARY:           {opByte},
	OP_OPTIMISTIC:      {opByte, opPoint},
	OP_GET_LOCAL:       {opShort},
	OP_SET_LOCAL:       {opShort},
	OP_GET_SCOPE:       {opConst, opByte},
	OP_SET_SCOPE:       {opConst, opByte},
	OP_GET_GLOBAL:      {opConst},
	OP_SET_GLOBAL:      {opConst},
	OP_GET_PROP:        {opConst},
	OP_SET_PROP:        {opConst},
	OP_JUMP:            {opJump},
	OP_JUMP_IF_FALSE:   {opJump},
	OP_JUMP_IF_TRUE:    {opJump},
	OP_LOOP:            {opLoop},
	OP_TRY:             {opJump},
	OP_CLOSURE:         {opConst},
	OP_CALL:            {opByte},
	OP_NEW:             {opByte},
	OP_CALL_SPLIT:      {opConst, opByte},
	OP_SET_SPLIT_STATE: {opSByte},
	OP_MAKE_ARRAY:      {opShort},
	OP_ARRAY_UNIT:      {opConst, opShort, opShort},
	OP_MAKE_OBJECT:     {opShort},
	OP_FUNCTION:        {opFunction},
}

// InstructionLen returns the encoded length of op including operands.
func InstructionLen(op Opcode) int {
	n := 1
	if op < opCount {
		for _, k := range operands[op] {
			n += k.width()
		}
	}
	return n
}
