package codegen

// Chunk represents a sequence of bytecode instructions
type Chunk struct {
	// Code is the bytecode instructions
	Code []byte

	// Constants pool: int32, float64, bool and string values. Names and
	// function references are strings.
	Constants []any

	// Lines maps bytecode offset to source line number (for errors)
	Lines []int

	// Columns maps bytecode offset to source column number (for errors)
	Columns []int

	constIndex map[any]int
}

// NewChunk creates a new empty chunk
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]any, 0, 64),
		Lines:     make([]int, 0, 256),
		Columns:   make([]int, 0, 256),
	}
}

// WriteWithCol adds a byte to the chunk with line and column info
func (c *Chunk) WriteWithCol(b byte, line, col int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
	c.Columns = append(c.Columns, col)
}

// WriteOp writes an opcode to the chunk
func (c *Chunk) WriteOp(op Opcode, line, col int) {
	c.WriteWithCol(byte(op), line, col)
}

// WriteShort writes a 2-byte big endian operand
func (c *Chunk) WriteShort(v int, line, col int) {
	c.WriteWithCol(byte(v>>8), line, col)
	c.WriteWithCol(byte(v), line, col)
}

// AddConstant adds a constant to the pool and returns its index. Equal
// constants share one slot.
func (c *Chunk) AddConstant(value any) int {
	if c.constIndex == nil {
		c.constIndex = make(map[any]int)
		for i, v := range c.Constants {
			c.constIndex[v] = i
		}
	}
	if i, ok := c.constIndex[value]; ok {
		return i
	}
	c.Constants = append(c.Constants, value)
	c.constIndex[value] = len(c.Constants) - 1
	return len(c.Constants) - 1
}

// ReadShort reads a 2-byte operand at offset
func (c *Chunk) ReadShort(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// ReadPoint reads a 3-byte program point at offset
func (c *Chunk) ReadPoint(offset int) int {
	return int(c.Code[offset])<<16 | int(c.Code[offset+1])<<8 | int(c.Code[offset+2])
}

// Len returns the number of bytes in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}
