package vm

// Chunk represents a compiled sequence of bytecode instructions. It is
// owned by the function it belongs to and never mutates once compilation
// finishes.
type Chunk struct {
	// Code is the bytecode instructions
	Code []byte

	// Constants pool - literals, variable names, nested functions
	Constants []Value

	// Lines maps bytecode offset to source line number (for errors)
	Lines []int
}

// NewChunk creates a new empty chunk
func NewChunk() *Chunk {
	return &Chunk{
		Code:      make([]byte, 0, 256),
		Constants: make([]Value, 0, 16),
		Lines:     make([]int, 0, 256),
	}
}

// Write adds a byte to the chunk with line info
func (c *Chunk) Write(b byte, line int) {
	c.Code = append(c.Code, b)
	c.Lines = append(c.Lines, line)
}

// WriteOp writes an opcode to the chunk
func (c *Chunk) WriteOp(op Opcode, line int) {
	c.Write(byte(op), line)
}

// AddConstant adds a constant to the pool and returns its index. Identical
// literals share one pool slot: numbers compare by value, strings by
// interned identity. Function constants are always appended.
func (c *Chunk) AddConstant(value Value) int {
	if value.Type == ValNumber || value.IsString() {
		for i, existing := range c.Constants {
			if existing.Equals(value) {
				return i
			}
		}
	}
	c.Constants = append(c.Constants, value)
	return len(c.Constants) - 1
}

// ReadConstantIndex reads a 2-byte constant index at offset
func (c *Chunk) ReadConstantIndex(offset int) int {
	return int(c.Code[offset])<<8 | int(c.Code[offset+1])
}

// Len returns the number of bytes in the chunk
func (c *Chunk) Len() int {
	return len(c.Code)
}

// Line returns the source line for the instruction at offset.
func (c *Chunk) Line(offset int) int {
	if offset < 0 || offset >= len(c.Lines) {
		return 0
	}
	return c.Lines[offset]
}
