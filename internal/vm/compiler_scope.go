package vm

// Per-function compile-time limits. Slot and upvalue operands are single
// bytes; constant indexes are two bytes.
const (
	maxLocals    = 256
	maxUpvalues  = 256
	maxConstants = 65536
	maxArgs      = 255
	maxJump      = 0xffff
)

// Local represents a local variable during compilation
type Local struct {
	Name       string
	Depth      int  // Scope depth where this local was declared; -1 until initialized
	IsCaptured bool // True if captured by a nested function (needs to become upvalue)
}

// Upvalue records how a nested function captures a variable from an
// enclosing scope.
type Upvalue struct {
	Index   uint8 // Index of the local slot or upvalue in the enclosing function
	IsLocal bool  // True if capturing an enclosing local, false for an enclosing upvalue
}

// beginScope starts a new scope
func (c *Compiler) beginScope() {
	c.scopeDepth++
}

// endScope ends the current scope and emits cleanup code. Captured locals
// are hoisted to the heap instead of being discarded.
func (c *Compiler) endScope() {
	c.scopeDepth--

	for c.localCount > 0 && c.locals[c.localCount-1].Depth > c.scopeDepth {
		if c.locals[c.localCount-1].IsCaptured {
			c.emit(OP_CLOSE_UPVALUE)
		} else {
			c.emit(OP_POP)
		}
		c.localCount--
	}
}

// addLocal declares a local in the current scope. The local stays
// uninitialized (depth -1) until defineVariable marks it, so its own
// initializer cannot read it.
func (c *Compiler) addLocal(name string) {
	if c.localCount >= maxLocals {
		c.parser.error("Too many local variables in function.")
		return
	}
	c.locals[c.localCount] = Local{Name: name, Depth: -1}
	c.localCount++
}

func (c *Compiler) markInitialized() {
	if c.scopeDepth == 0 {
		return
	}
	c.locals[c.localCount-1].Depth = c.scopeDepth
}

// resolveLocal looks up a local variable by name, innermost first.
func (c *Compiler) resolveLocal(name string) int {
	for i := c.localCount - 1; i >= 0; i-- {
		if c.locals[i].Name == name {
			if c.locals[i].Depth == -1 {
				c.parser.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue looks for a variable in enclosing function scopes. When
// found, the capture is recorded on every compiler between here and the
// declaring function, chaining outer-upvalue captures.
func (c *Compiler) resolveUpvalue(name string) int {
	if c.enclosing == nil {
		return -1
	}

	if local := c.enclosing.resolveLocal(name); local != -1 {
		c.enclosing.locals[local].IsCaptured = true
		return c.addUpvalue(uint8(local), true)
	}

	if upvalue := c.enclosing.resolveUpvalue(name); upvalue != -1 {
		return c.addUpvalue(uint8(upvalue), false)
	}

	return -1
}

// addUpvalue adds an upvalue to this function's capture list, reusing an
// existing entry for the same variable.
func (c *Compiler) addUpvalue(index uint8, isLocal bool) int {
	count := c.function.UpvalueCount
	for i := 0; i < count; i++ {
		if c.upvalues[i].Index == index && c.upvalues[i].IsLocal == isLocal {
			return i
		}
	}

	if count >= maxUpvalues {
		c.parser.error("Too many closure variables in function.")
		return 0
	}

	c.upvalues[count] = Upvalue{Index: index, IsLocal: isLocal}
	c.function.UpvalueCount++
	return count
}

// emit helpers

func (c *Compiler) currentChunk() *Chunk {
	return c.function.Chunk
}

func (c *Compiler) emit(op Opcode) {
	c.currentChunk().WriteOp(op, c.parser.previous.Line)
}

func (c *Compiler) emitByte(b byte) {
	c.currentChunk().Write(b, c.parser.previous.Line)
}

func (c *Compiler) emitOpByte(op Opcode, b byte) {
	c.emit(op)
	c.emitByte(b)
}

// makeConstant interns value in the chunk's constant pool and returns its
// index.
func (c *Compiler) makeConstant(value Value) int {
	idx := c.currentChunk().AddConstant(value)
	if idx >= maxConstants {
		c.parser.error("Too many constants in one chunk.")
		return 0
	}
	return idx
}

// emitOpConstant writes op followed by a 2-byte constant index.
func (c *Compiler) emitOpConstant(op Opcode, idx int) {
	c.emit(op)
	c.emitByte(byte(idx >> 8))
	c.emitByte(byte(idx))
}

func (c *Compiler) emitConstant(value Value) {
	c.emitOpConstant(OP_CONST, c.makeConstant(value))
}

// emitJump writes op with a placeholder 2-byte offset and returns the
// offset's position for patchJump.
func (c *Compiler) emitJump(op Opcode) int {
	c.emit(op)
	c.emitByte(0xff)
	c.emitByte(0xff)
	return c.currentChunk().Len() - 2
}

// patchJump back-patches a forward jump to land on the next instruction to
// be emitted.
func (c *Compiler) patchJump(offset int) {
	jump := c.currentChunk().Len() - offset - 2

	if jump > maxJump {
		c.parser.error("Too much code to jump over.")
		jump = 0
	}

	c.currentChunk().Code[offset] = byte(jump >> 8)
	c.currentChunk().Code[offset+1] = byte(jump)
}

// emitLoop writes a backward jump to loopStart.
func (c *Compiler) emitLoop(loopStart int) {
	c.emit(OP_LOOP)

	offset := c.currentChunk().Len() - loopStart + 2
	if offset > maxJump {
		c.parser.error("Loop body too large.")
		offset = 0
	}

	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

// emitReturn writes the implicit return: nil for functions, the receiver
// for initializers.
func (c *Compiler) emitReturn() {
	if c.funcType == TYPE_INITIALIZER {
		c.emitOpByte(OP_GET_LOCAL, 0)
	} else {
		c.emit(OP_NIL)
	}
	c.emit(OP_RETURN)
}
