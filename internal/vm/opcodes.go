// Package vm implements the bytecode compiler and virtual machine for Lox.
package vm

// Opcode represents a single VM instruction
type Opcode byte

const (
	// Stack manipulation
	OP_CONST Opcode = iota // Push constant from pool (2-byte index)
	OP_NIL                 // Push nil
	OP_TRUE                // Push true
	OP_FALSE               // Push false
	OP_POP                 // Discard top of stack

	// Variables
	OP_GET_LOCAL     // Get local variable by slot
	OP_SET_LOCAL     // Set local variable by slot
	OP_GET_GLOBAL    // Get global variable by name
	OP_DEFINE_GLOBAL // Define global variable by name
	OP_SET_GLOBAL    // Set global variable by name
	OP_GET_UPVALUE   // Get captured variable
	OP_SET_UPVALUE   // Set captured variable

	// Fields and methods
	OP_GET_PROPERTY // Get field or bind method by name
	OP_SET_PROPERTY // Set field by name
	OP_GET_SUPER    // Bind method from the superclass

	// Comparison
	OP_EQUAL   // ==
	OP_GREATER // >
	OP_LESS    // <

	// Arithmetic
	OP_ADD // + (numbers add, strings concatenate)
	OP_SUB // -
	OP_MUL // *
	OP_DIV // /
	OP_NOT // ! (logical negation)
	OP_NEG // Unary minus

	// Statements
	OP_PRINT // Pop and write to the output sink

	// Control flow
	OP_JUMP          // Unconditional forward jump
	OP_JUMP_IF_FALSE // Forward jump if top of stack is falsy
	OP_LOOP          // Jump backward

	// Functions
	OP_CALL          // Call value with N arguments
	OP_INVOKE        // Method call fast path: name + argument count
	OP_SUPER_INVOKE  // super.method(...) fast path
	OP_CLOSURE       // Create closure, capturing upvalues per descriptors
	OP_CLOSE_UPVALUE // Hoist the top stack slot into its open upvalue
	OP_RETURN        // Return from function

	// Classes
	OP_CLASS   // Create class
	OP_INHERIT // Copy superclass methods into subclass
	OP_METHOD  // Define method on the class under construction
)

var opNames = [...]string{
	OP_CONST:         "CONST",
	OP_NIL:           "NIL",
	OP_TRUE:          "TRUE",
	OP_FALSE:         "FALSE",
	OP_POP:           "POP",
	OP_GET_LOCAL:     "GET_LOCAL",
	OP_SET_LOCAL:     "SET_LOCAL",
	OP_GET_GLOBAL:    "GET_GLOBAL",
	OP_DEFINE_GLOBAL: "DEFINE_GLOBAL",
	OP_SET_GLOBAL:    "SET_GLOBAL",
	OP_GET_UPVALUE:   "GET_UPVALUE",
	OP_SET_UPVALUE:   "SET_UPVALUE",
	OP_GET_PROPERTY:  "GET_PROPERTY",
	OP_SET_PROPERTY:  "SET_PROPERTY",
	OP_GET_SUPER:     "GET_SUPER",
	OP_EQUAL:         "EQUAL",
	OP_GREATER:       "GREATER",
	OP_LESS:          "LESS",
	OP_ADD:           "ADD",
	OP_SUB:           "SUB",
	OP_MUL:           "MUL",
	OP_DIV:           "DIV",
	OP_NOT:           "NOT",
	OP_NEG:           "NEG",
	OP_PRINT:         "PRINT",
	OP_JUMP:          "JUMP",
	OP_JUMP_IF_FALSE: "JUMP_IF_FALSE",
	OP_LOOP:          "LOOP",
	OP_CALL:          "CALL",
	OP_INVOKE:        "INVOKE",
	OP_SUPER_INVOKE:  "SUPER_INVOKE",
	OP_CLOSURE:       "CLOSURE",
	OP_CLOSE_UPVALUE: "CLOSE_UPVALUE",
	OP_RETURN:        "RETURN",
	OP_CLASS:         "CLASS",
	OP_INHERIT:       "INHERIT",
	OP_METHOD:        "METHOD",
}

// Name returns the mnemonic for the opcode, or "UNKNOWN" for bytes that are
// not opcodes.
func (op Opcode) Name() string {
	if int(op) >= len(opNames) {
		return "UNKNOWN"
	}
	return opNames[op]
}
