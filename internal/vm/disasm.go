package vm

import (
	"fmt"
	"io"
	"strings"
)

// Disassemble returns a human-readable listing of the chunk.
func Disassemble(chunk *Chunk, name string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "== %s ==\n", name)

	offset := 0
	for offset < len(chunk.Code) {
		offset = disassembleInstruction(&sb, chunk, offset)
	}

	return sb.String()
}

// DisassembleAll disassembles fn and, recursively, every function in its
// constant pool.
func DisassembleAll(fn *ObjFunction) string {
	var sb strings.Builder
	sb.WriteString(Disassemble(fn.Chunk, fn.String()))
	for _, constant := range fn.Chunk.Constants {
		if nested, ok := constant.Obj.(*ObjFunction); constant.IsObj() && ok {
			sb.WriteString(DisassembleAll(nested))
		}
	}
	return sb.String()
}

// disassembleInstruction prints one instruction and returns the offset of
// the next one.
func disassembleInstruction(w io.Writer, chunk *Chunk, offset int) int {
	fmt.Fprintf(w, "%04d ", offset)

	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		fmt.Fprint(w, "   | ")
	} else {
		fmt.Fprintf(w, "%4d ", chunk.Lines[offset])
	}

	op := Opcode(chunk.Code[offset])
	switch op {
	case OP_CONST, OP_GET_GLOBAL, OP_DEFINE_GLOBAL, OP_SET_GLOBAL,
		OP_GET_PROPERTY, OP_SET_PROPERTY, OP_GET_SUPER, OP_CLASS, OP_METHOD:
		return constantInstruction(w, op.Name(), chunk, offset)

	case OP_GET_LOCAL, OP_SET_LOCAL, OP_GET_UPVALUE, OP_SET_UPVALUE, OP_CALL:
		return byteInstruction(w, op.Name(), chunk, offset)

	case OP_JUMP, OP_JUMP_IF_FALSE:
		return jumpInstruction(w, op.Name(), 1, chunk, offset)
	case OP_LOOP:
		return jumpInstruction(w, op.Name(), -1, chunk, offset)

	case OP_INVOKE, OP_SUPER_INVOKE:
		return invokeInstruction(w, op.Name(), chunk, offset)

	case OP_CLOSURE:
		return closureInstruction(w, op.Name(), chunk, offset)

	case OP_NIL, OP_TRUE, OP_FALSE, OP_POP, OP_EQUAL, OP_GREATER, OP_LESS,
		OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_NOT, OP_NEG, OP_PRINT,
		OP_CLOSE_UPVALUE, OP_RETURN, OP_INHERIT:
		return simpleInstruction(w, op.Name(), offset)

	default:
		fmt.Fprintf(w, "Unknown opcode %d\n", op)
		return offset + 1
	}
}

func simpleInstruction(w io.Writer, name string, offset int) int {
	fmt.Fprintf(w, "%s\n", name)
	return offset + 1
}

func constantInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadConstantIndex(offset + 1)
	fmt.Fprintf(w, "%-16s %4d '%s'\n", name, idx, chunk.Constants[idx])
	return offset + 3
}

func byteInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(w, "%-16s %4d\n", name, slot)
	return offset + 2
}

func jumpInstruction(w io.Writer, name string, sign int, chunk *Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(w, "%-16s %4d -> %d\n", name, offset, offset+3+sign*jump)
	return offset + 3
}

func invokeInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadConstantIndex(offset + 1)
	argCount := chunk.Code[offset+3]
	fmt.Fprintf(w, "%-16s (%d args) %4d '%s'\n", name, argCount, idx, chunk.Constants[idx])
	return offset + 4
}

func closureInstruction(w io.Writer, name string, chunk *Chunk, offset int) int {
	idx := chunk.ReadConstantIndex(offset + 1)
	fmt.Fprintf(w, "%-16s %4d %s\n", name, idx, chunk.Constants[idx])
	offset += 3

	fn := chunk.Constants[idx].Obj.(*ObjFunction)
	for i := 0; i < fn.UpvalueCount; i++ {
		kind := "upvalue"
		if chunk.Code[offset] == 1 {
			kind = "local"
		}
		fmt.Fprintf(w, "%04d      |                     %s %d\n", offset, kind, chunk.Code[offset+1])
		offset += 2
	}
	return offset
}
