package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/loxvm/glox/internal/config"
)

// Initial size for the value stack; it grows on demand up to MaxStackSize.
const InitialStackSize = 256

// MaxStackSize bounds the operand stack.
const MaxStackSize = 65536

// MaxFrameCount bounds call depth; exceeding it is a stack overflow.
const MaxFrameCount = 256

var errStackOverflow = errors.New("stack overflow")

// Result is the terminal status of one Interpret call.
type Result int

const (
	ResultOK Result = iota
	ResultCompileError
	ResultRuntimeError
)

// CompileError aggregates the diagnostics of a failed compilation.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	lines := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// RuntimeError carries the failure message, the source line of the
// faulting instruction, and the active call chain at the point of failure.
type RuntimeError struct {
	Message string
	Line    int
	Trace   []string // innermost first, "[line N] in fn()" / "in script"
}

func (e *RuntimeError) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Trace, "\n")
}

// CallFrame represents a single ongoing function call
type CallFrame struct {
	closure *ObjClosure // The closure being executed
	chunk   *Chunk      // Shortcut to closure.Function.Chunk
	ip      int         // Instruction pointer within this frame's chunk
	base    int         // Where this frame's slot zero lives on the stack
}

// VM executes compiled chunks. It holds the only mutable interpreter
// state: the value stack, call frames, globals, and open upvalues. Several
// independent VMs can coexist, each with its own heap.
type VM struct {
	heap *Heap

	stack []Value
	sp    int // next free slot

	frames     []CallFrame
	frameCount int
	frame      *CallFrame // current frame, frames[frameCount-1]

	globals map[*ObjString]Value

	// Open upvalues still aliasing stack slots, sorted by slot descending.
	openUpvalues *ObjUpvalue

	// initString is the interned "init", looked up on every instantiation.
	initString *ObjString

	// Output sink for print. Defaults to os.Stdout.
	out io.Writer

	traceExecution bool
	traceCompile   bool
	traceOut       io.Writer
}

// New creates a VM on the given heap and registers it as a GC root.
func New(heap *Heap) *VM {
	vm := &VM{
		heap:     heap,
		stack:    make([]Value, InitialStackSize),
		frames:   make([]CallFrame, MaxFrameCount),
		globals:  make(map[*ObjString]Value),
		out:      os.Stdout,
		traceOut: os.Stderr,
	}
	heap.AddRoot(vm)
	vm.initString = heap.NewString("init")
	vm.defineNatives()
	return vm
}

// SetOutput redirects print output. The caller controls where printed
// text goes.
func (vm *VM) SetOutput(w io.Writer) {
	vm.out = w
}

// SetTrace enables the diagnostic dumps configured by cfg.
func (vm *VM) SetTrace(cfg config.TraceConfig) {
	vm.traceExecution = cfg.Execution
	vm.traceCompile = cfg.Compile
}

// SetTraceOutput redirects trace dumps, for tests.
func (vm *VM) SetTraceOutput(w io.Writer) {
	vm.traceOut = w
}

// MarkRoots marks every value the VM can still reach: the live stack, the
// globals table, each frame's closure, and the open upvalue list.
func (vm *VM) MarkRoots(h *Heap) {
	for i := 0; i < vm.sp; i++ {
		h.MarkValue(vm.stack[i])
	}
	for name, value := range vm.globals {
		h.MarkObject(name)
		h.MarkValue(value)
	}
	for i := 0; i < vm.frameCount; i++ {
		h.MarkObject(vm.frames[i].closure)
	}
	for upvalue := vm.openUpvalues; upvalue != nil; upvalue = upvalue.Next {
		h.MarkObject(upvalue)
	}
	if vm.initString != nil {
		h.MarkObject(vm.initString)
	}
}

// Interpret compiles and runs source to completion. The error is a
// *CompileError or *RuntimeError matching the returned Result.
func (vm *VM) Interpret(source string) (Result, error) {
	fn, diagnostics := Compile(source, vm.heap)
	if fn == nil {
		return ResultCompileError, &CompileError{Diagnostics: diagnostics}
	}

	if vm.traceCompile {
		fmt.Fprint(vm.traceOut, DisassembleAll(fn))
	}

	vm.resetStack()
	vm.push(ObjVal(fn)) // keep fn alive while the closure is allocated
	closure := vm.heap.NewClosure(fn)
	vm.pop()
	vm.push(ObjVal(closure))
	if err := vm.callClosure(closure, 0); err != nil {
		return ResultRuntimeError, err
	}

	if err := vm.run(); err != nil {
		var runtimeErr *RuntimeError
		if errors.As(err, &runtimeErr) {
			return ResultRuntimeError, err
		}
		return ResultRuntimeError, vm.runtimeError("%s", err)
	}
	return ResultOK, nil
}

func (vm *VM) resetStack() {
	vm.sp = 0
	vm.frameCount = 0
	vm.frame = nil
	vm.openUpvalues = nil
}

// run is the dispatch loop. It executes one instruction at a time until
// the top-level frame returns or a runtime error unwinds everything.
func (vm *VM) run() (err error) {
	// The stack helpers panic on overflow; surface that as a runtime error
	// like any other.
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, errStackOverflow) {
				err = vm.runtimeError("Stack overflow.")
				return
			}
			panic(r)
		}
	}()

	for {
		if vm.traceExecution {
			vm.traceStack()
			disassembleInstruction(vm.traceOut, vm.frame.chunk, vm.frame.ip)
		}

		op := Opcode(vm.readByte())
		switch op {
		case OP_CONST:
			vm.push(vm.readConstant())
		case OP_NIL:
			vm.push(NilVal())
		case OP_TRUE:
			vm.push(BoolVal(true))
		case OP_FALSE:
			vm.push(BoolVal(false))
		case OP_POP:
			vm.pop()

		case OP_GET_LOCAL:
			slot := int(vm.readByte())
			vm.push(vm.stack[vm.frame.base+slot])
		case OP_SET_LOCAL:
			slot := int(vm.readByte())
			vm.stack[vm.frame.base+slot] = vm.peek(0)

		case OP_GET_GLOBAL:
			name := vm.readString()
			value, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(value)
		case OP_DEFINE_GLOBAL:
			name := vm.readString()
			vm.globals[name] = vm.peek(0)
			vm.pop()
		case OP_SET_GLOBAL:
			name := vm.readString()
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)

		case OP_GET_UPVALUE:
			slot := int(vm.readByte())
			upvalue := vm.frame.closure.Upvalues[slot]
			if upvalue.Location >= 0 {
				vm.push(vm.stack[upvalue.Location])
			} else {
				vm.push(upvalue.Closed)
			}
		case OP_SET_UPVALUE:
			slot := int(vm.readByte())
			upvalue := vm.frame.closure.Upvalues[slot]
			if upvalue.Location >= 0 {
				vm.stack[upvalue.Location] = vm.peek(0)
			} else {
				upvalue.Closed = vm.peek(0)
			}

		case OP_GET_PROPERTY:
			instance, ok := vm.peek(0).Obj.(*ObjInstance)
			if !vm.peek(0).IsObj() || !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := vm.readString()
			if value, found := instance.Fields[name]; found {
				vm.pop() // instance
				vm.push(value)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return err
			}
		case OP_SET_PROPERTY:
			instance, ok := vm.peek(1).Obj.(*ObjInstance)
			if !vm.peek(1).IsObj() || !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := vm.readString()
			instance.Fields[name] = vm.peek(0)
			value := vm.pop()
			vm.pop() // instance
			vm.push(value)
		case OP_GET_SUPER:
			name := vm.readString()
			superclass := vm.pop().Obj.(*ObjClass)
			if err := vm.bindMethod(superclass, name); err != nil {
				return err
			}

		case OP_EQUAL:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolVal(a.Equals(b)))
		case OP_GREATER:
			if err := vm.binaryCompare(op); err != nil {
				return err
			}
		case OP_LESS:
			if err := vm.binaryCompare(op); err != nil {
				return err
			}

		case OP_ADD:
			if err := vm.add(); err != nil {
				return err
			}
		case OP_SUB, OP_MUL, OP_DIV:
			if err := vm.binaryArith(op); err != nil {
				return err
			}
		case OP_NOT:
			vm.push(BoolVal(vm.pop().IsFalsy()))
		case OP_NEG:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(NumberVal(-vm.pop().AsNumber()))

		case OP_PRINT:
			fmt.Fprintln(vm.out, vm.pop())

		case OP_JUMP:
			offset := vm.readShort()
			vm.frame.ip += offset
		case OP_JUMP_IF_FALSE:
			offset := vm.readShort()
			if vm.peek(0).IsFalsy() {
				vm.frame.ip += offset
			}
		case OP_LOOP:
			offset := vm.readShort()
			vm.frame.ip -= offset

		case OP_CALL:
			argCount := int(vm.readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
		case OP_INVOKE:
			name := vm.readString()
			argCount := int(vm.readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return err
			}
		case OP_SUPER_INVOKE:
			name := vm.readString()
			argCount := int(vm.readByte())
			superclass := vm.pop().Obj.(*ObjClass)
			if err := vm.invokeFromClass(superclass, name, argCount); err != nil {
				return err
			}

		case OP_CLOSURE:
			fn := vm.readConstant().Obj.(*ObjFunction)
			closure := vm.heap.NewClosure(fn)
			vm.push(ObjVal(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte() == 1
				index := int(vm.readByte())
				if isLocal {
					closure.Upvalues[i] = vm.captureUpvalue(vm.frame.base + index)
				} else {
					closure.Upvalues[i] = vm.frame.closure.Upvalues[index]
				}
			}
		case OP_CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case OP_RETURN:
			result := vm.pop()
			vm.closeUpvalues(vm.frame.base)
			base := vm.frame.base
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the script closure
				return nil
			}
			vm.sp = base
			vm.frame = &vm.frames[vm.frameCount-1]
			vm.push(result)

		case OP_CLASS:
			vm.push(ObjVal(vm.heap.NewClass(vm.readString())))
		case OP_INHERIT:
			superclass, ok := vm.peek(1).Obj.(*ObjClass)
			if !vm.peek(1).IsObj() || !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).Obj.(*ObjClass)
			// Copy-down inheritance: later OP_METHODs override by
			// redefinition.
			for name, method := range superclass.Methods {
				subclass.Methods[name] = method
			}
			vm.pop() // subclass
		case OP_METHOD:
			name := vm.readString()
			method := vm.peek(0)
			class := vm.peek(1).Obj.(*ObjClass)
			class.Methods[name] = method
			vm.pop()

		default:
			return vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

// add implements +: numeric addition or string concatenation. Operands are
// peeked before the result is allocated so a collection triggered by the
// allocation still sees them as roots.
func (vm *VM) add() error {
	a := vm.peek(1)
	b := vm.peek(0)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(NumberVal(a.AsNumber() + b.AsNumber()))
	case a.IsString() && b.IsString():
		result := vm.heap.NewString(a.AsString().Chars + b.AsString().Chars)
		vm.pop()
		vm.pop()
		vm.push(ObjVal(result))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func (vm *VM) binaryArith(op Opcode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	switch op {
	case OP_SUB:
		vm.push(NumberVal(a - b))
	case OP_MUL:
		vm.push(NumberVal(a * b))
	case OP_DIV:
		// IEEE semantics: division by zero yields an infinity or NaN.
		vm.push(NumberVal(a / b))
	}
	return nil
}

func (vm *VM) binaryCompare(op Opcode) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	if op == OP_GREATER {
		vm.push(BoolVal(a > b))
	} else {
		vm.push(BoolVal(a < b))
	}
	return nil
}

// Stack operations

func (vm *VM) push(value Value) {
	if vm.sp >= len(vm.stack) {
		if vm.sp >= MaxStackSize {
			panic(errStackOverflow)
		}
		grown := make([]Value, len(vm.stack)*2)
		copy(grown, vm.stack[:vm.sp])
		vm.stack = grown
	}
	vm.stack[vm.sp] = value
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) Value {
	return vm.stack[vm.sp-1-distance]
}

// Read helpers

func (vm *VM) readByte() byte {
	b := vm.frame.chunk.Code[vm.frame.ip]
	vm.frame.ip++
	return b
}

func (vm *VM) readShort() int {
	high := vm.readByte()
	low := vm.readByte()
	return int(high)<<8 | int(low)
}

func (vm *VM) readConstant() Value {
	idx := vm.readShort()
	return vm.frame.chunk.Constants[idx]
}

func (vm *VM) readString() *ObjString {
	return vm.readConstant().Obj.(*ObjString)
}

// runtimeError builds a RuntimeError for the current instruction, walks
// the frame stack for the trace, and resets the VM.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	message := fmt.Sprintf(format, args...)

	line := 0
	if vm.frame != nil {
		line = vm.frame.chunk.Line(vm.frame.ip - 1)
	}

	var trace []string
	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		frameLine := fn.Chunk.Line(frame.ip - 1)
		if fn.Name == nil {
			trace = append(trace, fmt.Sprintf("[line %d] in script", frameLine))
		} else {
			trace = append(trace, fmt.Sprintf("[line %d] in %s()", frameLine, fn.Name.Chars))
		}
	}

	vm.resetStack()
	return &RuntimeError{Message: message, Line: line, Trace: trace}
}

func (vm *VM) traceStack() {
	fmt.Fprint(vm.traceOut, "          ")
	for i := 0; i < vm.sp; i++ {
		fmt.Fprintf(vm.traceOut, "[ %s ]", vm.stack[i])
	}
	fmt.Fprintln(vm.traceOut)
}
