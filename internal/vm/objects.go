package vm

import "fmt"

// ObjType identifies a heap object variant.
type ObjType string

const (
	STRING_OBJ       ObjType = "STRING"
	FUNCTION_OBJ     ObjType = "FUNCTION"
	NATIVE_OBJ       ObjType = "NATIVE"
	CLOSURE_OBJ      ObjType = "CLOSURE"
	UPVALUE_OBJ      ObjType = "UPVALUE"
	CLASS_OBJ        ObjType = "CLASS"
	INSTANCE_OBJ     ObjType = "INSTANCE"
	BOUND_METHOD_OBJ ObjType = "BOUND_METHOD"
)

// gcHeader is embedded in every heap object. It links the object into the
// heap's all-objects list and carries the mark bit for collection.
type gcHeader struct {
	marked bool
	next   Obj
	size   int
}

func (h *gcHeader) header() *gcHeader { return h }

// Obj is a heap-allocated object. All variants are allocated through the
// Heap, which owns them collectively; Values hold non-owning references.
type Obj interface {
	header() *gcHeader
	Type() ObjType
	String() string
}

// ObjString is an immutable, interned string. Two strings with equal
// contents are the same heap object, so equality is pointer equality.
type ObjString struct {
	gcHeader
	Chars string
}

func (s *ObjString) Type() ObjType  { return STRING_OBJ }
func (s *ObjString) String() string { return s.Chars }

// ObjFunction is a compiled function body. Immutable after compilation.
type ObjFunction struct {
	gcHeader
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString // nil for the top-level script
}

func (f *ObjFunction) Type() ObjType { return FUNCTION_OBJ }
func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a host function exposed to Lox code.
type NativeFn func(args []Value) Value

// ObjNative wraps a Go function as a Lox callable.
type ObjNative struct {
	gcHeader
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *ObjNative) Type() ObjType  { return NATIVE_OBJ }
func (n *ObjNative) String() string { return "<native fn>" }

// ObjClosure pairs a function with the upvalues it captured. One is created
// each time a function expression is evaluated.
type ObjClosure struct {
	gcHeader
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Type() ObjType  { return CLOSURE_OBJ }
func (c *ObjClosure) String() string { return c.Function.String() }

// ObjUpvalue is a relocatable reference to a captured variable. While the
// declaring frame is live it is "open" and Location indexes the VM stack;
// when the frame exits it is closed by copying the value into Closed.
// Location is -1 once closed. An upvalue never reopens.
type ObjUpvalue struct {
	gcHeader
	Location int
	Closed   Value

	// Next links the VM's open-upvalue list, sorted by Location descending.
	Next *ObjUpvalue
}

func (u *ObjUpvalue) Type() ObjType  { return UPVALUE_OBJ }
func (u *ObjUpvalue) String() string { return "upvalue" }

// ObjClass holds a name and a method table. Methods are closures keyed by
// interned name.
type ObjClass struct {
	gcHeader
	Name    *ObjString
	Methods map[*ObjString]Value
}

func (c *ObjClass) Type() ObjType  { return CLASS_OBJ }
func (c *ObjClass) String() string { return c.Name.Chars }

// ObjInstance is an instance of a class. The field map may grow but the
// owning class never changes.
type ObjInstance struct {
	gcHeader
	Class  *ObjClass
	Fields map[*ObjString]Value
}

func (i *ObjInstance) Type() ObjType  { return INSTANCE_OBJ }
func (i *ObjInstance) String() string { return i.Class.Name.Chars + " instance" }

// ObjBoundMethod pairs a method closure with its receiver so the method can
// be invoked later without another lookup.
type ObjBoundMethod struct {
	gcHeader
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) Type() ObjType  { return BOUND_METHOD_OBJ }
func (b *ObjBoundMethod) String() string { return b.Method.String() }
