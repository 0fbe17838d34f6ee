package vm

import (
	"testing"

	"github.com/loxvm/glox/internal/config"
)

func TestValueFormatting(t *testing.T) {
	heap := NewHeap(config.GCConfig{})

	tests := []struct {
		value    Value
		expected string
	}{
		{NilVal(), "nil"},
		{BoolVal(true), "true"},
		{BoolVal(false), "false"},
		{NumberVal(0), "0"},
		{NumberVal(42), "42"},
		{NumberVal(-7), "-7"},
		{NumberVal(3.14), "3.14"},
		{NumberVal(2.5), "2.5"},
		{NumberVal(1e21), "1e+21"},
		{ObjVal(heap.NewString("text")), "text"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.value.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestObjectFormatting(t *testing.T) {
	heap := NewHeap(config.GCConfig{})

	named := heap.NewFunction(heap.NewString("helper"))
	script := heap.NewFunction(nil)
	closure := heap.NewClosure(named)
	class := heap.NewClass(heap.NewString("Widget"))
	instance := heap.NewInstance(class)
	bound := heap.NewBoundMethod(ObjVal(instance), closure)
	native := heap.NewNative("clock", 0, func(args []Value) Value { return NilVal() })

	tests := []struct {
		obj      Obj
		expected string
	}{
		{named, "<fn helper>"},
		{script, "<script>"},
		{closure, "<fn helper>"},
		{class, "Widget"},
		{instance, "Widget instance"},
		{bound, "<fn helper>"},
		{native, "<native fn>"},
	}

	for _, tt := range tests {
		if got := tt.obj.String(); got != tt.expected {
			t.Errorf("%T.String() = %q, want %q", tt.obj, got, tt.expected)
		}
	}
}

func TestFalsiness(t *testing.T) {
	heap := NewHeap(config.GCConfig{})

	falsy := []Value{NilVal(), BoolVal(false)}
	for _, v := range falsy {
		if !v.IsFalsy() {
			t.Errorf("%s should be falsy", v)
		}
	}

	truthy := []Value{
		BoolVal(true),
		NumberVal(0),
		NumberVal(-1),
		ObjVal(heap.NewString("")),
	}
	for _, v := range truthy {
		if v.IsFalsy() {
			t.Errorf("%s should be truthy", v)
		}
	}
}

func TestValueEquality(t *testing.T) {
	heap := NewHeap(config.GCConfig{})
	s := heap.NewString("same")

	tests := []struct {
		name     string
		a, b     Value
		expected bool
	}{
		{"nil-nil", NilVal(), NilVal(), true},
		{"nil-false", NilVal(), BoolVal(false), false},
		{"bool-bool", BoolVal(true), BoolVal(true), true},
		{"bool-mismatch", BoolVal(true), BoolVal(false), false},
		{"number-number", NumberVal(1.5), NumberVal(1.5), true},
		{"number-mismatch", NumberVal(1), NumberVal(2), false},
		{"number-bool", NumberVal(1), BoolVal(true), false},
		{"interned-string", ObjVal(s), ObjVal(heap.NewString("same")), true},
		{"string-mismatch", ObjVal(s), ObjVal(heap.NewString("other")), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Equals(tt.b); got != tt.expected {
				t.Errorf("Equals = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestObjectIdentityEquality(t *testing.T) {
	heap := NewHeap(config.GCConfig{})
	class := heap.NewClass(heap.NewString("Thing"))

	a := ObjVal(heap.NewInstance(class))
	b := ObjVal(heap.NewInstance(class))
	if a.Equals(b) {
		t.Error("distinct instances compared equal")
	}
	if !a.Equals(a) {
		t.Error("instance not equal to itself")
	}
}
