package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/loxvm/glox/internal/config"
)

// interpretRuntimeError runs source expecting a runtime failure and returns
// the error for inspection.
func interpretRuntimeError(t *testing.T, source string) *RuntimeError {
	t.Helper()

	machine := New(NewHeap(config.GCConfig{}))
	machine.SetOutput(&bytes.Buffer{})

	result, err := machine.Interpret(source)
	if result != ResultRuntimeError {
		t.Fatalf("result = %d, want ResultRuntimeError (err: %v)", result, err)
	}
	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("error is %T, want *RuntimeError", err)
	}
	return runtimeErr
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"negate-string", `print -"muffin";`, "Operand must be a number."},
		{"negate-nil", "print -nil;", "Operand must be a number."},
		{"add-number-string", `print 1 + "a";`, "Operands must be two numbers or two strings."},
		{"add-nil", "print nil + nil;", "Operands must be two numbers or two strings."},
		{"subtract-strings", `print "a" - "b";`, "Operands must be numbers."},
		{"compare-mixed", `print 1 < "a";`, "Operands must be numbers."},
		{"undefined-global", "print missing;", "Undefined variable 'missing'."},
		{"assign-undefined", "missing = 1;", "Undefined variable 'missing'."},
		{"call-number", "1();", "Can only call functions and classes."},
		{"call-string", `"not a function"();`, "Can only call functions and classes."},
		{"call-nil", "nil();", "Can only call functions and classes."},
		{"arity-too-many", "fun f(a) {} f(1, 2);", "Expected 1 arguments but got 2."},
		{"arity-too-few", "fun f(a, b) {} f(1);", "Expected 2 arguments but got 1."},
		{"init-arity", `
class Point { init(x, y) {} }
Point(1);`, "Expected 2 arguments but got 1."},
		{"no-init-with-args", "class Foo {} Foo(1);", "Expected 0 arguments but got 1."},
		{"property-on-number", "print (1).x;", "Only instances have properties."},
		{"field-on-number", "var n = 1; n.x = 2;", "Only instances have fields."},
		{"undefined-property", `
class Foo {}
Foo().missing();`, "Undefined property 'missing'."},
		{"undefined-method-get", `
class Foo {}
print Foo().missing;`, "Undefined property 'missing'."},
		{"method-on-number", "(1).method();", "Only instances have methods."},
		{"superclass-not-class", `
var NotClass = "so not a class";
class Sub < NotClass {}`, "Superclass must be a class."},
		{"native-arity", "clock(1);", "Expected 0 arguments but got 1."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := interpretRuntimeError(t, tt.input)
			if err.Message != tt.message {
				t.Errorf("message = %q, want %q", err.Message, tt.message)
			}
		})
	}
}

func TestRuntimeErrorLine(t *testing.T) {
	err := interpretRuntimeError(t, "fun f(a) {}\nf(1, 2);")
	if err.Line != 2 {
		t.Errorf("line = %d, want 2", err.Line)
	}
}

func TestRuntimeErrorTrace(t *testing.T) {
	source := `
fun a() { b(); }
fun b() { c(); }
fun c() {
  c("too", "many");
}
a();`
	err := interpretRuntimeError(t, source)

	// Innermost frame first, script last. The failing call never became a
	// frame, so c appears once, at the call site.
	wantFrames := []string{"in c()", "in b()", "in a()", "in script"}
	if len(err.Trace) != len(wantFrames) {
		t.Fatalf("trace has %d frames, want %d:\n%s", len(err.Trace), len(wantFrames), strings.Join(err.Trace, "\n"))
	}
	for i, want := range wantFrames {
		if !strings.Contains(err.Trace[i], want) {
			t.Errorf("trace[%d] = %q, want it to contain %q", i, err.Trace[i], want)
		}
	}
	if !strings.Contains(err.Trace[0], "[line 5]") {
		t.Errorf("innermost frame = %q, want line 5", err.Trace[0])
	}
}

func TestStackOverflowFromRecursion(t *testing.T) {
	err := interpretRuntimeError(t, "fun f() { f(); } f();")
	if err.Message != "Stack overflow." {
		t.Errorf("message = %q, want %q", err.Message, "Stack overflow.")
	}
}

func TestRuntimeErrorHaltsExecution(t *testing.T) {
	machine := New(NewHeap(config.GCConfig{}))
	var out bytes.Buffer
	machine.SetOutput(&out)

	result, _ := machine.Interpret(`print "before"; missing; print "after";`)
	if result != ResultRuntimeError {
		t.Fatalf("result = %d, want ResultRuntimeError", result)
	}
	if got := out.String(); got != "before\n" {
		t.Errorf("output = %q, want %q", got, "before\n")
	}
}

func TestVMUsableAfterRuntimeError(t *testing.T) {
	// The stack is reset, so the same VM can keep serving a REPL session.
	machine := New(NewHeap(config.GCConfig{}))
	var out bytes.Buffer
	machine.SetOutput(&out)

	if result, _ := machine.Interpret("missing;"); result != ResultRuntimeError {
		t.Fatal("expected a runtime error")
	}
	result, err := machine.Interpret("print 1 + 1;")
	if err != nil || result != ResultOK {
		t.Fatalf("second interpret failed: %v", err)
	}
	if got := out.String(); got != "2\n" {
		t.Errorf("output = %q, want %q", got, "2\n")
	}
}
