package vm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/loxvm/glox/internal/config"
)

func compileSource(t *testing.T, source string) (*ObjFunction, []Diagnostic) {
	t.Helper()
	return Compile(source, NewHeap(config.GCConfig{}))
}

func compileOK(t *testing.T, source string) *ObjFunction {
	t.Helper()
	fn, diagnostics := compileSource(t, source)
	if len(diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics for %q: %v", source, diagnostics)
	}
	if fn == nil {
		t.Fatalf("Compile returned nil function for %q", source)
	}
	return fn
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"missing-operand", "print 1 +;", "Error at ';': Expect expression."},
		{"missing-semicolon", "print 1", "Error at end: Expect ';' after value."},
		{"missing-var-name", "var 1 = 2;", "Error at '1': Expect variable name."},
		{"unclosed-paren", "print (1 + 2;", "Error at ';': Expect ')' after expression."},
		{"unclosed-block", "{ print 1;", "Error at end: Expect '}' after block."},
		{"invalid-assignment", "1 + 2 = 3;", "Error at '=': Invalid assignment target."},
		{"chained-assignment-target", "var a; var b; a + b = 1;", "Error at '=': Invalid assignment target."},
		{"own-initializer", "{ var a = a; }", "Error at 'a': Can't read local variable in its own initializer."},
		{"duplicate-local", "{ var a = 1; var a = 2; }", "Error at 'a': Already a variable with this name in this scope."},
		{"top-level-return", "return 5;", "Error at 'return': Can't return from top-level code."},
		{"return-from-init", `
class Foo {
  init() { return 5; }
}`, "Error at 'return': Can't return a value from an initializer."},
		{"this-outside-class", "print this;", "Error at 'this': Can't use 'this' outside of a class."},
		{"this-in-function", "fun f() { print this; }", "Error at 'this': Can't use 'this' outside of a class."},
		{"super-outside-class", "print super.foo;", "Error at 'super': Can't use 'super' outside of a class."},
		{"super-without-superclass", `
class Foo {
  method() { super.method(); }
}`, "Error at 'super': Can't use 'super' in a class with no superclass."},
		{"self-inheritance", "class Foo < Foo {}", "Error at 'Foo': A class can't inherit from itself."},
		{"unterminated-string", `print "abc`, "Error: Unterminated string."},
		{"unexpected-character", "print 1 @ 2;", "Error: Unexpected character."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, diagnostics := compileSource(t, tt.input)
			if fn != nil {
				t.Error("expected nil function on compile error")
			}
			if len(diagnostics) == 0 {
				t.Fatal("expected diagnostics, got none")
			}
			found := false
			for _, d := range diagnostics {
				if d.Message == tt.message {
					found = true
				}
			}
			if !found {
				t.Errorf("diagnostics %v missing %q", diagnostics, tt.message)
			}
		})
	}
}

func TestDiagnosticCarriesLine(t *testing.T) {
	_, diagnostics := compileSource(t, "var a = 1;\nvar b = ;\n")
	if len(diagnostics) == 0 {
		t.Fatal("expected diagnostics")
	}
	if diagnostics[0].Line != 2 {
		t.Errorf("line = %d, want 2", diagnostics[0].Line)
	}
	if got := diagnostics[0].String(); !strings.HasPrefix(got, "[line 2] ") {
		t.Errorf("String() = %q, want [line 2] prefix", got)
	}
}

func TestPanicModeRecoversAtStatementBoundary(t *testing.T) {
	// Two separate broken statements produce two diagnostics, not a
	// cascade from the first.
	source := "var = 1;\nvar a = 1;\nprint +;\n"
	_, diagnostics := compileSource(t, source)
	if len(diagnostics) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(diagnostics), diagnostics)
	}
	if diagnostics[0].Line != 1 || diagnostics[1].Line != 3 {
		t.Errorf("diagnostic lines = %d, %d; want 1, 3", diagnostics[0].Line, diagnostics[1].Line)
	}
}

func TestTooManyLocals(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("fun f() {\n")
	// Slot 0 is reserved, so the 256th declaration overflows.
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&sb, "var v%d = %d;\n", i, i)
	}
	sb.WriteString("}\n")

	_, diagnostics := compileSource(t, sb.String())
	found := false
	for _, d := range diagnostics {
		if strings.Contains(d.Message, "Too many local variables in function.") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected local overflow diagnostic, got %v", diagnostics)
	}
}

func TestTooManyArguments(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("fun f() {} f(")
	for i := 0; i < 256; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%d", i)
	}
	sb.WriteString(");")

	_, diagnostics := compileSource(t, sb.String())
	found := false
	for _, d := range diagnostics {
		if strings.Contains(d.Message, "Can't have more than 255 arguments.") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected argument overflow diagnostic, got %v", diagnostics)
	}
}

func TestTooManyParameters(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("fun f(")
	for i := 0; i < 256; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "p%d", i)
	}
	sb.WriteString(") {}")

	_, diagnostics := compileSource(t, sb.String())
	found := false
	for _, d := range diagnostics {
		if strings.Contains(d.Message, "Can't have more than 255 parameters.") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected parameter overflow diagnostic, got %v", diagnostics)
	}
}

func TestScriptFunctionShape(t *testing.T) {
	fn := compileOK(t, "print 1;")
	if fn.Name != nil {
		t.Errorf("script function name = %v, want nil", fn.Name)
	}
	if fn.Arity != 0 {
		t.Errorf("script arity = %d, want 0", fn.Arity)
	}
	if fn.String() != "<script>" {
		t.Errorf("String() = %q, want %q", fn.String(), "<script>")
	}
}

func TestExpressionBytecode(t *testing.T) {
	fn := compileOK(t, "1 + 2;")

	want := []byte{
		byte(OP_CONST), 0, 0,
		byte(OP_CONST), 0, 1,
		byte(OP_ADD),
		byte(OP_POP),
		byte(OP_NIL),
		byte(OP_RETURN),
	}
	got := fn.Chunk.Code
	if len(got) != len(want) {
		t.Fatalf("code length = %d, want %d\n%s", len(got), len(want), Disassemble(fn.Chunk, "test"))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("code[%d] = %d, want %d\n%s", i, got[i], want[i], Disassemble(fn.Chunk, "test"))
		}
	}
}

func TestConstantDeduplication(t *testing.T) {
	fn := compileOK(t, "print 1 + 1 + 1;")
	if len(fn.Chunk.Constants) != 1 {
		t.Errorf("constants = %d, want 1 (numbers should dedup)", len(fn.Chunk.Constants))
	}

	fn = compileOK(t, `print "a" + "a";`)
	if len(fn.Chunk.Constants) != 1 {
		t.Errorf("constants = %d, want 1 (strings should dedup)", len(fn.Chunk.Constants))
	}
}

func TestLineInfoSurvivesCompilation(t *testing.T) {
	fn := compileOK(t, "print 1;\nprint 2;\n")

	// The second print's constant load sits on line 2.
	sawLineTwo := false
	for _, line := range fn.Chunk.Lines {
		if line == 2 {
			sawLineTwo = true
		}
	}
	if !sawLineTwo {
		t.Error("no instruction attributed to line 2")
	}
}

func TestFunctionUpvalueCount(t *testing.T) {
	source := `
fun outer() {
  var a = 1;
  var b = 2;
  fun inner() { return a + b; }
  return inner;
}`
	fn := compileOK(t, source)

	var inner *ObjFunction
	var walk func(*ObjFunction)
	walk = func(f *ObjFunction) {
		for _, c := range f.Chunk.Constants {
			if nested, ok := c.Obj.(*ObjFunction); c.IsObj() && ok {
				if nested.Name != nil && nested.Name.Chars == "inner" {
					inner = nested
				}
				walk(nested)
			}
		}
	}
	walk(fn)

	if inner == nil {
		t.Fatal("inner function not found in constant pools")
	}
	if inner.UpvalueCount != 2 {
		t.Errorf("UpvalueCount = %d, want 2", inner.UpvalueCount)
	}
}
