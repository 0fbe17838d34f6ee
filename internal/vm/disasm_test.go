package vm

import (
	"strings"
	"testing"
)

// exercisesEveryForm is a program whose compiled output touches every
// instruction format the disassembler knows: constants, locals, upvalues,
// jumps, loops, calls, invokes, closures, and class plumbing.
const exercisesEveryForm = `
class Base {
  init() { this.n = 0; }
  bump() { this.n = this.n + 1; }
}
class Derived < Base {
  bump() {
    super.bump();
    super.bump();
  }
}
fun makeTicker(d) {
  fun tick() {
    d.bump();
    return d.n;
  }
  return tick;
}
var ticker = makeTicker(Derived());
while (ticker() < 3) {}
for (var i = 0; i < 2; i = i + 1) {
  if (i == 0 and !false) print -i;
  else print i == 1 or nil;
}
print "total: " + "done";
`

func TestDisassembleKnowsEveryEmittedOpcode(t *testing.T) {
	fn := compileOK(t, exercisesEveryForm)

	listing := DisassembleAll(fn)
	if strings.Contains(listing, "Unknown opcode") {
		t.Errorf("disassembler hit an unknown opcode:\n%s", listing)
	}

	for _, mnemonic := range []string{
		"CONST", "GET_LOCAL", "GET_UPVALUE", "JUMP_IF_FALSE", "LOOP",
		"CALL", "INVOKE", "SUPER_INVOKE", "CLOSURE", "CLASS", "INHERIT",
		"METHOD", "GET_PROPERTY", "SET_PROPERTY",
	} {
		if !strings.Contains(listing, mnemonic) {
			t.Errorf("listing missing %s", mnemonic)
		}
	}
}

func TestDisassembleHeaderAndOffsets(t *testing.T) {
	fn := compileOK(t, "print 1 + 2;")

	listing := Disassemble(fn.Chunk, "test chunk")
	if !strings.HasPrefix(listing, "== test chunk ==\n") {
		t.Errorf("missing header:\n%s", listing)
	}
	if !strings.Contains(listing, "0000") {
		t.Errorf("missing starting offset:\n%s", listing)
	}
	// Repeated lines collapse to a pipe after the first instruction.
	if !strings.Contains(listing, "   | ") {
		t.Errorf("missing same-line marker:\n%s", listing)
	}
}

func TestDisassembleAllIncludesNestedFunctions(t *testing.T) {
	fn := compileOK(t, `
fun outer() {
  fun inner() { return 1; }
  return inner;
}`)

	listing := DisassembleAll(fn)
	for _, header := range []string{"== <script> ==", "== <fn outer> ==", "== <fn inner> =="} {
		if !strings.Contains(listing, header) {
			t.Errorf("listing missing %q:\n%s", header, listing)
		}
	}
}

func TestDisassembleClosureUpvalueAnnotations(t *testing.T) {
	fn := compileOK(t, `
fun outer() {
  var a = 1;
  fun middle() {
    fun inner() { return a; }
  }
}`)

	listing := DisassembleAll(fn)
	// middle captures a as a local; inner reaches it through middle's
	// upvalue.
	if !strings.Contains(listing, "local") {
		t.Errorf("listing missing local capture annotation:\n%s", listing)
	}
	if !strings.Contains(listing, "upvalue") {
		t.Errorf("listing missing upvalue capture annotation:\n%s", listing)
	}
}
