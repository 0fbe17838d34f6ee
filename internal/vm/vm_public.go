package vm

import "github.com/loxvm/glox/internal/config"

// NewFromConfig builds a heap and VM tuned by cfg. This is the entry point
// the CLI uses; tests usually construct the pieces directly.
func NewFromConfig(cfg *config.Config) *VM {
	vm := New(NewHeap(cfg.GC))
	vm.SetTrace(cfg.Trace)
	return vm
}

// Heap exposes the VM's heap, mainly so embedders and tests can inspect
// collector statistics.
func (vm *VM) Heap() *Heap {
	return vm.heap
}

// Global looks up a global variable by name. It reports false for names
// that were never defined.
func (vm *VM) Global(name string) (Value, bool) {
	interned, ok := vm.heap.strings[name]
	if !ok {
		return NilVal(), false
	}
	value, ok := vm.globals[interned]
	return value, ok
}
