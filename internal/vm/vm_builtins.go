package vm

import "time"

// defineNatives installs the built-in functions into the globals table.
func (vm *VM) defineNatives() {
	vm.DefineNative("clock", 0, func(args []Value) Value {
		return NumberVal(float64(time.Now().UnixNano()) / 1e9)
	})
}

// DefineNative exposes a host function to Lox code under the given global
// name. Embedders can use it to extend the language surface.
func (vm *VM) DefineNative(name string, arity int, fn NativeFn) {
	// Both objects go through the stack so a collection triggered by the
	// second allocation still reaches the first.
	vm.push(ObjVal(vm.heap.NewString(name)))
	vm.push(ObjVal(vm.heap.NewNative(name, arity, fn)))
	vm.globals[vm.stack[vm.sp-2].AsString()] = vm.stack[vm.sp-1]
	vm.pop()
	vm.pop()
}
