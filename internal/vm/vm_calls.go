package vm

// callValue dispatches a call on any value. Only closures, natives,
// classes, and bound methods are callable.
func (vm *VM) callValue(callee Value, argCount int) error {
	if callee.IsObj() {
		switch obj := callee.Obj.(type) {
		case *ObjClosure:
			return vm.callClosure(obj, argCount)
		case *ObjNative:
			return vm.callNative(obj, argCount)
		case *ObjClass:
			return vm.callClass(obj, argCount)
		case *ObjBoundMethod:
			// The bound receiver takes over slot zero so `this` resolves.
			vm.stack[vm.sp-argCount-1] = obj.Receiver
			return vm.callClosure(obj.Method, argCount)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// callClosure arity-checks the callee and pushes a new call frame. The
// frame's base points at the callee slot, so arguments land in slots 1..N.
func (vm *VM) callClosure(closure *ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.",
			closure.Function.Arity, argCount)
	}

	if vm.frameCount == MaxFrameCount {
		return vm.runtimeError("Stack overflow.")
	}

	vm.frames[vm.frameCount] = CallFrame{
		closure: closure,
		chunk:   closure.Function.Chunk,
		ip:      0,
		base:    vm.sp - argCount - 1,
	}
	vm.frame = &vm.frames[vm.frameCount]
	vm.frameCount++
	return nil
}

// callNative runs a host function in place: no frame is pushed, the
// arguments are replaced by the result.
func (vm *VM) callNative(native *ObjNative, argCount int) error {
	if argCount != native.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.",
			native.Arity, argCount)
	}
	result := native.Fn(vm.stack[vm.sp-argCount : vm.sp])
	vm.sp -= argCount + 1
	vm.push(result)
	return nil
}

// callClass instantiates the class and, if an init method exists, runs it
// on the fresh instance with the call's arguments.
func (vm *VM) callClass(class *ObjClass, argCount int) error {
	vm.stack[vm.sp-argCount-1] = ObjVal(vm.heap.NewInstance(class))
	if initializer, ok := class.Methods[vm.initString]; ok {
		return vm.callClosure(initializer.Obj.(*ObjClosure), argCount)
	}
	if argCount != 0 {
		return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
	}
	return nil
}

// invoke is the fast path for expr.method(args): it looks the method up
// and calls it without materializing a bound method. A field holding a
// callable shadows methods, matching OP_GET_PROPERTY semantics.
func (vm *VM) invoke(name *ObjString, argCount int) error {
	receiver := vm.peek(argCount)
	instance, ok := receiver.Obj.(*ObjInstance)
	if !receiver.IsObj() || !ok {
		return vm.runtimeError("Only instances have methods.")
	}

	if field, found := instance.Fields[name]; found {
		vm.stack[vm.sp-argCount-1] = field
		return vm.callValue(field, argCount)
	}

	return vm.invokeFromClass(instance.Class, name, argCount)
}

// invokeFromClass resolves name in the given class's method table. For
// super calls the caller passes the immediate superclass, skipping any
// overrides below it.
func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argCount int) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.callClosure(method.Obj.(*ObjClosure), argCount)
}

// bindMethod replaces the receiver on top of the stack with a bound method
// pairing it with the named method of class.
func (vm *VM) bindMethod(class *ObjClass, name *ObjString) error {
	method, ok := class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}

	bound := vm.heap.NewBoundMethod(vm.peek(0), method.Obj.(*ObjClosure))
	vm.pop()
	vm.push(ObjVal(bound))
	return nil
}

// captureUpvalue returns the open upvalue aliasing the given stack slot,
// creating it if none exists. Sibling closures capturing the same local
// therefore share one upvalue, and writes through one are visible through
// the other.
func (vm *VM) captureUpvalue(location int) *ObjUpvalue {
	var prev *ObjUpvalue
	upvalue := vm.openUpvalues

	// The list is sorted by location, highest first.
	for upvalue != nil && upvalue.Location > location {
		prev = upvalue
		upvalue = upvalue.Next
	}

	if upvalue != nil && upvalue.Location == location {
		return upvalue
	}

	created := vm.heap.NewUpvalue(location)
	created.Next = upvalue
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above lastSlot: the
// captured value moves from the stack into the upvalue, which never
// reopens.
func (vm *VM) closeUpvalues(lastSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Location >= lastSlot {
		upvalue := vm.openUpvalues
		upvalue.Closed = vm.stack[upvalue.Location]
		upvalue.Location = -1
		vm.openUpvalues = upvalue.Next
		upvalue.Next = nil
	}
}
