package vm

import (
	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
)

// callValue calls the value in the callee slot below argc arguments.
func (vm *VM) callValue(callee Value, argc int) error {
	if callee.Type == ValObj {
		switch o := callee.Obj.(type) {
		case *ObjClosure:
			return vm.callClosure(o, argc)

		case *ObjNative:
			return vm.callNative(o, callee, argc)

		case *ObjClass:
			return vm.callClass(o, argc)

		case *ObjNativeClass:
			return vm.callNativeClass(o, argc)

		case *ObjBoundMethod:
			vm.stack[vm.sp-argc-1] = o.Receiver
			return vm.callMethod(o.Method, o.Receiver, argc)
		}
	}
	return vm.runtimeError(diagnostics.ErrR008, callee.TypeName())
}

// callMethod calls method with the receiver already in the callee slot.
func (vm *VM) callMethod(method, receiver Value, argc int) error {
	switch m := method.Obj.(type) {
	case *ObjClosure:
		return vm.callClosure(m, argc)
	case *ObjNative:
		return vm.callNative(m, receiver, argc)
	}
	return vm.callValue(method, argc)
}

func (vm *VM) callClosure(closure *ObjClosure, argc int) error {
	fn := closure.Fn
	if argc != fn.Arity {
		return vm.runtimeError(diagnostics.ErrR002, vm.displayName(fn), fn.Arity, argc)
	}
	if vm.frameCount == len(vm.frames) {
		return vm.runtimeError(diagnostics.ErrR009)
	}

	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.native = nil
	frame.name = ""
	frame.chunk = fn.Chunk
	frame.ip = 0
	frame.base = vm.sp - argc - 1
	vm.frame = frame
	return nil
}

func (vm *VM) displayName(fn *ObjFn) string {
	switch {
	case fn.ClassName != "":
		return fn.ClassName + "." + fn.Name
	case fn.Name != "":
		return fn.Name
	default:
		return "<anonymous>"
	}
}

func (vm *VM) callNative(n *ObjNative, recv Value, argc int) error {
	result, err := vm.invokeNative(n.Name, n, n.Fn, n.Arity, recv, argc)
	if err != nil {
		return err
	}
	vm.push(result)
	return nil
}

// invokeNative runs a host function on the argc values at the top of the
// stack. Objects the host allocates stay rooted until it returns. On success
// the callee slot and arguments are popped; on error the native frame is
// kept so the trace shows it.
func (vm *VM) invokeNative(name string, n *ObjNative, fn NativeFn, arity int, recv Value, argc int) (Value, error) {
	if arity >= 0 && argc != arity {
		return NilVal(), vm.hostError(diagnostics.ErrR002, name, arity, argc)
	}
	if vm.frameCount == len(vm.frames) {
		return NilVal(), vm.runtimeError(diagnostics.ErrR009)
	}

	base := vm.sp - argc - 1
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = nil
	frame.native = n
	frame.name = name
	frame.chunk = nil
	frame.ip = 0
	frame.base = base
	vm.frame = frame

	handles := len(vm.heap.handles)
	vm.heap.recording++
	result, err := fn(vm, recv, vm.stack[base+1:vm.sp])
	vm.heap.recording--
	if err != nil {
		return NilVal(), err
	}

	vm.heap.handles = vm.heap.handles[:handles]
	vm.frameCount--
	if vm.frameCount > 0 {
		vm.frame = &vm.frames[vm.frameCount-1]
	} else {
		vm.frame = nil
	}
	for i := base; i < vm.sp; i++ {
		vm.stack[i] = Value{}
	}
	vm.sp = base
	return result, nil
}

func (vm *VM) callClass(class *ObjClass, argc int) error {
	inst := vm.newInstance(class)
	vm.stack[vm.sp-argc-1] = ObjVal(inst)

	if init, ok := class.Init.Obj.(*ObjClosure); ok && class.Init.Type == ValObj {
		return vm.callClosure(init, argc)
	}
	if argc != 0 {
		return vm.runtimeError(diagnostics.ErrR002, class.Name.Chars, 0, argc)
	}
	return nil
}

// callNativeClass constructs a host instance. A fallible initializer that
// returns nil makes the call evaluate to nil.
func (vm *VM) callNativeClass(class *ObjNativeClass, argc int) error {
	inst := vm.newNativeInstance(class)
	vm.stack[vm.sp-argc-1] = ObjVal(inst)

	if class.Init == nil {
		if argc != 0 {
			return vm.hostError(diagnostics.ErrR002, class.Name, 0, argc)
		}
		return nil
	}

	result, err := vm.invokeNative(class.Name+"."+config.InitMethodName, nil, class.Init, class.InitArity, ObjVal(inst), argc)
	if err != nil {
		return err
	}
	if class.Fallible && result.IsNil() {
		vm.push(NilVal())
	} else {
		vm.push(ObjVal(inst))
	}
	return nil
}

// invoke fuses a member lookup on the receiver below argc arguments with the
// call, without materializing a bound method.
func (vm *VM) invoke(name *ObjString, argc int) error {
	slot := vm.sp - argc - 1
	recv := vm.stack[slot]
	key := ObjVal(name)

	if recv.Type == ValObj {
		switch o := recv.Obj.(type) {
		case *ObjInstance:
			if v, ok := o.Fields.Get(key); ok {
				vm.stack[slot] = v
				return vm.callValue(v, argc)
			}
			return vm.invokeFromClass(o.Class, name, argc)

		case *ObjNativeInstance:
			if m, ok := o.Class.Methods.Get(key); ok {
				return vm.callMethod(m, recv, argc)
			}

		case *ObjTable:
			if v, ok := o.Entries.Get(key); ok {
				vm.stack[slot] = v
				return vm.callValue(v, argc)
			}
			if m, ok := vm.tableMethods.Get(key); ok {
				return vm.callMethod(m, recv, argc)
			}

		case *ObjArray:
			if m, ok := vm.arrayMethods.Get(key); ok {
				return vm.callMethod(m, recv, argc)
			}

		case *ObjString:
			if m, ok := vm.stringMethods.Get(key); ok {
				return vm.callMethod(m, recv, argc)
			}

		case *ObjClass:
			if m, ok := o.Methods.Get(key); ok {
				vm.stack[slot] = m
				return vm.callValue(m, argc)
			}

		case *ObjNativeClass:
			if m, ok := o.Methods.Get(key); ok {
				vm.stack[slot] = m
				return vm.callValue(m, argc)
			}

		case *ObjLibrary:
			if v, ok := o.Symbols.Get(key); ok {
				vm.stack[slot] = v
				return vm.callValue(v, argc)
			}
		}
	}
	return vm.runtimeError(diagnostics.ErrR011, recv.TypeName(), name.Chars)
}

func (vm *VM) invokeFromClass(class *ObjClass, name *ObjString, argc int) error {
	m, ok := class.Methods.Get(ObjVal(name))
	if !ok {
		return vm.runtimeError(diagnostics.ErrR011, class.Name.Chars, name.Chars)
	}
	return vm.callMethod(m, vm.stack[vm.sp-argc-1], argc)
}

// bindMethod returns a bound method pairing receiver with method.
// Both must be reachable while it allocates.
func (vm *VM) bindMethod(receiver, method Value) Value {
	return ObjVal(vm.newBoundMethod(receiver, method))
}
