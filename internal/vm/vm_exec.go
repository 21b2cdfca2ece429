package vm

import (
	"strings"

	"github.com/funvibe/kiln/internal/config"
	"github.com/funvibe/kiln/internal/diagnostics"
)

// executeOneOp executes a single opcode (except RETURN)
func (vm *VM) executeOneOp(op Opcode) error {
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

	// Variables

	case OP_GET_LOCAL:
		slot := int(vm.readByte())
		vm.push(vm.stack[vm.frame.base+slot])

	case OP_SET_LOCAL:
		slot := int(vm.readByte())
		vm.stack[vm.frame.base+slot] = vm.peek(0)

	case OP_GET_GLOBAL:
		name := vm.readConstant()
		v, ok := vm.currentModule().Globals.Get(name)
		if !ok {
			if v, ok = vm.globals.Get(name); !ok {
				return vm.runtimeError(diagnostics.ErrR003, name.Obj.(*ObjString).Chars)
			}
		}
		vm.push(v)

	case OP_SET_GLOBAL:
		name := vm.readConstant()
		m := vm.currentModule()
		switch {
		case has(&m.Globals, name):
			m.Globals.Set(name, vm.peek(0))
		case has(&vm.globals, name):
			vm.globals.Set(name, vm.peek(0))
		default:
			return vm.runtimeError(diagnostics.ErrR003, name.Obj.(*ObjString).Chars)
		}

	case OP_DEFINE_GLOBAL:
		name := vm.readConstant()
		vm.mapSet(nil, &vm.currentModule().Globals, name, vm.peek(0))
		vm.pop()

	case OP_GET_UPVALUE:
		uv := vm.frame.closure.Upvalues[vm.readByte()]
		if uv.IsOpen() {
			vm.push(vm.stack[uv.Location])
		} else {
			vm.push(uv.Closed)
		}

	case OP_SET_UPVALUE:
		uv := vm.frame.closure.Upvalues[vm.readByte()]
		if uv.IsOpen() {
			vm.stack[uv.Location] = vm.peek(0)
		} else {
			uv.Closed = vm.peek(0)
		}

	// Members and indexing

	case OP_GET_PROPERTY:
		name := vm.readConstant()
		v, err := vm.getMember(vm.peek(0), name)
		if err != nil {
			return err
		}
		vm.stack[vm.sp-1] = v

	case OP_SET_PROPERTY:
		name := vm.readConstant()
		if err := vm.setMember(vm.peek(1), name, vm.peek(0)); err != nil {
			return err
		}
		v := vm.pop()
		vm.stack[vm.sp-1] = v

	case OP_GET_INDEX:
		v, err := vm.getMember(vm.peek(1), vm.peek(0))
		if err != nil {
			return err
		}
		vm.pop()
		vm.stack[vm.sp-1] = v

	case OP_SET_INDEX:
		if err := vm.setMember(vm.peek(2), vm.peek(1), vm.peek(0)); err != nil {
			return err
		}
		v := vm.pop()
		vm.pop()
		vm.stack[vm.sp-1] = v

	case OP_GET_SUPER:
		name := vm.readConstant()
		super := vm.peek(0).Obj.(*ObjClass)
		m, ok := super.Methods.Get(name)
		if !ok {
			return vm.runtimeError(diagnostics.ErrR011, super.Name.Chars, name.Obj.(*ObjString).Chars)
		}
		bound := vm.bindMethod(vm.peek(1), m)
		vm.pop()
		vm.stack[vm.sp-1] = bound

	case OP_DELETE:
		removed, err := vm.deleteMember(vm.peek(1), vm.peek(0))
		if err != nil {
			return err
		}
		vm.pop()
		vm.stack[vm.sp-1] = BoolVal(removed)

	case OP_IN:
		found, err := vm.contains(vm.peek(0), vm.peek(1))
		if err != nil {
			return err
		}
		vm.pop()
		vm.stack[vm.sp-1] = BoolVal(found)

	// Operators

	case OP_EQ:
		b := vm.pop()
		vm.stack[vm.sp-1] = BoolVal(vm.stack[vm.sp-1].Equals(b))

	case OP_NE:
		b := vm.pop()
		vm.stack[vm.sp-1] = BoolVal(!vm.stack[vm.sp-1].Equals(b))

	case OP_LT, OP_LE, OP_GT, OP_GE:
		return vm.comparisonOp(op)

	case OP_ADD, OP_SUB, OP_MUL, OP_DIV, OP_MOD:
		return vm.binaryOp(op)

	case OP_BAND, OP_BOR, OP_BXOR, OP_LSHIFT, OP_RSHIFT:
		return vm.bitwiseOp(op)

	case OP_NEG:
		v := vm.peek(0)
		if !v.IsNumber() {
			return vm.runtimeError(diagnostics.ErrR001, "cannot negate "+v.TypeName())
		}
		vm.stack[vm.sp-1] = NumberVal(-v.AsNumber())

	case OP_BNOT:
		v := vm.peek(0)
		if !v.IsInteger() {
			return vm.runtimeError(diagnostics.ErrR001, "~ requires an integral operand, got "+v.TypeName())
		}
		vm.stack[vm.sp-1] = NumberVal(float64(^int64(v.AsNumber())))

	case OP_NOT:
		vm.stack[vm.sp-1] = BoolVal(vm.peek(0).IsFalsey())

	// Built-in forms

	case OP_LEN:
		n, err := vm.length(vm.peek(0))
		if err != nil {
			return err
		}
		vm.stack[vm.sp-1] = NumberVal(float64(n))

	case OP_TYPEOF:
		s := vm.NewString(vm.peek(0).TypeName())
		vm.stack[vm.sp-1] = ObjVal(s)

	case OP_PANIC:
		return vm.runtimeError(diagnostics.ErrR006, vm.peek(0).String())

	case OP_ASSERT:
		msg := vm.pop()
		if vm.peek(0).IsFalsey() {
			text := "condition is " + vm.peek(0).String()
			if !msg.IsNil() {
				text = msg.String()
			}
			return vm.runtimeError(diagnostics.ErrR007, text)
		}
		vm.stack[vm.sp-1] = NilVal()

	case OP_IMPORT:
		path, ok := vm.peek(0).AsString()
		if !ok {
			return vm.runtimeError(diagnostics.ErrR001, "import path must be a string, got "+vm.peek(0).TypeName())
		}
		return vm.importModule(path.Chars)

	case OP_BUILD_STRING:
		n := int(vm.readByte())
		var b strings.Builder
		for _, part := range vm.stack[vm.sp-n : vm.sp] {
			writeValue(&b, part, 0)
		}
		s := vm.NewString(b.String())
		vm.sp -= n
		vm.push(ObjVal(s))

	case OP_ARRAY:
		n := vm.readUint16()
		a := vm.NewArray(vm.stack[vm.sp-n : vm.sp])
		vm.sp -= n
		vm.push(ObjVal(a))

	case OP_TABLE:
		n := vm.readUint16()
		t := vm.NewTable()
		vm.push(ObjVal(t))
		start := vm.sp - 1 - 2*n
		for i := 0; i < n; i++ {
			key := vm.stack[start+2*i]
			if key.IsNil() {
				return vm.runtimeError(diagnostics.ErrR013)
			}
			vm.TableSet(t, key, vm.stack[start+2*i+1])
		}
		vm.sp = start
		vm.push(ObjVal(t))

	// Control flow

	case OP_JUMP:
		offset := vm.readUint16()
		vm.frame.ip += offset

	case OP_JUMP_IF_FALSE:
		offset := vm.readUint16()
		if vm.peek(0).IsFalsey() {
			vm.frame.ip += offset
		}

	case OP_LOOP:
		offset := vm.readUint16()
		vm.frame.ip -= offset

	case OP_FOR_ITER:
		slot := int(vm.readByte())
		nvars := int(vm.readByte())
		exit := vm.readUint16()
		more, err := vm.iterate(vm.frame.base+slot, nvars)
		if err != nil {
			return err
		}
		if !more {
			vm.frame.ip += exit
		}

	case OP_FOR_RANGE:
		slot := int(vm.readByte())
		exit := vm.readUint16()
		more, err := vm.stepRange(vm.frame.base + slot)
		if err != nil {
			return err
		}
		if !more {
			vm.frame.ip += exit
		}

	// Calls and closures

	case OP_CALL:
		argc := int(vm.readByte())
		return vm.callValue(vm.peek(argc), argc)

	case OP_INVOKE:
		name := vm.readString()
		argc := int(vm.readByte())
		return vm.invoke(name, argc)

	case OP_SUPER_INVOKE:
		name := vm.readString()
		argc := int(vm.readByte())
		super := vm.pop().Obj.(*ObjClass)
		return vm.invokeFromClass(super, name, argc)

	case OP_CLOSURE:
		fn := vm.readConstant().Obj.(*ObjFn)
		closure := vm.newClosure(fn)
		vm.push(ObjVal(closure))
		for i := range closure.Upvalues {
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

	// Classes

	case OP_CLASS:
		name := vm.readString()
		vm.push(ObjVal(vm.newClass(name)))

	case OP_INHERIT:
		super, ok := vm.peek(1).Obj.(*ObjClass)
		if !ok {
			return vm.runtimeError(diagnostics.ErrR016, vm.peek(1).TypeName())
		}
		sub := vm.peek(0).Obj.(*ObjClass)
		for cursor := 0; ; {
			var k, v Value
			var more bool
			if cursor, k, v, more = super.Methods.Next(cursor); !more {
				break
			}
			vm.mapSet(sub, &sub.Methods, k, v)
		}
		sub.Init = super.Init
		sub.Fallible = super.Fallible
		vm.pop()

	case OP_METHOD:
		name := vm.readConstant()
		class := vm.peek(1).Obj.(*ObjClass)
		vm.mapSet(class, &class.Methods, name, vm.peek(0))
		vm.pop()

	case OP_INITIALIZER:
		fallible := vm.readByte() == 1
		class := vm.peek(0).Obj.(*ObjClass)
		init, _ := class.Methods.GetString(config.InitMethodName)
		class.Init = init
		class.Fallible = fallible

	default:
		return vm.runtimeError(diagnostics.ErrR001, "unknown opcode "+op.String())
	}
	return nil
}

func (vm *VM) currentModule() *Module {
	return vm.modules[vm.frame.closure.Fn.Module]
}

func has(m *Map, key Value) bool {
	_, ok := m.Get(key)
	return ok
}
